package assets

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
)

var compressibleExts = map[string]bool{
	".css":  true,
	".js":   true,
	".html": true,
	".svg":  true,
}

// Compress writes a brotli compressed copy (<name>.br) next to every text asset in the output
// directory, as long as the copy is smaller than the original.
func (p *Project) Compress(ctx context.Context) error {
	dist := p.Dist()
	written := 0

	err := filepath.WalkDir(dist, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !compressibleExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", path)
		}

		var buf bytes.Buffer
		brw := brotli.NewWriterLevel(&buf, brotli.BestCompression)
		if _, err = brw.Write(data); err != nil {
			return eris.Wrapf(err, "failed to compress %s", path)
		}
		if err = brw.Close(); err != nil {
			return eris.Wrapf(err, "failed to compress %s", path)
		}

		if buf.Len() >= len(data) {
			return nil
		}

		written++
		return writeFile(path+".br", buf.Bytes())
	})
	if err != nil {
		if os.IsNotExist(err) {
			return eris.Errorf("%s doesn't exist; run build first", dist)
		}
		return eris.Wrap(err, "failed to compress assets")
	}

	buildsys.Log(ctx).Info().Msgf("Compressed %d files", written)
	return nil
}
