package assets

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
)

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	err = os.MkdirAll(filepath.Dir(dest), 0o755)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory %s", filepath.Dir(dest))
	}

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	return eris.Wrapf(out.Close(), "failed to write %s", dest)
}

// CopyStatic copies the static patterns (the compiled stylesheet and fonts by default) from the
// source directory into the output directory, keeping their relative paths. Patterns without
// matches are skipped with a warning.
func (p *Project) CopyStatic(ctx context.Context) error {
	base := p.Src()
	dist := p.Dist()
	logger := buildsys.Log(ctx)

	copied := 0
	for _, pattern := range p.Config.Static.Patterns {
		files, err := p.sourceFiles(base, filepath.FromSlash(pattern))
		if err != nil {
			return err
		}

		if len(files) == 0 {
			logger.Warn().Str("pattern", pattern).Msg("nothing matched, skipped")
			continue
		}

		for _, item := range files {
			rel, err := filepath.Rel(base, item)
			if err != nil {
				return eris.Wrapf(err, "failed to resolve %s", item)
			}

			if err = copyFile(item, filepath.Join(dist, rel)); err != nil {
				return err
			}
			copied++
		}
	}

	logger.Debug().Int("files", copied).Msg("static files copied")
	return nil
}

func htmlMinifier() *minify.M {
	m := minify.New()
	// only collapse whitespace; everything else stays as written
	m.Add("text/html", &html.Minifier{
		KeepComments:        true,
		KeepDefaultAttrVals: true,
		KeepEndTags:         true,
		KeepQuotes:          true,
	})

	return m
}

// BuildHtml minifies the top-level HTML pages into the output directory.
func (p *Project) BuildHtml(ctx context.Context) error {
	base := p.Src()
	files, err := p.sourceFiles(base, p.Config.HTML.Patterns...)
	if err != nil {
		return err
	}

	m := htmlMinifier()
	for _, item := range files {
		data, err := os.ReadFile(item)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", item)
		}

		result, err := m.Bytes("text/html", data)
		if err != nil {
			return eris.Wrapf(err, "failed to minify %s", item)
		}

		rel, err := filepath.Rel(base, item)
		if err != nil {
			return eris.Wrapf(err, "failed to resolve %s", item)
		}

		if err = writeFile(p.Dist(rel), result); err != nil {
			return err
		}
	}

	buildsys.Log(ctx).Debug().Int("files", len(files)).Msg("pages minified")
	return nil
}
