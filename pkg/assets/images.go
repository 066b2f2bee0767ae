package assets

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
	"github.com/Den107/gulp-plus-webpack/pkg/imagemin"
)

// sourceFiles returns the regular files matching patterns below base.
func (p *Project) sourceFiles(base string, patterns ...string) ([]string, error) {
	matches, err := buildsys.ResolvePatterns(p.Root, base, patterns)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(matches))
	for _, item := range matches {
		info, err := os.Stat(item)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, eris.Wrapf(err, "failed to check %s", item)
		}

		if info.Mode().IsRegular() {
			result = append(result, item)
		}
	}

	return result, nil
}

func (p *Project) imageProgress(count int) *progressbar.ProgressBar {
	if !p.Config.Images.Progress || os.Getenv("CI") == "true" {
		return progressbar.NewOptions(count, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription("images"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *Project) openImageCache(ctx context.Context) *imagemin.Cache {
	if p.Config.Images.Cache == "" {
		return nil
	}

	cache, err := imagemin.OpenCache(p.resolve(filepath.FromSlash(p.Config.Images.Cache)))
	if err != nil {
		buildsys.Log(ctx).Warn().Err(err).Msg("image cache unavailable, optimizing everything")
		return nil
	}

	return cache
}

// Images optimizes every file in the image directory and writes the results to the same
// relative path in the output directory. Files that can't be optimized are copied unchanged.
func (p *Project) Images(ctx context.Context) error {
	cfg := p.Config.Images
	srcDir := p.Src(filepath.FromSlash(cfg.Dir))
	destDir := p.Dist(filepath.FromSlash(cfg.Dir))
	logger := buildsys.Log(ctx)

	files, err := p.sourceFiles(srcDir, "**/*")
	if err != nil {
		return err
	}

	if len(files) == 0 {
		logger.Info().Msgf("No images found in %s", p.relSrc(srcDir))
		return nil
	}

	cache := p.openImageCache(ctx)
	if cache != nil {
		defer cache.Close()
	}

	optimizer := imagemin.New(imagemin.Options{
		JPEGQuality:      cfg.JPEGQuality,
		JPEGProgressive:  cfg.JPEGProgressive,
		PNGLevel:         cfg.PNGLevel,
		GIFInterlaced:    cfg.GIFInterlaced,
		SVGRemoveViewBox: cfg.SVGRemoveViewBox,
		SVGCleanupIDs:    cfg.SVGCleanupIDs,
	}, cache)

	bar := p.imageProgress(len(files))
	var before, after int64

	var eg errgroup.Group
	eg.SetLimit(runtime.NumCPU())
	for _, item := range files {
		item := item
		eg.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			rel, err := filepath.Rel(srcDir, item)
			if err != nil {
				return eris.Wrapf(err, "failed to resolve %s", item)
			}

			data, err := os.ReadFile(item)
			if err != nil {
				return eris.Wrapf(err, "failed to read %s", item)
			}

			result, err := optimizer.Optimize(rel, data)
			if err != nil {
				logger.Warn().Err(err).Str("path", filepath.ToSlash(rel)).Msg("copying image unchanged")
				result = data
			}

			if err = writeFile(filepath.Join(destDir, rel), result); err != nil {
				return err
			}

			atomic.AddInt64(&before, int64(len(data)))
			atomic.AddInt64(&after, int64(len(result)))
			_ = bar.Add(1)
			return nil
		})
	}

	err = eg.Wait()
	_ = bar.Finish()
	if err != nil {
		return err
	}

	saved := before - after
	percent := 0.0
	if before > 0 {
		percent = float64(saved) * 100 / float64(before)
	}
	logger.Info().Msgf("Minified %d images (saved %d bytes - %.1f%%)", len(files), saved, percent)
	return nil
}
