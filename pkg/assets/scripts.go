package assets

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
)

// bundle builds the script entry into outDir and returns the written files. production only
// toggles minification; both modes share every other option.
func (p *Project) bundle(ctx context.Context, outDir string, production bool) ([]string, error) {
	cfg := p.Config.Scripts

	target, err := p.Config.ScriptTarget()
	if err != nil {
		return nil, err
	}

	format := api.FormatIIFE
	if cfg.Splitting {
		// esbuild only splits ES modules
		format = api.FormatESModule
	}

	mode := "development"
	if production {
		mode = "production"
	}

	opts := api.BuildOptions{
		EntryPointsAdvanced: []api.EntryPoint{{
			InputPath:  p.Src(filepath.FromSlash(cfg.Entry)),
			OutputPath: strings.TrimSuffix(cfg.Bundle, filepath.Ext(cfg.Bundle)),
		}},
		Bundle:            true,
		Write:             true,
		Outdir:            outDir,
		Splitting:         cfg.Splitting,
		Format:            format,
		Target:            target,
		Platform:          api.PlatformBrowser,
		ResolveExtensions: cfg.Extensions,
		ChunkNames:        "chunks/[name]-[hash]",
		AbsWorkingDir:     p.Root,
		LogLevel:          api.LogLevelSilent,
		Define: map[string]string{
			"process.env.NODE_ENV": `"` + mode + `"`,
		},
	}

	if production {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
		opts.LegalComments = api.LegalCommentsNone
	} else {
		opts.Sourcemap = api.SourceMapInline
	}

	result := api.Build(opts)
	logger := buildsys.Log(ctx)
	for _, msg := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		logger.Warn().Msg(strings.TrimSpace(msg))
	}

	if len(result.Errors) > 0 {
		return nil, buildError("failed to bundle "+cfg.Entry, result.Errors)
	}

	written := make([]string, len(result.OutputFiles))
	for idx, file := range result.OutputFiles {
		written[idx] = file.Path
		logger.Debug().Str("path", file.Path).Int("size", len(file.Contents)).Str("mode", mode).Msg("bundle written")
	}

	return written, nil
}

// Scripts builds the development bundle next to the sources and reloads connected browsers.
func (p *Project) Scripts(ctx context.Context) error {
	written, err := p.bundle(ctx, p.Src(filepath.FromSlash(p.Config.Scripts.DevDir)), false)
	if err != nil {
		return err
	}

	paths := make([]string, len(written))
	for idx, item := range written {
		paths[idx] = p.relSrc(item)
	}

	p.Server.Reload(paths...)
	return nil
}

// BuildJs builds the minified production bundle into the output directory.
func (p *Project) BuildJs(ctx context.Context) error {
	_, err := p.bundle(ctx, p.Dist(filepath.FromSlash(p.Config.Scripts.ProdDir)), true)
	return err
}
