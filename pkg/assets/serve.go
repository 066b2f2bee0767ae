package assets

import (
	"context"
	"path/filepath"

	"github.com/Den107/gulp-plus-webpack/pkg/vendor"
	"github.com/Den107/gulp-plus-webpack/pkg/watch"
)

// Browsersync serves the source directory with live reloading until ctx is cancelled.
func (p *Project) Browsersync(ctx context.Context) error {
	return p.Server.Serve(ctx)
}

// WatchRules returns the watcher configuration: stylesheets rebuild the styles, the script
// entry rebuilds the development bundle and pages only trigger a reload.
func (p *Project) WatchRules() []watch.Rule {
	return []watch.Rule{
		{
			Name:     "styles",
			Patterns: p.Config.Styles.Watch,
			Handler: func(ctx context.Context, _ []string) error {
				return p.Styles(ctx)
			},
		},
		{
			Name:     "scripts",
			Patterns: []string{p.Config.Scripts.Entry},
			Handler: func(ctx context.Context, _ []string) error {
				return p.Scripts(ctx)
			},
		},
		{
			Name:     "html",
			Patterns: p.Config.HTML.Patterns,
			Handler: func(ctx context.Context, paths []string) error {
				rel := make([]string, len(paths))
				for idx, item := range paths {
					rel[idx] = p.relSrc(item)
				}

				p.Server.Reload(rel...)
				return nil
			},
		},
	}
}

// Watching watches the source directory until ctx is cancelled.
func (p *Project) Watching(ctx context.Context) error {
	return watch.Run(ctx, p.Src(), watch.DefaultLull, p.WatchRules()...)
}

// Vendor downloads the third-party assets listed in the vendor manifest.
func (p *Project) Vendor(ctx context.Context) error {
	return vendor.Fetch(ctx, vendor.Options{
		ProjectRoot: p.Root,
		Manifest:    filepath.FromSlash(p.Config.Vendor.File),
		Stamps:      filepath.FromSlash(p.Config.Vendor.Stamps),
		Update:      p.VendorUpdate,
		Progress:    p.Config.Images.Progress,
	})
}
