// Package assets implements the front-end pipeline tasks (styles, scripts, images, static files,
// HTML, the development server and the watcher) and registers them in a task list.
package assets

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/Den107/gulp-plus-webpack/pkg/config"
	"github.com/Den107/gulp-plus-webpack/pkg/livereload"
)

// Project bundles everything the tasks share: the project layout, the configuration and the
// live-reload server.
type Project struct {
	Root   string
	Config *config.Config
	// Server is notified by styles, scripts and watching and started by browsersync.
	Server *livereload.Server
	// Compiler turns the SCSS entry into CSS.
	Compiler StyleCompiler
	// VendorUpdate makes the vendor task record new checksums instead of failing.
	VendorUpdate bool
}

// NewProject creates a project rooted at root. The live-reload server is created here but
// only starts listening when the browsersync task runs.
func NewProject(root string, cfg *config.Config) (*Project, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", root)
	}

	p := &Project{
		Root:     root,
		Config:   cfg,
		Compiler: ShellCompiler{Command: cfg.Styles.Compiler, Dir: root},
	}
	p.Server = livereload.New(livereload.Options{
		Root:    p.Src(),
		Address: cfg.Server.Address,
		Metrics: cfg.Server.Metrics,
	})

	return p, nil
}

func (p *Project) resolve(base string, parts ...string) string {
	if !filepath.IsAbs(base) {
		base = filepath.Join(p.Root, base)
	}

	return filepath.Join(append([]string{base}, parts...)...)
}

// Src returns a path inside the source directory.
func (p *Project) Src(parts ...string) string {
	return p.resolve(p.Config.Src, parts...)
}

// Dist returns a path inside the output directory.
func (p *Project) Dist(parts ...string) string {
	return p.resolve(p.Config.Dist, parts...)
}

// writeFile creates the parent directories and writes data to path.
func writeFile(path string, data []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory %s", filepath.Dir(path))
	}

	return eris.Wrapf(os.WriteFile(path, data, 0o644), "failed to write %s", path)
}

// writeFileAtomic writes data to a temporary file next to path and renames it into place so
// readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "failed to create temporary file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err != nil {
		tmp.Close()
		return eris.Wrapf(err, "failed to write %s", tmp.Name())
	}

	if err = tmp.Close(); err != nil {
		return eris.Wrapf(err, "failed to write %s", tmp.Name())
	}

	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return eris.Wrapf(err, "failed to set permissions on %s", tmp.Name())
	}

	return eris.Wrapf(os.Rename(tmp.Name(), path), "failed to move %s into place", path)
}

// relSrc turns path into a slash-separated path relative to the source directory.
func (p *Project) relSrc(path string) string {
	rel, err := filepath.Rel(p.Src(), path)
	if err != nil {
		return filepath.ToSlash(path)
	}

	return filepath.ToSlash(rel)
}
