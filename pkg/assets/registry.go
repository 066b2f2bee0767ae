package assets

import (
	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
)

// Registry returns every built-in task of p together with the build and default pipelines.
func Registry(p *Project) (buildsys.TaskList, error) {
	tasks := buildsys.TaskList{}
	err := tasks.Add(
		buildsys.NewTask("clean", "Remove the output directory", p.Clean),
		buildsys.NewTask("images", "Optimize images into the output directory", p.Images),
		buildsys.NewTask("scripts", "Build the development bundle next to the sources", p.Scripts),
		buildsys.NewTask("buildJs", "Build the minified production bundle", p.BuildJs),
		buildsys.NewTask("styles", "Compile, prefix and minify the stylesheet", p.Styles),
		buildsys.NewTask("copyStatic", "Copy the stylesheet and fonts into the output directory", p.CopyStatic),
		buildsys.NewTask("buildHtml", "Minify the HTML pages into the output directory", p.BuildHtml),
		buildsys.NewTask("browsersync", "Serve the sources with live reloading", p.Browsersync),
		buildsys.NewTask("watching", "Rebuild styles and scripts when they change", p.Watching),
		buildsys.NewTask("compress", "Write brotli compressed copies of text assets", p.Compress),
		buildsys.NewTask("vendor", "Download third-party assets listed in the vendor manifest", p.Vendor),
	)
	if err != nil {
		return nil, err
	}

	build := []string{"clean", "images", "copyStatic", "buildJs", "buildHtml"}
	if p.Config.Build.Precompress {
		build = append(build, "compress")
	}

	err = tasks.Add(
		buildsys.Series("build", "Production build", build...),
		buildsys.Parallel("default", "Development mode: styles, scripts, server and watcher", "styles", "scripts", "browsersync", "watching"),
	)
	if err != nil {
		return nil, err
	}

	if err = tasks.Alias("cleanDist", "clean"); err != nil {
		return nil, err
	}

	if err = tasks.Validate(); err != nil {
		return nil, err
	}

	return tasks, nil
}
