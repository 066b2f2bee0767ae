package assets

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
)

// StyleCompiler compiles an SCSS entry point into CSS.
type StyleCompiler interface {
	Compile(ctx context.Context, entry string) ([]byte, error)
}

// ShellCompiler runs an external SCSS compiler (e.g. dart-sass) that prints the CSS to stdout.
// The entry path is appended to Command.
type ShellCompiler struct {
	Command string
	Dir     string
}

// Compile implements StyleCompiler.
func (c ShellCompiler) Compile(ctx context.Context, entry string) ([]byte, error) {
	if rel, err := filepath.Rel(c.Dir, entry); err == nil && !strings.HasPrefix(rel, "..") {
		entry = rel
	}

	var stdout, stderr bytes.Buffer
	script := c.Command + " " + buildsys.QuoteArg(filepath.ToSlash(entry))
	err := buildsys.RunShell(ctx, c.Dir, script, nil, &stdout, &stderr)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, eris.Wrap(err, msg)
	}

	return stdout.Bytes(), nil
}

// prefixCSS adds vendor prefixes for engines and minifies the result.
func prefixCSS(css []byte, engines []api.Engine, name string) ([]byte, error) {
	result := api.Transform(string(css), api.TransformOptions{
		Loader:           api.LoaderCSS,
		Engines:          engines,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		Sourcefile:       name,
		LogLevel:         api.LogLevelSilent,
		LegalComments:    api.LegalCommentsNone,
	})

	if len(result.Errors) > 0 {
		return nil, buildError("failed to process "+name, result.Errors)
	}

	return result.Code, nil
}

// buildError turns esbuild messages into a single error.
func buildError(msg string, messages []api.Message) error {
	formatted := api.FormatMessages(messages, api.FormatMessagesOptions{
		Kind: api.ErrorMessage,
	})

	return eris.Errorf("%s:\n%s", msg, strings.TrimSpace(strings.Join(formatted, "")))
}

// Styles compiles the SCSS entry, adds vendor prefixes and writes the single minified
// stylesheet into the source tree. On failure, no output is written.
func (p *Project) Styles(ctx context.Context) error {
	cfg := p.Config.Styles
	entry := p.Src(filepath.FromSlash(cfg.Entry))

	css, err := p.Compiler.Compile(ctx, entry)
	if err != nil {
		return eris.Wrapf(err, "failed to compile %s", cfg.Entry)
	}

	engines, err := p.Config.StyleEngines()
	if err != nil {
		return err
	}

	css, err = prefixCSS(css, engines, cfg.Output)
	if err != nil {
		return err
	}

	dest := p.Src(filepath.FromSlash(cfg.OutDir), cfg.Output)
	if err = writeFileAtomic(dest, css); err != nil {
		return err
	}

	buildsys.Log(ctx).Debug().Str("path", dest).Int("size", len(css)).Msg("stylesheet written")
	p.Server.ReloadCSS(p.relSrc(dest))
	return nil
}
