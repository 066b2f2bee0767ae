package buildsys

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/Den107/gulp-plus-webpack/pkg/posix"
)

// normalizePath joins pathList onto relativeTo. A leading "//" refers to the project root.
func normalizePath(projectRoot, relativeTo string, pathList ...string) string {
	result := relativeTo

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(projectRoot, path[2:])
		} else if strings.HasPrefix(path, "/") {
			result = filepath.Join(filepath.VolumeName(result), path)
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	return filepath.Clean(result)
}

// simplifyPath turns paths inside the project root into "//"-prefixed paths for log messages.
func simplifyPath(projectRoot, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if absPath == projectRoot {
		return "//"
	}

	if strings.HasPrefix(absPath, projectRoot+string(filepath.Separator)) {
		return "//" + filepath.ToSlash(absPath[len(projectRoot)+1:])
	}
	return path
}

func mergeEnv(overrides map[string]string) []string {
	osEnv := os.Environ()
	env := make([]string, 0, len(osEnv)+len(overrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		if runtime.GOOS == "windows" {
			parts[0] = strings.ToUpper(parts[0])
		}

		// skip overridden entries to avoid conflicts
		if _, present := overrides[parts[0]]; !present {
			env = append(env, item)
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}

	return env
}

// ResolvePatterns expands shell glob patterns (with ** support) relative to base and returns
// the matching paths in sorted order. Patterns without matches are dropped; literal paths are
// returned as they are, whether they exist or not.
func ResolvePatterns(projectRoot, base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		// literal path segments are checked relative to PWD
		Env: expand.ListEnviron("PWD=" + base),
		ReadDir: func(path string) ([]os.FileInfo, error) {
			if !filepath.IsAbs(path) {
				path = filepath.Join(base, path)
			}

			return ioutil.ReadDir(path)
		},
		GlobStar: true,
	}

	parser := syntax.NewParser()
	for _, item := range patterns {
		if strings.HasPrefix(item, "//") || filepath.IsAbs(item) {
			item = normalizePath(projectRoot, base, item)
		}
		item = filepath.ToSlash(item)

		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if strings.ContainsAny(match, "*?[") {
				continue
			}

			match = filepath.FromSlash(match)
			if !filepath.IsAbs(match) {
				match = filepath.Join(base, match)
			}
			result = append(result, match)
		}
	}

	sort.Strings(result)
	return result, nil
}

var defaultExecHandler = interp.DefaultExecHandler(2)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && posix.Supports(args[0]) {
		// always use our cross-platform implementation for these operations to make sure
		// they behave consistently
		hc := interp.HandlerCtx(ctx)
		err := posix.Run(hc.Dir, args)
		if err != nil {
			fmt.Fprintf(hc.Stderr, "%s: %s\n", args[0], eris.ToString(err, false))
			return interp.NewExitStatus(1)
		}
		return nil
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func newShell(dir string, env map[string]string, stdout, stderr io.Writer) (*interp.Runner, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(mergeEnv(env)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize shell")
	}

	return runner, nil
}

// RunShell parses script and executes it in dir. Output is written to stdout and stderr.
func RunShell(ctx context.Context, dir, script string, env map[string]string, stdout, stderr io.Writer) error {
	file, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	if err != nil {
		return eris.Wrapf(err, "failed to parse command %s", script)
	}

	runner, err := newShell(dir, env, stdout, stderr)
	if err != nil {
		return err
	}

	err = runner.Run(ctx, file)
	if err != nil {
		return eris.Wrapf(err, "command failed: %s", script)
	}

	return nil
}
