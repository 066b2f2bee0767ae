// Package posix contains cross-platform versions of rm, mv and mkdir. They are used by the
// shell interpreter, the CLI and by tasks that delete or create directories.
package posix

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
)

// Remove deletes the passed items. Directories require recursive. With force, missing items
// and patterns without matches are ignored.
func Remove(items []string, recursive, force bool) error {
	items, err := expandArgs(items, force)
	if err != nil {
		return err
	}

	for _, item := range items {
		info, err := os.Lstat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
	}

	for _, item := range items {
		err := os.RemoveAll(item)
		if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
			return eris.Wrapf(err, "could not delete %s", item)
		}
	}

	return nil
}

// Move moves every source into dest. Multiple sources require dest to be a directory.
func Move(sources []string, dest string) error {
	if len(sources) < 1 {
		return eris.New("not enough parameters")
	}

	dest = filepath.Clean(dest)
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", destParent)
	}

	destIsDir := false
	info, err = os.Stat(dest)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "failed to retrieve info about destination %s", dest)
		}
	} else {
		destIsDir = info.IsDir()
	}

	items, err := expandArgs(sources, false)
	if err != nil {
		return err
	}

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("can't move multiple items to %s because it is not a directory", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

// Mkdir creates the passed directories.
func Mkdir(items []string, parents bool) error {
	for _, item := range items {
		var err error
		if parents {
			err = os.MkdirAll(item, 0o770)
		} else {
			err = os.Mkdir(item, 0o770)
		}

		if err != nil {
			return eris.Wrapf(err, "failed to create %s", item)
		}
	}

	return nil
}

// expandArgs resolves glob patterns on Windows where the shell doesn't do it for us.
func expandArgs(args []string, force bool) ([]string, error) {
	if runtime.GOOS != "windows" {
		return args, nil
	}

	items := []string{}
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if force {
				continue
			}
			return nil, eris.Errorf("pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}

	return items, nil
}

// Supports reports whether name is one of the commands implemented here.
func Supports(name string) bool {
	switch name {
	case "rm", "mv", "mkdir":
		return true
	}
	return false
}

// Run executes a command line (name followed by arguments) with relative paths resolved against dir.
func Run(dir string, args []string) error {
	if len(args) < 1 || !Supports(args[0]) {
		return eris.Errorf("unsupported command %v", args)
	}

	flags := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	recursive := flags.BoolP("recursive", "r", false, "recursively delete directories")
	force := flags.BoolP("force", "f", false, "suppresses errors caused by missing files/folders")
	parents := flags.BoolP("parents", "p", false, "create parent directories as needed")
	if err := flags.Parse(args[1:]); err != nil {
		return eris.Wrapf(err, "invalid arguments for %s", args[0])
	}

	paths := flags.Args()
	for idx, path := range paths {
		if !filepath.IsAbs(path) {
			paths[idx] = filepath.Join(dir, path)
		}
	}

	switch args[0] {
	case "rm":
		return Remove(paths, *recursive, *force)
	case "mkdir":
		return Mkdir(paths, *parents)
	default:
		if len(paths) < 2 {
			return eris.New("not enough parameters")
		}
		return Move(paths[:len(paths)-1], paths[len(paths)-1])
	}
}
