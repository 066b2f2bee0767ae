package posix

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "dist", "js", "bundle.js"))
	touch(t, filepath.Join(dir, "file.txt"))

	if err := Remove([]string{filepath.Join(dir, "dist")}, false, false); err == nil {
		t.Error("removing a directory without recursive should fail")
	}

	if err := Remove([]string{filepath.Join(dir, "dist"), filepath.Join(dir, "file.txt")}, true, false); err != nil {
		t.Fatal(err)
	}
	if exists(filepath.Join(dir, "dist")) || exists(filepath.Join(dir, "file.txt")) {
		t.Error("items were not removed")
	}

	if err := Remove([]string{filepath.Join(dir, "missing")}, true, false); err == nil {
		t.Error("removing a missing item without force should fail")
	}
	if err := Remove([]string{filepath.Join(dir, "missing")}, true, true); err != nil {
		t.Errorf("force should ignore missing items: %v", err)
	}
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.txt"))
	touch(t, filepath.Join(dir, "b.txt"))
	if err := os.Mkdir(filepath.Join(dir, "target"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Move([]string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, filepath.Join(dir, "target")); err != nil {
		t.Fatal(err)
	}
	if !exists(filepath.Join(dir, "target", "a.txt")) || !exists(filepath.Join(dir, "target", "b.txt")) {
		t.Error("files were not moved into the directory")
	}

	if err := Move([]string{filepath.Join(dir, "target", "a.txt")}, filepath.Join(dir, "renamed.txt")); err != nil {
		t.Fatal(err)
	}
	if !exists(filepath.Join(dir, "renamed.txt")) {
		t.Error("file was not renamed")
	}

	touch(t, filepath.Join(dir, "c.txt"))
	err := Move([]string{filepath.Join(dir, "c.txt"), filepath.Join(dir, "renamed.txt")}, filepath.Join(dir, "nodir.txt"))
	if err == nil {
		t.Error("moving multiple items to a file should fail")
	}
}

func TestMkdir(t *testing.T) {
	dir := t.TempDir()

	if err := Mkdir([]string{filepath.Join(dir, "a", "b")}, false); err == nil {
		t.Error("mkdir without parents should fail for nested paths")
	}
	if err := Mkdir([]string{filepath.Join(dir, "a", "b")}, true); err != nil {
		t.Fatal(err)
	}
	if !exists(filepath.Join(dir, "a", "b")) {
		t.Error("directory was not created")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()

	if err := Run(dir, []string{"mkdir", "-p", "css/vendor"}); err != nil {
		t.Fatal(err)
	}
	touch(t, filepath.Join(dir, "css", "vendor", "x.css"))

	if err := Run(dir, []string{"mv", "css/vendor/x.css", "css"}); err != nil {
		t.Fatal(err)
	}
	if !exists(filepath.Join(dir, "css", "x.css")) {
		t.Error("mv with relative paths failed")
	}

	if err := Run(dir, []string{"rm", "-rf", "css", "nothing"}); err != nil {
		t.Fatal(err)
	}
	if exists(filepath.Join(dir, "css")) {
		t.Error("rm -rf failed")
	}

	if err := Run(dir, []string{"cp", "a", "b"}); err == nil {
		t.Error("unsupported commands should fail")
	}
	if err := Run(dir, []string{"rm", "--bogus"}); err == nil {
		t.Error("unknown flags should fail")
	}
}
