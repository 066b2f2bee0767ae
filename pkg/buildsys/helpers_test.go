package buildsys

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	root := filepath.FromSlash("/project")
	base := filepath.FromSlash("/project/src")

	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"js/main.js"}, "/project/src/js/main.js"},
		{[]string{"//dist"}, "/project/dist"},
		{[]string{"//dist", "js"}, "/project/dist/js"},
		{[]string{"../other"}, "/project/other"},
	}

	for _, test := range tests {
		got := normalizePath(root, base, test.parts...)
		if got != filepath.FromSlash(test.want) {
			t.Errorf("normalizePath(%v) = %s, want %s", test.parts, got, test.want)
		}
	}
}

func TestResolvePatterns(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"fonts/a.woff2", "fonts/sub/b.woff", "css/style.min.css", "index.html", "about.html"} {
		writeFile(t, filepath.Join(root, filepath.FromSlash(name)), name, time.Now())
	}

	got, err := ResolvePatterns(root, root, []string{"*.html", "fonts/**/*.woff*", "missing/*.png", "css/style.min.css"})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(root, "about.html"),
		filepath.Join(root, "css", "style.min.css"),
		filepath.Join(root, "fonts", "a.woff2"),
		filepath.Join(root, "fonts", "sub", "b.woff"),
		filepath.Join(root, "index.html"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolvePatterns() = %v, want %v", got, want)
	}
}

func TestRunShell(t *testing.T) {
	dir := t.TempDir()

	var stdout bytes.Buffer
	err := RunShell(context.Background(), dir, `mkdir -p out/nested && echo "$GREETING" > out/nested/hello.txt && echo done`,
		map[string]string{"GREETING": "hi"}, &stdout, nil)
	if err != nil {
		t.Fatal(err)
	}

	if stdout.String() != "done\n" {
		t.Errorf("unexpected output %q", stdout.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "out", "nested", "hello.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hi\n" {
		t.Errorf("unexpected file content %q", data)
	}

	err = RunShell(context.Background(), dir, "rm -r out", nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Error("rm didn't remove the directory")
	}

	var stderr bytes.Buffer
	err = RunShell(context.Background(), dir, "rm missing", nil, nil, &stderr)
	if err == nil {
		t.Error("rm of a missing file should fail")
	}
	if stderr.Len() == 0 {
		t.Error("expected an error message on stderr")
	}
}

func TestRunShellStopsOnError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses false")
	}

	var stdout bytes.Buffer
	err := RunShell(context.Background(), t.TempDir(), "false\necho unreachable", nil, &stdout, nil)
	if err == nil {
		t.Error("expected the failing command to fail the script")
	}
	if stdout.Len() != 0 {
		t.Errorf("script continued after a failure: %q", stdout.String())
	}
}

func TestMergeEnv(t *testing.T) {
	t.Setenv("ASSETS_TEST_VAR", "old")

	env := mergeEnv(map[string]string{"ASSETS_TEST_VAR": "new", "ASSETS_OTHER": "x"})

	found := map[string]int{}
	for _, item := range env {
		switch item {
		case "ASSETS_TEST_VAR=old":
			t.Error("overridden value is still present")
		case "ASSETS_TEST_VAR=new", "ASSETS_OTHER=x":
			found[item]++
		}
	}

	if found["ASSETS_TEST_VAR=new"] != 1 || found["ASSETS_OTHER=x"] != 1 {
		t.Errorf("overrides missing from environment: %v", found)
	}
}

func TestProcessCmdParts(t *testing.T) {
	got, err := processCmdParts(starTuple("NODE_ENV=production", "sass", "my file.scss", StarlarkPath("/base/out.css")), "/base")
	if err != nil {
		t.Fatal(err)
	}

	want := "NODE_ENV=production sass 'my file.scss' out.css"
	if got != want {
		t.Errorf("processCmdParts() = %q, want %q", got, want)
	}

	if _, err := processCmdParts(starTuple("A=1"), "/base"); err == nil {
		t.Error("a command without a program should be rejected")
	}
}
