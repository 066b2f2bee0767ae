package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.starlark.net/starlark"
)

func starTuple(items ...interface{}) starlark.Tuple {
	result := make(starlark.Tuple, len(items))
	for idx, item := range items {
		switch value := item.(type) {
		case string:
			result[idx] = starlark.String(value)
		case starlark.Value:
			result[idx] = value
		}
	}
	return result
}

func writeScript(t *testing.T, content string) (string, string) {
	t.Helper()

	root := t.TempDir()
	path := filepath.Join(root, ScriptName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	return root, path
}

const testTasksScript = `
mode = option("mode", "dev", help = "build mode")
setenv("BUILD_MODE", mode)

def configure():
    inner = task(cmds = ["echo inner"])
    task(
        short = "lint",
        desc = "Lint the sources",
        deps = ["styles"],
        inputs = ["src/**/*.js"],
        outputs = ["reports/lint.txt"],
        env = {"STRICT": "1"},
        cmds = [("eslint", resolve_path("src")), inner],
    )
    if OS and isdir("src"):
        info("src exists")
`

func TestLoadScript(t *testing.T) {
	root, path := writeScript(t, testTasksScript)
	if err := os.Mkdir(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}

	tasks, options, err := LoadScript(context.Background(), path, root, map[string]string{"mode": "prod"})
	if err != nil {
		t.Fatal(err)
	}

	if opt, ok := options["mode"]; !ok || opt.Default() != "dev" || opt.Help != "build mode" {
		t.Errorf("unexpected option %+v", options["mode"])
	}

	lint, ok := tasks["lint"]
	if !ok {
		t.Fatalf("lint task missing, have %v", tasks.Names())
	}

	if lint.Desc != "Lint the sources" || !reflect.DeepEqual(lint.Deps, []string{"styles"}) {
		t.Errorf("unexpected task %+v", lint)
	}

	if lint.Env["STRICT"] != "1" || lint.Env["BUILD_MODE"] != "prod" {
		t.Errorf("unexpected env %v", lint.Env)
	}

	if len(lint.Cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(lint.Cmds))
	}

	script, ok := lint.Cmds[0].(TaskCmdScript)
	if !ok || script.Content != "eslint src" {
		t.Errorf("unexpected first command %#v", lint.Cmds[0])
	}

	ref, ok := lint.Cmds[1].(TaskCmdTaskRef)
	if !ok || !strings.HasPrefix(ref.Task.Short, "auto#") {
		t.Errorf("unexpected second command %#v", lint.Cmds[1])
	}

	if !reflect.DeepEqual(tasks.Names(), []string{"lint"}) {
		t.Errorf("anonymous tasks should be hidden, names: %v", tasks.Names())
	}
	if _, ok := tasks[ref.Task.Short]; !ok {
		t.Error("anonymous tasks must still be registered")
	}
}

func TestLoadScriptErrors(t *testing.T) {
	tests := map[string]string{
		"task outside configure": `task(short = "x")`,
		"option inside configure": `
def configure():
    option("late")
`,
		"error builtin":          `error("stop here")`,
		"configure not callable": `configure = 1`,
	}

	for name, script := range tests {
		root, path := writeScript(t, script)
		if _, _, err := LoadScript(context.Background(), path, root, nil); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestScriptTasksRun(t *testing.T) {
	root, path := writeScript(t, `
def configure():
    task(
        short = "generate",
        cmds = ["mkdir -p out", "echo $MESSAGE > out/message.txt"],
        env = {"MESSAGE": "generated"},
    )
`)

	tasks, _, err := LoadScript(context.Background(), path, root, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err = RunTask(context.Background(), "generate", tasks, RunOptions{ProjectRoot: root}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, "out", "message.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "generated" {
		t.Errorf("unexpected output %q", data)
	}
}

func TestReadYaml(t *testing.T) {
	root, path := writeScript(t, `
version = read_yaml("vendor.yml", "deps.jquery.version")
fallback = read_yaml("vendor.yml", "deps.missing", "none")
first = read_yaml("vendor.yml", "mirrors.0")

def configure():
    task(short = version + "-" + fallback + "-" + first)
`)
	err := os.WriteFile(filepath.Join(root, "vendor.yml"), []byte("deps:\n  jquery:\n    version: \"3.6\"\nmirrors:\n  - cdn\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	tasks, _, err := LoadScript(context.Background(), path, root, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := tasks["3.6-none-cdn"]; !ok {
		t.Errorf("unexpected tasks %v", tasks.Names())
	}
}
