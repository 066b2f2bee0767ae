package pkg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "src", "scss", "partials")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "tasks.star"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatal(err)
	}

	want, _ := filepath.EvalSymlinks(root)
	got, _ := filepath.EvalSymlinks(found)
	if got != want {
		t.Errorf("FindProjectRoot() = %s, want %s", found, root)
	}

	// the closest marker wins
	inner := filepath.Join(root, "src")
	if err := os.WriteFile(filepath.Join(inner, "assets.toml"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	found, err = FindProjectRoot(nested)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(found) != "src" {
		t.Errorf("expected the nearest marker to win, got %s", found)
	}
}
