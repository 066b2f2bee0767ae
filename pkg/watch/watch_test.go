package watch

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cortesi/moddwatch"
)

func TestChangedPaths(t *testing.T) {
	root := filepath.FromSlash("/project/src")
	mod := &moddwatch.Mod{
		Changed: []string{"scss/b.scss", "scss/a.scss"},
		Added:   []string{filepath.FromSlash("/project/src/scss/a.scss")},
		Deleted: []string{"index.html"},
	}

	got := ChangedPaths(root, mod)
	want := []string{
		filepath.Join(root, "index.html"),
		filepath.Join(root, "scss", "a.scss"),
		filepath.Join(root, "scss", "b.scss"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ChangedPaths() = %v, want %v", got, want)
	}

	if got := ChangedPaths(root, &moddwatch.Mod{}); len(got) != 0 {
		t.Errorf("expected no paths for an empty batch, got %v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<p></p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, root, 10*time.Millisecond, Rule{
			Name:     "html",
			Patterns: []string{"*.html"},
			Handler: func(context.Context, []string) error {
				return nil
			},
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
