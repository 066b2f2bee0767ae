package assets

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Den107/gulp-plus-webpack/pkg/watch"
)

type ruleCounter struct {
	lock  sync.Mutex
	calls map[string]int
}

func (c *ruleCounter) wrap(rules []watch.Rule) []watch.Rule {
	wrapped := make([]watch.Rule, len(rules))
	for idx, rule := range rules {
		rule := rule
		handler := rule.Handler
		rule.Handler = func(ctx context.Context, paths []string) error {
			err := handler(ctx, paths)

			c.lock.Lock()
			c.calls[rule.Name]++
			c.lock.Unlock()
			return err
		}
		wrapped[idx] = rule
	}

	return wrapped
}

func (c *ruleCounter) get(name string) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.calls[name]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatchRules(t *testing.T) {
	files := defaultFiles()
	files["src/scss/partials/_vars.scss"] = "$color: red;"
	p := newTestProject(t, files)

	counter := &ruleCounter{calls: make(map[string]int)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watch.Run(ctx, p.Src(), 50*time.Millisecond, counter.wrap(p.WatchRules())...)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// give the watchers time to register
	time.Sleep(300 * time.Millisecond)

	if err := os.WriteFile(p.Src("scss", "partials", "_vars.scss"), []byte("$color: blue;"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "the styles rule", func() bool { return counter.get("styles") > 0 })

	if _, err := os.Stat(p.Src("css", "style.min.css")); err != nil {
		t.Errorf("styles were not rebuilt: %v", err)
	}

	if err := os.WriteFile(p.Src("js", "main.js"), []byte(testScript+"console.log(1);\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "the scripts rule", func() bool { return counter.get("scripts") > 0 })

	if _, err := os.Stat(p.Src("js", "bundle.js")); err != nil {
		t.Errorf("development bundle was not rebuilt: %v", err)
	}

	if n := counter.get("html"); n != 0 {
		t.Errorf("html rule ran %d times without a page change", n)
	}

	if err := os.WriteFile(p.Src("index.html"), []byte(testPage+"<!-- edited -->\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "the html rule", func() bool { return counter.get("html") > 0 })
}
