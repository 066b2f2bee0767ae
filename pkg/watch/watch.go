// Package watch re-runs handlers when files matching a set of patterns change.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/cortesi/moddwatch"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
)

// DefaultLull is the time a batch of changes has to be quiet before a handler runs.
const DefaultLull = 300 * time.Millisecond

// Handler receives the changed paths (absolute, sorted) of one batch.
type Handler func(ctx context.Context, paths []string) error

// Rule ties a group of patterns to a handler. Patterns are relative to the watched root and
// support "**".
type Rule struct {
	Name     string
	Patterns []string
	Excludes []string
	Handler  Handler
}

// Run watches root until ctx is cancelled. Handlers of one rule never overlap; a failing
// handler is logged and the rule stays active.
func Run(ctx context.Context, root string, lull time.Duration, rules ...Rule) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return eris.Wrapf(err, "failed to resolve %s", root)
	}

	if lull <= 0 {
		lull = DefaultLull
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchers := make([]*moddwatch.Watcher, 0, len(rules))
	defer func() {
		for _, w := range watchers {
			w.Stop()
		}
	}()

	var eg errgroup.Group
	for _, rule := range rules {
		rule := rule
		ch := make(chan *moddwatch.Mod, 1)

		w, err := moddwatch.Watch(root, rule.Patterns, rule.Excludes, lull, ch)
		if err != nil {
			return eris.Wrapf(err, "failed to watch %v", rule.Patterns)
		}
		watchers = append(watchers, w)

		eg.Go(func() error {
			dispatch(ctx, root, rule, ch)
			return nil
		})
	}

	buildsys.Log(ctx).Info().Msgf("Watching %s", root)

	<-ctx.Done()
	for _, w := range watchers {
		w.Stop()
	}
	watchers = nil

	return eg.Wait()
}

func dispatch(ctx context.Context, root string, rule Rule, ch <-chan *moddwatch.Mod) {
	logger := buildsys.Log(ctx).With().Str("watch", rule.Name).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case mod, ok := <-ch:
			if !ok {
				return
			}
			if mod == nil {
				continue
			}

			paths := ChangedPaths(root, mod)
			if len(paths) == 0 {
				continue
			}
			logger.Info().Strs("paths", paths).Msg("Change detected")

			start := time.Now()
			if err := rule.Handler(ctx, paths); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msgf("Failed after %s", time.Since(start))
			}
		}
	}
}

// ChangedPaths flattens a change batch into absolute, sorted, unique paths.
func ChangedPaths(root string, mod *moddwatch.Mod) []string {
	seen := make(map[string]bool)
	result := make([]string, 0)

	all := make([]string, 0, len(mod.Changed)+len(mod.Added)+len(mod.Deleted))
	all = append(all, mod.Changed...)
	all = append(all, mod.Added...)
	all = append(all, mod.Deleted...)

	for _, item := range all {
		if !filepath.IsAbs(item) {
			item = filepath.Join(root, item)
		}
		item = filepath.Clean(item)

		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	sort.Strings(result)
	return result
}
