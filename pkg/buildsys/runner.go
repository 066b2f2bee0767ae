package buildsys

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// RunOptions control a single runner invocation.
type RunOptions struct {
	ProjectRoot string
	// DryRun only logs shell commands and skips Go task bodies.
	DryRun bool
	// Force ignores skip_if_exists and the input/output timestamps.
	Force bool
}

type taskState struct {
	done chan struct{}
	err  error
}

// Runner executes tasks from a TaskList. Every task runs at most once per Runner; concurrent
// requests for a running task wait for its result.
type Runner struct {
	tasks TaskList
	opts  RunOptions

	lock   sync.Mutex
	states map[string]*taskState
}

type callStackKey struct{}

// NewRunner creates a Runner for tasks.
func NewRunner(tasks TaskList, opts RunOptions) *Runner {
	return &Runner{
		tasks:  tasks,
		opts:   opts,
		states: make(map[string]*taskState),
	}
}

// RunTask executes the given task with fresh state.
func RunTask(ctx context.Context, task string, tasks TaskList, opts RunOptions) error {
	return NewRunner(tasks, opts).Run(ctx, task)
}

// Run executes the named task and everything it depends on.
func (r *Runner) Run(ctx context.Context, task string) error {
	taskMeta, found := r.tasks[task]
	if !found {
		return eris.Errorf("Task %s not found", task)
	}

	return r.runTaskInternal(ctx, taskMeta, true)
}

func callStack(ctx context.Context) []string {
	stack, _ := ctx.Value(callStackKey{}).([]string)
	return stack
}

func (r *Runner) runTaskInternal(ctx context.Context, task *Task, canSkip bool) (err error) {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	stack := callStack(ctx)
	for _, name := range stack {
		if name == task.Short {
			return eris.Errorf("Task %s was called recursively", task.Short)
		}
	}
	ctx = context.WithValue(ctx, callStackKey{}, append(stack[:len(stack):len(stack)], task.Short))

	r.lock.Lock()
	state, ok := r.states[task.Short]
	if ok {
		r.lock.Unlock()

		select {
		case <-state.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		if state.err == nil {
			Log(ctx).Debug().Msgf("Task %s already run", task.Short)
		}
		return state.err
	}

	state = &taskState{done: make(chan struct{})}
	r.states[task.Short] = state
	r.lock.Unlock()

	// waiters must be released even if the task panics
	defer func() {
		if rec := recover(); rec != nil {
			state.err = eris.Errorf("Task %s panicked: %v", task.Short, rec)
			err = state.err
		}
		close(state.done)
	}()

	start := time.Now()
	state.err = r.execute(ctx, task, canSkip)
	if !task.Hidden {
		observeTask(task.Short, time.Since(start), state.err)
	}

	return state.err
}

func (r *Runner) execute(ctx context.Context, task *Task, canSkip bool) error {
	for _, dep := range task.Deps {
		depTask, ok := r.tasks[dep]
		if !ok {
			return eris.Errorf("Task %s not found", dep)
		}

		err := r.runTaskInternal(ctx, depTask, true)
		if err != nil {
			return eris.Wrapf(err, "Task %s failed due to its dependency %s", task.Short, dep)
		}
	}

	if canSkip && !r.opts.Force {
		skip, err := r.upToDate(ctx, task)
		if err != nil {
			return err
		}

		if skip {
			return nil
		}
	}

	logger := Log(ctx).With().Str("task", task.Short).Logger()
	if !task.Hidden {
		logger.Info().Msg("Starting")
	}
	start := time.Now()

	ex := &execution{runner: r, task: task}
	for _, item := range task.Cmds {
		err := item.run(ctx, ex)
		if err != nil {
			if !task.Hidden {
				logger.Error().Msgf("Failed after %s", time.Since(start).Round(time.Millisecond))
			}
			return err
		}

		if ex.exited {
			break
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	if !task.Hidden {
		logger.Info().Msgf("Finished after %s", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// upToDate implements the skip_if_exists and input/output timestamp checks.
func (r *Runner) upToDate(ctx context.Context, task *Task) (bool, error) {
	if len(task.SkipIfExists) > 0 {
		skipList, err := ResolvePatterns(r.opts.ProjectRoot, task.Base, task.SkipIfExists)
		if err != nil {
			return false, eris.Wrapf(err, "failed to resolve skipIfExists list")
		}

		found := 0
		for _, item := range skipList {
			_, err := os.Stat(item)
			if err == nil {
				found++
			} else if !eris.Is(err, os.ErrNotExist) {
				return false, eris.Wrapf(err, "Failed to check %s", item)
			}
		}

		if found > 0 && found == len(skipList) {
			Log(ctx).Info().
				Str("task", task.Short).
				Msg("skipped because all skip files exist")
			return true, nil
		}
	}

	if len(task.Inputs) == 0 {
		return false, nil
	}

	var newestInput time.Time
	inputList, err := ResolvePatterns(r.opts.ProjectRoot, task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	outputList, err := ResolvePatterns(r.opts.ProjectRoot, task.Base, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "Failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() || len(outputList) == 0 {
		return false, nil
	}

	var newestOutput time.Time
	oldestOutput := time.Now()
	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				// a missing output always means we have to run
				return false, nil
			}
			return false, eris.Wrapf(err, "Failed to check output %s", item)
		}

		mt := info.ModTime()
		if mt.After(newestOutput) {
			newestOutput = mt
		}

		if mt.Before(oldestOutput) {
			oldestOutput = mt
		}
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		Log(ctx).Warn().
			Str("task", task.Short).
			Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if oldestOutput.After(newestInput) {
		Log(ctx).Info().
			Str("task", task.Short).
			Msgf("nothing to do (output is %f seconds newer)", oldestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}

// execution holds the per-task state shared by its commands.
type execution struct {
	runner *Runner
	task   *Task
	shell  *interp.Runner
	exited bool
}

func (ex *execution) getShell() (*interp.Runner, error) {
	if ex.shell == nil {
		dir := ex.task.Base
		if dir == "" {
			dir = ex.runner.opts.ProjectRoot
		}

		shell, err := newShell(dir, ex.task.Env, os.Stdout, os.Stderr)
		if err != nil {
			return nil, err
		}
		ex.shell = shell
	}

	return ex.shell, nil
}

// ToShellStmts parses the script into statements.
func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	result, err := parser.Parse(strings.NewReader(s.Content), s.TaskName)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

func (s TaskCmdScript) run(ctx context.Context, ex *execution) error {
	stmts, err := s.ToShellStmts(syntax.NewParser())
	if err != nil {
		return err
	}

	shell, err := ex.getShell()
	if err != nil {
		return err
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}
	for _, stm := range stmts {
		strBuffer.Reset()
		if err := printer.Print(&strBuffer, stm); err != nil {
			return eris.Wrap(err, "failed to print shell statement")
		}

		Log(ctx).Info().
			Str("task", ex.task.Short).
			Bool("command", true).
			Msg(strBuffer.String())

		if ex.runner.opts.DryRun {
			continue
		}

		if err := shell.Run(ctx, stm); err != nil {
			return err
		}

		if shell.Exited() {
			ex.exited = true
			return nil
		}
	}

	return nil
}

func (t TaskCmdTaskRef) run(ctx context.Context, ex *execution) error {
	subTask := t.Task
	if subTask == nil {
		var ok bool
		subTask, ok = ex.runner.tasks[t.Name]
		if !ok {
			return eris.Errorf("Task %s not found", t.Name)
		}
	}

	return ex.runner.runTaskInternal(ctx, subTask, true)
}

func (f TaskCmdFunc) run(ctx context.Context, ex *execution) error {
	if ex.runner.opts.DryRun {
		Log(ctx).Info().Str("task", ex.task.Short).Msg("dry run; skipped")
		return nil
	}

	return f.Fn(ctx)
}

func (p TaskCmdParallel) run(ctx context.Context, ex *execution) error {
	members := make([]*Task, len(p.Names))
	for idx, name := range p.Names {
		task, ok := ex.runner.tasks[name]
		if !ok {
			return eris.Errorf("Task %s not found", name)
		}
		members[idx] = task
	}

	// A plain Group keeps the siblings running when one of them fails.
	var group errgroup.Group
	for _, task := range members {
		task := task
		group.Go(func() error {
			err := ex.runner.runTaskInternal(ctx, task, true)
			if err != nil {
				Log(ctx).Error().Err(err).Str("task", task.Short).Msg("Failed")
			}
			return err
		})
	}

	return group.Wait()
}
