package buildsys

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
)

// TaskFunc is the body of a built-in task.
type TaskFunc func(ctx context.Context) error

// TaskCmd is a single step of a task. Steps run in order; the first failing step aborts the task.
type TaskCmd interface {
	run(ctx context.Context, ex *execution) error
}

// TaskCmdScript is a shell snippet executed by the embedded interpreter.
type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
}

// TaskCmdTaskRef runs another task. Task takes precedence over Name; Name is resolved
// against the TaskList at run time.
type TaskCmdTaskRef struct {
	Name string
	Task *Task
}

// TaskCmdFunc calls a Go function.
type TaskCmdFunc struct {
	Fn TaskFunc
}

// TaskCmdParallel starts the named tasks concurrently and waits for all of them.
type TaskCmdParallel struct {
	Names []string
}

// Task contains everything the runner needs to execute a named unit of work.
type Task struct {
	Env          map[string]string
	Short        string
	Desc         string
	Base         string
	Inputs       []string
	Deps         []string
	SkipIfExists []string
	Outputs      []string
	Cmds         []TaskCmd
	Hidden       bool
}

// TaskList maps short names to each relevant task
type TaskList map[string]*Task

// ScriptOption describes an option() declared by the project script.
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}

// NewTask wraps fn in a task.
func NewTask(short, desc string, fn TaskFunc) *Task {
	return &Task{
		Short: short,
		Desc:  desc,
		Cmds:  []TaskCmd{TaskCmdFunc{Fn: fn}},
	}
}

// Series returns a task that runs the named tasks one after another and stops at the first failure.
func Series(short, desc string, names ...string) *Task {
	cmds := make([]TaskCmd, len(names))
	for idx, name := range names {
		cmds[idx] = TaskCmdTaskRef{Name: name}
	}

	return &Task{
		Short: short,
		Desc:  desc,
		Cmds:  cmds,
	}
}

// Parallel returns a task that runs the named tasks concurrently. A failing member doesn't stop
// the others; the first error is reported once every member has returned.
func Parallel(short, desc string, names ...string) *Task {
	return &Task{
		Short: short,
		Desc:  desc,
		Cmds:  []TaskCmd{TaskCmdParallel{Names: names}},
	}
}

// Add registers the passed tasks. Names must be unique.
func (l TaskList) Add(tasks ...*Task) error {
	for _, task := range tasks {
		if task.Short == "" {
			return eris.New("can't register a task without a name")
		}

		if _, exists := l[task.Short]; exists {
			return eris.Errorf("task %s is already registered", task.Short)
		}

		l[task.Short] = task
	}

	return nil
}

// Alias registers target under a second name.
func (l TaskList) Alias(alias, target string) error {
	task, ok := l[target]
	if !ok {
		return eris.Errorf("can't alias %s: task %s not found", alias, target)
	}

	return l.Add(&Task{
		Short:  alias,
		Desc:   fmt.Sprintf("Alias for %s", target),
		Cmds:   []TaskCmd{TaskCmdTaskRef{Name: task.Short}},
		Hidden: true,
	})
}

// Merge copies every task from other into l. Existing names are not overwritten.
func (l TaskList) Merge(other TaskList) error {
	names := make([]string, 0, len(other))
	for name := range other {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := l.Add(other[name]); err != nil {
			return eris.Wrapf(err, "failed to merge task %s", name)
		}
	}

	return nil
}

// Names returns the sorted names of all visible tasks.
func (l TaskList) Names() []string {
	names := make([]string, 0, len(l))
	for name, task := range l {
		if !task.Hidden {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names
}

// children lists the names of every task that task references.
func (t *Task) children() []string {
	result := append([]string{}, t.Deps...)
	for _, cmd := range t.Cmds {
		switch cmd := cmd.(type) {
		case TaskCmdTaskRef:
			if cmd.Task != nil {
				result = append(result, cmd.Task.Short)
			} else {
				result = append(result, cmd.Name)
			}
		case TaskCmdParallel:
			result = append(result, cmd.Names...)
		}
	}

	return result
}

// Validate makes sure every referenced task exists and that no task depends on itself.
func (l TaskList) Validate() error {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(l))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return eris.Errorf("cyclic task dependency: %s -> %s", strings.Join(path, " -> "), name)
		}

		task, ok := l[name]
		if !ok {
			return eris.Errorf("task %s references unknown task %s", path[len(path)-1], name)
		}

		state[name] = visiting
		for _, child := range task.children() {
			if err := visit(child, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		return nil
	}

	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if state[name] == unvisited {
			if err := visit(name, nil); err != nil {
				return err
			}
		}
	}

	return nil
}

// Implement starlark.Value for *Task

// String returns a string representation of the task
func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Short, t.Desc)
}

// Type always returns "task" to indicate this type
func (t *Task) Type() string {
	return "task"
}

// Freeze doesn't do anything since tasks are immutable anyway
func (t *Task) Freeze() {}

// Truth always returns true since a task can't be nil or None
func (t *Task) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since task is not hashable
func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

// StarlarkPath is a normalized path returned by resolve_path().
type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}
