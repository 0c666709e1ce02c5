package buildsys

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"
)

// Cmd is a single entry of a task's cmds list. It's either a shell snippet or a reference to another
// task which is run in place.
type Cmd interface {
	Stmts(parser *syntax.Parser) ([]*syntax.Stmt, error)
	Subtask() *Task
}

// ScriptCmd is a shell snippet
type ScriptCmd struct {
	TaskName string
	Index    int
	Script   string
}

// Stmts parses the snippet
func (c ScriptCmd) Stmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	file, err := parser.Parse(strings.NewReader(c.Script), fmt.Sprintf("%s#%d", c.TaskName, c.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", c.Script)
	}

	return file.Stmts, nil
}

// Subtask always returns nil for shell snippets
func (c ScriptCmd) Subtask() *Task {
	return nil
}

// TaskRefCmd runs another task as part of the current one
type TaskRefCmd struct {
	Task *Task
}

func (c TaskRefCmd) Stmts(*syntax.Parser) ([]*syntax.Stmt, error) {
	return nil, nil
}

func (c TaskRefCmd) Subtask() *Task {
	return c.Task
}

// Task contains the processed values passed to task() by the task script
type Task struct {
	Short        string
	Desc         string
	Base         string
	Hidden       bool
	Env          map[string]string
	Deps         []string
	SkipIfExists []string
	Inputs       []string
	Outputs      []string
	Watch        []string
	Cmds         []Cmd
}

// TaskList maps short names to each visible task
type TaskList map[string]*Task

// ScriptOption is an option declared with option() in the global scope of the script
type ScriptOption struct {
	Default string
	Help    string
}

// String returns a string representation of the task
func (t *Task) String() string {
	return fmt.Sprintf("<task %s: %s>", t.Short, t.Desc)
}

// Type always returns "task"
func (t *Task) Type() string {
	return "task"
}

// Freeze is a no-op; tasks can't be modified from scripts once declared
func (t *Task) Freeze() {}

func (t *Task) Truth() starlark.Bool {
	return starlark.True
}

func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

// Path is a resolved file system path. Paths passed as command arguments are made relative to the
// task's base directory.
type Path string

func (p Path) String() string {
	return starlark.String(p).String()
}

func (p Path) Type() string {
	return "path"
}

func (p Path) Freeze() {}

func (p Path) Truth() starlark.Bool {
	return p != ""
}

func (p Path) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p Path) CompareSameType(op starsyntax.Token, y starlark.Value, depth int) (bool, error) {
	return starlark.String(p).CompareSameType(op, starlark.String(y.(Path)), depth)
}

func (p Path) Len() int {
	return len(p)
}

func (p Path) Index(i int) starlark.Value {
	return starlark.String(p[i : i+1])
}

func (p Path) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
