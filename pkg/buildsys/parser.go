package buildsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

const stateKey = "buildsys.state"

var assignPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)

// scriptState is attached to the Starlark thread while a script is evaluated
type scriptState struct {
	ctx          context.Context
	script       string
	projectRoot  string
	options      map[string]ScriptOption
	optionValues map[string]string
	env          map[string]string
	yamlDocs     map[string]interface{}
	tasks        []*Task
	configuring  bool
}

func stateOf(thread *starlark.Thread) *scriptState {
	return thread.Local(stateKey).(*scriptState)
}

// resolve interprets path segments relative to the script's directory
func (s *scriptState) resolve(segments ...string) string {
	return resolvePath(s.projectRoot, filepath.Dir(s.script), segments...)
}

func (s *scriptState) position(thread *starlark.Thread) string {
	pos := thread.CallFrame(1).Pos
	return fmt.Sprintf("%s:%d:%d", displayPath(s.projectRoot, s.script), pos.Line, pos.Col)
}

// Script is the result of evaluating a task script
type Script struct {
	Tasks   TaskList
	Options map[string]ScriptOption
}

// OptionNames returns the declared options in alphabetical order
func (s *Script) OptionNames() []string {
	names := make([]string, 0, len(s.Options))
	for name := range s.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskNames returns the names of all visible tasks in alphabetical order
func (s *Script) TaskNames() []string {
	names := make([]string, 0, len(s.Tasks))
	for name, task := range s.Tasks {
		if !task.Hidden {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LoadScript evaluates the task script at filename. options contains the values passed on the command line;
// options the script never declares are reported as a warning.
func LoadScript(ctx context.Context, filename, projectRoot string, options map[string]string) (*Script, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	if options == nil {
		options = map[string]string{}
	}

	state := &scriptState{
		ctx:          ctx,
		script:       filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		env:          make(map[string]string),
		yamlDocs:     make(map[string]interface{}),
		configuring:  false,
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	thread.SetLocal(stateKey, state)

	name := displayPath(projectRoot, filename)
	globals, err := starlark.ExecFile(thread, name, content, builtins())
	if err != nil {
		return nil, scriptError(err, "failed to execute %s", name)
	}

	configure, ok := globals["configure"].(starlark.Callable)
	if !ok {
		return nil, eris.Errorf("%s has to declare a configure function", name)
	}

	state.configuring = true
	_, err = starlark.Call(thread, configure, nil, nil)
	if err != nil {
		return nil, scriptError(err, "configure() failed in %s", name)
	}

	for option := range options {
		if _, declared := state.options[option]; !declared {
			log(ctx).Warn().Msgf("%s doesn't declare the option %s", name, option)
		}
	}

	result := &Script{
		Tasks:   TaskList{},
		Options: state.options,
	}
	for _, task := range state.tasks {
		if _, dup := result.Tasks[task.Short]; dup {
			return nil, eris.Errorf("%s declares the task %s more than once", name, task.Short)
		}

		for key, value := range state.env {
			if _, present := task.Env[key]; !present {
				task.Env[key] = value
			}
		}
		result.Tasks[task.Short] = task
	}

	return result, nil
}

func scriptError(err error, format string, args ...interface{}) error {
	var evalErr *starlark.EvalError
	if eris.As(err, &evalErr) {
		return eris.Errorf("%s:\n%s", fmt.Sprintf(format, args...), evalErr.Backtrace())
	}
	return eris.Wrapf(err, format, args...)
}

func builtins() starlark.StringDict {
	return starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"option":       starlark.NewBuiltin("option", starOption),
		"getenv":       starlark.NewBuiltin("getenv", starGetenv),
		"setenv":       starlark.NewBuiltin("setenv", starSetenv),
		"prepend_path": starlark.NewBuiltin("prepend_path", starPrependPath),
		"resolve_path": starlark.NewBuiltin("resolve_path", starResolvePath),
		"read_yaml":    starlark.NewBuiltin("read_yaml", starReadYaml),
		"isdir":        starlark.NewBuiltin("isdir", starIsdir),
		"isfile":       starlark.NewBuiltin("isfile", starIsfile),
		"execute":      starlark.NewBuiltin("execute", starExecute),
		"task":         starlark.NewBuiltin("task", starTask),
	}
}

// option(name, default="", help="") declares a script option and returns its value
func starOption(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, defaultValue, help string
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	state := stateOf(thread)
	if state.configuring {
		return nil, eris.Errorf("%s: options can only be declared in the global scope", fn.Name())
	}

	state.options[name] = ScriptOption{
		Default: defaultValue,
		Help:    help,
	}

	if value, ok := state.optionValues[name]; ok {
		return starlark.String(value), nil
	}
	return starlark.String(defaultValue), nil
}

// task(short, desc, hidden, deps, base, skip_if_exists, inputs, outputs, watch, env, cmds) declares a task
func starTask(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps, skipIfExists, inputs, outputs, watch, cmds *starlark.List
	var env *starlark.Dict
	var base starlark.Value
	task := &Task{}

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "short?", &task.Short, "desc?", &task.Desc,
		"hidden?", &task.Hidden, "deps?", &deps, "base?", &base, "skip_if_exists?", &skipIfExists,
		"inputs?", &inputs, "outputs?", &outputs, "watch?", &watch, "env?", &env, "cmds?", &cmds)
	if err != nil {
		return nil, err
	}

	state := stateOf(thread)
	if !state.configuring {
		return nil, eris.Errorf("%s: tasks can only be declared inside configure()", fn.Name())
	}

	switch task.Short {
	case "":
		task.Hidden = true
		task.Short = "auto#" + nanoid.New()
	case "configure":
		return nil, eris.New(`the task name "configure" is reserved, please use a different name`)
	}

	switch value := base.(type) {
	case nil, starlark.NoneType:
		task.Base = state.resolve(".")
	case starlark.String:
		task.Base = state.resolve(value.GoString())
	case Path:
		task.Base = state.resolve(string(value))
	default:
		return nil, eris.Errorf("%s: base has to be a string or path, not %s", fn.Name(), base.Type())
	}

	lists := []struct {
		field  string
		list   *starlark.List
		target *[]string
	}{
		{"deps", deps, &task.Deps},
		{"skip_if_exists", skipIfExists, &task.SkipIfExists},
		{"inputs", inputs, &task.Inputs},
		{"outputs", outputs, &task.Outputs},
		{"watch", watch, &task.Watch},
	}
	for _, item := range lists {
		*item.target, err = toStringSlice(item.list, item.field)
		if err != nil {
			return nil, eris.Wrapf(err, "task %s", task.Short)
		}
	}

	task.Env, err = toEnvMap(env)
	if err != nil {
		return nil, eris.Wrapf(err, "task %s", task.Short)
	}

	task.Cmds, err = toCmds(task, cmds)
	if err != nil {
		return nil, err
	}

	if len(task.Inputs) > 0 && len(task.Outputs) == 0 {
		log(state.ctx).Warn().Msgf("%s: task %s has inputs but no outputs", state.position(thread), task.Short)
	}

	if !task.Hidden {
		state.tasks = append(state.tasks, task)
	}
	return task, nil
}

func toEnvMap(env *starlark.Dict) (map[string]string, error) {
	result := map[string]string{}
	if env == nil {
		return result, nil
	}

	for _, item := range env.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, eris.Errorf("env keys have to be strings, found %s", item[0].Type())
		}

		switch value := item[1].(type) {
		case starlark.String:
			result[key.GoString()] = value.GoString()
		case Path:
			result[key.GoString()] = string(value)
		default:
			return nil, eris.Errorf("env value for %s is a %s but only strings are supported", key.GoString(), item[1].Type())
		}
	}
	return result, nil
}

func toCmds(task *Task, cmds *starlark.List) ([]Cmd, error) {
	result := []Cmd{}
	if cmds == nil {
		return result, nil
	}

	for idx := 0; idx < cmds.Len(); idx++ {
		switch value := cmds.Index(idx).(type) {
		case starlark.String:
			result = append(result, ScriptCmd{TaskName: task.Short, Index: idx, Script: value.GoString()})
		case starlark.Tuple:
			script, err := joinCommand(value, task.Base)
			if err != nil {
				return nil, eris.Wrapf(err, "task %s: failed to process command #%d", task.Short, idx)
			}
			result = append(result, ScriptCmd{TaskName: task.Short, Index: idx, Script: script})
		case *starlark.List:
			parts := make(starlark.Tuple, value.Len())
			for p := range parts {
				parts[p] = value.Index(p)
			}

			script, err := joinCommand(parts, task.Base)
			if err != nil {
				return nil, eris.Wrapf(err, "task %s: failed to process command #%d", task.Short, idx)
			}
			result = append(result, ScriptCmd{TaskName: task.Short, Index: idx, Script: script})
		case *Task:
			result = append(result, TaskRefCmd{Task: value})
		default:
			return nil, eris.Errorf("task %s: command #%d has type %s. Only strings, lists, tuples and tasks are valid",
				task.Short, idx, value.Type())
		}
	}

	return result, nil
}

// joinCommand turns an argument list into a single shell command. Leading NAME=value strings become
// variable assignments, everything else is quoted so it arrives as exactly one argument.
func joinCommand(parts starlark.Tuple, base string) (string, error) {
	words := make([]string, 0, len(parts))
	assignments := true

	for idx, part := range parts {
		var value string
		switch part := part.(type) {
		case starlark.String:
			value = part.GoString()
		case Path:
			value = string(part)
			if filepath.IsAbs(value) {
				// absolute paths cause issues on Windows
				if rel, err := filepath.Rel(base, value); err == nil {
					value = rel
				}
			}
			value = filepath.ToSlash(value)
			assignments = false
		default:
			return "", eris.Errorf("argument %d is a %s but only strings and paths are supported", idx, part.Type())
		}

		if assignments && assignPattern.MatchString(value) {
			pos := strings.Index(value, "=")
			quoted, err := syntax.Quote(value[pos+1:], syntax.LangBash)
			if err != nil {
				return "", eris.Wrapf(err, "can't quote %s", value)
			}

			words = append(words, value[:pos+1]+quoted)
			continue
		}

		assignments = false
		quoted, err := syntax.Quote(value, syntax.LangBash)
		if err != nil {
			return "", eris.Wrapf(err, "can't quote %s", value)
		}
		words = append(words, quoted)
	}

	if len(words) == 0 {
		return "", eris.New("empty command")
	}

	script := strings.Join(words, " ")
	if _, err := syntax.NewParser().Parse(strings.NewReader(script), "command"); err != nil {
		return "", eris.Wrapf(err, "generated invalid command %s", script)
	}
	return script, nil
}
