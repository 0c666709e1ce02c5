package buildsys

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"
)

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}

	state := stateOf(thread)
	log(state.ctx).Info().Msgf("%s: %s", state.position(thread), msg)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}

	state := stateOf(thread)
	log(state.ctx).Warn().Msgf("%s: %s", state.position(thread), msg)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}

	return nil, eris.New(msg)
}

// getenv(name) returns the value set with setenv() or the process environment
func starGetenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key); err != nil {
		return nil, err
	}

	if value, ok := stateOf(thread).env[key]; ok {
		return starlark.String(value), nil
	}
	return starlark.String(os.Getenv(key)), nil
}

// setenv(name, value) sets an environment variable for every task that doesn't override it
func starSetenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key, value string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value); err != nil {
		return nil, err
	}

	stateOf(thread).env[key] = value
	return starlark.None, nil
}

func starPrependPath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dir starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dir); err != nil {
		return nil, err
	}

	var dirPath string
	switch value := dir.(type) {
	case starlark.String:
		dirPath = value.GoString()
	case Path:
		dirPath = string(value)
	default:
		return nil, eris.Errorf("%s: got %s, want path or string", fn.Name(), dir.Type())
	}

	state := stateOf(thread)
	current, ok := state.env["PATH"]
	if !ok {
		current = os.Getenv("PATH")
	}

	state.env["PATH"] = state.resolve(dirPath) + string(os.PathListSeparator) + current
	return starlark.String(state.env["PATH"]), nil
}

// resolve_path(*segments, base=None) returns an absolute path, or one relative to base if it's set
func starResolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state := stateOf(thread)
	base := ""

	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		if key != "base" {
			return nil, eris.Errorf("%s: unexpected keyword argument %s", fn.Name(), key)
		}

		switch value := kv[1].(type) {
		case starlark.String:
			base = state.resolve(value.GoString())
		case Path:
			base = state.resolve(string(value))
		default:
			return nil, eris.Errorf("%s: base has to be a string or path, not %s", fn.Name(), kv[1].Type())
		}
	}

	if len(args) < 1 {
		return nil, eris.Errorf("%s: expects at least one argument", fn.Name())
	}

	segments := make([]string, len(args))
	for idx, arg := range args {
		switch value := arg.(type) {
		case starlark.String:
			segments[idx] = value.GoString()
		case Path:
			segments[idx] = string(value)
		default:
			return nil, eris.Errorf("%s: argument %d is a %s, want string", fn.Name(), idx, arg.Type())
		}
	}

	result := state.resolve(segments...)
	if base != "" {
		rel, err := filepath.Rel(base, result)
		if err != nil {
			return nil, err
		}
		result = rel
	}

	return Path(result), nil
}

// read_yaml(file, key, default) looks up a dotted key ("a.b.0") in a YAML document
func starReadYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var file, key string
	var defaultValue starlark.Value = starlark.None

	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &file, &key, &defaultValue); err != nil {
		return nil, err
	}

	state := stateOf(thread)
	file = state.resolve(file)

	doc, loaded := state.yamlDocs[file]
	if !loaded {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to open file %s", file)
		}

		if err = yaml.Unmarshal(content, &doc); err != nil {
			return nil, eris.Wrapf(err, "failed to parse file %s", file)
		}
		state.yamlDocs[file] = doc
	}

	value, found := lookupKey(doc, key)
	if !found || value == nil {
		return defaultValue, nil
	}

	return toStarlark(value)
}

func lookupKey(doc interface{}, key string) (interface{}, bool) {
	current := doc
	for _, part := range strings.Split(key, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func starIsdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirPath string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirPath); err != nil {
		return nil, err
	}

	info, err := os.Stat(stateOf(thread).resolve(dirPath))
	return starlark.Bool(err == nil && info.IsDir()), nil
}

func starIsfile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var filePath string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &filePath); err != nil {
		return nil, err
	}

	info, err := os.Stat(stateOf(thread).resolve(filePath))
	return starlark.Bool(err == nil && info.Mode().IsRegular()), nil
}

// execute(command, format="text", show_error=False) runs a command in the script's directory and returns
// its output, or False if it failed. With format="json" the output is decoded.
func starExecute(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command starlark.Value
	format := "text"
	showError := false

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "command", &command, "format?", &format, "show_error?", &showError)
	if err != nil {
		return nil, err
	}

	if format != "text" && format != "json" {
		return nil, eris.Errorf("%s: unsupported format %s", fn.Name(), format)
	}

	state := stateOf(thread)
	dir := filepath.Dir(state.script)

	var script string
	switch value := command.(type) {
	case starlark.String:
		script = value.GoString()
	case starlark.Tuple:
		script, err = joinCommand(value, dir)
	case *starlark.List:
		parts := make(starlark.Tuple, value.Len())
		for idx := range parts {
			parts[idx] = value.Index(idx)
		}
		script, err = joinCommand(parts, dir)
	default:
		return nil, eris.Errorf("%s: unexpected type %s for command, only strings, lists and tuples are valid", fn.Name(), command.Type())
	}
	if err != nil {
		return nil, err
	}

	stmts, err := ScriptCmd{TaskName: fn.Name(), Script: script}.Stmts(syntax.NewParser())
	if err != nil {
		return nil, err
	}

	var output strings.Builder
	var errOut io.Writer = io.Discard
	if showError {
		errOut = os.Stderr
	}

	shell, err := newShell(dir, mergeEnv(state.env), &output, errOut)
	if err != nil {
		return nil, err
	}

	for _, stmt := range stmts {
		if err = shell.Run(state.ctx, stmt); err != nil {
			if showError {
				log(state.ctx).Error().Err(err).Msgf("%s: command failed", state.position(thread))
			}
			return starlark.False, nil
		}

		if shell.Exited() {
			break
		}
	}

	if format == "json" {
		var decoded interface{}
		if err = json.Unmarshal([]byte(output.String()), &decoded); err != nil {
			return nil, eris.Wrap(err, "failed to parse command output")
		}

		return toStarlark(decoded)
	}

	return starlark.String(output.String()), nil
}
