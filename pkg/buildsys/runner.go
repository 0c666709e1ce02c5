package buildsys

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// HelperBinary is a binary implementing the mv, rm and mkdir sub commands. If set, task commands calling
// one of these are routed to it so they behave the same on every platform.
var HelperBinary string

var helperCommands = map[string]bool{
	"mv":    true,
	"rm":    true,
	"mkdir": true,
}

// RunOptions controls how RunTask executes tasks
type RunOptions struct {
	// DryRun only logs the commands
	DryRun bool
	// Force ignores skip_if_exists and the input / output timestamps of the requested task
	Force bool
	// Stdout and Stderr receive the output of executed commands. They default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

type runState struct {
	projectRoot string
	tasks       TaskList
	opts        RunOptions
	// false while a task is running, true once it finished
	done   map[string]bool
	parser *syntax.Parser
}

// ExitStatus returns the exit status of the shell command that caused err
func ExitStatus(err error) (int, bool) {
	status, ok := interp.IsExitStatus(err)
	return int(status), ok
}

func routeHelpers(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if HelperBinary != "" && len(args) > 0 && helperCommands[args[0]] {
			args = append([]string{HelperBinary}, args...)
		}
		return next(ctx, args)
	}
}

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return interp.DefaultOpenHandler()(ctx, path, flag, perm)
}

func newShell(dir string, env []string, stdout, stderr io.Writer) (*interp.Runner, error) {
	shell, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.ExecHandlers(routeHelpers),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize shell")
	}
	return shell, nil
}

// RunTask executes the named task after its dependencies. Each task runs at most once per call.
func RunTask(ctx context.Context, projectRoot, name string, tasks TaskList, opts RunOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	task, found := tasks[name]
	if !found {
		return eris.Errorf("task %s not found", name)
	}

	state := &runState{
		projectRoot: projectRoot,
		tasks:       tasks,
		opts:        opts,
		done:        make(map[string]bool),
		parser:      syntax.NewParser(),
	}
	return state.run(ctx, task, opts.Force)
}

func (s *runState) run(ctx context.Context, task *Task, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if finished, seen := s.done[task.Short]; seen {
		if finished {
			log(ctx).Debug().Str("task", task.Short).Msg("already done")
			return nil
		}
		return eris.Errorf("task %s was called recursively", task.Short)
	}
	s.done[task.Short] = false

	for _, dep := range task.Deps {
		depTask, ok := s.tasks[dep]
		if !ok {
			return eris.Errorf("task %s depends on the unknown task %s", task.Short, dep)
		}

		if err := s.run(ctx, depTask, false); err != nil {
			return eris.Wrapf(err, "task %s failed due to its dependency %s", task.Short, dep)
		}
	}

	if !force {
		skip, err := s.upToDate(ctx, task)
		if err != nil {
			return err
		}

		if skip {
			s.done[task.Short] = true
			return nil
		}
	}

	env := mergeEnv(task.Env)
	shell, err := newShell(task.Base, env, s.opts.Stdout, s.opts.Stderr)
	if err != nil {
		return err
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	var buffer strings.Builder

	for _, cmd := range task.Cmds {
		if sub := cmd.Subtask(); sub != nil {
			if err := s.run(ctx, sub, force); err != nil {
				return err
			}
			continue
		}

		stmts, err := cmd.Stmts(s.parser)
		if err != nil {
			return err
		}

		for _, stmt := range stmts {
			buffer.Reset()
			if err := printer.Print(&buffer, stmt); err != nil {
				return eris.Wrap(err, "failed to print command")
			}

			log(ctx).Info().Str("task", task.Short).Bool("command", true).Msg(buffer.String())
			if s.opts.DryRun {
				continue
			}

			if err := shell.Run(ctx, stmt); err != nil {
				return err
			}

			if shell.Exited() {
				s.done[task.Short] = true
				return nil
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	s.done[task.Short] = true
	return nil
}

// upToDate checks skip_if_exists and compares the timestamps of inputs and outputs
func (s *runState) upToDate(ctx context.Context, task *Task) (bool, error) {
	if len(task.SkipIfExists) > 0 {
		items, err := s.resolvePatterns(task.Base, task.SkipIfExists)
		if err != nil {
			return false, eris.Wrap(err, "failed to resolve skip_if_exists")
		}

		found := 0
		for _, item := range items {
			_, err := os.Stat(item)
			if err == nil {
				found++
			} else if !eris.Is(err, os.ErrNotExist) {
				return false, eris.Wrapf(err, "failed to check %s", item)
			}
		}

		if found > 0 && found == len(items) {
			log(ctx).Info().Str("task", task.Short).Msg("skipped because all skip files exist")
			return true, nil
		}
	}

	if len(task.Inputs) == 0 || len(task.Outputs) == 0 {
		return false, nil
	}

	inputs, err := s.resolvePatterns(task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	outputs, err := s.resolvePatterns(task.Base, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve outputs")
	}

	var newestInput time.Time
	for _, item := range inputs {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() || len(outputs) == 0 {
		return false, nil
	}

	var oldestOutput time.Time
	for _, item := range outputs {
		info, err := os.Stat(item)
		if eris.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, eris.Wrapf(err, "failed to check output %s", item)
		}

		if oldestOutput.IsZero() || info.ModTime().Before(oldestOutput) {
			oldestOutput = info.ModTime()
		}
	}

	if oldestOutput.After(newestInput) {
		log(ctx).Info().
			Str("task", task.Short).
			Msgf("nothing to do (output is %.1f seconds newer)", oldestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}

// resolvePatterns expands the glob patterns (including **) relative to base. Patterns that don't match
// anything are dropped.
func (s *runState) resolvePatterns(base string, patterns []string) ([]string, error) {
	cfg := expand.Config{
		ReadDir:  readDir,
		GlobStar: true,
		NullGlob: true,
	}

	result := []string{}
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(resolvePath(s.projectRoot, base, pattern))

		var words []*syntax.Word
		err := s.parser.Words(strings.NewReader(pattern), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", pattern)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", pattern)
		}
		result = append(result, matches...)
	}

	return result, nil
}

func readDir(path string) ([]os.FileInfo, error) {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}
