package buildsys

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/cortesi/moddwatch"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// WatchOptions configures WatchTask
type WatchOptions struct {
	RunOptions

	// Patterns overrides the task's watch list
	Patterns []string
	// Exclude lists project relative patterns that never trigger a run
	Exclude []string
	// Lull is the time to wait for further changes before running the task
	Lull time.Duration
}

// WatchPatterns returns the patterns a watched task listens to: its watch list or, if that's empty, its inputs.
func WatchPatterns(task *Task) []string {
	if len(task.Watch) > 0 {
		return task.Watch
	}
	return task.Inputs
}

// watchIncludes converts task patterns into patterns relative to the project root which is what
// moddwatch expects.
func watchIncludes(projectRoot string, task *Task, patterns []string) ([]string, error) {
	result := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		abs := resolvePath(projectRoot, task.Base, pattern)
		rel, err := filepath.Rel(projectRoot, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, eris.Errorf("watch pattern %s is outside of the project root %s", pattern, projectRoot)
		}
		result = append(result, filepath.ToSlash(rel))
	}
	return result, nil
}

// WatchTask runs the named task once and again after every batch of changes to the watched files until ctx
// is cancelled. Failed runs are logged but don't end the loop.
func WatchTask(ctx context.Context, projectRoot, name string, tasks TaskList, opts WatchOptions) error {
	task, found := tasks[name]
	if !found {
		return eris.Errorf("task %s not found", name)
	}

	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = WatchPatterns(task)
	}
	if len(patterns) == 0 {
		return eris.Errorf("task %s has neither watch patterns nor inputs", name)
	}

	includes, err := watchIncludes(projectRoot, task, patterns)
	if err != nil {
		return err
	}

	lull := opts.Lull
	if lull <= 0 {
		lull = 300 * time.Millisecond
	}

	changes := make(chan *moddwatch.Mod, 1)
	watcher, err := moddwatch.Watch(projectRoot, includes, opts.Exclude, lull, changes)
	if err != nil {
		return eris.Wrapf(err, "failed to watch %s", projectRoot)
	}
	defer watcher.Stop()

	log(ctx).Info().Str("task", name).Msgf("watching %s", strings.Join(includes, ", "))

	watchLoop(ctx, changes, func(mod *moddwatch.Mod) {
		runID := uuid.New().String()
		logger := log(ctx).With().Str("run", runID).Logger()
		runCtx := WithLogger(ctx, &logger)

		if mod != nil {
			logger.Info().Str("task", name).Msgf("%d file(s) changed", len(mod.All()))
		}

		err := RunTask(runCtx, projectRoot, name, tasks, opts.RunOptions)
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Str("task", name).Msg("run failed")
		}
	})

	return nil
}

// watchLoop calls run once immediately and then for every non-empty change set until ctx is done or the
// channel is closed.
func watchLoop(ctx context.Context, changes <-chan *moddwatch.Mod, run func(*moddwatch.Mod)) {
	run(nil)

	for {
		select {
		case <-ctx.Done():
			return
		case mod, ok := <-changes:
			if !ok {
				return
			}

			if mod == nil || mod.Empty() {
				continue
			}
			run(mod)
		}
	}
}
