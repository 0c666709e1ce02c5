package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/mix/pkg/buildsys"
)

// shortcuts are tasks every project script is expected to declare. Each one gets its own sub command so
// "mixtool test only=Foo" works like "mixtool task test only=Foo".
var shortcuts = []struct {
	name  string
	short string
}{
	{"test", "Runs the test suite; only=<regexp> limits it to matching tests"},
	{"bench", "Runs the benchmarks; only=<regexp> limits them to matching benchmarks"},
	{"tdd", "Re-runs the tests with full output whenever a source file changes"},
	{"clean", "Removes build artifacts"},
}

var taskCmd = &cobra.Command{
	Use:   "task [task...] [option=value...]",
	Short: "Runs tasks from the nearest tasks.star",
	Long: `This command parses the first tasks.star file it finds in the current directory or one of its parents and
executes the given tasks. Without a task name, the available tasks and options are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTasks(cmd, args)
	},
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	cmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	cmd.Flags().BoolP("watch", "w", false, "re-run the tasks whenever their watched files change")
	cmd.Flags().Bool("no-cache", false, "ignore the task cache and re-evaluate the script")
}

// splitArgs separates task names from option=value pairs
func splitArgs(args []string) ([]string, map[string]string) {
	names := make([]string, 0, len(args))
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			names = append(names, part)
		}
	}
	return names, options
}

// findInParents searches start and its parents for a file called name
func findInParents(start, name string) (string, error) {
	path := start
	for {
		scriptPath := filepath.Join(path, name)
		info, err := os.Stat(scriptPath)
		if err == nil && !info.IsDir() {
			return scriptPath, nil
		}
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", scriptPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", eris.Errorf("no %s file found in %s or its parents", name, start)
		}
		path = parent
	}
}

func printTaskList(out io.Writer, script *buildsys.Script) {
	names := script.TaskNames()
	maxNameLen := 0
	for _, name := range names {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}

	fmt.Fprintln(out, "Available tasks:")
	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range names {
		fmt.Fprintf(out, lineFmt, name+":", script.Tasks[name].Desc)
	}

	options := script.OptionNames()
	if len(options) == 0 {
		return
	}

	fmt.Fprintln(out, "\nOptions:")
	for _, name := range options {
		opt := script.Options[name]
		if opt.Default != "" {
			fmt.Fprintf(out, " * %s=%s: %s\n", name, opt.Default, opt.Help)
		} else {
			fmt.Fprintf(out, " * %s: %s\n", name, opt.Help)
		}
	}
}

func runTasks(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	dryRun, err := flags.GetBool("dry")
	if err != nil {
		return err
	}

	force, err := flags.GetBool("force")
	if err != nil {
		return err
	}

	watch, err := flags.GetBool("watch")
	if err != nil {
		return err
	}

	noCache, err := flags.GetBool("no-cache")
	if err != nil {
		return err
	}

	names, options := splitArgs(args)

	wd, err := os.Getwd()
	if err != nil {
		return eris.Wrap(err, "failed to retrieve the current working directory")
	}

	scriptPath, err := findInParents(wd, cfg.Tasks.File)
	if err != nil {
		return err
	}
	projectRoot := filepath.Dir(scriptPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = buildsys.WithLogger(ctx, &logger)

	cacheFile := ""
	if !noCache {
		cacheFile = filepath.Join(projectRoot, cfg.Tasks.Cache)
	}

	script, err := buildsys.LoadCachedScript(ctx, scriptPath, projectRoot, cacheFile, options)
	if err != nil {
		return eris.Wrap(err, "failed to parse tasks")
	}

	if len(names) == 0 {
		printTaskList(cmd.OutOrStdout(), script)
		return nil
	}

	runOpts := buildsys.RunOptions{
		DryRun: dryRun,
		Force:  force,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}

	for _, name := range names {
		task, ok := script.Tasks[name]
		if !ok {
			return eris.Errorf("task %s not found", name)
		}

		if !dryRun && (watch || len(task.Watch) > 0) {
			err = buildsys.WatchTask(ctx, projectRoot, name, script.Tasks, buildsys.WatchOptions{
				RunOptions: runOpts,
				Exclude:    cfg.Watch.Exclude,
				Lull:       cfg.Watch.Lull,
			})
		} else {
			err = buildsys.RunTask(ctx, projectRoot, name, script.Tasks, runOpts)
		}

		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Str("task", name).Msg("interrupted")
				return ctx.Err()
			}
			return eris.Wrapf(err, "failed task %s", name)
		}
	}

	return nil
}

func init() {
	addRunFlags(taskCmd)
	rootCmd.AddCommand(taskCmd)

	for _, item := range shortcuts {
		name := item.name
		shortcut := &cobra.Command{
			Use:   name + " [option=value...]",
			Short: item.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTasks(cmd, append([]string{name}, args...))
			},
		}

		addRunFlags(shortcut)
		rootCmd.AddCommand(shortcut)
	}
}
