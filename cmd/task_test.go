package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/mix/pkg/buildsys"
)

const testScript = `
only = option("only", default = "", help = "only run matching tests")

def configure():
    test = ["go", "test"]
    if only:
        test += ["-run", only]
    test.append("./...")

    task(short = "test", desc = "Runs the tests", cmds = [test])
    task(short = "fail", desc = "Always fails", cmds = ["echo before", "exit 7", "echo after"])
    task(short = "greet", cmds = ["echo hello"])
`

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// executeIn runs mixtool with args inside dir and returns the captured stdout and stderr. The config
// file points at a missing file so no stray .mixtool.toml above dir is picked up.
func executeIn(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	return executeRaw(t, dir, append(args, "--config", filepath.Join(dir, "missing.toml"))...)
}

func executeRaw(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		buildsys.HelperBinary = ""
	})

	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func projectDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.star"), []byte(testScript), 0o600))
	return dir
}

func TestSplitArgs(t *testing.T) {
	names, options := splitArgs([]string{"test", "only=TestFoo", "bench", "x=a=b", "empty="})
	assert.Equal(t, []string{"test", "bench"}, names)
	assert.Equal(t, map[string]string{"only": "TestFoo", "x": "a=b", "empty": ""}, options)
}

func TestFindInParents(t *testing.T) {
	dir := projectDir(t)
	nested := filepath.Join(dir, "pkg", "mix")
	require.NoError(t, os.MkdirAll(nested, 0o700))

	found, err := findInParents(nested, "tasks.star")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tasks.star"), found)

	_, err = findInParents(nested, "missing.star")
	assert.Error(t, err)
}

func TestTaskListing(t *testing.T) {
	dir := projectDir(t)

	stdout, _, err := executeIn(t, dir, "task", "--no-cache")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Available tasks:")
	assert.Contains(t, stdout, " * test:")
	assert.Contains(t, stdout, "Runs the tests")
	assert.Contains(t, stdout, " * only: only run matching tests")
}

func TestShortcutPassesOptions(t *testing.T) {
	dir := projectDir(t)

	_, stderr, err := executeIn(t, dir, "test", "--dry", "--no-cache", "only=TestParse")
	require.NoError(t, err)
	assert.Contains(t, stderr, "test: go test -run TestParse ./...")

	_, stderr, err = executeIn(t, dir, "task", "test", "--dry", "--no-cache")
	require.NoError(t, err)
	assert.Contains(t, stderr, "test: go test ./...")
	assert.NotContains(t, stderr, "-run")
}

func TestTaskOutputAndCache(t *testing.T) {
	dir := projectDir(t)

	stdout, _, err := executeIn(t, dir, "task", "greet")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
	assert.FileExists(t, filepath.Join(dir, ".mixtool", "tasks.cache"))

	stdout, _, err = executeIn(t, dir, "task", "greet")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
}

func TestTaskFailurePassesExitStatus(t *testing.T) {
	dir := projectDir(t)

	stdout, _, err := executeIn(t, dir, "task", "fail", "--no-cache")
	require.Error(t, err)
	assert.Equal(t, "before\n", stdout)
	assert.Equal(t, 7, exitCode(err))
}

func TestUnknownTask(t *testing.T) {
	dir := projectDir(t)

	_, _, err := executeIn(t, dir, "task", "deploy", "--no-cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task deploy not found")
	assert.Equal(t, 1, exitCode(err))

	// the shortcut exists but this script doesn't declare the task
	_, _, err = executeIn(t, dir, "bench", "--no-cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task bench not found")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(os.ErrNotExist))
}

func TestProjectConfigFromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.star"), []byte(testScript), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mixtool.toml"), []byte(`
[tasks]
file = "project.star"
`), 0o600))

	nested := filepath.Join(dir, "pkg", "mix")
	require.NoError(t, os.MkdirAll(nested, 0o700))

	stdout, _, err := executeRaw(t, nested, "task", "--no-cache")
	require.NoError(t, err)
	assert.Contains(t, stdout, " * greet:")

	// an explicit --config wins over the project's file
	_, _, err = executeIn(t, nested, "task", "--no-cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tasks.star file found")
}
