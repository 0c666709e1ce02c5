package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o600))
}

func TestMovePaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	dest := filepath.Join(dir, "dest")
	touch(t, a)
	touch(t, b)
	require.NoError(t, os.Mkdir(dest, 0o700))

	require.NoError(t, movePaths([]string{a, b}, dest))
	assert.FileExists(t, filepath.Join(dest, "a.txt"))
	assert.FileExists(t, filepath.Join(dest, "b.txt"))
	assert.NoFileExists(t, a)

	renamed := filepath.Join(dir, "renamed.txt")
	require.NoError(t, movePaths([]string{filepath.Join(dest, "a.txt")}, renamed))
	assert.FileExists(t, renamed)

	err := movePaths([]string{renamed, filepath.Join(dest, "b.txt")}, filepath.Join(dir, "single.txt"))
	assert.Error(t, err, "multiple items need a directory as destination")

	err = movePaths([]string{renamed}, filepath.Join(dir, "missing", "x.txt"))
	assert.Error(t, err)
}

func TestRemovePaths(t *testing.T) {
	dir := t.TempDir()
	build := filepath.Join(dir, "build")
	touch(t, filepath.Join(build, "out.bin"))

	assert.Error(t, removePaths([]string{build}, false, false), "directories need -r")
	assert.DirExists(t, build)

	assert.Error(t, removePaths([]string{filepath.Join(dir, "missing")}, true, false))
	require.NoError(t, removePaths([]string{filepath.Join(dir, "missing"), build}, true, true))
	assert.NoDirExists(t, build)
}

func TestMakeDirs(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")

	assert.Error(t, makeDirs([]string{nested}, false))
	require.NoError(t, makeDirs([]string{nested}, true))
	assert.DirExists(t, nested)

	assert.Error(t, makeDirs([]string{nested}, false), "mkdir without -p fails on existing directories")
	assert.NoError(t, makeDirs([]string{nested}, true))
}

func TestRmCommand(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "build", "x"))

	_, _, err := executeIn(t, dir, "rm", "-rf", "build", "nothing")
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(dir, "build"))
}
