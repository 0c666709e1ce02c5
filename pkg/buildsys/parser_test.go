package buildsys

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

const projectScript = `
only = option("only", default = "", help = "only run tests / benchmarks matching this filter")

def configure():
    setenv("GREETING", "hello")

    test = ["go", "test", "./..."]
    if only:
        test += ["-run", only]

    task(
        short = "test",
        desc = "Run the tests",
        cmds = [test],
    )

    task(
        short = "clean",
        desc = "Remove build artifacts",
        env = {"GOFLAGS": "-mod=mod"},
        cmds = [("go", "clean")],
    )

    helper = task(cmds = ["echo helper"])
    task(
        short = "all",
        deps = ["test"],
        watch = ["**/*.go"],
        cmds = [helper, "echo done"],
    )
`

func writeScript(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "tasks.star")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testContext(buf *bytes.Buffer) context.Context {
	logger := zerolog.New(buf)
	return WithLogger(context.Background(), &logger)
}

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, projectScript)

	script, err := LoadScript(context.Background(), path, dir, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"all", "clean", "test"}, script.TaskNames())
	assert.Equal(t, []string{"only"}, script.OptionNames())
	assert.Equal(t, ScriptOption{Default: "", Help: "only run tests / benchmarks matching this filter"}, script.Options["only"])

	test := script.Tasks["test"]
	assert.Equal(t, "Run the tests", test.Desc)
	assert.Equal(t, dir, test.Base)
	require.Len(t, test.Cmds, 1)
	assert.Equal(t, "go test ./...", test.Cmds[0].(ScriptCmd).Script)

	clean := script.Tasks["clean"]
	require.Len(t, clean.Cmds, 1)
	assert.Equal(t, "go clean", clean.Cmds[0].(ScriptCmd).Script)
	assert.Equal(t, "-mod=mod", clean.Env["GOFLAGS"])
	assert.Equal(t, "hello", clean.Env["GREETING"], "setenv() applies to every task")

	all := script.Tasks["all"]
	assert.Equal(t, []string{"test"}, all.Deps)
	assert.Equal(t, []string{"**/*.go"}, all.Watch)
	require.Len(t, all.Cmds, 2)
	helper := all.Cmds[0].Subtask()
	require.NotNil(t, helper)
	assert.True(t, helper.Hidden)
	assert.Contains(t, helper.Short, "auto#")
	assert.NotContains(t, script.Tasks, helper.Short)
}

func TestOnlyOptionFiltersTests(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, projectScript)

	tests := []struct {
		only string
		want string
	}{
		{"", "go test ./..."},
		{"TestParse", "go test ./... -run TestParse"},
		{"^TestParse$", "go test ./... -run '^TestParse$'"},
		{"a b", "go test ./... -run 'a b'"},
	}

	for _, tt := range tests {
		script, err := LoadScript(context.Background(), path, dir, map[string]string{"only": tt.only})
		require.NoError(t, err)
		assert.Equal(t, tt.want, script.Tasks["test"].Cmds[0].(ScriptCmd).Script, "only=%q", tt.only)
		assert.Equal(t, "go clean", script.Tasks["clean"].Cmds[0].(ScriptCmd).Script, "clean never takes a filter")
	}
}

func TestUnknownOptionWarns(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, projectScript)

	var buf bytes.Buffer
	_, err := LoadScript(testContext(&buf), path, dir, map[string]string{"colour": "red"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "doesn't declare the option colour")
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{
			name:   "missing configure",
			script: `x = 1`,
			want:   "configure function",
		},
		{
			name: "option inside configure",
			script: `
def configure():
    option("late")
`,
			want: "global scope",
		},
		{
			name:   "task in global scope",
			script: `task(short = "early")`,
			want:   "inside configure()",
		},
		{
			name: "reserved name",
			script: `
def configure():
    task(short = "configure")
`,
			want: "reserved",
		},
		{
			name: "duplicate task",
			script: `
def configure():
    task(short = "a")
    task(short = "a")
`,
			want: "more than once",
		},
		{
			name: "error builtin",
			script: `
def configure():
    error("unsupported platform")
`,
			want: "unsupported platform",
		},
		{
			name: "bad command type",
			script: `
def configure():
    task(short = "a", cmds = [42])
`,
			want: "Only strings, lists, tuples and tasks are valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeScript(t, dir, tt.script)

			_, err := LoadScript(context.Background(), path, dir, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuiltins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "x.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "versions.yml"), []byte(`
version:
  major: 3
items:
  - a
  - b
`), 0o600))

	path := writeScript(t, dir, `
def configure():
    info("configuring")
    major = read_yaml("versions.yml", "version.major", 0)
    item = read_yaml("versions.yml", "items.1", "")
    missing = read_yaml("versions.yml", "nope.nope", "default")
    out = execute("echo hi")
    failed = execute("exit 2")
    decoded = execute("echo '{\"a\": [1, 2]}'", format = "json")

    task(
        short = "check",
        desc = "/".join([str(major), item, missing, out.strip(), str(failed), str(len(decoded["a"]))]),
        cmds = [("cat", resolve_path("//sub/x.txt"))],
    )
    task(
        short = "fs",
        desc = "/".join([str(isdir("sub")), str(isfile("sub")), str(isfile("sub/x.txt")), getenv("MIXTOOL_TEST_VAR")]),
    )
`)

	t.Setenv("MIXTOOL_TEST_VAR", "from-env")

	var buf bytes.Buffer
	script, err := LoadScript(testContext(&buf), path, dir, nil)
	require.NoError(t, err)

	assert.Equal(t, "3/b/default/hi/False/2", script.Tasks["check"].Desc)
	assert.Equal(t, "cat sub/x.txt", script.Tasks["check"].Cmds[0].(ScriptCmd).Script)
	assert.Equal(t, "True/False/True/from-env", script.Tasks["fs"].Desc)
	assert.Contains(t, buf.String(), "//tasks.star:3:")
	assert.Contains(t, buf.String(), "configuring")
}

func TestJoinCommand(t *testing.T) {
	tests := []struct {
		parts starlark.Tuple
		want  string
	}{
		{starlark.Tuple{starlark.String("go"), starlark.String("test")}, "go test"},
		{starlark.Tuple{starlark.String("CGO_ENABLED=0"), starlark.String("go"), starlark.String("build")}, "CGO_ENABLED=0 go build"},
		{starlark.Tuple{starlark.String("A=x y"), starlark.String("env")}, "A='x y' env"},
		{starlark.Tuple{starlark.String("echo"), starlark.String("")}, "echo ''"},
		{starlark.Tuple{starlark.String("echo"), starlark.String("B=1")}, "echo 'B=1'"},
		{starlark.Tuple{starlark.String("echo"), starlark.String("it's")}, `echo "it's"`},
	}

	for _, tt := range tests {
		got, err := joinCommand(tt.parts, "/")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := joinCommand(starlark.Tuple{}, "/")
	assert.Error(t, err)

	_, err = joinCommand(starlark.Tuple{starlark.MakeInt(1)}, "/")
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	root := filepath.FromSlash("/project")
	dir := filepath.Join(root, "pkg")

	assert.Equal(t, filepath.Join(dir, "a"), resolvePath(root, dir, "a"))
	assert.Equal(t, filepath.Join(root, "b"), resolvePath(root, dir, "//b"))
	assert.Equal(t, filepath.Join(root, "b", "c"), resolvePath(root, dir, "//b", "c"))
	assert.Equal(t, root, resolvePath(root, dir, ".."))
	assert.Equal(t, "//pkg/x.go", displayPath(root, filepath.Join(dir, "x.go")))
}
