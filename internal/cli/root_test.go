package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/premerge/internal/changes"
	"github.com/kingrea/premerge/internal/config"
	"github.com/kingrea/premerge/internal/registry"
)

type run struct {
	code   int
	stdout string
	stderr string
}

func execute(t *testing.T, dir string, env map[string]string, stdin string, args ...string) run {
	t.Helper()
	var out, errOut bytes.Buffer
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	headMessage := func(context.Context, *config.Config) (string, error) {
		return "[clang] Fix crash\n\nReview-ID: D42\n", nil
	}
	code := Execute(context.Background(), args,
		Streams{In: strings.NewReader(stdin), Out: &out, Err: &errOut},
		WithWorkDir(dir), WithLookup(lookup), WithHeadMessage(headMessage))
	return run{code: code, stdout: out.String(), stderr: errOut.String()}
}

func TestGenerateFromFilesFlag(t *testing.T) {
	env := map[string]string{config.EnvCommit: "abc", config.EnvBranch: "main"}
	res := execute(t, t.TempDir(), env, "", "--files", "clang/lib/Sema.cpp")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, `trigger: 'clang-ci'`)
	assert.Contains(t, res.stdout, `message: 'https://llvm.org/D42'`)
	assert.Contains(t, res.stdout, `"clang;clang-tools-extra;compiler-rt;cross-project-tests;libc;lld;llvm"`)
	assert.Contains(t, res.stdout, `"check-clang check-clang-tools check-compiler-rt check-cross-project"`)
	assert.Contains(t, res.stdout, `bash .ci/monolithic-windows.sh "clang;clang-tools-extra;llvm"`)
}

func TestGenerateIsTheDefaultCommand(t *testing.T) {
	env := map[string]string{config.EnvModifiedFiles: "lld/ELF/Driver.cpp\n"}
	dir := t.TempDir()
	def := execute(t, dir, env, "")
	explicit := execute(t, dir, env, "", "generate")
	require.Equal(t, ExitSuccess, def.code, def.stderr)
	assert.Equal(t, explicit.stdout, def.stdout)
	assert.Contains(t, def.stdout, "check-lld")
}

func TestGenerateFromStdin(t *testing.T) {
	res := execute(t, t.TempDir(), nil, "mlir/lib/IR/Builders.cpp\n\n", "--stdin")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"llvm;mlir" "check-mlir"`)
}

func TestGenerateEmptyChange(t *testing.T) {
	res := execute(t, t.TempDir(), nil, "", "--files", "README.md")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "steps: []\n", res.stdout)
}

func TestGenerateAppliesAgentOverrides(t *testing.T) {
	env := map[string]string{config.EnvLinuxAgents: `{"queue": "linux-big"}`}
	res := execute(t, t.TempDir(), env, "", "--files", "llvm/lib/IR/Value.cpp")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "queue: linux-big")
	assert.Contains(t, res.stdout, "queue: windows")
}

func TestGenerateUsesCheckoutRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, registry.DefaultPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("projects: [widget]\n"), 0o644))
	res := execute(t, dir, nil, "", "--files", "widget/main.c")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"widget" "check-widget"`)
}

func TestGenerateFailuresWriteNothing(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		env  map[string]string
		args []string
		code int
	}{
		{name: "files and stdin", args: []string{"--files", "clang/a", "--stdin"}, code: ExitInvalidInvocation},
		{name: "unknown flag", args: []string{"--bogus"}, code: ExitInvalidInvocation},
		{name: "positional argument", args: []string{"generate", "clang"}, code: ExitInvalidInvocation},
		{name: "malformed agents", env: map[string]string{config.EnvWindowsAgents: "{queue: ["}, args: []string{"--files", "clang/a"}, code: ExitRuntimeFailure},
		{name: "missing config", args: []string{"--config", "nope.yaml", "--files", "clang/a"}, code: ExitConfigError},
		{name: "bad log level", env: map[string]string{config.EnvLogLevel: "loud"}, args: []string{"--files", "clang/a"}, code: ExitConfigError},
		{name: "diff outside repository", code: ExitRuntimeFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := execute(t, dir, tc.env, "", tc.args...)
			assert.Equal(t, tc.code, res.code, res.stderr)
			assert.Empty(t, res.stdout)
			assert.Contains(t, res.stderr, "premerge:")
		})
	}
}

func TestVerboseLogsToStderr(t *testing.T) {
	res := execute(t, t.TempDir(), nil, "", "--verbose", "--files", "clang/a,.github/x")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stderr, "DEBUG")
	assert.Contains(t, res.stderr, "ignoring unregistered directories")
	assert.NotContains(t, res.stdout, "DEBUG")
}

func TestExplainRendersSummary(t *testing.T) {
	res := execute(t, t.TempDir(), nil, "", "explain", "--files", "clang/lib/Sema.cpp")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Linux x64")
	assert.Contains(t, res.stdout, "Windows x64")
	assert.Contains(t, res.stdout, "built for clang-tools-extra")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	res := execute(t, dir, nil, "", "validate")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "built-in registry: ok (15 projects, 3 runtimes, 2 triggers)\n", res.stdout)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("projects: [a]\ntests:\n  a: [b]\n"), 0o644))
	res = execute(t, dir, nil, "", "validate", bad)
	assert.Equal(t, ExitConfigError, res.code)
	assert.Contains(t, res.stderr, "unknown project")

	res = execute(t, dir, nil, "projects: [llvm, clang]\nbuilds:\n  clang: [llvm]\n", "validate", "-")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "stdin: ok (2 projects, 0 runtimes, 0 triggers)\n", res.stdout)

	res = execute(t, dir, nil, "projects: [llvm]\ntests:\n  llvm:\n    - {project: llvm, skipon: [windows]}\n", "validate", "-")
	assert.Equal(t, ExitConfigError, res.code)
	assert.Contains(t, res.stderr, "unknown field")

	res = execute(t, dir, nil, "", "validate", "a", "b")
	assert.Equal(t, ExitInvalidInvocation, res.code)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitInvalidInvocation, ExitCode(invalidInvocationf("bad")))
	assert.Equal(t, ExitConfigError, ExitCode(fmt.Errorf("wrap: %w", registry.ErrUnknownProject)))
	assert.Equal(t, ExitRuntimeFailure, ExitCode(fmt.Errorf("wrap: %w", changes.ErrDiff)))
	assert.Equal(t, ExitRuntimeFailure, ExitCode(configError("agents", config.ErrInvalidAgents)))
	assert.Equal(t, ExitRuntimeFailure, ExitCode(errors.New("boom")))

	err := configError("load", os.ErrNotExist)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "load: file does not exist", err.Error())
}
