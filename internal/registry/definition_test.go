package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryIsValid(t *testing.T) {
	def := Default()
	require.Equal(t, 1, def.Version)
	assert.True(t, def.HasProject("clang"))
	assert.True(t, def.HasProject("cross-project-tests"))
	assert.False(t, def.HasProject("libcxx"))
	assert.True(t, def.IsRuntime("libcxx"))
	assert.Equal(t, DefaultCheckPrefix, def.CheckTargets.Prefix)
}

func TestDefaultRegistrySuppressesFlangOnWindows(t *testing.T) {
	def := Default()
	assert.Contains(t, def.Tests.Implied("llvm", PlatformLinux), "flang")
	assert.NotContains(t, def.Tests.Implied("llvm", PlatformWindows), "flang")
	assert.Contains(t, def.Tests.Implied("llvm", PlatformWindows), "clang")
}

func TestDefaultRegistryExcludesLibcOnWindowsOnly(t *testing.T) {
	def := Default()
	ex, ok := def.Excluded(PlatformWindows, "libc")
	require.True(t, ok)
	assert.Equal(t, "no Windows support", ex.Reason)
	_, ok = def.Excluded(PlatformLinux, "libc")
	assert.False(t, ok)
}

func TestParseDefinitionAcceptsScalarAndMappingImplications(t *testing.T) {
	const payload = `
projects: [a, b, c]
tests:
  a:
    - b
    - project: c
      skip_on: [linux]
`
	def, err := ParseDefinitionYAML([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, def.Version)
	assert.Equal(t, []string{"b"}, def.Tests.Implied("a", PlatformLinux))
	assert.Equal(t, []string{"b", "c"}, def.Tests.Implied("a", PlatformWindows))
}

func TestParseDefinitionRejectsUnknownRuleTargets(t *testing.T) {
	const payload = `
projects: [a]
builds:
  a: [missing]
`
	_, err := ParseDefinitionYAML([]byte(payload))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProject), "unexpected error: %v", err)
}

func TestParseDefinitionRejectsRuntimeTestsOnProjects(t *testing.T) {
	const payload = `
projects: [a, b]
runtimes: [rt]
runtime_tests:
  a: [b]
`
	_, err := ParseDefinitionYAML([]byte(payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProject)
}

func TestParseDefinitionRejectsUnknownPlatforms(t *testing.T) {
	const payload = `
projects: [a]
exclusions:
  macos: [a]
`
	_, err := ParseDefinitionYAML([]byte(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown platform")
}

func TestParseDefinitionRejectsDuplicatesAndBadNames(t *testing.T) {
	cases := map[string]string{
		"duplicate project": "projects: [a, a]\n",
		"slash in name":     "projects: [a/b]\n",
		"dual declaration":  "projects: [a]\nruntimes: [a]\n",
		"duplicate rule":    "projects: [a, b]\ntests:\n  a: [b, b]\n",
		"empty trigger":     "projects: [a]\ntriggers:\n  - pipeline: x\n",
		"unknown field":     "projects: [a]\nbogus: true\n",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinitionYAML([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestParseDefinitionRejectsEmptyPayload(t *testing.T) {
	_, err := ParseDefinitionYAML([]byte("  \n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload is empty")
}

func TestCheckTargetRules(t *testing.T) {
	rules := CheckTargetRules{
		Overrides: map[string]string{"lldb": "check-all"},
		None:      []string{"pstl"},
	}
	target, ok := rules.Target("clang")
	require.True(t, ok)
	assert.Equal(t, "check-clang", target)

	target, ok = rules.Target("lldb")
	require.True(t, ok)
	assert.Equal(t, "check-all", target)

	_, ok = rules.Target("pstl")
	assert.False(t, ok)
}

func TestTriggerMatches(t *testing.T) {
	tr := Trigger{Pipeline: "libcxx-ci", Directories: []string{"libcxx", "runtimes"}}
	assert.True(t, tr.Matches([]string{"llvm", "runtimes"}))
	assert.False(t, tr.Matches([]string{"llvm"}))
	assert.False(t, tr.Matches(nil))
}

func TestCloneIsDeep(t *testing.T) {
	def := Default()
	clone := def.Clone()
	clone.Tests["llvm"][0].Project = "mutated"
	clone.Exclusions[PlatformWindows][0].Project = "mutated"
	clone.Projects[0] = "mutated"
	assert.NotEqual(t, "mutated", def.Tests["llvm"][0].Project)
	assert.NotEqual(t, "mutated", def.Exclusions[PlatformWindows][0].Project)
	assert.NotEqual(t, "mutated", def.Projects[0])
}

func TestLoadDefinitionFileWrapsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("projects: []\n"), 0o644))
	_, err := LoadDefinitionFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "at least one project")

	_, err = LoadDefinitionFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDefinitionFileRoundTripsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0o644))
	def, err := LoadDefinitionFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), def)
}

func TestParseDefinitionRejectsUnknownNestedFields(t *testing.T) {
	cases := map[string]string{
		"misspelled skip_on": "projects: [llvm, flang]\ntests:\n  llvm:\n    - {project: flang, skipon: [windows]}\n",
		"exclusion field":    "projects: [a]\nexclusions:\n  windows:\n    - {project: a, why: slow}\n",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinitionYAML([]byte(payload))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unknown field")
		})
	}
}

func TestParseDefinitionValidatesCheckTargetRules(t *testing.T) {
	_, err := ParseDefinitionYAML([]byte("projects: [a]\ncheck_targets:\n  prefix: 'check\"'\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check_targets.prefix")

	_, err = ParseDefinitionYAML([]byte("projects: [a]\ncheck_targets:\n  none: [b]\n"))
	assert.ErrorIs(t, err, ErrUnknownProject)

	def, err := ParseDefinitionYAML([]byte("projects: [a, b]\ncheck_targets:\n  none: [b]\n"))
	require.NoError(t, err)
	_, ok := def.CheckTargets.Target("b")
	assert.False(t, ok)
}

func TestLoadDefinitionReader(t *testing.T) {
	def, err := LoadDefinitionReader(strings.NewReader("projects: [llvm, clang]\nbuilds:\n  clang: [llvm]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"llvm", "clang"}, def.Projects)

	_, err = LoadDefinitionReader(strings.NewReader(""))
	assert.Error(t, err)
}
