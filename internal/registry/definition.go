package registry

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownProject is returned when a rule references a name that is not
// declared in the registry.
var ErrUnknownProject = errors.New("registry: unknown project")

// Platform identifies a CI platform that receives its own pipeline step.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)

// Platforms returns the supported platforms in emission order.
func Platforms() []Platform {
	return []Platform{PlatformLinux, PlatformWindows}
}

func (p Platform) valid() bool {
	switch p {
	case PlatformLinux, PlatformWindows:
		return true
	}
	return false
}

// Implication names a project implied by a rule, optionally suppressed on
// some platforms.
type Implication struct {
	Project string     `json:"project" yaml:"project"`
	SkipOn  []Platform `json:"skip_on,omitempty" yaml:"skip_on,omitempty"`
}

// UnmarshalYAML accepts either a bare project name or the mapping form.
func (imp *Implication) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		imp.Project = node.Value
		imp.SkipOn = nil
		return nil
	}
	if err := rejectUnknownKeys(node, "implication", "project", "skip_on"); err != nil {
		return err
	}
	type plain Implication
	var out plain
	if err := node.Decode(&out); err != nil {
		return err
	}
	*imp = Implication(out)
	return nil
}

// AppliesTo reports whether the implication is active on the platform.
func (imp Implication) AppliesTo(platform Platform) bool {
	for _, skip := range imp.SkipOn {
		if skip == platform {
			return false
		}
	}
	return true
}

// RuleTable maps a project to the ordered projects it implies.
type RuleTable map[string][]Implication

// Clone returns a deep copy of the table.
func (t RuleTable) Clone() RuleTable {
	if len(t) == 0 {
		return nil
	}
	out := make(RuleTable, len(t))
	for key, imps := range t {
		if len(imps) == 0 {
			out[key] = nil
			continue
		}
		clone := make([]Implication, len(imps))
		for i, imp := range imps {
			clone[i] = Implication{Project: imp.Project, SkipOn: clonePlatforms(imp.SkipOn)}
		}
		out[key] = clone
	}
	return out
}

// Implied returns the projects implied by project on platform, in rule order.
func (t RuleTable) Implied(project string, platform Platform) []string {
	imps := t[project]
	if len(imps) == 0 {
		return nil
	}
	out := make([]string, 0, len(imps))
	for _, imp := range imps {
		if imp.AppliesTo(platform) {
			out = append(out, imp.Project)
		}
	}
	return out
}

// Exclusion removes a project from a platform. Reason is informational.
type Exclusion struct {
	Project string `json:"project" yaml:"project"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// UnmarshalYAML accepts either a bare project name or the mapping form.
func (ex *Exclusion) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*ex = Exclusion{Project: node.Value}
		return nil
	}
	if err := rejectUnknownKeys(node, "exclusion", "project", "reason"); err != nil {
		return err
	}
	type plain Exclusion
	var out plain
	if err := node.Decode(&out); err != nil {
		return err
	}
	*ex = Exclusion(out)
	return nil
}

// CheckTargetRules maps projects to the name of their test target.
type CheckTargetRules struct {
	Prefix    string            `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	None      []string          `json:"none,omitempty" yaml:"none,omitempty"`
}

// DefaultCheckPrefix is prepended to project names without an override.
const DefaultCheckPrefix = "check-"

// Target returns the check target for project. ok is false when the project
// has no CI test target.
func (r CheckTargetRules) Target(project string) (string, bool) {
	for _, skip := range r.None {
		if skip == project {
			return "", false
		}
	}
	if target, ok := r.Overrides[project]; ok {
		return target, true
	}
	prefix := r.Prefix
	if prefix == "" {
		prefix = DefaultCheckPrefix
	}
	return prefix + project, true
}

// Trigger starts a separately named pipeline when any listed top-level
// directory is modified. Directories are not required to be projects.
type Trigger struct {
	Pipeline    string   `json:"pipeline" yaml:"pipeline"`
	Directories []string `json:"directories" yaml:"directories"`
}

// Matches reports whether any of dirs is watched by the trigger.
func (tr Trigger) Matches(dirs []string) bool {
	for _, watched := range tr.Directories {
		for _, dir := range dirs {
			if dir == watched {
				return true
			}
		}
	}
	return false
}

// Definition is the closed project registry plus every rule table the
// resolver consults.
type Definition struct {
	Version      int                      `json:"version" yaml:"version"`
	Projects     []string                 `json:"projects" yaml:"projects"`
	Runtimes     []string                 `json:"runtimes,omitempty" yaml:"runtimes,omitempty"`
	Tests        RuleTable                `json:"tests,omitempty" yaml:"tests,omitempty"`
	Builds       RuleTable                `json:"builds,omitempty" yaml:"builds,omitempty"`
	RuntimeTests RuleTable                `json:"runtime_tests,omitempty" yaml:"runtime_tests,omitempty"`
	Exclusions   map[Platform][]Exclusion `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
	CheckTargets CheckTargetRules         `json:"check_targets,omitempty" yaml:"check_targets,omitempty"`
	Triggers     []Trigger                `json:"triggers,omitempty" yaml:"triggers,omitempty"`
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{
		Version:      def.Version,
		Projects:     cloneStringSlice(def.Projects),
		Runtimes:     cloneStringSlice(def.Runtimes),
		Tests:        def.Tests.Clone(),
		Builds:       def.Builds.Clone(),
		RuntimeTests: def.RuntimeTests.Clone(),
		CheckTargets: CheckTargetRules{
			Prefix:    def.CheckTargets.Prefix,
			Overrides: cloneStringMap(def.CheckTargets.Overrides),
			None:      cloneStringSlice(def.CheckTargets.None),
		},
	}
	if len(def.Exclusions) > 0 {
		clone.Exclusions = make(map[Platform][]Exclusion, len(def.Exclusions))
		for platform, list := range def.Exclusions {
			clone.Exclusions[platform] = append([]Exclusion(nil), list...)
		}
	}
	if len(def.Triggers) > 0 {
		clone.Triggers = make([]Trigger, len(def.Triggers))
		for i, tr := range def.Triggers {
			clone.Triggers[i] = Trigger{Pipeline: tr.Pipeline, Directories: cloneStringSlice(tr.Directories)}
		}
	}
	return clone
}

// HasProject reports whether name is a registered project.
func (def Definition) HasProject(name string) bool {
	return containsString(def.Projects, name)
}

// IsRuntime reports whether name is a registered runtime.
func (def Definition) IsRuntime(name string) bool {
	return containsString(def.Runtimes, name)
}

// Excluded returns the exclusion entry for project on platform, if any.
func (def Definition) Excluded(platform Platform, project string) (Exclusion, bool) {
	for _, ex := range def.Exclusions[platform] {
		if ex.Project == project {
			return ex, true
		}
	}
	return Exclusion{}, false
}

// Validate ensures the definition is self-consistent.
func (def Definition) Validate() error {
	if def.Version < 1 {
		return fmt.Errorf("registry: version must be >= 1")
	}
	if len(def.Projects) == 0 {
		return fmt.Errorf("registry: at least one project is required")
	}
	projects, err := nameSet("projects", def.Projects)
	if err != nil {
		return err
	}
	runtimes, err := nameSet("runtimes", def.Runtimes)
	if err != nil {
		return err
	}
	for name := range runtimes {
		if _, clash := projects[name]; clash {
			return fmt.Errorf("registry: %s is declared as both project and runtime", name)
		}
	}
	if err := validateTable("tests", def.Tests, projects, projects); err != nil {
		return err
	}
	if err := validateTable("builds", def.Builds, projects, projects); err != nil {
		return err
	}
	if err := validateTable("runtime_tests", def.RuntimeTests, projects, runtimes); err != nil {
		return err
	}
	for platform, list := range def.Exclusions {
		if !platform.valid() {
			return fmt.Errorf("registry: exclusions: unknown platform %q", platform)
		}
		for _, ex := range list {
			_, isProject := projects[ex.Project]
			_, isRuntime := runtimes[ex.Project]
			if !isProject && !isRuntime {
				return fmt.Errorf("registry: exclusions[%s]: %w %q", platform, ErrUnknownProject, ex.Project)
			}
		}
	}
	for key := range def.CheckTargets.Overrides {
		_, isProject := projects[key]
		_, isRuntime := runtimes[key]
		if !isProject && !isRuntime {
			return fmt.Errorf("registry: check_targets.overrides: %w %q", ErrUnknownProject, key)
		}
		target := def.CheckTargets.Overrides[key]
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("registry: check_targets.overrides[%s]: target is empty", key)
		}
		if strings.ContainsAny(target, " \"'") {
			return fmt.Errorf("registry: check_targets.overrides[%s]: invalid target %q", key, target)
		}
	}
	if strings.ContainsAny(def.CheckTargets.Prefix, " \"'") {
		return fmt.Errorf("registry: check_targets.prefix: invalid prefix %q", def.CheckTargets.Prefix)
	}
	for _, name := range def.CheckTargets.None {
		_, isProject := projects[name]
		_, isRuntime := runtimes[name]
		if !isProject && !isRuntime {
			return fmt.Errorf("registry: check_targets.none: %w %q", ErrUnknownProject, name)
		}
	}
	for idx, tr := range def.Triggers {
		if tr.Pipeline == "" {
			return fmt.Errorf("registry: triggers[%d]: pipeline is required", idx)
		}
		if len(tr.Directories) == 0 {
			return fmt.Errorf("registry: triggers[%d] %s: at least one directory is required", idx, tr.Pipeline)
		}
	}
	return nil
}

// Normalized clones the definition, trims names, applies defaults and
// validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	if clone.Version == 0 {
		clone.Version = 1
	}
	clone.Projects = trimAll(clone.Projects)
	clone.Runtimes = trimAll(clone.Runtimes)
	clone.Tests = normalizeTable(clone.Tests)
	clone.Builds = normalizeTable(clone.Builds)
	clone.RuntimeTests = normalizeTable(clone.RuntimeTests)
	for platform, list := range clone.Exclusions {
		for i := range list {
			list[i].Project = strings.TrimSpace(list[i].Project)
			list[i].Reason = strings.TrimSpace(list[i].Reason)
		}
		clone.Exclusions[platform] = list
	}
	clone.CheckTargets.Prefix = strings.TrimSpace(clone.CheckTargets.Prefix)
	if clone.CheckTargets.Prefix == "" {
		clone.CheckTargets.Prefix = DefaultCheckPrefix
	}
	clone.CheckTargets.None = trimAll(clone.CheckTargets.None)
	for i := range clone.Triggers {
		clone.Triggers[i].Pipeline = strings.TrimSpace(clone.Triggers[i].Pipeline)
		clone.Triggers[i].Directories = trimAll(clone.Triggers[i].Directories)
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

func validateTable(name string, table RuleTable, keys, targets map[string]struct{}) error {
	for key, imps := range table {
		if _, ok := keys[key]; !ok {
			return fmt.Errorf("registry: %s: %w %q", name, ErrUnknownProject, key)
		}
		seen := map[string]struct{}{}
		for _, imp := range imps {
			if _, ok := targets[imp.Project]; !ok {
				return fmt.Errorf("registry: %s: %s -> %w %q", name, key, ErrUnknownProject, imp.Project)
			}
			if _, dup := seen[imp.Project]; dup {
				return fmt.Errorf("registry: %s: %s lists %s twice", name, key, imp.Project)
			}
			seen[imp.Project] = struct{}{}
			for _, platform := range imp.SkipOn {
				if !platform.valid() {
					return fmt.Errorf("registry: %s: %s -> %s: unknown platform %q", name, key, imp.Project, platform)
				}
			}
		}
	}
	return nil
}

func nameSet(field string, names []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("registry: %s: empty name", field)
		}
		if strings.ContainsAny(name, "/\\ ;\"'") {
			return nil, fmt.Errorf("registry: %s: invalid name %q", field, name)
		}
		if _, dup := set[name]; dup {
			return nil, fmt.Errorf("registry: %s: duplicate name %s", field, name)
		}
		set[name] = struct{}{}
	}
	return set, nil
}

func normalizeTable(table RuleTable) RuleTable {
	if len(table) == 0 {
		return nil
	}
	out := make(RuleTable, len(table))
	for key, imps := range table {
		for i := range imps {
			imps[i].Project = strings.TrimSpace(imps[i].Project)
		}
		out[strings.TrimSpace(key)] = imps
	}
	return out
}

// rejectUnknownKeys applies strict field checking to mappings decoded by a
// custom UnmarshalYAML, which the outer decoder's KnownFields does not reach.
func rejectUnknownKeys(node *yaml.Node, kind string, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !containsString(allowed, key.Value) {
			return fmt.Errorf("line %d: %s: unknown field %q", key.Line, kind, key.Value)
		}
	}
	return nil
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func clonePlatforms(values []Platform) []Platform {
	if len(values) == 0 {
		return nil
	}
	clone := make([]Platform, len(values))
	copy(clone, values)
	return clone
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	clone := make(map[string]string, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
