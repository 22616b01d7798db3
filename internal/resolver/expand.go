package resolver

import (
	"sort"

	"github.com/kingrea/premerge/internal/registry"
)

// ExpandTests echoes each project followed by the projects its test
// implications name on platform. Duplicates are kept.
func ExpandTests(def registry.Definition, platform registry.Platform, projects []string) []string {
	return expand(def.Tests, platform, projects)
}

// ExpandBuilds echoes each project followed by its build dependencies on
// platform. The implied projects are not expanded again.
func ExpandBuilds(def registry.Definition, platform registry.Platform, projects []string) []string {
	return expand(def.Builds, platform, projects)
}

// Runtimes lists the runtimes tested because projects are tested. Unlike the
// project expanders it does not echo its input.
func Runtimes(def registry.Definition, platform registry.Platform, projects []string) []string {
	var out []string
	for _, project := range projects {
		out = append(out, def.RuntimeTests.Implied(project, platform)...)
	}
	return out
}

func expand(table registry.RuleTable, platform registry.Platform, projects []string) []string {
	out := make([]string, 0, len(projects))
	for _, project := range projects {
		out = append(out, project)
		out = append(out, table.Implied(project, platform)...)
	}
	return out
}

// Exclude drops every project excluded on platform, preserving order.
func Exclude(def registry.Definition, platform registry.Platform, projects []string) []string {
	out := make([]string, 0, len(projects))
	for _, project := range projects {
		if _, excluded := def.Excluded(platform, project); excluded {
			continue
		}
		out = append(out, project)
	}
	return out
}

// CheckTargets maps each project to its check target in order. Projects
// without a CI target produce nothing.
func CheckTargets(rules registry.CheckTargetRules, projects []string) []string {
	out := make([]string, 0, len(projects))
	for _, project := range projects {
		if target, ok := rules.Target(project); ok {
			out = append(out, target)
		}
	}
	return out
}

// SortUnique returns a sorted copy of values without duplicates.
func SortUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
