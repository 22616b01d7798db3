package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/premerge/internal/registry"
	"github.com/kingrea/premerge/internal/resolver"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")).Bold(true)
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	excludedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// DescribeReason renders a provenance entry such as "built for lld".
func DescribeReason(reason resolver.Reason) string {
	switch reason.Kind {
	case resolver.ReasonModified:
		return "modified"
	case resolver.ReasonTested:
		return "tested because " + reason.Via + " changed"
	case resolver.ReasonBuilt:
		return "built for " + reason.Via
	case resolver.ReasonRuntime:
		return "runtime tested for " + reason.Via
	default:
		return string(reason.Kind)
	}
}

// RenderSummary lays out every platform plan of result in a bordered panel.
func RenderSummary(result resolver.Result, width int) string {
	width = max(40, width)
	sections := []string{headerStyle.Render("premerge plan"), renderChange(result)}
	for _, plan := range result.Plans {
		sections = append(sections, boxStyle.Width(width-2).Render(renderPlan(plan)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderChange(result resolver.Result) string {
	lines := []string{
		field("modified", result.Modified),
		field("ignored", result.Ignored),
	}
	var triggers []string
	for _, tr := range result.Triggers {
		triggers = append(triggers, tr.Pipeline)
	}
	lines = append(lines, field("triggers", triggers))
	return strings.Join(lines, "\n")
}

func renderPlan(plan resolver.Plan) string {
	lines := []string{titleStyle.Render(platformTitle(plan.Platform))}
	if plan.Empty() {
		lines = append(lines, hintStyle.Render("nothing to build"))
	} else {
		lines = append(lines,
			field("projects", plan.Projects),
			field("checks", plan.CheckTargets),
		)
		if len(plan.Runtimes) > 0 {
			lines = append(lines,
				field("runtimes", plan.Runtimes),
				field("runtime checks", plan.RuntimeCheckTargets),
			)
		}
		lines = append(lines, "")
		for _, name := range append(append([]string{}, plan.Projects...), plan.Runtimes...) {
			lines = append(lines, fmt.Sprintf("  %s %s", labelStyle.Render(name), detailStyle.Render(DescribeReason(plan.Reasons[name]))))
		}
	}
	for _, ex := range plan.Excluded {
		lines = append(lines, excludedStyle.Render(fmt.Sprintf("  %s excluded: %s", ex.Project, exclusionReason(ex))))
	}
	return strings.Join(lines, "\n")
}

func field(label string, values []string) string {
	value := "none"
	if len(values) > 0 {
		value = strings.Join(values, ", ")
	}
	return labelStyle.Render(label+":") + " " + detailStyle.Render(value)
}

func platformTitle(platform registry.Platform) string {
	switch platform {
	case registry.PlatformLinux:
		return "Linux x64"
	case registry.PlatformWindows:
		return "Windows x64"
	default:
		return string(platform)
	}
}

func exclusionReason(ex registry.Exclusion) string {
	if ex.Reason == "" {
		return "not supported on this platform"
	}
	return ex.Reason
}
