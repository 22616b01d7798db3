package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/premerge/internal/resolver"
)

// planItem implements list.Item for one project, runtime or exclusion.
type planItem struct {
	name string
	desc string
}

func (i planItem) Title() string       { return i.name }
func (i planItem) Description() string { return i.desc }
func (i planItem) FilterValue() string { return i.name }

// Explorer is the interactive viewer behind `premerge explain --interactive`.
// Tab cycles through platforms; q or ctrl+c quits.
type Explorer struct {
	result   resolver.Result
	selected int
	list     list.Model
	width    int
	height   int
}

// NewExplorer shows the first plan of result.
func NewExplorer(result resolver.Result) *Explorer {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	e := &Explorer{result: result, list: l}
	e.refresh()
	return e
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(result resolver.Result, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	if _, err := tea.NewProgram(NewExplorer(result), opts...).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// Init implements tea.Model.
func (e *Explorer) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (e *Explorer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		e.width = msg.Width
		e.height = msg.Height
		e.list.SetSize(max(0, msg.Width-4), max(0, msg.Height-6))
		return e, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return e, tea.Quit
		case "tab":
			if len(e.result.Plans) > 0 {
				e.selected = (e.selected + 1) % len(e.result.Plans)
				e.refresh()
			}
			return e, nil
		}
	}
	var cmd tea.Cmd
	e.list, cmd = e.list.Update(msg)
	return e, cmd
}

// View implements tea.Model.
func (e *Explorer) View() string {
	if len(e.result.Plans) == 0 {
		return hintStyle.Render("No platforms configured. Press q to quit.")
	}
	var tabs []string
	for i, plan := range e.result.Plans {
		style := hintStyle
		if i == e.selected {
			style = titleStyle
		}
		tabs = append(tabs, style.Render(platformTitle(plan.Platform)))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, joinWith(tabs, hintStyle.Render(" | "))...)
	footer := hintStyle.Render("tab: next platform · q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, e.list.View(), footer)
}

// Platform returns the plan currently on screen.
func (e *Explorer) Platform() (resolver.Plan, bool) {
	if len(e.result.Plans) == 0 {
		return resolver.Plan{}, false
	}
	return e.result.Plans[e.selected], true
}

func (e *Explorer) refresh() {
	plan, ok := e.Platform()
	if !ok {
		e.list.SetItems(nil)
		return
	}
	e.list.Title = platformTitle(plan.Platform)
	e.list.SetItems(planItems(plan))
	e.list.Select(0)
}

func planItems(plan resolver.Plan) []list.Item {
	tested := map[string]struct{}{}
	for _, name := range plan.Tested {
		tested[name] = struct{}{}
	}
	items := make([]list.Item, 0, len(plan.Projects)+len(plan.Runtimes)+len(plan.Excluded))
	for _, name := range plan.Projects {
		desc := DescribeReason(plan.Reasons[name])
		if _, ok := tested[name]; ok {
			desc += " · tested"
		}
		items = append(items, planItem{name: name, desc: desc})
	}
	for _, name := range plan.Runtimes {
		items = append(items, planItem{name: name, desc: DescribeReason(plan.Reasons[name])})
	}
	for _, ex := range plan.Excluded {
		items = append(items, planItem{name: ex.Project, desc: "excluded: " + exclusionReason(ex)})
	}
	return items
}

func joinWith(values []string, sep string) []string {
	out := make([]string, 0, len(values)*2)
	for i, v := range values {
		if i > 0 {
			out = append(out, sep)
		}
		out = append(out, v)
	}
	return out
}
