// Package tui is the terminal dialog in which the operator picks the result
// rows that belong to a harvest entry.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jonathan/compass-harvester/internal/harvest"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	selStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	All     key.Binding
	Filter  key.Binding
	Confirm key.Binding
	Skip    key.Binding
	Abort   key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Toggle:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle")),
	All:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "toggle all")),
	Filter:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
	Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
	Skip:    key.NewBinding(key.WithKeys("s", "esc"), key.WithHelp("s", "skip entry")),
	Abort:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "stop harvest")),
}

// selectModel is the bubbletea model of one selection request.
type selectModel struct {
	req       harvest.SelectionRequest
	cursor    int
	checked   map[int]bool
	filter    textinput.Model
	filtering bool
	width     int

	confirmed bool
	aborted   bool
}

func newSelectModel(req harvest.SelectionRequest) selectModel {
	checked := make(map[int]bool, len(req.Preselected))
	for _, i := range req.Preselected {
		if i >= 0 && i < len(req.Candidates) {
			checked[i] = true
		}
	}
	input := textinput.New()
	input.Prompt = "/ "
	input.Placeholder = "title contains"
	input.CharLimit = 64
	return selectModel{req: req, checked: checked, filter: input}
}

func (m selectModel) Init() tea.Cmd {
	return nil
}

// visible returns the candidate indexes that pass the title filter.
func (m selectModel) visible() []int {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	out := make([]int, 0, len(m.req.Candidates))
	for i, c := range m.req.Candidates {
		if q == "" || strings.Contains(strings.ToLower(c.Row.Title), q) {
			out = append(out, i)
		}
	}
	return out
}

// selected returns the checked candidate indexes in display order. A skipped
// or aborted dialog selects nothing.
func (m selectModel) selected() []int {
	if !m.confirmed {
		return nil
	}
	out := make([]int, 0, len(m.checked))
	for i, on := range m.checked {
		if on {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m selectModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.filtering = false
		m.filter.Blur()
		m.cursor = 0
		return m, nil
	case tea.KeyCtrlC:
		m.aborted = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.cursor = 0
	return m, cmd
}

func (m selectModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	vis := m.visible()
	switch {
	case key.Matches(msg, keys.Abort):
		m.aborted = true
		return m, tea.Quit
	case key.Matches(msg, keys.Confirm):
		m.confirmed = true
		return m, tea.Quit
	case key.Matches(msg, keys.Skip):
		m.checked = map[int]bool{}
		m.confirmed = true
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(vis)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Toggle):
		if m.cursor < len(vis) {
			i := vis[m.cursor]
			m.checked[i] = !m.checked[i]
		}
	case key.Matches(msg, keys.All):
		all := true
		for _, i := range vis {
			all = all && m.checked[i]
		}
		for _, i := range vis {
			m.checked[i] = !all
		}
	case key.Matches(msg, keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()
	}
	return m, nil
}

func (m selectModel) View() string {
	if m.confirmed || m.aborted {
		return ""
	}

	var b strings.Builder
	entry := m.req.Entry
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  [%s]", entry.Title, entry.Category)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("keyword %q · %d on disk", m.req.Keyword, entry.ExistingIDs.Len())))
	b.WriteString("\n\n")

	vis := m.visible()
	if len(vis) == 0 {
		b.WriteString(mutedStyle.Render("no rows match the filter"))
		b.WriteString("\n")
	}
	for pos, i := range vis {
		c := m.req.Candidates[i]
		box := "[ ]"
		if m.checked[i] {
			box = okStyle.Render("[x]")
		}
		detail := warnStyle.Render("not collected")
		if c.Resolved {
			detail = mutedStyle.Render(fmt.Sprintf("%s · %d videos, %d new", c.Shop, c.Videos, c.NewVideos))
		}
		prefix, title := "  ", c.Row.Title
		if pos == m.cursor {
			prefix, title = "> ", selStyle.Render(title)
		}
		line := fmt.Sprintf("%s%s %d. %s  %s", prefix, box, i+1, title, detail)
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.filtering || m.filter.Value() != "" {
		b.WriteString("\n")
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}

	help := []string{}
	for _, k := range []key.Binding{keys.Toggle, keys.All, keys.Filter, keys.Confirm, keys.Skip, keys.Abort} {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(strings.Join(help, " · ")))

	panel := panelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	return panel.Render(b.String()) + "\n"
}
