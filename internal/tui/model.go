// Package tui is a terminal browser over the filter trees of a provider.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentic-research/filtertree/internal/graph"
)

// Host is the subset of the provider the browser drives.
type Host interface {
	Roots() []*graph.Filter
	Children(n *graph.Filter) ([]graph.Node, error)
	Refresh(workspace string)
	CreateFilter(parent *graph.Filter, name string) (string, error)
	DeleteFilter(n *graph.Filter) error
	MoveFileToFilter(location string, dest *graph.Filter) error
	MoveFilterToParent(src, dest *graph.Filter) (string, error)
	Subscribe() (<-chan string, func())
}

type row struct {
	node   graph.Node
	parent *graph.Filter
	depth  int
	err    error // build error shown under a failed root
}

func (r row) key() string {
	switch n := r.node.(type) {
	case *graph.Filter:
		return n.Workspace + "\x00" + n.Path
	case *graph.File:
		return n.Workspace + "\x00" + r.parent.Path + "\x00" + n.Rel
	}
	return ""
}

type mode int

const (
	modeBrowse mode = iota
	modeNewFilter
)

// changedMsg carries the workspace whose tree was invalidated.
type changedMsg string

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	filterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	cursorStyle = lipgloss.NewStyle().Background(lipgloss.Color("8")).Foreground(lipgloss.Color("15"))
	cutStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("13"))
)

// Model is the bubbletea model of the browser.
type Model struct {
	host     Host
	updates  <-chan string
	cancel   func()
	expanded map[string]bool
	rows     []row
	cursor   int
	offset   int
	height   int
	mode     mode
	input    textinput.Model
	cut      *row
	status   string
}

// New returns a browser showing every root of host collapsed.
func New(host Host) *Model {
	m := &Model{host: host, expanded: make(map[string]bool), input: textinput.New()}
	m.input.Prompt = "new filter: "
	m.input.Placeholder = "name"
	m.input.CharLimit = 255
	m.updates, m.cancel = host.Subscribe()
	m.rebuild()
	return m
}

// Close unsubscribes from change notifications.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Model) Init() tea.Cmd {
	return m.wait()
}

func (m *Model) wait() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		ws, ok := <-ch
		if !ok {
			return nil
		}
		return changedMsg(ws)
	}
}

// rebuild recomputes the visible rows, querying children of expanded
// filters only.
func (m *Model) rebuild() {
	var selected string
	if m.cursor < len(m.rows) {
		selected = m.rows[m.cursor].key()
	}
	m.rows = m.rows[:0]
	for _, r := range m.host.Roots() {
		m.add(row{node: r}, 0)
	}
	m.cursor = 0
	for i, r := range m.rows {
		if r.key() == selected {
			m.cursor = i
			break
		}
	}
	m.clamp()
}

func (m *Model) add(r row, depth int) {
	r.depth = depth
	m.rows = append(m.rows, r)
	f, ok := r.node.(*graph.Filter)
	if !ok || !m.expanded[r.key()] {
		return
	}
	children, err := m.host.Children(f)
	if err != nil {
		m.rows = append(m.rows, row{parent: f, depth: depth + 1, err: err})
		return
	}
	for _, c := range children {
		m.add(row{node: c, parent: f}, depth+1)
	}
}

func (m *Model) clamp() {
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	h := m.visibleHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	} else if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
}

func (m *Model) visibleHeight() int {
	if m.height <= 4 {
		return 20
	}
	return m.height - 4
}

func (m *Model) current() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

// target is the filter a paste or create lands in: the selected filter or
// the filter holding the selected file.
func (m *Model) target() *graph.Filter {
	r, ok := m.current()
	if !ok {
		return nil
	}
	if f, ok := r.node.(*graph.Filter); ok {
		return f
	}
	return r.parent
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.rebuild()
		return m, m.wait()

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.clamp()
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeNewFilter {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

// updateInput drives the new filter prompt. Enter creates the filter under
// the current target, Esc abandons it; every other key edits the name.
func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.endInput()
		return m, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(m.input.Value())
		m.endInput()
		if parent := m.target(); parent != nil && name != "" {
			if p, err := m.host.CreateFilter(parent, name); err != nil {
				m.status = err.Error()
			} else {
				m.expanded[row{node: parent}.key()] = true
				m.status = "created " + p
			}
			m.rebuild()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) endInput() {
	m.mode = modeBrowse
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.Close()
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.clamp()
		}

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
			m.clamp()
		}

	case "right", "l", "enter":
		if r, ok := m.current(); ok {
			if _, isFilter := r.node.(*graph.Filter); isFilter && !m.expanded[r.key()] {
				m.expanded[r.key()] = true
				m.rebuild()
			}
		}

	case "left", "h":
		r, ok := m.current()
		if !ok {
			break
		}
		if _, isFilter := r.node.(*graph.Filter); isFilter && m.expanded[r.key()] {
			delete(m.expanded, r.key())
			m.rebuild()
			break
		}
		if r.parent != nil {
			want := row{node: r.parent}.key()
			for i := m.cursor - 1; i >= 0; i-- {
				if m.rows[i].node != nil && m.rows[i].key() == want {
					m.cursor = i
					m.clamp()
					break
				}
			}
		}

	case "r", "f5":
		if r, ok := m.current(); ok {
			ws := ""
			if r.parent != nil {
				ws = r.parent.Workspace
			} else if f, isFilter := r.node.(*graph.Filter); isFilter {
				ws = f.Workspace
			}
			m.host.Refresh(ws)
		}

	case "n":
		if m.target() != nil {
			m.mode, m.status = modeNewFilter, ""
			m.input.Reset()
			return m, m.input.Focus()
		}

	case "d":
		if r, ok := m.current(); ok {
			if f, isFilter := r.node.(*graph.Filter); isFilter {
				if err := m.host.DeleteFilter(f); err != nil {
					m.status = err.Error()
				} else {
					m.status = "deleted " + f.Path
				}
				m.rebuild()
			}
		}

	case "x":
		if r, ok := m.current(); ok && r.node != nil {
			if f, isFilter := r.node.(*graph.Filter); isFilter && f.IsRoot() {
				m.status = "the workspace root cannot be moved"
				break
			}
			m.cut = &r
			m.status = "cut " + r.node.Name()
		}

	case "p":
		dest := m.target()
		if m.cut == nil || dest == nil {
			break
		}
		var err error
		switch n := m.cut.node.(type) {
		case *graph.File:
			err = m.host.MoveFileToFilter(n.Location, dest)
		case *graph.Filter:
			_, err = m.host.MoveFilterToParent(n, dest)
		}
		if err != nil {
			m.status = err.Error()
		} else {
			m.status = fmt.Sprintf("moved %s to %s", m.cut.node.Name(), dest.Name())
			m.cut = nil
		}
		m.expanded[row{node: dest}.key()] = true
		m.rebuild()
	}
	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Filters"))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("enter expand | n new | d delete | x cut | p paste | r refresh | q quit"))
	b.WriteString("\n\n")

	end := min(m.offset+m.visibleHeight(), len(m.rows))
	for i := m.offset; i < end; i++ {
		r := m.rows[i]
		line := strings.Repeat("  ", r.depth) + m.label(r)
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	switch {
	case m.mode == modeNewFilter:
		b.WriteString("\n" + m.input.View())
	case m.status != "":
		b.WriteString("\n" + hintStyle.Render(m.status))
	}
	return b.String()
}

func (m *Model) label(r row) string {
	if r.err != nil {
		return errorStyle.Render("! " + r.err.Error())
	}
	name := r.node.Name()
	if m.cut != nil && m.cut.key() == r.key() {
		name = cutStyle.Render(name)
	}
	if _, isFilter := r.node.(*graph.Filter); isFilter {
		icon := "▶ "
		if m.expanded[r.key()] {
			icon = "▼ "
		}
		return icon + filterStyle.Render(name)
	}
	return "  " + name
}
