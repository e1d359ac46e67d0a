// Package tui renders cluster snapshots as a continuously refreshing table.
// It is a pure consumer: all collection happens in pkg/monitor, and this
// package only does layout and coloring.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sebmann/pgrepltop/pkg/monitor"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	anomalyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

type keyMap struct {
	Quit     key.Binding
	Help     key.Binding
	Up       key.Binding
	Down     key.Binding
	SortKeys key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SortKeys, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.SortKeys},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	SortKeys: key.NewBinding(
		key.WithKeys("h", "u", "s", "r", "m", "w", "l"),
		key.WithHelp("h/u/s/r/m/w/l", "sort by host/upstream/slot/role/lag(s)/lag(b)/lsn"),
	),
}

// Options configures the renderer.
type Options struct {
	Columns     []ColumnSpec
	Monochrome  bool
	ConnSummary string // connect string with credentials stripped
}

// snapshotMsg carries the next snapshot from the bus subscription.
type snapshotMsg struct {
	snap *monitor.ClusterSnapshot
}

// busClosedMsg means the collection loop has shut down.
type busClosedMsg struct{}

// Model is the bubbletea model for the cluster view.
type Model struct {
	sub  <-chan *monitor.ClusterSnapshot
	opts Options

	snap *monitor.ClusterSnapshot
	sort SortMode

	tbl  table.Model
	help help.Model

	width  int
	height int
}

// New builds the view around a snapshot bus subscription.
func New(sub <-chan *monitor.ClusterSnapshot, opts Options) Model {
	if len(opts.Columns) == 0 {
		opts.Columns = DefaultColumns()
	}

	cols := make([]table.Column, len(opts.Columns))
	for i, c := range opts.Columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	tbl := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
	)

	st := table.DefaultStyles()
	if opts.Monochrome {
		st.Header = lipgloss.NewStyle().Bold(true)
		st.Selected = lipgloss.NewStyle().Reverse(true)
	} else {
		st.Header = headerStyle
		st.Selected = selectedStyle
	}
	tbl.SetStyles(st)

	return Model{
		sub:  sub,
		opts: opts,
		sort: SortHost,
		tbl:  tbl,
		help: help.New(),
	}
}

// Init starts waiting for the first snapshot.
func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.sub)
}

func waitForSnapshot(sub <-chan *monitor.ClusterSnapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

// Update handles snapshots and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = msg.snap
		m.refreshRows()
		return m, waitForSnapshot(m.sub)

	case busClosedMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.tbl.SetHeight(max(3, msg.Height-6))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, keys.SortKeys):
			m.sort = SortMode(msg.String()[0])
			m.refreshRows()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.tbl, cmd = m.tbl.Update(msg)
	return m, cmd
}

// refreshRows rebuilds the table rows from the current snapshot and sort.
func (m *Model) refreshRows() {
	if m.snap == nil {
		return
	}
	statuses := sortStatuses(m.snap.Instances, m.sort)
	rows := make([]table.Row, len(statuses))
	for i, st := range statuses {
		rows[i] = m.row(st)
	}
	m.tbl.SetRows(rows)
}

func (m *Model) row(st monitor.InstanceStatus) table.Row {
	cells := make([]string, len(m.opts.Columns))
	for i, c := range m.opts.Columns {
		cells[i] = m.cell(st, c.Name)
	}
	return cells
}

func (m *Model) cell(st monitor.InstanceStatus, col string) string {
	rec := st.Record
	switch col {
	case ColHost:
		return rec.Identity.DisplayLabel()
	case ColRole:
		return st.Role.String()
	case ColUpstream:
		if st.Upstream != nil {
			return st.Upstream.DisplayLabel()
		}
		if rec.Upstream.HasValue() || rec.Upstream.State == monitor.FieldUnreadable {
			return cellString(rec.Upstream, func(s string) string { return s })
		}
		if st.Role == monitor.ResolvedPrimary {
			return ""
		}
		return unknownMarker
	case ColLSN:
		return cellString(rec.LSN, monitor.LSN.String)
	case ColSlot:
		if !rec.Slot.HasValue() && rec.Slot.State != monitor.FieldUnreadable && st.Role == monitor.ResolvedPrimary {
			return ""
		}
		return cellString(rec.Slot, func(s string) string { return s })
	case ColLagSec:
		return cellString(st.TimeLag, humanSeconds)
	case ColLagBytes:
		return cellString(st.ByteLag, humanBytes)
	case ColWALRate:
		return cellString(st.WALRate, humanRate)
	case ColDrift:
		return cellString(st.ClockDrift, humanDrift)
	default:
		return unknownMarker
	}
}

// View renders title, summary, anomaly line, table and help footer.
func (m Model) View() string {
	var b strings.Builder

	title := "pgrepltop - replication activity"
	summary := m.summaryLine()
	anomalies := m.anomalyLine()

	if m.opts.Monochrome {
		b.WriteString(title + "\n")
		b.WriteString(summary + "\n")
		if anomalies != "" {
			b.WriteString(anomalies + "\n")
		}
	} else {
		b.WriteString(titleStyle.Render(title) + "\n")
		b.WriteString(summaryStyle.Render(summary) + "\n")
		if anomalies != "" {
			b.WriteString(anomalyStyle.Render(anomalies) + "\n")
		}
	}

	b.WriteString(m.tbl.View() + "\n")

	helpView := m.help.View(keys)
	if m.opts.Monochrome {
		b.WriteString(helpView)
	} else {
		b.WriteString(helpStyle.Render(helpView))
	}
	return b.String()
}

func (m Model) summaryLine() string {
	if m.snap == nil {
		return "connecting..."
	}
	primaries, reachable := 0, 0
	for _, st := range m.snap.Instances {
		if st.Role == monitor.ResolvedPrimary {
			primaries++
		}
		if st.Record.Err == nil && st.Role != monitor.ResolvedUnknown {
			reachable++
		}
	}
	line := fmt.Sprintf("%d instances, %d reachable, %d primary | sort: %s",
		len(m.snap.Instances), reachable, primaries, m.sort)
	if m.opts.ConnSummary != "" {
		line += " | " + m.opts.ConnSummary
	}
	return line
}

func (m Model) anomalyLine() string {
	if m.snap == nil || len(m.snap.Anomalies) == 0 {
		return ""
	}
	seen := make(map[string]bool)
	var parts []string
	for _, a := range m.snap.Anomalies {
		s := a.Kind.String()
		if a.Instance != nil {
			s += "(" + a.Instance.DisplayLabel() + ")"
		}
		if !seen[s] {
			seen[s] = true
			parts = append(parts, s)
		}
	}
	return "anomalies: " + strings.Join(parts, ", ")
}
