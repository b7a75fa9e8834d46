package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/orbital/internal/protocol"
)

// FetchFunc loads the current window list.
type FetchFunc func(ctx context.Context) ([]protocol.WindowInfo, error)

// WindowsMsg carries the result of a fetch.
type WindowsMsg struct {
	Windows []protocol.WindowInfo
	Err     error
}

type refreshMsg time.Time

const fetchTimeout = 2 * time.Second

// WatchModel is a live window listing refreshed on an interval.
type WatchModel struct {
	fetch    FetchFunc
	interval time.Duration

	table   table.Model
	spinner spinner.Model

	windows []protocol.WindowInfo
	err     error
	loaded  bool
	updated time.Time
}

// NewWatchModel creates a watch model polling fetch every interval.
func NewWatchModel(fetch FetchFunc, interval time.Duration) *WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	t := table.New(
		table.WithColumns(watchColumns()),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorSubtle).
		BorderBottom(true).
		Foreground(ColorPrimary).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(ColorHighlight).
		Background(ColorMuted)
	t.SetStyles(styles)

	return &WatchModel{
		fetch:    fetch,
		interval: interval,
		table:    t,
		spinner:  s,
	}
}

func watchColumns() []table.Column {
	widths := []int{6, 6, 18, 8, 30, 2}
	cols := make([]table.Column, len(WindowHeaders))
	for i, h := range WindowHeaders {
		cols[i] = table.Column{Title: h, Width: widths[i]}
	}
	return cols
}

// Windows returns the last fetched list.
func (m *WatchModel) Windows() []protocol.WindowInfo { return m.windows }

// Err returns the error of the last fetch.
func (m *WatchModel) Err() error { return m.err }

func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

func (m *WatchModel) refresh() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		windows, err := fetch(ctx)
		return WindowsMsg{Windows: windows, Err: err}
	}
}

func (m *WatchModel) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case WindowsMsg:
		m.loaded = true
		m.err = msg.Err
		if msg.Err == nil {
			m.windows = msg.Windows
			m.updated = time.Now()
			rows := WindowRows(msg.Windows)
			trows := make([]table.Row, len(rows))
			for i, r := range rows {
				trows[i] = table.Row(r)
			}
			m.table.SetRows(trows)
		}
		return m, m.schedule()

	case refreshMsg:
		return m, m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-6, 3))
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *WatchModel) View() string {
	var b strings.Builder

	status := m.spinner.View() + " loading"
	if m.loaded && !m.updated.IsZero() {
		status = fmt.Sprintf("%d windows, updated %s", len(m.windows), m.updated.Format("15:04:05"))
	}
	b.WriteString(FormatAppHeader("WINDOWS", status))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(ErrorStyle.Render(IconError + " " + m.err.Error()))
		b.WriteString("\n\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n\n")
	b.WriteString(FormatControl("r", "refresh"))
	b.WriteString("  ")
	b.WriteString(FormatControl("q", "quit"))
	b.WriteString("\n")
	return b.String()
}
