package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/bnema/orbital/internal/protocol"
	"github.com/bnema/orbital/internal/window"
)

// WindowHeaders are the columns of every window listing.
var WindowHeaders = []string{"ID", "Owner", "Geometry", "Flags", "Title", ""}

// WindowRows turns a window list into table rows, front to back.
func WindowRows(windows []protocol.WindowInfo) [][]string {
	rows := make([][]string, 0, len(windows))
	for _, w := range windows {
		focused := ""
		if w.Focused {
			focused = IconFocused
		}
		flags := window.Flags(w.Flags).String()
		if flags == "" {
			flags = "-"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", w.ID),
			fmt.Sprintf("%d", w.Owner),
			fmt.Sprintf("%dx%d+%d+%d", w.W, w.H, w.X, w.Y),
			flags,
			w.Title,
			focused,
		})
	}
	return rows
}

// WindowTable renders a window list as a bordered table.
func WindowTable(windows []protocol.WindowInfo) string {
	if len(windows) == 0 {
		return SubtleStyle.Render("No windows")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorSubtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return lipgloss.NewStyle().
					Foreground(ColorPrimary).
					Bold(true).
					Padding(0, 1)
			case col == 0:
				return lipgloss.NewStyle().
					Foreground(ColorInfo).
					Padding(0, 1)
			case col == len(WindowHeaders)-1:
				return lipgloss.NewStyle().
					Foreground(ColorFocused).
					Bold(true).
					Padding(0, 1)
			default:
				return lipgloss.NewStyle().
					Foreground(ColorText).
					Padding(0, 1)
			}
		}).
		Headers(WindowHeaders...).
		Rows(WindowRows(windows)...)

	return t.String()
}
