package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bnema/orbital/internal/ui"
)

var (
	windowsWatch    bool
	windowsInterval time.Duration
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List the server's windows",
	Long:  `List every window on the server, front to back. With --watch the list is refreshed live.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, addr, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		if windowsWatch {
			p := tea.NewProgram(ui.NewWatchModel(c.ListWindows, windowsInterval))
			_, err := p.Run()
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		windows, err := c.ListWindows(ctx)
		if err != nil {
			return fmt.Errorf("failed to list windows: %w", err)
		}

		fmt.Println(ui.FormatAppHeader("WINDOWS", addr))
		fmt.Println()
		fmt.Println(ui.WindowTable(windows))
		return nil
	},
}

func init() {
	addConnectFlags(windowsCmd)
	windowsCmd.Flags().BoolVarP(&windowsWatch, "watch", "w", false, "Keep the list open and refresh it")
	windowsCmd.Flags().DurationVar(&windowsInterval, "interval", time.Second, "Refresh interval with --watch")
}
