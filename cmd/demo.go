package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/bnema/orbital/internal/client"
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/protocol"
	"github.com/bnema/orbital/internal/window"
)

var (
	demoTitle  string
	demoWidth  int
	demoHeight int
	demoFlags  string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Open a window painted with a gradient",
	Long: `Open a sample client window. The window is repainted whenever it is
resized and the command exits when the window is closed.`,
	RunE: runDemo,
}

func init() {
	addConnectFlags(demoCmd)
	demoCmd.Flags().StringVarP(&demoTitle, "title", "t", "orbital demo", "Window title")
	demoCmd.Flags().IntVar(&demoWidth, "width", 320, "Window width")
	demoCmd.Flags().IntVar(&demoHeight, "height", 200, "Window height")
	demoCmd.Flags().StringVarP(&demoFlags, "flags", "f", "r", "Window flags as letters (b back, f front, l borderless, r resizable, t transparent, u unclosable, i input-transparent, c hide cursor)")
}

func runDemo(cmd *cobra.Command, args []string) error {
	flags, err := window.ParseFlags(demoFlags)
	if err != nil {
		return err
	}

	c, addr, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()
	logger.Info("Connected", "server", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := c.CreateWindow(ctx, geom.R(-1, -1, demoWidth, demoHeight), flags, demoTitle)
	if err != nil {
		return err
	}
	logger.Info("Window created", "id", id)

	if err := c.BlitBuffer(ctx, id, Gradient(demoWidth, demoHeight)); err != nil {
		return err
	}
	return demoLoop(ctx, c, id, demoTitle)
}

// demoLoop repaints on resize until the window is closed, the connection
// ends or ctx is cancelled. Copy puts the title on the clipboard and paste
// takes the title from it.
func demoLoop(ctx context.Context, c *client.Client, id window.ID, title string) error {
	for {
		select {
		case <-ctx.Done():
			dctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return c.DestroyWindow(dctx, id)

		case ev, ok := <-c.Events():
			if !ok {
				return c.Err()
			}
			switch ev := ev.(type) {
			case *protocol.Resized:
				if window.ID(ev.WindowID) != id {
					continue
				}
				logger.Debug("Repainting", "width", ev.W, "height", ev.H)
				if err := c.BlitBuffer(ctx, id, Gradient(int(ev.W), int(ev.H))); err != nil {
					return err
				}
			case *protocol.Closed:
				if window.ID(ev.WindowID) == id {
					logger.Info("Window closed")
					return nil
				}
			case *protocol.FocusChanged:
				logger.Debug("Focus changed", "focused", ev.Focused)
			case *protocol.Input:
				logger.Debug("Input", "type", ev.Type, "x", ev.X, "y", ev.Y)
			case *protocol.ClipboardRequest:
				if window.ID(ev.WindowID) != id {
					continue
				}
				next, err := demoClipboard(ctx, c, id, title, ev.Action)
				if err != nil {
					return err
				}
				title = next
			}
		}
	}
}

func demoClipboard(ctx context.Context, c *client.Client, id window.ID, title string, action protocol.ClipboardAction) (string, error) {
	logger.Debug("Clipboard", "action", action)
	if action != protocol.ClipboardPaste {
		return title, c.SetClipboard(ctx, []byte(title))
	}
	data, err := c.Clipboard(ctx)
	if err != nil {
		return title, err
	}
	if len(data) == 0 || len(data) > protocol.MaxStringBytes || !utf8.Valid(data) {
		return title, nil
	}
	return string(data), c.SetTitle(ctx, id, string(data))
}

// Gradient paints red along x and green along y over a fixed blue.
func Gradient(w, h int) *pixbuf.Buffer {
	b := pixbuf.New(w, h)
	for y := range h {
		g := uint8(y * 255 / max(h-1, 1))
		for x := range w {
			r := uint8(x * 255 / max(w-1, 1))
			b.SetPixel(x, y, pixbuf.RGB(r, g, 0x80))
		}
	}
	return b
}
