// Package platform is the boundary between the display server and the
// machine it runs on: a source of raw input events and a sink for composed
// frames.
package platform

import (
	"context"
	"fmt"

	"github.com/bnema/orbital/internal/compositor"
	"github.com/bnema/orbital/internal/input"
)

// Platform produces raw input and consumes frames.
type Platform interface {
	// Size is the output size in pixels.
	Size() (width, height int)
	// Run delivers raw events in timestamp order until ctx ends or the
	// platform shuts down. It must not close events.
	Run(ctx context.Context, events chan<- input.Event) error
	// Present shows a completed frame. The frame buffer is only valid for
	// the duration of the call.
	Present(frame compositor.Frame) error
	Close() error
}

// Options selects and sizes a platform.
type Options struct {
	Kind        string // "headless" or "terminal"
	Width       int
	Height      int
	SnapshotDir string
}

// New creates the platform named by opts.Kind.
func New(opts Options) (Platform, error) {
	switch opts.Kind {
	case "headless":
		return NewHeadless(opts.Width, opts.Height, opts.SnapshotDir), nil
	case "terminal":
		return NewTerminal(nil, opts.Width, opts.Height)
	}
	return nil, fmt.Errorf("unknown platform %q", opts.Kind)
}
