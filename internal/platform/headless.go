package platform

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/orbital/internal/compositor"
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/pixbuf"
)

// Headless is a platform without a display. Input is injected by the
// caller and presented frames are kept in memory, optionally written out
// as PNG snapshots.
type Headless struct {
	in          chan input.Event
	snapshotDir string

	mu      sync.Mutex
	width   int
	height  int
	last    *pixbuf.Buffer
	frame   compositor.Frame
	frames  uint64
	changed chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewHeadless creates a headless platform. An empty snapshotDir disables
// PNG output.
func NewHeadless(width, height int, snapshotDir string) *Headless {
	return &Headless{
		in:          make(chan input.Event, 256),
		snapshotDir: snapshotDir,
		width:       width,
		height:      height,
		changed:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (h *Headless) Size() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// Inject queues a raw event. Events without a timestamp get the current
// time. It returns false once the platform is closed.
func (h *Headless) Inject(ev input.Event) bool {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case h.in <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Headless) Run(ctx context.Context, events chan<- input.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case ev := <-h.in:
			if ev.Kind == input.KindResize {
				h.mu.Lock()
				h.width, h.height = ev.Size.X, ev.Size.Y
				h.mu.Unlock()
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (h *Headless) Present(f compositor.Frame) error {
	h.mu.Lock()
	h.last = f.Buffer.Clone()
	h.frame = f
	h.frame.Buffer = h.last
	h.frames++
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()

	if h.snapshotDir != "" {
		path := filepath.Join(h.snapshotDir, fmt.Sprintf("frame-%06d.png", f.Seq))
		if err := WritePNG(path, f.Buffer); err != nil {
			return err
		}
		logger.Debugf("Wrote snapshot %s", path)
	}
	return nil
}

// Frame returns a copy of the last presented frame and the number of
// frames presented so far.
func (h *Headless) Frame() (compositor.Frame, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame, h.frames
}

// WaitFrame blocks until more than after frames have been presented and
// returns the latest one.
func (h *Headless) WaitFrame(ctx context.Context, after uint64) (compositor.Frame, uint64, error) {
	for {
		h.mu.Lock()
		if h.frames > after {
			f, n := h.frame, h.frames
			h.mu.Unlock()
			return f, n, nil
		}
		changed := h.changed
		h.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return compositor.Frame{}, 0, ctx.Err()
		case <-h.done:
			return compositor.Frame{}, 0, fmt.Errorf("platform closed")
		}
	}
}

func (h *Headless) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// WritePNG saves a buffer as a PNG file.
func WritePNG(path string, b *pixbuf.Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := png.Encode(f, b.ToRGBA()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return f.Close()
}
