// Package window defines the Window entity held by the registry: identity,
// geometry, pixel buffer, flags, damage and lifecycle state, plus the
// decoration geometry derived from them.
package window

import (
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/pixbuf"
)

// ID identifies a window for the lifetime of the process. Zero is never a
// valid window id.
type ID uint32

// ClientID identifies a client connection. Zero is the server itself.
type ClientID uint64

// State is the lifecycle state of a window.
type State int

const (
	StateMapped State = iota
	StateFocused
	StateDragging
	StateResizing
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateMapped:
		return "mapped"
	case StateFocused:
		return "focused"
	case StateDragging:
		return "dragging"
	case StateResizing:
		return "resizing"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Window is a client-owned rectangle of pixels. The Buffer belongs to the
// registry; clients only change it through copy-in blits.
type Window struct {
	ID     ID
	Owner  ClientID
	Rect   geom.Rect
	Buffer *pixbuf.Buffer
	Flags  Flags
	Title  string
	State  State

	// Damage is kept in window-local coordinates so that it follows the
	// window when it moves.
	Damage geom.Region

	// Restore is the geometry to go back to when a maximized window is
	// toggled again; nil when not maximized.
	Restore *geom.Rect
}

// Visible reports whether the window is mapped: it is drawn, can be hit by
// the pointer and may hold focus.
func (w *Window) Visible() bool {
	return !w.Flags.Has(FlagHidden) && w.State != StateClosing
}

// Decorated reports whether a title bar and borders are drawn.
func (w *Window) Decorated() bool {
	return !w.Flags.Has(FlagBorderless)
}

// Band is the z-order band of the window.
func (w *Window) Band() Band {
	return w.Flags.Band()
}

// Focused reports whether the window is in one of the focused states.
func (w *Window) Focused() bool {
	switch w.State {
	case StateFocused, StateDragging, StateResizing:
		return true
	}
	return false
}

// MarkDamaged adds a window-local rectangle to the damage region.
func (w *Window) MarkDamaged(r geom.Rect) {
	w.Damage.Add(r.Intersect(geom.R(0, 0, w.Rect.W, w.Rect.H)))
}

// MarkAllDamaged damages the whole content area.
func (w *Window) MarkAllDamaged() {
	w.Damage.Add(geom.R(0, 0, w.Rect.W, w.Rect.H))
}

// ScreenDamage returns the damage translated to screen coordinates.
func (w *Window) ScreenDamage() geom.Region {
	return w.Damage.Translate(w.Rect.X, w.Rect.Y)
}

// Info is a read-only snapshot of a window, safe to hand out of the
// coordinator.
type Info struct {
	ID      ID
	Owner   ClientID
	Rect    geom.Rect
	Flags   Flags
	Title   string
	State   State
	Focused bool
}

// Snapshot copies the descriptive fields of w.
func (w *Window) Snapshot() Info {
	return Info{
		ID:      w.ID,
		Owner:   w.Owner,
		Rect:    w.Rect,
		Flags:   w.Flags,
		Title:   w.Title,
		State:   w.State,
		Focused: w.Focused(),
	}
}
