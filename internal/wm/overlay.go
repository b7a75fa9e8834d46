package wm

import (
	"fmt"

	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/window"
)

// Cursor is the pointer shape.
type Cursor int

const (
	CursorArrow Cursor = iota
	CursorMove
	CursorResizeH
	CursorResizeV
	CursorResizeNESW
	CursorResizeNWSE
)

func (c Cursor) String() string {
	switch c {
	case CursorMove:
		return "move"
	case CursorResizeH:
		return "resize-h"
	case CursorResizeV:
		return "resize-v"
	case CursorResizeNESW:
		return "resize-nesw"
	case CursorResizeNWSE:
		return "resize-nwse"
	default:
		return "arrow"
	}
}

// CursorSize is the unscaled edge of the cursor box.
const CursorSize = 16

func cursorForZone(z window.Zone) Cursor {
	switch z {
	case window.ZoneLeft, window.ZoneRight:
		return CursorResizeH
	case window.ZoneBottom:
		return CursorResizeV
	case window.ZoneBottomLeft:
		return CursorResizeNESW
	case window.ZoneBottomRight:
		return CursorResizeNWSE
	}
	return CursorArrow
}

// Cursor returns the current pointer shape.
func (m *Manager) Cursor() Cursor { return m.cursor }

// CursorRect is the screen area the cursor is drawn in. The hotspot is its
// top-left corner.
func (m *Manager) CursorRect() geom.Rect {
	s := CursorSize * m.scale()
	return geom.R(m.pointer.X, m.pointer.Y, s, s)
}

// CursorHidden reports whether the pointer rests on the content of a window
// that asked for no cursor. Manager gestures always show it.
func (m *Manager) CursorHidden() bool {
	if m.drag != nil || m.hover == 0 {
		return false
	}
	w, err := m.reg.Get(m.hover)
	return err == nil && w.Flags.Has(window.FlagHideCursor)
}

func (m *Manager) setCursor(c Cursor) {
	if c == m.cursor {
		return
	}
	m.cursor = c
	m.reg.Expose(m.CursorRect())
}

// Text metrics of overlays. They match the 7x13 bitmap face the compositor
// draws with.
const (
	GlyphWidth    = 7
	LineHeight    = 16
	OverlayMargin = 10
)

// OverlayKind names a manager overlay.
type OverlayKind int

const (
	OverlaySwitcher OverlayKind = iota + 1
	OverlayHelp
)

// Overlay is a text panel drawn above every window.
type Overlay struct {
	Kind  OverlayKind
	Rect  geom.Rect
	Lines []string
	// Selected is the highlighted line, or -1.
	Selected int
}

func (m *Manager) layout(kind OverlayKind, lines []string, selected int) Overlay {
	width := 0
	for _, l := range lines {
		width = max(width, len([]rune(l)))
	}
	w := width*GlyphWidth + 2*OverlayMargin
	h := len(lines)*LineHeight + 2*OverlayMargin
	x := m.screen.X + (m.screen.W-w)/2
	y := m.screen.Y + (m.screen.H-h)/2
	return Overlay{Kind: kind, Rect: geom.R(x, y, w, h), Lines: lines, Selected: selected}
}

// Overlays returns the overlays to draw this frame, bottom first.
func (m *Manager) Overlays() []Overlay {
	var out []Overlay
	if m.switcher {
		if o, ok := m.switcherOverlay(); ok {
			out = append(out, o)
		}
	}
	if m.help {
		out = append(out, m.helpOverlay())
	}
	return out
}

func (m *Manager) switcherOverlay() (Overlay, bool) {
	var lines []string
	selected := -1
	m.reg.Each(func(w *window.Window) bool {
		if !w.Visible() || w.Band() == window.BandBack {
			return true
		}
		title := w.Title
		if title == "" {
			title = fmt.Sprintf("window %d", w.ID)
		}
		if w.ID == m.focused {
			selected = len(lines)
		}
		lines = append(lines, title)
		return true
	})
	if len(lines) == 0 {
		return Overlay{}, false
	}
	return m.layout(OverlaySwitcher, lines, selected), true
}

func (m *Manager) helpOverlay() Overlay {
	mod := m.router.Modifier().String()
	lines := []string{
		mod + "+tab      cycle windows",
		mod + "+q        close window",
		mod + "+m        maximize / restore",
		mod + "+arrows   move window",
		mod + "+drag     move window",
		mod + "+space    launcher",
		mod + "+c/x/v    copy / cut / paste",
		mod + "+/        this help",
	}
	return m.layout(OverlayHelp, lines, -1)
}

// exposeOverlays damages the area of every shown overlay. It is called on
// both sides of a change that can alter overlay content.
func (m *Manager) exposeOverlays() {
	for _, o := range m.Overlays() {
		m.reg.Expose(o.Rect)
	}
}

func (m *Manager) showSwitcher() {
	m.exposeOverlays()
	m.switcher = true
	m.exposeOverlays()
}

func (m *Manager) hideSwitcher() {
	if !m.switcher {
		return
	}
	m.exposeOverlays()
	m.switcher = false
}

func (m *Manager) toggleHelp() {
	m.exposeOverlays()
	m.help = !m.help
	m.exposeOverlays()
}

func (m *Manager) hideOverlays() {
	m.exposeOverlays()
	m.switcher = false
	m.help = false
}
