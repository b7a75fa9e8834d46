package wm

import (
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/window"
)

func buttonBit(b input.Button) uint8 {
	return 1 << uint(b)
}

// HandleInput runs one raw platform event through the router and applies
// the resulting policy decision. Chords are consumed here and never
// forwarded to clients.
func (m *Manager) HandleInput(ev input.Event) {
	switch ev.Kind {
	case input.KindResize:
		m.SetScreen(geom.R(0, 0, ev.Size.X, ev.Size.Y))
		return
	case input.KindQuit, input.KindHover:
		return
	}
	if ev.PointerEvent() {
		m.movePointer(ev.Pos)
	}

	r := m.router.Route(ev, m.focused)
	switch ev.Kind {
	case input.KindPointerMove:
		m.pointerMoved(r)
	case input.KindButton:
		if ev.Pressed {
			m.buttonDown(r)
		} else {
			m.buttonUp(r)
		}
	case input.KindScroll:
		m.scroll(r)
	case input.KindKey:
		m.key(r)
	}
}

// forward queues an input event for the owner of id, translating pointer
// positions to window-local coordinates.
func (m *Manager) forward(id window.ID, ev input.Event) {
	w, err := m.reg.Get(id)
	if err != nil {
		return
	}
	if ev.PointerEvent() {
		ev.Pos = ev.Pos.Sub(w.Rect.Min())
	}
	m.push(Event{Kind: EventInput, Client: w.Owner, Window: id, Input: ev})
}

func (m *Manager) movePointer(p geom.Point) {
	if p == m.pointer {
		return
	}
	m.reg.Expose(m.CursorRect())
	m.pointer = p
	m.reg.Expose(m.CursorRect())
}

// contentTarget is the window a non-chord pointer event in r's content
// zone goes to, or 0.
func contentTarget(r input.Routed) window.ID {
	if r.Chord || r.Target != input.TargetWindow || r.Zone != window.ZoneContent {
		return 0
	}
	return r.Window
}

func (m *Manager) pointerMoved(r input.Routed) {
	if m.drag != nil {
		m.continueDrag(r.Event.Pos)
		return
	}
	if r.Chord {
		// Motion with the modifier held belongs to the manager.
		m.setCursor(cursorForZone(r.Zone))
		return
	}
	m.updateHover(r)
	m.setCursor(cursorForZone(r.Zone))

	target := m.grab
	if target == 0 {
		target = contentTarget(r)
	}
	if target != 0 {
		m.forward(target, r.Event)
	}
}

func (m *Manager) updateHover(r input.Routed) {
	next := contentTarget(r)
	if m.grab != 0 {
		next = m.grab
	}
	if next == m.hover {
		return
	}
	if old := m.hover; old != 0 {
		m.forward(old, input.Event{Kind: input.KindHover, Time: r.Event.Time, Pressed: false})
	}
	m.hover = next
	// The cursor may change visibility with the hovered window.
	m.reg.Expose(m.CursorRect())
	if next != 0 {
		m.forward(next, input.Event{Kind: input.KindHover, Time: r.Event.Time, Pressed: true})
	}
}

func (m *Manager) buttonDown(r input.Routed) {
	ev := r.Event

	if m.drag != nil {
		return
	}
	if m.grab != 0 {
		if !r.Chord {
			m.grabButtons |= buttonBit(ev.Button)
			m.forward(m.grab, ev)
		}
		return
	}
	if r.Target != input.TargetWindow {
		return
	}
	w, err := m.reg.Get(r.Window)
	if err != nil {
		return
	}

	// Clicking any part of a window focuses and raises it.
	m.focus(w.ID)

	if r.Chord {
		if ev.Button == input.ButtonLeft && w.Band() != window.BandBack {
			m.startDrag(w, window.ZoneTitle)
		}
		return
	}

	switch {
	case r.Zone == window.ZoneContent:
		m.grab = w.ID
		m.grabButtons = buttonBit(ev.Button)
		m.forward(w.ID, ev)
	case ev.Button != input.ButtonLeft:
	case r.Zone == window.ZoneTitle:
		m.startDrag(w, window.ZoneTitle)
	case r.Zone == window.ZoneClose, r.Zone == window.ZoneMaximize:
		m.press = &press{window: w.ID, zone: r.Zone}
	case r.Zone.IsBorder():
		m.startDrag(w, r.Zone)
	}
}

func (m *Manager) buttonUp(r input.Routed) {
	ev := r.Event

	if m.drag != nil {
		if ev.Button == input.ButtonLeft {
			m.endDrag()
		}
		return
	}
	if p := m.press; p != nil {
		m.press = nil
		if r.Target == input.TargetWindow && r.Window == p.window && r.Zone == p.zone && !r.Chord {
			switch p.zone {
			case window.ZoneClose:
				_ = m.CloseWindow(p.window)
			case window.ZoneMaximize:
				_ = m.ToggleMaximize(p.window)
			}
		}
		return
	}
	if m.grab != 0 {
		// The client gets the release of every press it saw, and only those.
		if bit := buttonBit(ev.Button); m.grabButtons&bit != 0 {
			m.grabButtons &^= bit
			m.forward(m.grab, ev)
		}
		if m.grabButtons == 0 {
			m.grab = 0
			m.updateHover(r)
		}
	}
}

func (m *Manager) scroll(r input.Routed) {
	if r.Chord {
		return
	}
	target := m.grab
	if target == 0 {
		target = contentTarget(r)
	}
	if target != 0 {
		m.forward(target, r.Event)
	}
}

func (m *Manager) startDrag(w *window.Window, zone window.Zone) {
	m.drag = &drag{window: w.ID, zone: zone, start: w.Rect, pointer: m.pointer}
	st := window.StateDragging
	if zone.IsBorder() {
		st = window.StateResizing
	}
	m.setState(w.ID, st)
	if zone == window.ZoneTitle {
		m.setCursor(CursorMove)
	} else {
		m.setCursor(cursorForZone(zone))
	}
	logger.Debug("gesture started", "id", w.ID, "zone", zone)
}

func (m *Manager) endDrag() {
	d := m.drag
	m.drag = nil
	if _, err := m.reg.Get(d.window); err == nil {
		st := window.StateMapped
		if m.focused == d.window {
			st = window.StateFocused
		}
		m.setState(d.window, st)
	}
	m.setCursor(CursorArrow)
	logger.Debug("gesture ended", "id", d.window)
}

func (m *Manager) continueDrag(p geom.Point) {
	d := m.drag
	dx, dy := p.X-d.pointer.X, p.Y-d.pointer.Y
	r := d.start
	minW, minH := MinWidth*m.scale(), MinHeight*m.scale()

	switch d.zone {
	case window.ZoneTitle:
		r = r.Offset(dx, dy)
	case window.ZoneLeft, window.ZoneBottomLeft:
		r.W = max(d.start.W-dx, minW)
		r.X = d.start.Right() - r.W
	case window.ZoneRight, window.ZoneBottomRight:
		r.W = max(d.start.W+dx, minW)
	}
	switch d.zone {
	case window.ZoneBottom, window.ZoneBottomLeft, window.ZoneBottomRight:
		r.H = max(d.start.H+dy, minH)
	}

	if m.applyGeometry(d.window, r) {
		_ = m.reg.Mutate(d.window, func(w *window.Window) error {
			w.Restore = nil
			return nil
		})
	}
}

func (m *Manager) key(r input.Routed) {
	ev := r.Event
	if r.Chord {
		if ev.Key.ModifierMask() == m.router.Modifier() && !ev.Pressed {
			m.hideSwitcher()
			return
		}
		if ev.Pressed {
			m.shortcut(ev)
		}
		return
	}
	if r.Target == input.TargetWindow {
		m.forward(r.Window, ev)
		return
	}
	if ev.Pressed && ev.Key == input.KeyEscape {
		m.hideOverlays()
	}
}

// shortcut runs the action bound to a chord key.
func (m *Manager) shortcut(ev input.Event) {
	key := ev.Key
	if key == input.KeyRune {
		switch ev.Rune {
		case ' ':
			key = input.KeySpace
		}
	}
	switch key {
	case input.KeyTab:
		m.CycleFocus()
		m.showSwitcher()
	case input.KeyLeft:
		m.gridMove(-1, 0)
	case input.KeyRight:
		m.gridMove(1, 0)
	case input.KeyUp:
		m.gridMove(0, -1)
	case input.KeyDown:
		m.gridMove(0, 1)
	case input.KeySpace:
		logger.Debug("launcher requested")
		m.push(Event{Kind: EventLauncher, Client: Broadcast})
	case input.KeyEscape:
		m.hideOverlays()
	case input.KeyRune:
		switch ev.Rune {
		case 'q', 'Q':
			if m.focused != 0 {
				_ = m.CloseWindow(m.focused)
			}
		case 'm', 'M':
			if m.focused != 0 {
				_ = m.ToggleMaximize(m.focused)
			}
		case '/', '?':
			m.toggleHelp()
		case 'c', 'C':
			m.requestClipboard(ClipboardCopy)
		case 'x', 'X':
			m.requestClipboard(ClipboardCut)
		case 'v', 'V':
			m.requestClipboard(ClipboardPaste)
		}
	}
}

// requestClipboard asks the owner of the focused window to act on the
// clipboard. The data itself only moves through client commands.
func (m *Manager) requestClipboard(action ClipboardAction) {
	if m.focused == 0 {
		return
	}
	w, err := m.reg.Get(m.focused)
	if err != nil {
		return
	}
	m.push(Event{Kind: EventClipboard, Client: w.Owner, Window: w.ID, Clipboard: action})
}

// gridMove moves the focused window one grid step, snapping to the grid and
// keeping part of it on screen.
func (m *Manager) gridMove(dx, dy int) {
	if m.focused == 0 {
		return
	}
	w, err := m.reg.Get(m.focused)
	if err != nil {
		return
	}
	g := m.grid
	r := w.Rect
	r.X = gridStep(r.X, dx, g)
	r.Y = gridStep(r.Y, dy, g)

	top := m.screen.Y
	if w.Decorated() {
		top += m.decor.TitleHeight()
	}
	r.X = min(max(r.X, m.screen.X-r.W+g), m.screen.Right()-g)
	r.Y = min(max(r.Y, top), m.screen.Bottom()-g)
	if m.applyGeometry(w.ID, r) {
		_ = m.reg.Mutate(w.ID, func(w *window.Window) error {
			w.Restore = nil
			return nil
		})
	}
}

// gridStep moves v to the next grid line in direction dir.
func gridStep(v, dir, g int) int {
	switch {
	case dir > 0:
		return floorDiv(v, g)*g + g
	case dir < 0:
		return -floorDiv(-v, g)*g - g
	}
	return v
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Grabbed reports whether a gesture, a decoration press or a pointer grab
// is holding the pointer.
func (m *Manager) Grabbed() bool {
	return m.drag != nil || m.press != nil || m.grab != 0
}

// Release forgets every held button: an active gesture ends where it is,
// pending decoration presses are cancelled and the pointer grab is lifted.
// It recovers from a platform that lost a button release.
func (m *Manager) Release() {
	if m.drag != nil {
		m.endDrag()
	}
	m.press = nil
	m.grab = 0
	m.grabButtons = 0
	m.hideOverlays()
}
