// Package wm is the window-manager policy engine. It owns the global focus
// and gesture state, interprets routed input as window lifecycle
// transitions, and produces the events pushed to clients.
//
// A Manager is driven by the coordinating goroutine and is not safe for
// concurrent use.
package wm

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/registry"
	"github.com/bnema/orbital/internal/window"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultGrid = 16
	MinWidth    = 48
	MinHeight   = 16
)

// Config configures a Manager.
type Config struct {
	Screen   geom.Rect
	Grid     int
	Modifier input.Mod
}

// drag is the context of an active move or resize gesture.
type drag struct {
	window  window.ID
	zone    window.Zone // ZoneTitle for moves, a border zone for resizes
	start   geom.Rect
	pointer geom.Point
}

// press is a button press on a decoration button, acted on at release.
type press struct {
	window window.ID
	zone   window.Zone
}

// Manager holds the global window-manager state.
type Manager struct {
	reg    *registry.Registry
	router *input.Router
	decor  window.Decor
	screen geom.Rect
	grid   int

	focused window.ID
	drag    *drag
	press   *press

	// grab receives pointer input while the buttons it saw pressed in its
	// content are held.
	grab        window.ID
	grabButtons uint8

	hover   window.ID
	pointer geom.Point
	cursor  Cursor

	switcher bool
	help     bool

	outbox []Event
}

// New creates a Manager over reg.
func New(reg *registry.Registry, cfg Config) *Manager {
	if cfg.Grid <= 0 {
		cfg.Grid = DefaultGrid
	}
	return &Manager{
		reg:    reg,
		router: input.NewRouter(reg, cfg.Modifier),
		decor:  reg.Decor(),
		screen: cfg.Screen,
		grid:   cfg.Grid,
	}
}

// Registry returns the registry the manager drives.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Router returns the input router.
func (m *Manager) Router() *input.Router { return m.router }

// Focused returns the focused window, or 0.
func (m *Manager) Focused() window.ID { return m.focused }

// Screen returns the output rectangle.
func (m *Manager) Screen() geom.Rect { return m.screen }

// Pointer returns the last known pointer position.
func (m *Manager) Pointer() geom.Point { return m.pointer }

// Gesture reports whether a manager-driven move or resize of id is in
// progress. Client geometry requests are ignored while it is.
func (m *Manager) Gesture(id window.ID) bool {
	return m.drag != nil && m.drag.window == id
}

// Drain returns and clears the pending client events.
func (m *Manager) Drain() []Event {
	out := m.outbox
	m.outbox = nil
	return out
}

func (m *Manager) push(ev Event) {
	m.outbox = append(m.outbox, ev)
}

func (m *Manager) scale() int {
	return max(m.decor.Scale, 1)
}

// CreateWindow creates a window for a client. A window asking for a
// negative x and y is centered on the screen. New windows start mapped and
// unfocused.
func (m *Manager) CreateWindow(spec registry.Spec) (window.ID, error) {
	if spec.Rect.X < 0 && spec.Rect.Y < 0 {
		spec.Rect.X = m.screen.X + (m.screen.W-spec.Rect.W)/2
		top := m.screen.Y
		if !spec.Flags.Has(window.FlagBorderless) {
			top += m.decor.TitleHeight()
		}
		spec.Rect.Y = max(m.screen.Y+(m.screen.H-spec.Rect.H)/2, top)
	}
	m.exposeOverlays()
	id, err := m.reg.Create(spec)
	if err != nil {
		return 0, err
	}
	m.exposeOverlays()
	return id, nil
}

// DestroyWindow removes a window and drops every manager reference to it.
func (m *Manager) DestroyWindow(id window.ID) error {
	m.exposeOverlays()
	if err := m.reg.Destroy(id); err != nil {
		return err
	}
	m.forget(id)
	m.exposeOverlays()
	return nil
}

// DestroyOwned removes every window of a client in one step.
func (m *Manager) DestroyOwned(owner window.ClientID) []window.ID {
	m.exposeOverlays()
	ids := m.reg.DestroyOwned(owner)
	for _, id := range ids {
		m.forget(id)
	}
	m.exposeOverlays()
	return ids
}

// CloseWindow is a user-requested close: the window is destroyed at once
// and its owner is told with a Closed event. Unclosable windows ignore it.
func (m *Manager) CloseWindow(id window.ID) error {
	w, err := m.reg.Get(id)
	if err != nil {
		return err
	}
	if w.Flags.Has(window.FlagUnclosable) {
		return nil
	}
	owner := w.Owner
	if err := m.DestroyWindow(id); err != nil {
		return err
	}
	logger.Info("window closed by user", "id", id, "owner", owner)
	m.push(Event{Kind: EventClosed, Client: owner, Window: id})
	return nil
}

func (m *Manager) forget(id window.ID) {
	if m.focused == id {
		m.focused = 0
	}
	if m.drag != nil && m.drag.window == id {
		m.drag = nil
		m.setCursor(CursorArrow)
	}
	if m.press != nil && m.press.window == id {
		m.press = nil
	}
	if m.grab == id {
		m.grab = 0
		m.grabButtons = 0
	}
	if m.hover == id {
		m.hover = 0
		m.reg.Expose(m.CursorRect())
	}
}

// MoveWindow is a client move request.
func (m *Manager) MoveWindow(id window.ID, x, y int) error {
	w, err := m.reg.Get(id)
	if err != nil {
		return err
	}
	if m.Gesture(id) {
		m.push(Event{Kind: EventMoved, Client: w.Owner, Window: id, Rect: w.Rect})
		return nil
	}
	r := w.Rect
	r.X, r.Y = x, y
	return m.clientGeometry(id, r)
}

// ResizeWindow is a client resize request.
func (m *Manager) ResizeWindow(id window.ID, width, height int) error {
	w, err := m.reg.Get(id)
	if err != nil {
		return err
	}
	if m.Gesture(id) {
		m.push(Event{Kind: EventResized, Client: w.Owner, Window: id, Rect: w.Rect})
		return nil
	}
	r := w.Rect
	r.W, r.H = width, height
	return m.clientGeometry(id, r)
}

func (m *Manager) clientGeometry(id window.ID, r geom.Rect) error {
	if err := m.reg.SetGeometry(id, r); err != nil {
		return err
	}
	return m.reg.Mutate(id, func(w *window.Window) error {
		w.Restore = nil
		return nil
	})
}

// SetTitle changes a window title.
func (m *Manager) SetTitle(id window.ID, title string) error {
	m.exposeOverlays()
	err := m.reg.Mutate(id, func(w *window.Window) error {
		w.Title = title
		return nil
	})
	m.exposeOverlays()
	return err
}

// SetFlags sets and clears window flags. A window that becomes hidden loses
// focus and any gesture in the same step.
func (m *Manager) SetFlags(id window.ID, set, clear window.Flags) error {
	lostFocus := false
	err := m.reg.Mutate(id, func(w *window.Window) error {
		w.Flags = (w.Flags &^ clear) | set
		if !w.Visible() && w.Focused() {
			w.State = window.StateMapped
			lostFocus = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	w, _ := m.reg.Get(id)
	if id == m.hover && (set | clear).Has(window.FlagHideCursor) {
		m.reg.Expose(m.CursorRect())
	}
	if !w.Visible() {
		owner := w.Owner
		m.forget(id)
		if lostFocus {
			m.push(Event{Kind: EventFocus, Client: owner, Window: id, Focused: false})
		}
	}
	m.exposeOverlays()
	return nil
}

// Focus gives id the input focus and raises it to the front of its band
// in one step. id 0 clears focus.
func (m *Manager) Focus(id window.ID) error {
	if id != 0 {
		w, err := m.reg.Get(id)
		if err != nil {
			return err
		}
		if !w.Visible() {
			return fmt.Errorf("%w: window %d is hidden", registry.ErrInvalid, id)
		}
	}
	m.focus(id)
	return nil
}

func (m *Manager) setState(id window.ID, st window.State) {
	_ = m.reg.Mutate(id, func(w *window.Window) error {
		w.State = st
		return nil
	})
}

func (m *Manager) focus(id window.ID) {
	m.exposeOverlays()
	defer m.exposeOverlays()

	if id != 0 {
		// Cannot fail: callers validated id.
		_ = m.reg.Raise(id)
	}
	if id == m.focused {
		return
	}
	if old := m.focused; old != 0 {
		if w, err := m.reg.Get(old); err == nil {
			m.setState(old, window.StateMapped)
			m.push(Event{Kind: EventFocus, Client: w.Owner, Window: old, Focused: false})
		}
	}
	m.focused = 0
	if id == 0 {
		return
	}
	w, err := m.reg.Get(id)
	if err != nil || !w.Visible() {
		return
	}
	m.setState(id, window.StateFocused)
	m.focused = id
	m.push(Event{Kind: EventFocus, Client: w.Owner, Window: id, Focused: true})
	logger.Debug("focus changed", "id", id, "owner", w.Owner)
}

// applyGeometry is used for manager-driven geometry changes; the owner is
// told about the result.
func (m *Manager) applyGeometry(id window.ID, r geom.Rect) bool {
	w, err := m.reg.Get(id)
	if err != nil {
		return false
	}
	old := w.Rect
	if err := m.reg.SetGeometry(id, r); err != nil {
		logger.Debug("geometry change refused", "id", id, "rect", r, "err", err)
		return false
	}
	if old.X != r.X || old.Y != r.Y {
		m.push(Event{Kind: EventMoved, Client: w.Owner, Window: id, Rect: r})
	}
	if old.W != r.W || old.H != r.H {
		m.push(Event{Kind: EventResized, Client: w.Owner, Window: id, Rect: r})
	}
	return true
}

// ToggleMaximize maximizes a resizable window to the screen below its title
// bar, or restores the geometry it had before.
func (m *Manager) ToggleMaximize(id window.ID) error {
	w, err := m.reg.Get(id)
	if err != nil {
		return err
	}
	if !w.Flags.Has(window.FlagResizable) {
		return nil
	}
	if w.Restore != nil {
		target := *w.Restore
		if m.applyGeometry(id, target) {
			return m.reg.Mutate(id, func(w *window.Window) error {
				w.Restore = nil
				return nil
			})
		}
		return nil
	}
	saved := w.Rect
	if m.applyGeometry(id, m.maximizedRect(w)) {
		return m.reg.Mutate(id, func(w *window.Window) error {
			w.Restore = &saved
			return nil
		})
	}
	return nil
}

func (m *Manager) maximizedRect(w *window.Window) geom.Rect {
	top := 0
	if w.Decorated() {
		top = m.decor.TitleHeight()
	}
	return geom.R(m.screen.X, m.screen.Y+top, m.screen.W, max(m.screen.H-top, 1))
}

// SetScreen changes the output rectangle, re-maximizes maximized windows
// and tells every client.
func (m *Manager) SetScreen(r geom.Rect) {
	if r == m.screen || r.Empty() {
		return
	}
	m.screen = r
	m.reg.Expose(r)
	var maximized []window.ID
	m.reg.Each(func(w *window.Window) bool {
		if w.Restore != nil {
			maximized = append(maximized, w.ID)
		}
		return true
	})
	for _, id := range maximized {
		w, _ := m.reg.Get(id)
		m.applyGeometry(id, m.maximizedRect(w))
	}
	m.push(Event{Kind: EventScreen, Client: Broadcast, Rect: r})
	logger.Info("screen changed", "width", r.W, "height", r.H)
}

// Check verifies the manager's references against the registry.
func (m *Manager) Check() error {
	if m.focused != 0 {
		w, err := m.reg.Get(m.focused)
		if err != nil {
			return fmt.Errorf("%w: focus on dead window %d", registry.ErrInvariantViolation, m.focused)
		}
		if !w.Visible() || !w.Focused() {
			return fmt.Errorf("%w: focus on window %d in state %v", registry.ErrInvariantViolation, m.focused, w.State)
		}
	}
	var err error
	m.reg.Each(func(w *window.Window) bool {
		if w.Focused() && w.ID != m.focused {
			err = fmt.Errorf("%w: window %d focused behind the manager's back", registry.ErrInvariantViolation, w.ID)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if m.drag != nil {
		if _, err := m.reg.Get(m.drag.window); err != nil {
			return fmt.Errorf("%w: gesture on dead window %d", registry.ErrInvariantViolation, m.drag.window)
		}
	}
	for _, id := range []window.ID{m.grab, m.hover} {
		if id == 0 {
			continue
		}
		if _, err := m.reg.Get(id); errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("%w: pointer reference to dead window %d", registry.ErrInvariantViolation, id)
		}
	}
	return m.reg.Check()
}

// cycleCandidates returns the visible non-background windows in id order.
func (m *Manager) cycleCandidates() []window.ID {
	var ids []window.ID
	m.reg.Each(func(w *window.Window) bool {
		if w.Visible() && w.Band() != window.BandBack {
			ids = append(ids, w.ID)
		}
		return true
	})
	slices.Sort(ids)
	return ids
}

// CycleFocus focuses and raises the next window after the focused one.
func (m *Manager) CycleFocus() {
	ids := m.cycleCandidates()
	if len(ids) == 0 {
		return
	}
	next := ids[0]
	if i := slices.Index(ids, m.focused); i >= 0 {
		next = ids[(i+1)%len(ids)]
	}
	m.focus(next)
}
