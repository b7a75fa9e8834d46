package wm

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/registry"
	"github.com/bnema/orbital/internal/window"
)

var screen = geom.R(0, 0, 800, 600)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	reg := registry.New(registry.Limits{}, window.DefaultDecor, pixbuf.RGB(0, 0, 0))
	return New(reg, Config{Screen: screen, Modifier: input.ModSuper})
}

func create(t *testing.T, m *Manager, owner window.ClientID, r geom.Rect, flags window.Flags) window.ID {
	t.Helper()
	id, err := m.CreateWindow(registry.Spec{Owner: owner, Rect: r, Flags: flags, Title: "w"})
	require.NoError(t, err)
	return id
}

func at(x, y int) geom.Point { return geom.Point{X: x, Y: y} }

func pressAt(m *Manager, p geom.Point) {
	m.HandleInput(input.Event{Kind: input.KindButton, Button: input.ButtonLeft, Pressed: true, Pos: p})
}

func release(m *Manager, p geom.Point) {
	m.HandleInput(input.Event{Kind: input.KindButton, Button: input.ButtonLeft, Pressed: false, Pos: p})
}

func moveTo(m *Manager, p geom.Point) {
	m.HandleInput(input.Event{Kind: input.KindPointerMove, Pos: p})
}

func key(m *Manager, k input.Key, r rune, pressed bool) {
	m.HandleInput(input.Event{Kind: input.KindKey, Key: k, Rune: r, Pressed: pressed})
}

func chord(m *Manager, k input.Key, r rune) {
	key(m, input.KeySuper, 0, true)
	key(m, k, r, true)
	key(m, k, r, false)
	key(m, input.KeySuper, 0, false)
}

func inputEvents(evs []Event, kind input.Kind) []Event {
	var out []Event
	for _, ev := range evs {
		if ev.Kind == EventInput && ev.Input.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestClickRaisesAndFocusesAtomically(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(0, 0, 100, 100), window.FlagBorderless)
	b := create(t, m, 2, geom.R(50, 50, 100, 100), window.FlagBorderless)
	assert.Equal(t, window.ID(0), m.Focused(), "new windows are unfocused")

	pressAt(m, at(75, 75))
	release(m, at(75, 75))
	assert.Equal(t, b, m.Focused())
	evs := m.Drain()
	buttons := inputEvents(evs, input.KindButton)
	require.Len(t, buttons, 2)
	assert.Equal(t, b, buttons[0].Window)
	assert.Equal(t, window.ClientID(2), buttons[0].Client)
	assert.Equal(t, at(25, 25), buttons[0].Input.Pos, "positions are window-local")

	pressAt(m, at(10, 10))
	release(m, at(10, 10))
	assert.Equal(t, a, m.Focused())
	assert.Equal(t, []window.ID{a, b}, m.Registry().ZOrder())
	require.NoError(t, m.Check())

	evs = m.Drain()
	var focus []Event
	for _, ev := range evs {
		if ev.Kind == EventFocus {
			focus = append(focus, ev)
		}
	}
	require.Len(t, focus, 2)
	assert.Equal(t, Event{Kind: EventFocus, Client: 2, Window: b, Focused: false}, focus[0])
	assert.Equal(t, Event{Kind: EventFocus, Client: 1, Window: a, Focused: true}, focus[1])

	pressAt(m, at(75, 75))
	release(m, at(75, 75))
	buttons = inputEvents(m.Drain(), input.KindButton)
	require.NotEmpty(t, buttons)
	assert.Equal(t, a, buttons[0].Window)
}

func TestKeyboardGoesToFocusedWindow(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(0, 0, 100, 100), window.FlagBorderless)

	key(m, input.KeyRune, 'x', true)
	assert.Empty(t, m.Drain(), "no focus, no delivery")

	require.NoError(t, m.Focus(a))
	m.Drain()
	key(m, input.KeyRune, 'x', true)
	evs := m.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, a, evs[0].Window)
	assert.Equal(t, 'x', evs[0].Input.Rune)
}

func TestChordsNeverReachClients(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 100, 100), window.FlagResizable)
	require.NoError(t, m.Focus(a))
	m.Drain()

	chord(m, input.KeyRune, '/')
	for _, ev := range m.Drain() {
		assert.NotEqual(t, EventInput, ev.Kind)
	}
	require.Len(t, m.Overlays(), 1)
	assert.Equal(t, OverlayHelp, m.Overlays()[0].Kind)

	chord(m, input.KeySpace, 0)
	evs := m.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, Event{Kind: EventLauncher, Client: Broadcast}, evs[0])
}

func TestCycleFocusShowsSwitcher(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(0, 40, 100, 100), 0)
	b := create(t, m, 1, geom.R(50, 90, 100, 100), 0)
	create(t, m, 1, geom.R(0, 0, 800, 600), window.FlagBack|window.FlagBorderless)

	key(m, input.KeySuper, 0, true)
	key(m, input.KeyTab, 0, true)
	assert.Equal(t, a, m.Focused())
	key(m, input.KeyTab, 0, true)
	assert.Equal(t, b, m.Focused())
	key(m, input.KeyTab, 0, true)
	assert.Equal(t, a, m.Focused(), "background windows are skipped")

	ov := m.Overlays()
	require.Len(t, ov, 1)
	assert.Equal(t, OverlaySwitcher, ov[0].Kind)
	assert.Len(t, ov[0].Lines, 2)
	assert.Equal(t, 0, ov[0].Selected, "focused window is front-most")

	key(m, input.KeySuper, 0, false)
	assert.Empty(t, m.Overlays(), "switcher hides on modifier release")
	require.NoError(t, m.Check())
}

func TestTitleDragMovesWindow(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 200, 100), 0)

	pressAt(m, at(150, 90)) // title bar
	assert.True(t, m.Gesture(a))
	w, _ := m.Registry().Get(a)
	assert.Equal(t, window.StateDragging, w.State)

	moveTo(m, at(170, 80))
	moveTo(m, at(-5000, -5000))
	w, _ = m.Registry().Get(a)
	assert.Equal(t, geom.R(-5050, -4990, 200, 100), w.Rect, "geometry is not clamped")

	release(m, at(-5000, -5000))
	assert.False(t, m.Gesture(a))
	w, _ = m.Registry().Get(a)
	assert.Equal(t, window.StateFocused, w.State)

	// Hit-testing far away from the window is still well defined.
	_, hit := m.Router().HitTest(at(400, 300))
	assert.False(t, hit)
	require.NoError(t, m.Check())

	var moved []Event
	for _, ev := range m.Drain() {
		if ev.Kind == EventMoved {
			moved = append(moved, ev)
		}
	}
	require.Len(t, moved, 2)
	assert.Equal(t, geom.R(-5050, -4990, 200, 100), moved[1].Rect)
}

func TestBorderResize(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 200, 100), window.FlagResizable)

	pressAt(m, at(95, 150)) // left border
	assert.Equal(t, CursorResizeH, m.Cursor())
	moveTo(m, at(75, 150))
	release(m, at(75, 150))

	w, _ := m.Registry().Get(a)
	assert.Equal(t, geom.R(80, 100, 220, 100), w.Rect)
	assert.Equal(t, 220, w.Buffer.Width, "buffer follows the geometry")

	pressAt(m, at(305, 205)) // bottom-right corner
	moveTo(m, at(0, 0))
	release(m, at(0, 0))
	w, _ = m.Registry().Get(a)
	assert.Equal(t, geom.R(80, 100, MinWidth, MinHeight), w.Rect, "minimum size is kept")
	assert.Equal(t, CursorArrow, m.Cursor())
}

func TestClientResizeDuringGesture(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 200, 100), window.FlagResizable)
	pressAt(m, at(305, 150))
	moveTo(m, at(325, 150))
	m.Drain()

	require.NoError(t, m.ResizeWindow(a, 50, 50))
	w, _ := m.Registry().Get(a)
	assert.Equal(t, geom.R(100, 100, 220, 100), w.Rect, "the gesture wins")
	evs := m.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, EventResized, evs[0].Kind)
	assert.Equal(t, w.Rect, evs[0].Rect)

	release(m, at(325, 150))
	require.NoError(t, m.ResizeWindow(a, 50, 50))
	w, _ = m.Registry().Get(a)
	assert.Equal(t, geom.R(100, 100, 50, 50), w.Rect)
}

func TestCloseButton(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 7, geom.R(100, 100, 200, 100), 0)
	u := create(t, m, 7, geom.R(400, 100, 200, 100), window.FlagUnclosable)

	pressAt(m, at(295, 90))
	release(m, at(295, 90))
	_, err := m.Registry().Get(a)
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Equal(t, window.ID(0), m.Focused())

	var closed []Event
	for _, ev := range m.Drain() {
		if ev.Kind == EventClosed {
			closed = append(closed, ev)
		}
	}
	assert.Equal(t, []Event{{Kind: EventClosed, Client: 7, Window: a}}, closed)

	require.NoError(t, m.Focus(u))
	chord(m, input.KeyRune, 'q')
	_, err = m.Registry().Get(u)
	assert.NoError(t, err, "unclosable windows survive")
	require.NoError(t, m.Check())
}

func TestPressOnCloseReleasedElsewhereDoesNothing(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 200, 100), 0)
	pressAt(m, at(295, 90))
	release(m, at(150, 150))
	_, err := m.Registry().Get(a)
	assert.NoError(t, err)
}

func TestMaximizeRestore(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 200, 100), window.FlagResizable)
	require.NoError(t, m.Focus(a))

	chord(m, input.KeyRune, 'm')
	w, _ := m.Registry().Get(a)
	assert.Equal(t, geom.R(0, window.TitleHeight, 800, 600-window.TitleHeight), w.Rect)
	require.NotNil(t, w.Restore)

	m.SetScreen(geom.R(0, 0, 1024, 768))
	w, _ = m.Registry().Get(a)
	assert.Equal(t, geom.R(0, window.TitleHeight, 1024, 768-window.TitleHeight), w.Rect, "maximized windows follow the screen")

	chord(m, input.KeyRune, 'm')
	w, _ = m.Registry().Get(a)
	assert.Equal(t, geom.R(100, 100, 200, 100), w.Rect)
	assert.Nil(t, w.Restore)
}

func TestGridMove(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(5, 100, 200, 100), 0)
	require.NoError(t, m.Focus(a))

	chord(m, input.KeyRight, 0)
	w, _ := m.Registry().Get(a)
	assert.Equal(t, 16, w.Rect.X)

	chord(m, input.KeyLeft, 0)
	chord(m, input.KeyLeft, 0)
	w, _ = m.Registry().Get(a)
	assert.Equal(t, -16, w.Rect.X)

	for range 20 {
		chord(m, input.KeyUp, 0)
	}
	w, _ = m.Registry().Get(a)
	assert.Equal(t, window.TitleHeight, w.Rect.Y, "title bar stays on screen")
}

func TestGridStep(t *testing.T) {
	tests := []struct {
		v, dir, want int
	}{
		{5, 1, 16},
		{16, 1, 32},
		{5, -1, 0},
		{16, -1, 0},
		{-5, -1, -16},
		{-5, 1, 0},
		{7, 0, 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gridStep(tt.v, tt.dir, 16), "gridStep(%d, %d)", tt.v, tt.dir)
	}
}

func TestDestroyOwnedClearsReferences(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 200, 100), 0)
	create(t, m, 1, geom.R(400, 100, 100, 100), 0)
	other := create(t, m, 2, geom.R(100, 300, 100, 100), 0)

	pressAt(m, at(150, 90)) // start dragging a
	require.True(t, m.Gesture(a))

	ids := m.DestroyOwned(1)
	assert.Len(t, ids, 2)
	assert.False(t, m.Gesture(a))
	assert.Equal(t, window.ID(0), m.Focused())
	assert.Equal(t, []window.ID{other}, m.Registry().ZOrder())
	require.NoError(t, m.Check())

	// The release that ends the dead gesture is harmless.
	release(m, at(150, 90))
	require.NoError(t, m.Check())
}

func TestHiddenWindowLosesFocus(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 200, 100), 0)
	require.NoError(t, m.Focus(a))
	m.Drain()

	require.NoError(t, m.SetFlags(a, window.FlagHidden, 0))
	assert.Equal(t, window.ID(0), m.Focused())
	assert.Equal(t, []Event{{Kind: EventFocus, Client: 1, Window: a, Focused: false}}, m.Drain())
	assert.Error(t, m.Focus(a))
	require.NoError(t, m.Check())
}

func TestHover(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 1, geom.R(100, 100, 100, 100), window.FlagBorderless)

	moveTo(m, at(150, 150))
	moveTo(m, at(400, 400))
	hovers := inputEvents(m.Drain(), input.KindHover)
	require.Len(t, hovers, 2)
	assert.True(t, hovers[0].Input.Pressed)
	assert.False(t, hovers[1].Input.Pressed)
	assert.Equal(t, a, hovers[1].Window)
}

func TestAutomaticPlacement(t *testing.T) {
	m := newTestManager(t)
	id := create(t, m, 1, geom.R(-1, -1, 200, 100), 0)
	w, _ := m.Registry().Get(id)
	assert.Equal(t, geom.R(300, 250, 200, 100), w.Rect)

	id = create(t, m, 1, geom.R(-1, -1, 200, 700), 0)
	w, _ = m.Registry().Get(id)
	assert.Equal(t, window.TitleHeight, w.Rect.Y)
}

func TestCursorDamage(t *testing.T) {
	m := newTestManager(t)
	reg := m.Registry()
	reg.ClearDamage(reg.Damage(), screen)

	moveTo(m, at(10, 10))
	d := reg.Damage()
	var want geom.Region
	want.Add(geom.R(0, 0, CursorSize, CursorSize))
	want.Add(geom.R(10, 10, CursorSize, CursorSize))
	assert.True(t, d.Covers(want))
}

func TestReleaseEndsGrabs(t *testing.T) {
	m := newTestManager(t)
	id := create(t, m, 1, geom.R(100, 100, 200, 100), 0)
	assert.False(t, m.Grabbed())

	// Title drag.
	pressAt(m, at(150, 90))
	assert.True(t, m.Grabbed())
	assert.True(t, m.Gesture(id))
	m.Release()
	assert.False(t, m.Grabbed())
	assert.False(t, m.Gesture(id))

	moveTo(m, at(400, 400))
	w, err := m.Registry().Get(id)
	require.NoError(t, err)
	assert.Equal(t, geom.R(100, 100, 200, 100), w.Rect)
	release(m, at(400, 400))

	// Content grab.
	pressAt(m, at(150, 150))
	assert.True(t, m.Grabbed())
	m.Release()
	assert.False(t, m.Grabbed())
	m.Drain()

	// With the grab gone, events go to whatever is under the pointer.
	moveTo(m, at(10, 10))
	assert.Empty(t, inputEvents(m.Drain(), input.KindPointerMove))
}

func TestChordsNeverReachGrabbedClient(t *testing.T) {
	m := newTestManager(t)
	id := create(t, m, 1, geom.R(100, 100, 200, 100), 0)

	pressAt(m, at(150, 150))
	require.True(t, m.Grabbed())
	m.Drain()

	key(m, input.KeySuper, 0, true)
	m.HandleInput(input.Event{Kind: input.KindButton, Button: input.ButtonRight, Pressed: true, Pos: at(160, 160)})
	moveTo(m, at(170, 170))
	m.HandleInput(input.Event{Kind: input.KindScroll, Pos: at(170, 170), Delta: at(0, 1)})
	m.HandleInput(input.Event{Kind: input.KindButton, Button: input.ButtonRight, Pressed: false, Pos: at(170, 170)})
	key(m, input.KeySuper, 0, false)

	for _, ev := range m.Drain() {
		assert.NotEqual(t, EventInput, ev.Kind, "client saw %v", ev.Input)
	}
	assert.True(t, m.Grabbed(), "the left button is still held")

	moveTo(m, at(180, 170))
	moves := inputEvents(m.Drain(), input.KindPointerMove)
	require.Len(t, moves, 1)
	assert.Equal(t, id, moves[0].Window)

	release(m, at(180, 170))
	buttons := inputEvents(m.Drain(), input.KindButton)
	require.Len(t, buttons, 1)
	assert.Equal(t, input.ButtonLeft, buttons[0].Input.Button)
	assert.False(t, m.Grabbed())
}

func TestClipboardChords(t *testing.T) {
	m := newTestManager(t)
	a := create(t, m, 3, geom.R(100, 100, 200, 100), 0)
	require.NoError(t, m.Focus(a))
	m.Drain()

	chord(m, input.KeyRune, 'c')
	chord(m, input.KeyRune, 'x')
	chord(m, input.KeyRune, 'v')

	var got []ClipboardAction
	for _, ev := range m.Drain() {
		require.NotEqual(t, EventInput, ev.Kind, "client saw %v", ev.Input)
		if ev.Kind == EventClipboard {
			assert.Equal(t, window.ClientID(3), ev.Client)
			assert.Equal(t, a, ev.Window)
			got = append(got, ev.Clipboard)
		}
	}
	assert.Equal(t, []ClipboardAction{ClipboardCopy, ClipboardCut, ClipboardPaste}, got)

	// Nobody to ask without focus.
	require.NoError(t, m.Focus(0))
	m.Drain()
	chord(m, input.KeyRune, 'v')
	assert.Empty(t, m.Drain())
}

func TestCursorHiddenOverContent(t *testing.T) {
	m := newTestManager(t)
	reg := m.Registry()
	a := create(t, m, 1, geom.R(100, 100, 100, 100), window.FlagBorderless|window.FlagHideCursor)

	moveTo(m, at(150, 150))
	assert.True(t, m.CursorHidden())

	moveTo(m, at(400, 400))
	assert.False(t, m.CursorHidden())

	moveTo(m, at(150, 150))
	require.True(t, m.CursorHidden())
	reg.ClearDamage(reg.Damage(), screen)
	require.NoError(t, m.SetFlags(a, 0, window.FlagHideCursor))
	assert.False(t, m.CursorHidden())
	var want geom.Region
	want.Add(m.CursorRect())
	assert.True(t, reg.Damage().Covers(want), "the cursor must be redrawn")
	require.NoError(t, m.Check())
}

// TestRandomSequences interleaves client lifecycle calls with random
// pointer and keyboard input and checks the manager after every step.
func TestRandomSequences(t *testing.T) {
	flags := []window.Flags{0, window.FlagResizable, window.FlagBorderless, window.FlagBack, window.FlagFront}
	buttons := []input.Button{input.ButtonLeft, input.ButtonRight, input.ButtonMiddle}

	for _, seed := range []uint64{7, 11, 2024} {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, ^seed))
			m := newTestManager(t)
			point := func() geom.Point { return at(rng.IntN(800), rng.IntN(600)) }
			pick := func() window.ID {
				ids := m.Registry().ZOrder()
				if len(ids) == 0 {
					return 0
				}
				return ids[rng.IntN(len(ids))]
			}

			for step := range 500 {
				var op string
				switch n := rng.IntN(14); {
				case n < 2:
					op = "create"
					_, _ = m.CreateWindow(registry.Spec{
						Owner: window.ClientID(rng.IntN(3) + 1),
						Rect:  geom.R(rng.IntN(700), rng.IntN(500), rng.IntN(200)+MinWidth, rng.IntN(150)+MinHeight),
						Flags: flags[rng.IntN(len(flags))],
					})
				case n < 3:
					op = "destroy"
					if id := pick(); id != 0 {
						require.NoError(t, m.DestroyWindow(id))
					}
				case n < 4:
					op = "destroy owned"
					m.DestroyOwned(window.ClientID(rng.IntN(3) + 1))
				case n < 5:
					op = "hide or show"
					if id := pick(); id != 0 {
						if rng.IntN(2) == 0 {
							require.NoError(t, m.SetFlags(id, window.FlagHidden, 0))
						} else {
							require.NoError(t, m.SetFlags(id, 0, window.FlagHidden))
						}
					}
				case n < 6:
					op = "focus"
					_ = m.Focus(pick())
				case n < 9:
					op = "move"
					moveTo(m, point())
				case n < 12:
					op = "button"
					m.HandleInput(input.Event{
						Kind:    input.KindButton,
						Button:  buttons[rng.IntN(len(buttons))],
						Pressed: rng.IntN(2) == 0,
						Pos:     point(),
					})
				case n < 13:
					op = "chord"
					keys := []rune{'q', 'm', 'c', 'v', '/'}
					chord(m, input.KeyRune, keys[rng.IntN(len(keys))])
				default:
					op = "release"
					m.Release()
				}
				require.NoError(t, m.Check(), "step %d: %s", step, op)
				m.Drain()
			}
		})
	}
}
