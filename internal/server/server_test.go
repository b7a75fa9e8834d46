package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/orbital/internal/client"
	"github.com/bnema/orbital/internal/compositor"
	"github.com/bnema/orbital/internal/config"
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/platform"
	"github.com/bnema/orbital/internal/protocol"
	"github.com/bnema/orbital/internal/registry"
	"github.com/bnema/orbital/internal/window"
)

var (
	red  = pixbuf.RGB(0xff, 0, 0)
	blue = pixbuf.RGB(0, 0, 0xff)
)

type harness struct {
	t    *testing.T
	srv  *Server
	plat *platform.Headless

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func startServer(t *testing.T, opts Options) *harness {
	t.Helper()
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	plat := platform.NewHeadless(400, 300, "")
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		t:      t,
		srv:    New(plat, opts),
		plat:   plat,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.err = h.srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		h.wait()
		_ = plat.Close()
	})
	return h
}

func (h *harness) wait() error {
	h.t.Helper()
	select {
	case <-h.done:
		return h.err
	case <-time.After(2 * time.Second):
		h.t.Fatal("server did not stop")
		return nil
	}
}

// connect attaches a client over an in-memory pipe, the way a listener
// would.
func (h *harness) connect() *client.Client {
	h.t.Helper()
	a, b := net.Pipe()
	go func() {
		h.srv.Attach(context.Background(), b, "pipe")
		_ = b.Close()
	}()
	c := client.New(a)
	h.t.Cleanup(func() { _ = c.Close() })
	return c
}

// frameWhere waits for a presented frame satisfying match.
func (h *harness) frameWhere(match func(compositor.Frame) bool) compositor.Frame {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var seen uint64
	for {
		f, n, err := h.plat.WaitFrame(ctx, seen)
		require.NoError(h.t, err, "no matching frame")
		if match(f) {
			return f
		}
		seen = n
	}
}

func pixelIs(x, y int, want pixbuf.Color) func(compositor.Frame) bool {
	return func(f compositor.Frame) bool {
		c, ok := f.Buffer.PixelAt(x, y)
		return ok && c == want
	}
}

func waitEvent[T protocol.Message](t *testing.T, c *client.Client, match func(T) bool) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m, ok := <-c.Events():
			if !ok {
				t.Fatalf("connection closed: %v", c.Err())
			}
			if ev, ok := m.(T); ok && (match == nil || match(ev)) {
				return ev
			}
		case <-timeout:
			var zero T
			t.Fatalf("no %T event arrived", zero)
		}
	}
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func fill(t *testing.T, c *client.Client, id window.ID, w, h int, col pixbuf.Color) {
	t.Helper()
	require.NoError(t, c.BlitBuffer(ctxT(t), id, pixbuf.NewFilled(w, h, col)))
}

func click(h *harness, x, y int) {
	p := geom.Point{X: x, Y: y}
	h.plat.Inject(input.Event{Kind: input.KindButton, Button: input.ButtonLeft, Pressed: true, Pos: p})
	h.plat.Inject(input.Event{Kind: input.KindButton, Button: input.ButtonLeft, Pressed: false, Pos: p})
}

func isPress(id window.ID) func(*protocol.Input) bool {
	return func(in *protocol.Input) bool {
		return in.WindowID == uint32(id) && in.Type == protocol.InputButton && in.Pressed
	}
}

func TestWindowLifecycle(t *testing.T) {
	h := startServer(t, DefaultOptions)
	c := h.connect()
	ctx := ctxT(t)

	id, err := c.CreateWindow(ctx, geom.R(10, 40, 120, 80), window.FlagResizable, "first")
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.NoError(t, c.SetTitle(ctx, id, "renamed"))
	require.NoError(t, c.MoveWindow(ctx, id, 20, 50))
	require.NoError(t, c.ResizeWindow(ctx, id, 60, 70))

	list, err := c.ListWindows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint32(id), list[0].ID)
	assert.Equal(t, "renamed", list[0].Title)
	assert.Equal(t, [4]int32{20, 50, 60, 70}, [4]int32{list[0].X, list[0].Y, list[0].W, list[0].H})
	assert.Equal(t, uint32(window.FlagResizable), list[0].Flags)

	require.NoError(t, c.DestroyWindow(ctx, id))
	list, err = c.ListWindows(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = c.DestroyWindow(ctx, id)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCommandErrors(t *testing.T) {
	h := startServer(t, Options{Limits: registry.Limits{MaxWindows: 1}})
	c := h.connect()
	ctx := ctxT(t)

	_, err := c.CreateWindow(ctx, geom.R(0, 0, 0, 10), 0, "empty")
	assert.ErrorIs(t, err, registry.ErrInvalid)

	_, err = c.CreateWindow(ctx, geom.R(0, 0, 10, 10), window.FlagBack|window.FlagFront, "both")
	assert.ErrorIs(t, err, registry.ErrInvalid)

	id, err := c.CreateWindow(ctx, geom.R(0, 0, 10, 10), 0, "one")
	require.NoError(t, err)
	_, err = c.CreateWindow(ctx, geom.R(0, 0, 10, 10), 0, "two")
	assert.ErrorIs(t, err, registry.ErrResourceExhausted)

	err = c.SetFlags(ctx, id, 1<<20, 0)
	assert.ErrorIs(t, err, registry.ErrInvalid)

	// None of these end the connection.
	_, err = c.ListWindows(ctx)
	assert.NoError(t, err)
}

func TestOtherClientsWindowsLookMissing(t *testing.T) {
	h := startServer(t, DefaultOptions)
	a, b := h.connect(), h.connect()
	ctx := ctxT(t)

	id, err := a.CreateWindow(ctx, geom.R(0, 0, 50, 50), 0, "mine")
	require.NoError(t, err)

	missing := id + 1000
	tests := []struct {
		name string
		do   func(window.ID) error
	}{
		{"move", func(w window.ID) error { return b.MoveWindow(ctx, w, 5, 5) }},
		{"resize", func(w window.ID) error { return b.ResizeWindow(ctx, w, 5, 5) }},
		{"title", func(w window.ID) error { return b.SetTitle(ctx, w, "stolen") }},
		{"blit", func(w window.ID) error { return b.Blit(ctx, w, geom.R(0, 0, 1, 1), []pixbuf.Color{red}) }},
		{"flags", func(w window.ID) error { return b.SetFlags(ctx, w, window.FlagHidden, 0) }},
		{"destroy", func(w window.ID) error { return b.DestroyWindow(ctx, w) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var foreign, absent *protocol.StatusError
			require.ErrorAs(t, tt.do(id), &foreign)
			require.ErrorAs(t, tt.do(missing), &absent)
			assert.Equal(t, protocol.StatusNotFound, foreign.Status)
			assert.Equal(t, absent.Status, foreign.Status)
			// Same wording, only the id differs.
			assert.Equal(t,
				strings.ReplaceAll(absent.Message, fmt.Sprint(missing), "ID"),
				strings.ReplaceAll(foreign.Message, fmt.Sprint(id), "ID"))
		})
	}

	// Everyone can list every window.
	list, err := b.ListWindows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mine", list[0].Title)
}

// Two overlapping windows of two clients: clicks go to the topmost window
// under the pointer, and clicking raises.
func TestClickRouting(t *testing.T) {
	h := startServer(t, DefaultOptions)
	ca, cb := h.connect(), h.connect()
	ctx := ctxT(t)

	a, err := ca.CreateWindow(ctx, geom.R(0, 0, 100, 100), 0, "A")
	require.NoError(t, err)
	b, err := cb.CreateWindow(ctx, geom.R(50, 50, 100, 100), 0, "B")
	require.NoError(t, err)

	click(h, 75, 75)
	// Focus is announced before the click is forwarded.
	waitEvent(t, cb, func(f *protocol.FocusChanged) bool { return f.WindowID == uint32(b) && f.Focused })
	in := waitEvent(t, cb, isPress(b))
	assert.Equal(t, [2]int32{25, 25}, [2]int32{in.X, in.Y})

	click(h, 10, 10)
	in = waitEvent(t, ca, isPress(a))
	assert.Equal(t, [2]int32{10, 10}, [2]int32{in.X, in.Y})
	waitEvent(t, cb, func(f *protocol.FocusChanged) bool { return f.WindowID == uint32(b) && !f.Focused })

	// A is on top now and covers (75,75).
	click(h, 75, 75)
	in = waitEvent(t, ca, isPress(a))
	assert.Equal(t, [2]int32{75, 75}, [2]int32{in.X, in.Y})

	list, err := ca.ListWindows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint32(a), list[0].ID)
	assert.True(t, list[0].Focused)
}

// A malformed blit drops the offending client with its windows; the other
// client's pixels are untouched.
func TestMalformedBlitDropsClient(t *testing.T) {
	h := startServer(t, DefaultOptions)
	ca, cb := h.connect(), h.connect()
	ctx := ctxT(t)

	a, err := ca.CreateWindow(ctx, geom.R(0, 0, 100, 100), 0, "A")
	require.NoError(t, err)
	b, err := cb.CreateWindow(ctx, geom.R(50, 50, 100, 100), 0, "B")
	require.NoError(t, err)
	fill(t, ca, a, 100, 100, red)
	fill(t, cb, b, 100, 100, blue)
	h.frameWhere(func(f compositor.Frame) bool {
		return pixelIs(30, 90, red)(f) && pixelIs(140, 140, blue)(f)
	})

	pixels := make([]pixbuf.Color, 20*20)
	err = ca.Blit(ctx, a, geom.R(90, 90, 20, 20), pixels)
	assert.ErrorIs(t, err, protocol.ErrProtocol)

	select {
	case <-ca.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not dropped")
	}
	assert.ErrorIs(t, ca.Err(), protocol.ErrProtocol)

	list, err := cb.ListWindows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint32(b), list[0].ID)

	h.frameWhere(func(f compositor.Frame) bool {
		return pixelIs(30, 90, compositor.DefaultTheme.Background)(f) && pixelIs(140, 140, blue)(f)
	})
}

func TestDisconnectDestroysWindows(t *testing.T) {
	h := startServer(t, DefaultOptions)
	ca, cb := h.connect(), h.connect()
	ctx := ctxT(t)

	for i := range 3 {
		_, err := ca.CreateWindow(ctx, geom.R(10*i, 10*i, 30, 30), 0, "gone")
		require.NoError(t, err)
	}
	_, err := cb.CreateWindow(ctx, geom.R(200, 200, 30, 30), 0, "stays")
	require.NoError(t, err)

	require.NoError(t, ca.Close())

	require.Eventually(t, func() bool {
		list, err := cb.ListWindows(ctx)
		return err == nil && len(list) == 1 && list[0].Title == "stays"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientGeometryDuringGesture(t *testing.T) {
	h := startServer(t, DefaultOptions)
	c := h.connect()
	ctx := ctxT(t)

	id, err := c.CreateWindow(ctx, geom.R(100, 100, 100, 100), 0, "dragged")
	require.NoError(t, err)

	// Grab the title bar and drag by (20,10).
	h.plat.Inject(input.Event{Kind: input.KindButton, Button: input.ButtonLeft, Pressed: true, Pos: geom.Point{X: 130, Y: 85}})
	h.plat.Inject(input.Event{Kind: input.KindPointerMove, Pos: geom.Point{X: 150, Y: 95}})
	mv := waitEvent(t, c, func(m *protocol.Moved) bool { return m.WindowID == uint32(id) })
	assert.Equal(t, [2]int32{120, 110}, [2]int32{mv.X, mv.Y})

	// The user wins: the request succeeds but the client is told the
	// geometry the gesture holds.
	require.NoError(t, c.ResizeWindow(ctx, id, 50, 50))
	rs := waitEvent(t, c, func(r *protocol.Resized) bool { return r.WindowID == uint32(id) })
	assert.Equal(t, [2]int32{100, 100}, [2]int32{rs.W, rs.H})

	require.NoError(t, c.MoveWindow(ctx, id, 0, 0))
	mv = waitEvent(t, c, func(m *protocol.Moved) bool { return m.WindowID == uint32(id) })
	assert.Equal(t, [2]int32{120, 110}, [2]int32{mv.X, mv.Y})

	h.plat.Inject(input.Event{Kind: input.KindButton, Button: input.ButtonLeft, Pressed: false, Pos: geom.Point{X: 150, Y: 95}})
	require.Eventually(t, func() bool {
		return c.ResizeWindow(ctx, id, 50, 50) == nil && func() bool {
			list, err := c.ListWindows(ctx)
			return err == nil && len(list) == 1 && list[0].W == 50
		}()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmergencyRelease(t *testing.T) {
	h := startServer(t, DefaultOptions)
	c := h.connect()
	ctx := ctxT(t)

	id, err := c.CreateWindow(ctx, geom.R(100, 100, 100, 100), 0, "stuck")
	require.NoError(t, err)

	h.plat.Inject(input.Event{Kind: input.KindButton, Button: input.ButtonLeft, Pressed: true, Pos: geom.Point{X: 130, Y: 85}})
	h.plat.Inject(input.Event{Kind: input.KindPointerMove, Pos: geom.Point{X: 150, Y: 95}})
	waitEvent(t, c, func(m *protocol.Moved) bool { return m.WindowID == uint32(id) })

	h.srv.emergency.trigger(ctx, "test")
	// The inbox is ordered: the release is applied before this answer.
	_, err = c.ListWindows(ctx)
	require.NoError(t, err)

	// The button is still down on the platform side, but the drag is over.
	h.plat.Inject(input.Event{Kind: input.KindPointerMove, Pos: geom.Point{X: 250, Y: 200}})
	h.frameWhere(func(f compositor.Frame) bool { return f.Cursor == geom.Point{X: 250, Y: 200} })

	list, err := c.ListWindows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, [2]int32{120, 110}, [2]int32{list[0].X, list[0].Y})
}

func TestSubscribe(t *testing.T) {
	h := startServer(t, DefaultOptions)
	plain, launcher := h.connect(), h.connect()
	ctx := ctxT(t)

	require.NoError(t, launcher.Subscribe(ctx, protocol.MaskLauncher))

	h.plat.Inject(input.Event{Kind: input.KindKey, Key: input.KeySuper, Pressed: true})
	h.plat.Inject(input.Event{Kind: input.KindKey, Key: input.KeySpace, Rune: ' ', Pressed: true, Mods: input.ModSuper})
	h.plat.Inject(input.Event{Kind: input.KindKey, Key: input.KeySpace, Rune: ' ', Pressed: false, Mods: input.ModSuper})
	h.plat.Inject(input.Event{Kind: input.KindKey, Key: input.KeySuper, Pressed: false})
	waitEvent[*protocol.LauncherRequested](t, launcher, nil)

	// Resize the screen: only the default mask sees it.
	h.plat.Inject(input.Event{Kind: input.KindResize, Size: geom.Point{X: 640, Y: 480}})
	sc := waitEvent[*protocol.ScreenChanged](t, plain, nil)
	assert.Equal(t, [2]int32{640, 480}, [2]int32{sc.W, sc.H})

	// Events are written before later replies, so anything queued for
	// launcher would be in its channel by now.
	_, err := launcher.ListWindows(ctx)
	require.NoError(t, err)
	assert.Empty(t, launcher.Events())

	_, err = plain.ListWindows(ctx)
	require.NoError(t, err)
	for len(plain.Events()) > 0 {
		_, isLauncher := (<-plain.Events()).(*protocol.LauncherRequested)
		assert.False(t, isLauncher, "launcher event without subscription")
	}

	f := h.frameWhere(func(f compositor.Frame) bool { return f.Buffer.Width == 640 })
	assert.Equal(t, 480, f.Buffer.Height)
}

func TestClipboard(t *testing.T) {
	h := startServer(t, DefaultOptions)
	ca, cb := h.connect(), h.connect()
	ctx := ctxT(t)

	a, err := ca.CreateWindow(ctx, geom.R(0, 0, 100, 100), window.FlagBorderless, "A")
	require.NoError(t, err)
	click(h, 50, 50)
	waitEvent(t, ca, func(f *protocol.FocusChanged) bool { return f.WindowID == uint32(a) && f.Focused })

	h.plat.Inject(input.Event{Kind: input.KindKey, Key: input.KeySuper, Pressed: true})
	h.plat.Inject(input.Event{Kind: input.KindKey, Key: input.KeyRune, Rune: 'c', Pressed: true, Mods: input.ModSuper})
	h.plat.Inject(input.Event{Kind: input.KindKey, Key: input.KeyRune, Rune: 'c', Pressed: false, Mods: input.ModSuper})
	h.plat.Inject(input.Event{Kind: input.KindKey, Key: input.KeySuper, Pressed: false})
	req := waitEvent[*protocol.ClipboardRequest](t, ca, nil)
	assert.Equal(t, &protocol.ClipboardRequest{WindowID: uint32(a), Action: protocol.ClipboardCopy}, req)

	data, err := cb.Clipboard(ctx)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, ca.SetClipboard(ctx, []byte("selection")))
	data, err = cb.Clipboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("selection"), data)

	// The clipboard outlives the client that set it.
	require.NoError(t, ca.Close())
	data, err = cb.Clipboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("selection"), data)
}

func TestCursorVisibility(t *testing.T) {
	h := startServer(t, DefaultOptions)
	c := h.connect()
	ctx := ctxT(t)

	id, err := c.CreateWindow(ctx, geom.R(0, 0, 100, 100), window.FlagBorderless, "game")
	require.NoError(t, err)
	fill(t, c, id, 100, 100, red)
	require.NoError(t, c.SetCursorVisible(ctx, id, false))

	// (51,52) is inside the arrow fill when the pointer is at (50,50).
	h.plat.Inject(input.Event{Kind: input.KindPointerMove, Pos: geom.Point{X: 50, Y: 50}})
	h.frameWhere(func(f compositor.Frame) bool { return f.Cursor == geom.Point{X: 50, Y: 50} && pixelIs(51, 52, red)(f) })

	require.NoError(t, c.SetCursorVisible(ctx, id, true))
	h.frameWhere(pixelIs(51, 52, compositor.DefaultTheme.Cursor))
}

// spam attaches a raw client that sends CreateWindow commands and never
// reads a reply. The returned channel closes when Attach returns.
func spam(t *testing.T, h *harness, n int) <-chan struct{} {
	t.Helper()
	a, b := net.Pipe()
	attached := make(chan struct{})
	go func() {
		defer close(attached)
		h.srv.Attach(context.Background(), b, "pipe")
		_ = b.Close()
	}()
	t.Cleanup(func() { _ = a.Close() })

	for i := range n {
		cmd := &protocol.CreateWindow{X: int32(10 * i), Y: 40, W: 10, H: 10, Title: "spam"}
		if err := protocol.WriteFrame(a, uint32(i+1), cmd); err != nil {
			// The server hung up on us.
			break
		}
	}
	return attached
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h := startServer(t, Options{MaxQueuedEvents: 2})
	observer := h.connect()
	ctx := ctxT(t)

	attached := spam(t, h, 6)

	list, err := observer.ListWindows(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	select {
	case <-attached:
	case <-time.After(2 * time.Second):
		t.Fatal("dropped client still attached")
	}
}

func TestDroppedClientFreesSlot(t *testing.T) {
	h := startServer(t, Options{MaxClients: 1, MaxQueuedEvents: 2})

	select {
	case <-spam(t, h, 6):
	case <-time.After(2 * time.Second):
		t.Fatal("dropped client still attached")
	}

	c := h.connect()
	list, err := c.ListWindows(ctxT(t))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConnectionLimit(t *testing.T) {
	h := startServer(t, Options{MaxClients: 1})
	first := h.connect()
	ctx := ctxT(t)
	_, err := first.ListWindows(ctx)
	require.NoError(t, err)

	second := h.connect()
	select {
	case <-second.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("second client not refused")
	}
	assert.ErrorIs(t, second.Err(), registry.ErrResourceExhausted)

	_, err = first.ListWindows(ctx)
	assert.NoError(t, err)
}

func TestNonCommandIsProtocolError(t *testing.T) {
	h := startServer(t, DefaultOptions)
	c := h.connect()

	_, err := c.Do(ctxT(t), &protocol.Closed{WindowID: 1})
	assert.ErrorIs(t, err, protocol.ErrProtocol)
	<-c.Done()
	assert.ErrorIs(t, c.Err(), protocol.ErrProtocol)
}

func TestQuitStopsServer(t *testing.T) {
	h := startServer(t, DefaultOptions)
	c := h.connect()
	_, err := c.CreateWindow(ctxT(t), geom.R(0, 0, 10, 10), 0, "w")
	require.NoError(t, err)

	h.plat.Inject(input.Event{Kind: input.KindQuit})
	assert.NoError(t, h.wait())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not disconnected on shutdown")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig
	opts, err := OptionsFromConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.MaxClients, opts.MaxClients)
	assert.Equal(t, input.ModSuper, opts.Modifier)

	cfg.Theme.Background = "#102030"
	opts, err = OptionsFromConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, pixbuf.RGB(0x10, 0x20, 0x30), opts.Theme.Background)

	cfg.Theme.Border = "not-a-color"
	_, err = OptionsFromConfig(&cfg)
	assert.ErrorContains(t, err, "theme.border")

	cfg = config.DefaultConfig
	cfg.WM.Modifier = "hyper"
	_, err = OptionsFromConfig(&cfg)
	assert.Error(t, err)
}
