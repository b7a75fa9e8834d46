// Package server runs the display server: one coordinating goroutine owns
// the window registry, the window manager and the compositor, and applies
// platform input, client commands and connection teardown strictly one at
// a time. Connection goroutines only decode frames and enqueue them.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bnema/orbital/internal/compositor"
	"github.com/bnema/orbital/internal/config"
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/network"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/platform"
	"github.com/bnema/orbital/internal/protocol"
	"github.com/bnema/orbital/internal/registry"
	"github.com/bnema/orbital/internal/window"
	"github.com/bnema/orbital/internal/wm"
)

// Options configures a Server.
type Options struct {
	MaxClients      int
	MaxFrameBytes   int
	MaxQueuedEvents int
	FrameRate       int
	Limits          registry.Limits
	Theme           compositor.Theme
	Decor           window.Decor
	Modifier        input.Mod
	Grid            int
}

// DefaultOptions mirror the configuration defaults.
var DefaultOptions = Options{
	MaxClients:      64,
	MaxFrameBytes:   64 << 20,
	MaxQueuedEvents: 1024,
	FrameRate:       60,
	Limits:          registry.DefaultLimits,
	Theme:           compositor.DefaultTheme,
	Decor:           window.DefaultDecor,
	Modifier:        input.ModSuper,
	Grid:            wm.DefaultGrid,
}

// OptionsFromConfig builds server options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	mod, err := input.ParseMod(cfg.WM.Modifier)
	if err != nil {
		return Options{}, err
	}
	theme, err := themeFromConfig(cfg.Theme)
	if err != nil {
		return Options{}, err
	}
	return Options{
		MaxClients:      cfg.Server.MaxClients,
		MaxFrameBytes:   cfg.Server.MaxFrameBytes,
		MaxQueuedEvents: cfg.Server.MaxQueuedEvents,
		FrameRate:       cfg.Server.FrameRate,
		Limits: registry.Limits{
			MaxWindows:   cfg.Server.MaxWindows,
			MaxDimension: cfg.Server.MaxWindowDimension,
			MaxPixels:    cfg.Server.MaxWindowPixels,
		},
		Theme:    theme,
		Decor:    window.Decor{Scale: cfg.WM.Scale},
		Modifier: mod,
		Grid:     cfg.WM.GridSize,
	}, nil
}

func themeFromConfig(tc config.ThemeConfig) (compositor.Theme, error) {
	theme := compositor.DefaultTheme
	colors := []struct {
		name  string
		value string
		dst   *pixbuf.Color
	}{
		{"background", tc.Background, &theme.Background},
		{"bar", tc.Bar, &theme.Bar},
		{"bar_highlight", tc.BarHighlight, &theme.BarHighlight},
		{"text", tc.Text, &theme.Text},
		{"text_highlight", tc.TextHighlight, &theme.TextHighlight},
		{"border", tc.Border, &theme.Border},
		{"fallback", tc.Fallback, &theme.Fallback},
		{"cursor", tc.Cursor, &theme.Cursor},
	}
	for _, c := range colors {
		if c.value == "" {
			continue
		}
		v, err := compositor.ParseColor(c.value)
		if err != nil {
			return theme, fmt.Errorf("theme.%s: %w", c.name, err)
		}
		*c.dst = v
	}
	return theme, nil
}

type requestKind int

const (
	reqJoin requestKind = iota
	reqCommand
	reqFault
	reqLeave
	reqRelease
)

// request is the only way connection goroutines reach the coordinator.
// A single channel carries every kind so that a connection's join, its
// commands and its leave are applied in the order they were read.
type request struct {
	kind   requestKind
	conn   *conn
	serial uint32
	msg    protocol.Message
	err    error
	reason string
}

// Server is the display server.
type Server struct {
	opts     Options
	platform platform.Platform

	reg  *registry.Registry
	wm   *wm.Manager
	comp *compositor.Compositor

	// conns is owned by the coordinator.
	conns map[window.ClientID]*conn

	inbox   chan request
	stopped chan struct{}
	nextID  atomic.Uint64
	active  atomic.Int64
	dirty   bool

	// clipboard is shared by every client. Owned by the coordinator.
	clipboard []byte

	emergency *EmergencyRelease
}

// New creates a server presenting on p.
func New(p platform.Platform, opts Options) *Server {
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultOptions.MaxClients
	}
	if opts.MaxQueuedEvents <= 0 {
		opts.MaxQueuedEvents = DefaultOptions.MaxQueuedEvents
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultOptions.FrameRate
	}
	if opts.Theme == (compositor.Theme{}) {
		opts.Theme = DefaultOptions.Theme
	}
	if opts.Modifier == 0 {
		opts.Modifier = DefaultOptions.Modifier
	}

	w, h := p.Size()
	reg := registry.New(opts.Limits, opts.Decor, opts.Theme.Fallback)
	s := &Server{
		opts:     opts,
		platform: p,
		reg:      reg,
		wm: wm.New(reg, wm.Config{
			Screen:   geom.R(0, 0, w, h),
			Grid:     opts.Grid,
			Modifier: opts.Modifier,
		}),
		comp:    compositor.New(w, h, opts.Theme, opts.Decor),
		conns:   make(map[window.ClientID]*conn),
		inbox:   make(chan request, 256),
		stopped: make(chan struct{}),
	}
	s.emergency = NewEmergencyRelease(s)
	reg.Expose(geom.R(0, 0, w, h))
	return s
}

// Run serves clients from every listener and drives the platform until
// ctx ends, the platform asks to quit, or an invariant is violated. Errors
// wrapping registry.ErrInvariantViolation must be treated as fatal.
func (s *Server) Run(ctx context.Context, listeners ...network.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan input.Event, 256)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.platform.Run(gctx, events); err != nil {
			return fmt.Errorf("platform: %w", err)
		}
		return nil
	})
	for _, l := range listeners {
		g.Go(func() error {
			logger.Info("Accepting clients", "addr", l.Addr())
			if err := l.Serve(gctx, s.Attach); err != nil {
				return fmt.Errorf("listener %s: %w", l.Addr(), err)
			}
			return nil
		})
	}
	s.emergency.Start(gctx)
	g.Go(func() error {
		defer cancel()
		defer s.emergency.Stop()
		return s.loop(gctx, events)
	})

	return g.Wait()
}

// loop is the coordinator. Nothing else touches reg, wm or comp.
func (s *Server) loop(ctx context.Context, events <-chan input.Event) error {
	defer close(s.stopped)
	defer s.dropAll("server stopping")

	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FrameRate))
	defer ticker.Stop()

	// First frame.
	if err := s.frame(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-events:
			if ev.Kind == input.KindQuit {
				logger.Info("Platform requested shutdown")
				return nil
			}
			s.handleInput(ev)

		case req := <-s.inbox:
			s.handleRequest(req)

		case <-ticker.C:
			if err := s.frame(); err != nil {
				return err
			}
			continue
		}

		if err := s.afterStep(); err != nil {
			return err
		}
	}
}

func (s *Server) handleInput(ev input.Event) {
	if ev.Kind == input.KindResize {
		if ev.Size.X <= 0 || ev.Size.Y <= 0 {
			return
		}
		s.comp.Resize(ev.Size.X, ev.Size.Y)
	}
	s.emergency.Touch()
	s.wm.HandleInput(ev)
}

func (s *Server) handleRequest(req request) {
	switch req.kind {
	case reqJoin:
		s.join(req.conn)
	case reqRelease:
		if !s.wm.Grabbed() {
			return
		}
		logger.Warn("Releasing pointer grabs", "reason", req.reason)
		s.wm.Release()
	default:
		c, ok := s.conns[req.conn.id]
		if !ok || c != req.conn {
			// Dropped earlier; whatever it still had in flight is moot.
			return
		}
		switch req.kind {
		case reqCommand:
			s.handle(c, req.serial, req.msg)
		case reqFault:
			s.fault(c, req.serial, req.err)
		case reqLeave:
			s.drop(c, req.reason)
		}
	}
}

// afterStep delivers the events produced by the last step and verifies the
// invariants before anything else can happen.
func (s *Server) afterStep() error {
	s.dirty = true
	for {
		evs := s.wm.Drain()
		if len(evs) == 0 {
			break
		}
		for _, ev := range evs {
			s.deliver(ev)
		}
	}
	if err := s.wm.Check(); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	return nil
}

// frame composes and presents if anything changed since the last one.
func (s *Server) frame() error {
	if !s.dirty && s.comp.Frames() > 0 {
		return nil
	}
	s.dirty = false
	f, ok := s.comp.Compose(s.reg, compositor.SceneOf(s.wm))
	if !ok {
		return nil
	}
	if err := s.platform.Present(f); err != nil {
		return fmt.Errorf("present frame %d: %w", f.Seq, err)
	}
	return nil
}

// send hands a request to the coordinator. It returns false once the
// coordinator is gone.
func (s *Server) send(ctx context.Context, req request) bool {
	select {
	case s.inbox <- req:
		return true
	case <-s.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

// enqueue hands a request to the coordinator regardless of the caller's
// context. Final requests of a connection use it so its teardown is never
// lost; it only gives up once the coordinator is gone.
func (s *Server) enqueue(req request) bool {
	select {
	case s.inbox <- req:
		return true
	case <-s.stopped:
		return false
	}
}

// IsInvariantViolation reports whether err returned by Run is fatal.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, registry.ErrInvariantViolation)
}
