package server

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/protocol"
	"github.com/bnema/orbital/internal/registry"
	"github.com/bnema/orbital/internal/window"
	"github.com/bnema/orbital/internal/wm"
)

func (s *Server) join(c *conn) {
	s.conns[c.id] = c
	logger.Info("Client connected", "client", c.id, "remote", c.remote)
}

// drop tears a connection down: its windows go away in one step, anything
// still queued for it is flushed and the stream is closed.
func (s *Server) drop(c *conn, reason string) {
	if s.conns[c.id] != c {
		return
	}
	delete(s.conns, c.id)
	ids := s.wm.DestroyOwned(c.id)
	c.shutdown(closeGrace)
	logger.Info("Client disconnected", "client", c.id, "remote", c.remote, "reason", reason, "windows", len(ids))
}

func (s *Server) dropAll(reason string) {
	for _, id := range slices.Sorted(maps.Keys(s.conns)) {
		s.drop(s.conns[id], reason)
	}
}

// fault answers a malformed command with StatusProtocolError and drops the
// connection.
func (s *Server) fault(c *conn, serial uint32, err error) {
	logger.Warn("Protocol error, dropping client", "client", c.id, "remote", c.remote, "error", err)
	_ = c.out.push(serial, protocol.ReplyTo(0, err))
	s.drop(c, "protocol error")
}

// reply queues a message for c, dropping the connection if its queue is
// full.
func (s *Server) reply(c *conn, serial uint32, msg protocol.Message) {
	if err := c.out.push(serial, msg); errors.Is(err, errQueueFull) {
		logger.Warn("Client too slow, dropping", "client", c.id, "queued", c.out.len())
		s.drop(c, "slow consumer")
		// Nothing queued will reach a client that does not read.
		c.closeStream()
	}
}

// deliver routes a manager event to its recipient, or to every connection
// for broadcasts, honoring each connection's subscription mask.
func (s *Server) deliver(ev wm.Event) {
	if ev.Client == wm.Broadcast {
		for _, id := range slices.Sorted(maps.Keys(s.conns)) {
			s.deliverTo(s.conns[id], ev)
		}
		return
	}
	if c, ok := s.conns[ev.Client]; ok {
		s.deliverTo(c, ev)
	}
}

func (s *Server) deliverTo(c *conn, ev wm.Event) {
	if c == nil {
		return
	}
	msg := eventMessage(ev)
	if msg == nil || c.mask&protocol.MaskFor(msg.Kind()) == 0 {
		return
	}
	s.reply(c, 0, msg)
}

// handle applies one command and answers it.
func (s *Server) handle(c *conn, serial uint32, msg protocol.Message) {
	resp, err := s.dispatch(c, msg)
	if errors.Is(err, protocol.ErrProtocol) {
		s.fault(c, serial, err)
		return
	}
	if err != nil {
		logger.Debug("Command failed", "client", c.id, "command", msg.Kind(), "error", err)
	}
	if resp == nil {
		resp = protocol.ReplyTo(0, err)
	}
	s.reply(c, serial, resp)
}

func (s *Server) dispatch(c *conn, msg protocol.Message) (protocol.Message, error) {
	switch m := msg.(type) {
	case *protocol.CreateWindow:
		id, err := s.wm.CreateWindow(registry.Spec{
			Owner: c.id,
			Rect:  geom.R(int(m.X), int(m.Y), int(m.W), int(m.H)),
			Flags: window.Flags(m.Flags),
			Title: m.Title,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Window created", "id", id, "client", c.id, "title", m.Title)
		return protocol.ReplyTo(uint32(id), nil), nil

	case *protocol.ResizeWindow:
		id, err := s.owned(c, m.ID)
		if err != nil {
			return nil, err
		}
		return nil, s.wm.ResizeWindow(id, int(m.W), int(m.H))

	case *protocol.MoveWindow:
		id, err := s.owned(c, m.ID)
		if err != nil {
			return nil, err
		}
		return nil, s.wm.MoveWindow(id, int(m.X), int(m.Y))

	case *protocol.SetTitle:
		id, err := s.owned(c, m.ID)
		if err != nil {
			return nil, err
		}
		return nil, s.wm.SetTitle(id, m.Title)

	case *protocol.Blit:
		id, err := s.owned(c, m.ID)
		if err != nil {
			return nil, err
		}
		err = s.reg.Blit(id, geom.R(int(m.X), int(m.Y), int(m.W), int(m.H)), m.Pixels)
		if errors.Is(err, registry.ErrOutOfBounds) {
			return nil, fmt.Errorf("%w: %w", protocol.ErrProtocol, err)
		}
		return nil, err

	case *protocol.DestroyWindow:
		id, err := s.owned(c, m.ID)
		if err != nil {
			return nil, err
		}
		if err := s.wm.DestroyWindow(id); err != nil {
			return nil, err
		}
		logger.Info("Window destroyed", "id", id, "client", c.id)
		return nil, nil

	case *protocol.Subscribe:
		c.mask = m.Mask
		return nil, nil

	case *protocol.SetFlags:
		id, err := s.owned(c, m.ID)
		if err != nil {
			return nil, err
		}
		set, clear := window.Flags(m.Set), window.Flags(m.Clear)
		if (set|clear)&^window.AllFlags != 0 {
			return nil, fmt.Errorf("%w: flags %#x", registry.ErrInvalid, m.Set|m.Clear)
		}
		return nil, s.wm.SetFlags(id, set, clear)

	case *protocol.ListWindows:
		infos := s.reg.Windows()
		list := &protocol.WindowList{Windows: make([]protocol.WindowInfo, 0, len(infos))}
		for _, w := range infos {
			list.Windows = append(list.Windows, windowInfo(w))
		}
		return list, nil

	case *protocol.SetClipboard:
		s.clipboard = m.Data
		logger.Debug("Clipboard set", "client", c.id, "bytes", len(m.Data))
		return nil, nil

	case *protocol.GetClipboard:
		return &protocol.Clipboard{Data: s.clipboard}, nil
	}
	return nil, fmt.Errorf("%w: unexpected %v", protocol.ErrProtocol, msg.Kind())
}

// owned checks that a window exists and belongs to c. Windows of other
// clients get the very error a missing id gets, so replies do not reveal
// which ids exist.
func (s *Server) owned(c *conn, raw uint32) (window.ID, error) {
	id := window.ID(raw)
	w, err := s.reg.Get(id)
	if err != nil {
		return 0, err
	}
	if w.Owner != c.id {
		logger.Debug("Command on a foreign window", "client", c.id, "id", id, "owner", w.Owner)
		return 0, fmt.Errorf("%w: %d", registry.ErrNotFound, id)
	}
	return id, nil
}
