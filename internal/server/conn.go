package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/network"
	"github.com/bnema/orbital/internal/protocol"
	"github.com/bnema/orbital/internal/registry"
	"github.com/bnema/orbital/internal/window"
)

const (
	writeBufferSize = 64 << 10
	writeFlushDelay = 2 * time.Millisecond
	// closeGrace bounds how long a dropped connection's writer may take to
	// flush before the stream is closed under it.
	closeGrace = time.Second
)

// conn is one client connection. Its reader runs in the transport's
// handler goroutine, its writer in a goroutine of its own. Only the
// coordinator touches mask.
type conn struct {
	id     window.ClientID
	remote string
	rwc    io.ReadWriteCloser
	out    *queue
	done   chan struct{}

	closeOnce sync.Once

	mask protocol.EventMask
}

func newConn(id window.ClientID, rwc io.ReadWriteCloser, remote string, limit int) *conn {
	return &conn{
		id:     id,
		remote: remote,
		rwc:    rwc,
		out:    newQueue(limit),
		done:   make(chan struct{}),
		mask:   protocol.DefaultMask,
	}
}

// closeStream closes the transport. A writer blocked on a client that
// stopped reading and a reader waiting for the next frame both fail.
func (c *conn) closeStream() {
	c.closeOnce.Do(func() { _ = c.rwc.Close() })
}

// shutdown stops the queue. The writer flushes what is left and closes
// the stream; if it is still busy after grace the stream is closed under
// it.
func (c *conn) shutdown(grace time.Duration) {
	c.out.close()
	if grace <= 0 {
		c.closeStream()
		return
	}
	go func() {
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-c.done:
		case <-t.C:
			logger.Debug("Client did not drain in time, closing", "client", c.id)
			c.closeStream()
		}
	}()
}

// Attach serves one client stream until it closes or the server stops. It
// is a network.Handler. The coordinator decides when the connection ends;
// Attach returns once the writer is done, which frees the client slot.
func (s *Server) Attach(ctx context.Context, rwc io.ReadWriteCloser, remote string) {
	if s.active.Add(1) > int64(s.opts.MaxClients) {
		s.active.Add(-1)
		logger.Warn("Refusing client, connection limit reached", "remote", remote, "max", s.opts.MaxClients)
		err := fmt.Errorf("%w: connection limit reached", registry.ErrResourceExhausted)
		_ = protocol.WriteFrame(rwc, 0, protocol.ReplyTo(0, err))
		return
	}
	defer s.active.Add(-1)

	c := newConn(window.ClientID(s.nextID.Add(1)), rwc, remote, s.opts.MaxQueuedEvents)
	go c.writeLoop()
	defer func() {
		select {
		case <-c.done:
		case <-s.stopped:
			c.shutdown(closeGrace)
			<-c.done
		}
	}()

	if !s.send(ctx, request{kind: reqJoin, conn: c}) {
		c.shutdown(0)
		return
	}
	s.enqueue(s.readLoop(ctx, c))
}

// readLoop decodes frames and forwards them in order. It stops at the
// first malformed frame or read error and returns the request that ends
// the connection.
func (s *Server) readLoop(ctx context.Context, c *conn) request {
	for {
		serial, msg, err := protocol.ReadFrame(c.rwc, s.opts.MaxFrameBytes)
		switch {
		case err == nil:
			if !msg.Kind().IsCommand() {
				err = fmt.Errorf("%w: %v is not a command", protocol.ErrProtocol, msg.Kind())
				return request{kind: reqFault, conn: c, serial: serial, err: err}
			}
			if !s.send(ctx, request{kind: reqCommand, conn: c, serial: serial, msg: msg}) {
				return request{kind: reqLeave, conn: c, reason: "server stopping"}
			}
		case errors.Is(err, protocol.ErrProtocol):
			return request{kind: reqFault, conn: c, serial: serial, err: err}
		default:
			reason := "disconnected"
			if !errors.Is(err, io.EOF) {
				reason = err.Error()
			}
			return request{kind: reqLeave, conn: c, reason: reason}
		}
	}
}

// writeLoop drains the outbound queue into the stream and closes it when
// the queue is closed and empty. A write error ends the connection; the
// reader then fails and reports the leave.
func (c *conn) writeLoop() {
	defer close(c.done)
	defer c.closeStream()

	bw := network.NewBufferedWriter(c.rwc, writeFlushDelay, writeBufferSize)
	defer bw.Close()

	var frame []byte
	for {
		batch, ok := c.out.wait()
		if !ok {
			return
		}
		for _, o := range batch {
			frame = protocol.AppendFrame(frame[:0], o.serial, o.msg)
			if _, err := bw.Write(frame); err != nil {
				logger.Debug("Client write failed", "client", c.id, "error", err)
				c.out.close()
				return
			}
		}
		if err := bw.Flush(); err != nil {
			logger.Debug("Client flush failed", "client", c.id, "error", err)
			c.out.close()
			return
		}
	}
}
