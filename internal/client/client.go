// Package client is the Go client library for the orbital protocol. A
// Client multiplexes concurrent commands over one stream, matching replies
// by serial, and hands pushed events to the caller on a channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/protocol"
	"github.com/bnema/orbital/internal/window"
)

// ErrClosed is returned for commands on a closed client.
var ErrClosed = errors.New("client closed")

// EventBuffer is the number of pushed events kept for the caller before
// new ones are dropped.
const EventBuffer = 1024

// Client is a connection to a display server.
type Client struct {
	rwc io.ReadWriteCloser

	wmu    sync.Mutex
	serial atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]chan protocol.Message
	err     error

	events    chan protocol.Message
	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// New runs the protocol over an established stream.
func New(rwc io.ReadWriteCloser) *Client {
	c := &Client{
		rwc:     rwc,
		pending: make(map[uint32]chan protocol.Message),
		events:  make(chan protocol.Message, EventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Dial connects over a unix or tcp socket.
func Dial(network, address string) (*Client, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return New(conn), nil
}

// Events delivers pushed events. It is closed when the connection ends.
// Events arriving while the channel is full are dropped.
func (c *Client) Events() <-chan protocol.Message { return c.events }

// Dropped returns the number of events lost to a full Events channel.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil while it is up.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.rwc.Close()
	})
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)
	var err, fault error
	for {
		var serial uint32
		var msg protocol.Message
		serial, msg, err = protocol.ReadFrame(c.rwc, 0)
		if err != nil {
			break
		}
		if serial == 0 {
			if r, ok := msg.(*protocol.Reply); ok {
				// Sent right before the server drops us.
				err = r.Err()
				break
			}
			select {
			case c.events <- msg:
			default:
				c.dropped.Add(1)
			}
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[serial]
		delete(c.pending, serial)
		c.mu.Unlock()
		if r, isReply := msg.(*protocol.Reply); isReply && r.Status == protocol.StatusProtocolError {
			// The server hangs up after this one.
			fault = r.Err()
		}
		if !ok {
			logger.Debug("Reply for unknown serial", "serial", serial, "kind", msg.Kind())
			continue
		}
		ch <- msg
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		err = ErrClosed
		if fault != nil {
			err = fault
		}
	}
	c.mu.Lock()
	c.err = err
	for serial, ch := range c.pending {
		close(ch)
		delete(c.pending, serial)
	}
	c.mu.Unlock()
	close(c.done)
}

// Do sends a command and waits for its answer.
func (c *Client) Do(ctx context.Context, cmd protocol.Message) (protocol.Message, error) {
	serial := c.serial.Add(1)
	if serial == 0 {
		serial = c.serial.Add(1)
	}
	ch := make(chan protocol.Message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[serial] = ch
	c.mu.Unlock()

	c.wmu.Lock()
	err := protocol.WriteFrame(c.rwc, serial, cmd)
	c.wmu.Unlock()
	if err != nil {
		c.forget(serial)
		return nil, fmt.Errorf("failed to send %v: %w", cmd.Kind(), err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, c.closedErr()
		}
		if r, ok := msg.(*protocol.Reply); ok {
			return r, r.Err()
		}
		return msg, nil
	case <-ctx.Done():
		c.forget(serial)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(serial uint32) {
	c.mu.Lock()
	delete(c.pending, serial)
	c.mu.Unlock()
}

func (c *Client) closedErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (c *Client) ack(ctx context.Context, cmd protocol.Message) error {
	_, err := c.Do(ctx, cmd)
	return err
}

// CreateWindow asks for a window. A negative x and y let the server place
// it.
func (c *Client) CreateWindow(ctx context.Context, r geom.Rect, flags window.Flags, title string) (window.ID, error) {
	msg, err := c.Do(ctx, &protocol.CreateWindow{
		X: int32(r.X), Y: int32(r.Y), W: int32(r.W), H: int32(r.H),
		Flags: uint32(flags),
		Title: title,
	})
	if err != nil {
		return 0, err
	}
	reply, ok := msg.(*protocol.Reply)
	if !ok {
		return 0, fmt.Errorf("%w: CreateWindow answered with %v", protocol.ErrProtocol, msg.Kind())
	}
	return window.ID(reply.WindowID), nil
}

func (c *Client) ResizeWindow(ctx context.Context, id window.ID, w, h int) error {
	return c.ack(ctx, &protocol.ResizeWindow{ID: uint32(id), W: int32(w), H: int32(h)})
}

func (c *Client) MoveWindow(ctx context.Context, id window.ID, x, y int) error {
	return c.ack(ctx, &protocol.MoveWindow{ID: uint32(id), X: int32(x), Y: int32(y)})
}

func (c *Client) SetTitle(ctx context.Context, id window.ID, title string) error {
	return c.ack(ctx, &protocol.SetTitle{ID: uint32(id), Title: title})
}

// Blit copies pixels (row-major, r.W*r.H of them) into the window at the
// window-local rectangle r.
func (c *Client) Blit(ctx context.Context, id window.ID, r geom.Rect, pixels []pixbuf.Color) error {
	return c.ack(ctx, &protocol.Blit{
		ID: uint32(id),
		X:  int32(r.X), Y: int32(r.Y), W: int32(r.W), H: int32(r.H),
		Pixels: pixels,
	})
}

// BlitBuffer copies a whole buffer to the window origin.
func (c *Client) BlitBuffer(ctx context.Context, id window.ID, b *pixbuf.Buffer) error {
	px := b.Pix
	if b.Stride != b.Width {
		px = make([]pixbuf.Color, 0, b.Width*b.Height)
		for y := 0; y < b.Height; y++ {
			px = append(px, b.Pix[y*b.Stride:y*b.Stride+b.Width]...)
		}
	}
	return c.Blit(ctx, id, b.Rect(), px)
}

func (c *Client) DestroyWindow(ctx context.Context, id window.ID) error {
	return c.ack(ctx, &protocol.DestroyWindow{ID: uint32(id)})
}

// Subscribe replaces the set of pushed events this connection receives.
func (c *Client) Subscribe(ctx context.Context, mask protocol.EventMask) error {
	return c.ack(ctx, &protocol.Subscribe{Mask: mask})
}

func (c *Client) SetFlags(ctx context.Context, id window.ID, set, clear window.Flags) error {
	return c.ack(ctx, &protocol.SetFlags{ID: uint32(id), Set: uint32(set), Clear: uint32(clear)})
}

// SetCursorVisible shows or hides the cursor while it is over the window
// content.
func (c *Client) SetCursorVisible(ctx context.Context, id window.ID, visible bool) error {
	if visible {
		return c.SetFlags(ctx, id, 0, window.FlagHideCursor)
	}
	return c.SetFlags(ctx, id, window.FlagHideCursor, 0)
}

// SetClipboard replaces the clipboard shared by every client.
func (c *Client) SetClipboard(ctx context.Context, data []byte) error {
	return c.ack(ctx, &protocol.SetClipboard{Data: data})
}

// Clipboard returns the current clipboard content.
func (c *Client) Clipboard(ctx context.Context) ([]byte, error) {
	msg, err := c.Do(ctx, &protocol.GetClipboard{})
	if err != nil {
		return nil, err
	}
	clip, ok := msg.(*protocol.Clipboard)
	if !ok {
		return nil, fmt.Errorf("%w: GetClipboard answered with %v", protocol.ErrProtocol, msg.Kind())
	}
	return clip.Data, nil
}

// ListWindows returns every window on the server, front to back.
func (c *Client) ListWindows(ctx context.Context) ([]protocol.WindowInfo, error) {
	msg, err := c.Do(ctx, &protocol.ListWindows{})
	if err != nil {
		return nil, err
	}
	list, ok := msg.(*protocol.WindowList)
	if !ok {
		return nil, fmt.Errorf("%w: ListWindows answered with %v", protocol.ErrProtocol, msg.Kind())
	}
	return list.Windows, nil
}
