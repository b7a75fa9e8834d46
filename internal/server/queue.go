package server

import (
	"errors"
	"sync"

	"github.com/bnema/orbital/internal/protocol"
)

var (
	// errQueueFull means the client is not reading fast enough.
	errQueueFull = errors.New("outbound queue full")
	// errQueueClosed means the connection is going away; the message is
	// discarded.
	errQueueClosed = errors.New("outbound queue closed")
)

type outbound struct {
	serial uint32
	msg    protocol.Message
}

// queue is a connection's bounded outbound message queue. The coordinator
// pushes, the connection's writer drains. Pushed events are merged into
// the newest queued message when both describe the same continuous state
// so that a slow reader sees fewer, fresher events.
type queue struct {
	mu     sync.Mutex
	items  []outbound
	limit  int
	closed bool
	ready  chan struct{}
}

func newQueue(limit int) *queue {
	if limit <= 0 {
		limit = 1
	}
	return &queue{limit: limit, ready: make(chan struct{}, 1)}
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// push appends a message. It fails with errQueueFull when limit messages
// are already pending and errQueueClosed after close.
func (q *queue) push(serial uint32, msg protocol.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	if serial == 0 && len(q.items) > 0 {
		tail := &q.items[len(q.items)-1]
		if tail.serial == 0 && coalesce(tail.msg, msg) {
			return nil
		}
	}
	if len(q.items) >= q.limit {
		return errQueueFull
	}
	q.items = append(q.items, outbound{serial: serial, msg: msg})
	q.signal()
	return nil
}

// close stops further pushes. Messages already queued are still handed to
// the writer.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.signal()
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// wait blocks until messages are pending and takes all of them. It returns
// false once the queue is closed and empty.
func (q *queue) wait() ([]outbound, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			batch := q.items
			q.items = nil
			q.mu.Unlock()
			return batch, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.ready
	}
}

// coalesce merges next into prev when next supersedes it. prev is updated
// in place.
func coalesce(prev, next protocol.Message) bool {
	switch n := next.(type) {
	case *protocol.Input:
		p, ok := prev.(*protocol.Input)
		if !ok || p.WindowID != n.WindowID || p.Type != n.Type || p.Mods != n.Mods {
			return false
		}
		switch n.Type {
		case protocol.InputPointerMove:
			*p = *n
			return true
		case protocol.InputScroll:
			dx, dy := p.DX+n.DX, p.DY+n.DY
			*p = *n
			p.DX, p.DY = dx, dy
			return true
		}
	case *protocol.Resized:
		if p, ok := prev.(*protocol.Resized); ok && p.WindowID == n.WindowID {
			*p = *n
			return true
		}
	case *protocol.Moved:
		if p, ok := prev.(*protocol.Moved); ok && p.WindowID == n.WindowID {
			*p = *n
			return true
		}
	case *protocol.ScreenChanged:
		if p, ok := prev.(*protocol.ScreenChanged); ok {
			*p = *n
			return true
		}
	}
	return false
}
