// Package network provides the transports clients reach the display
// server over. Every transport hands each accepted client to a Handler as
// a plain byte stream; framing and protocol live above it.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bnema/orbital/internal/logger"
)

// Handler serves one client stream and returns when the client is done.
// The transport closes conn afterwards.
type Handler func(ctx context.Context, conn io.ReadWriteCloser, remote string)

// Listener accepts clients until its context ends or it is closed.
type Listener interface {
	Serve(ctx context.Context, h Handler) error
	Addr() string
	Close() error
}

// SocketListener accepts clients on a unix or tcp socket.
type SocketListener struct {
	network  string
	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Listen opens a socket listener. For unix sockets a stale socket file
// left by a dead server is removed first.
func Listen(network, address string) (*SocketListener, error) {
	if network == "unix" {
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", network, address, err)
	}
	if network == "unix" {
		if err := os.Chmod(address, 0600); err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("failed to restrict socket permissions: %w", err)
		}
	}
	return &SocketListener{
		network:  network,
		listener: ln,
		conns:    make(map[net.Conn]struct{}),
		stop:     make(chan struct{}),
	}, nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	if c, err := net.DialTimeout("unix", path, 200*time.Millisecond); err == nil {
		_ = c.Close()
		return fmt.Errorf("another server is listening on %s", path)
	}
	logger.Debugf("Removing stale socket %s", path)
	return os.Remove(path)
}

// Addr returns the listening address.
func (l *SocketListener) Addr() string {
	return l.listener.Addr().String()
}

// Serve accepts clients and runs h for each in its own goroutine. It
// returns nil once the listener is closed or ctx ends, after every handler
// has returned.
func (l *SocketListener) Serve(ctx context.Context, h Handler) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.stop:
		}
	}()

	defer l.wg.Wait()
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.stop:
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		l.mu.Lock()
		l.conns[conn] = struct{}{}
		l.mu.Unlock()

		remote := conn.RemoteAddr().String()
		if remote == "" || remote == "@" {
			remote = l.network
		}
		logger.Debugf("Client connected on %s addr=%s", l.network, remote)

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() {
				l.mu.Lock()
				delete(l.conns, conn)
				l.mu.Unlock()
				_ = conn.Close()
				logger.Debugf("Client disconnected addr=%s", remote)
			}()
			h(ctx, conn, remote)
		}()
	}
}

// Close stops accepting, closes every open client stream and removes the
// unix socket file.
func (l *SocketListener) Close() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stop)
		err = l.listener.Close()

		l.mu.Lock()
		for c := range l.conns {
			_ = c.Close()
		}
		l.mu.Unlock()
	})
	return err
}
