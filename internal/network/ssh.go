package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	gossh "golang.org/x/crypto/ssh"

	"github.com/bnema/orbital/internal/config"
	"github.com/bnema/orbital/internal/logger"
)

// SSHListener accepts remote clients over SSH. Each session's channel is
// one client stream; no pty or shell is involved.
type SSHListener struct {
	address     string
	hostKeyPath string
	listener    net.Listener
	sshServer   *ssh.Server

	mu       sync.Mutex
	sessions map[string]ssh.Session // sessionID -> session

	stop     chan struct{}
	stopOnce sync.Once

	// OnAuthRequest is asked about keys that are not whitelisted when
	// whitelist-only mode is on. Approved keys are added to the whitelist.
	OnAuthRequest func(addr, publicKey, fingerprint string) bool
}

// ListenSSH binds an SSH listener on address. The host key is created at
// hostKeyPath if it does not exist.
func ListenSSH(address, hostKeyPath string) (*SSHListener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return &SSHListener{
		address:     address,
		hostKeyPath: hostKeyPath,
		listener:    ln,
		sessions:    make(map[string]ssh.Session),
		stop:        make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *SSHListener) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the SSH server until ctx ends or Close is called.
func (s *SSHListener) Serve(ctx context.Context, h Handler) error {
	server, err := wish.NewServer(
		wish.WithAddress(s.address),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			s.sessionHandler(ctx, h),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		_ = s.listener.Close()
		return fmt.Errorf("failed to create SSH server: %w", err)
	}

	s.mu.Lock()
	s.sshServer = server
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.stop:
		}
	}()

	logger.Infof("SSH listener on %s", s.Addr())
	if err := server.Serve(s.listener); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		select {
		case <-s.stop:
			return nil
		default:
		}
		return fmt.Errorf("SSH server error: %w", err)
	}
	return nil
}

// Close shuts the server down and closes every active session.
func (s *SSHListener) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)

		s.mu.Lock()
		server := s.sshServer
		for _, sess := range s.sessions {
			_ = sess.Close()
		}
		s.sessions = make(map[string]ssh.Session)
		s.mu.Unlock()

		if server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		} else {
			_ = s.listener.Close()
		}
	})
	return nil
}

// Sessions returns the number of active sessions.
func (s *SSHListener) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// publicKeyAuth handles SSH public key authentication
func (s *SSHListener) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	var goKey gossh.PublicKey
	if wishKey, ok := key.(gossh.PublicKey); ok {
		goKey = wishKey
	} else {
		parsedKey, err := gossh.ParsePublicKey(key.Marshal())
		if err != nil {
			logger.Errorf("Failed to parse public key: %v", err)
			return false
		}
		goKey = parsedKey
	}

	fingerprint := gossh.FingerprintSHA256(goKey)
	addr := ctx.RemoteAddr().String()

	logger.Debugf("SSH authentication attempt addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)

	if config.IsSSHKeyWhitelisted(fingerprint) {
		return true
	}

	if !config.Get().SSH.WhitelistOnly {
		logger.Debug("Accepting SSH key (whitelist-only mode disabled)", "key", fingerprint)
		return true
	}

	if s.OnAuthRequest != nil {
		if s.OnAuthRequest(addr, string(gossh.MarshalAuthorizedKey(goKey)), fingerprint) {
			if err := config.AddSSHKeyToWhitelist(fingerprint); err != nil {
				logger.Errorf("Failed to add key to whitelist: %v", err)
			}
			logger.Info("SSH key approved", "key", fingerprint, "addr", addr)
			return true
		}
	}

	logger.Warn("SSH key denied", "key", fingerprint, "addr", addr)
	return false
}

// loggingMiddleware logs session start and end
func (s *SSHListener) loggingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			logger.Debugf("SSH session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			h(sess)
			logger.Debugf("SSH session ended: addr=%s", sess.RemoteAddr())
		}
	}
}

// sessionHandler hands each session to h as a client stream
func (s *SSHListener) sessionHandler(ctx context.Context, h Handler) wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			id := sess.Context().SessionID()
			s.mu.Lock()
			select {
			case <-s.stop:
				s.mu.Unlock()
				_ = sess.Close()
				return
			default:
			}
			s.sessions[id] = sess
			s.mu.Unlock()

			defer func() {
				s.mu.Lock()
				delete(s.sessions, id)
				s.mu.Unlock()
				_ = sess.Exit(0)
				_ = sess.Close()
			}()

			remote := "ssh:" + sess.RemoteAddr().String()
			if key := sess.PublicKey(); key != nil {
				remote += " " + gossh.FingerprintSHA256(key)
			}
			h(ctx, sess, remote)
			next(sess)
		}
	}
}
