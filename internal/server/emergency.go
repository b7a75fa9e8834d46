package server

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bnema/orbital/internal/logger"
)

// DefaultGrabTimeout is how long a gesture or pointer grab may last without
// any platform input before it is released.
const DefaultGrabTimeout = 30 * time.Second

// EmergencyRelease gets the server out of a stuck gesture or pointer grab,
// for instance when the platform lost a button release. A release is
// triggered by SIGUSR1, by creating the trigger file, or by a period of
// input inactivity while something holds the pointer.
type EmergencyRelease struct {
	server       *Server
	grabTimeout  time.Duration
	triggerFile  string
	lastActivity atomic.Int64
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// NewEmergencyRelease creates the release handler of s.
func NewEmergencyRelease(s *Server) *EmergencyRelease {
	er := &EmergencyRelease{
		server:      s,
		grabTimeout: DefaultGrabTimeout,
		triggerFile: defaultTriggerFile(),
		stopChan:    make(chan struct{}),
	}
	er.Touch()
	return er
}

func defaultTriggerFile() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "orbital-release")
}

// Start begins monitoring for release conditions.
func (er *EmergencyRelease) Start(ctx context.Context) {
	go er.handleSignals(ctx)
	go er.monitor(ctx)
	logger.Debug("Emergency release armed", "trigger", er.triggerFile, "timeout", er.grabTimeout)
}

// Stop stops all monitoring.
func (er *EmergencyRelease) Stop() {
	er.stopOnce.Do(func() {
		close(er.stopChan)
	})
}

// Touch records platform input activity.
func (er *EmergencyRelease) Touch() {
	er.lastActivity.Store(time.Now().UnixNano())
}

func (er *EmergencyRelease) idle() time.Duration {
	return time.Since(time.Unix(0, er.lastActivity.Load()))
}

func (er *EmergencyRelease) handleSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			logger.Warn("SIGUSR1 received, releasing pointer")
			er.trigger(ctx, "signal")
		case <-er.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// monitor polls the trigger file and the inactivity timeout.
func (er *EmergencyRelease) monitor(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := os.Stat(er.triggerFile); err == nil {
				logger.Warn("Release file found, releasing pointer", "path", er.triggerFile)
				_ = os.Remove(er.triggerFile)
				er.trigger(ctx, "file")
			}
			if er.grabTimeout > 0 && er.idle() > er.grabTimeout {
				er.Touch()
				er.trigger(ctx, "timeout")
			}
		case <-er.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// trigger asks the coordinator to release. The coordinator ignores it when
// nothing holds the pointer.
func (er *EmergencyRelease) trigger(ctx context.Context, reason string) {
	er.server.send(ctx, request{kind: reqRelease, reason: reason})
}
