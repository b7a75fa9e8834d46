package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/orbital/internal/config"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/network"
	"github.com/bnema/orbital/internal/platform"
	"github.com/bnema/orbital/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the display server",
	Long: `Run the display server. Clients connect on the unix socket and, when
enabled, over SSH. With the terminal platform the server takes over the
terminal and logs go to a file next to the socket.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().String("socket", "", "Unix socket path")
	serverCmd.Flags().String("platform", "", "Platform: terminal or headless")
	serverCmd.Flags().Int("width", 0, "Output width in pixels")
	serverCmd.Flags().Int("height", 0, "Output height in pixels")
	serverCmd.Flags().String("snapshots", "", "Headless only: write every frame as PNG into this directory")
	serverCmd.Flags().Bool("ssh", false, "Accept clients over SSH")
	serverCmd.Flags().Int("ssh-port", 0, "SSH port")

	// Bind flags to viper
	_ = viper.BindPFlag("server.socket_path", serverCmd.Flags().Lookup("socket"))
	_ = viper.BindPFlag("display.platform", serverCmd.Flags().Lookup("platform"))
	_ = viper.BindPFlag("display.width", serverCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("display.height", serverCmd.Flags().Lookup("height"))
	_ = viper.BindPFlag("display.snapshot_dir", serverCmd.Flags().Lookup("snapshots"))
	_ = viper.BindPFlag("ssh.enabled", serverCmd.Flags().Lookup("ssh"))
	_ = viper.BindPFlag("ssh.port", serverCmd.Flags().Lookup("ssh-port"))
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	opts, err := server.OptionsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Display.Platform == "terminal" {
		logPath := filepath.Join(filepath.Dir(cfg.Server.SocketPath), "orbital.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		logger.Infof("Logging to %s", logPath)
		logger.SetOutput(logFile)
		defer logger.SetOutput(os.Stderr)
	}

	plat, err := platform.New(platform.Options{
		Kind:        cfg.Display.Platform,
		Width:       cfg.Display.Width,
		Height:      cfg.Display.Height,
		SnapshotDir: cfg.Display.SnapshotDir,
	})
	if err != nil {
		return fmt.Errorf("failed to start platform: %w", err)
	}
	defer plat.Close()

	sock, err := network.Listen("unix", cfg.Server.SocketPath)
	if err != nil {
		return err
	}
	defer sock.Close()
	listeners := []network.Listener{sock}

	if cfg.SSH.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.SSH.BindAddress, cfg.SSH.Port)
		sshl, err := network.ListenSSH(addr, cfg.SSH.HostKeyPath)
		if err != nil {
			return err
		}
		defer sshl.Close()
		if cfg.Display.Platform != "terminal" && interactive() {
			sshl.OnAuthRequest = approveKey()
		}
		listeners = append(listeners, sshl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, h := plat.Size()
	logger.Info("Starting display server", "platform", cfg.Display.Platform, "width", w, "height", h)

	srv := server.New(plat, opts)
	err = srv.Run(ctx, listeners...)
	if server.IsInvariantViolation(err) {
		// Give the terminal back before dying.
		_ = plat.Close()
		logger.SetOutput(os.Stderr)
		logger.Fatal("Server state corrupted", "error", err)
	}
	if err != nil {
		return err
	}
	logger.Info("Display server stopped")
	return nil
}

func interactive() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// approveKey asks on the controlling terminal whether an unknown SSH key
// may connect. Prompts are shown one at a time and time out after 30s.
func approveKey() func(addr, publicKey, fingerprint string) bool {
	var mu sync.Mutex
	return func(addr, publicKey, fingerprint string) bool {
		mu.Lock()
		defer mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		approved := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Allow %s to connect?", addr)).
					Description(fingerprint).
					Affirmative("Allow").
					Negative("Deny").
					Value(&approved),
			),
		)
		if err := form.RunWithContext(ctx); err != nil {
			logger.Warn("SSH key approval aborted", "addr", addr, "error", err)
			return false
		}
		return approved
	}
}
