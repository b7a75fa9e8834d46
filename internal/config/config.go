// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	Display DisplayConfig `mapstructure:"display"`
	Theme   ThemeConfig   `mapstructure:"theme"`
	WM      WMConfig      `mapstructure:"wm"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains the display server limits and local socket
type ServerConfig struct {
	SocketPath         string `mapstructure:"socket_path"`
	MaxClients         int    `mapstructure:"max_clients"`
	MaxWindows         int    `mapstructure:"max_windows"`
	MaxWindowDimension int    `mapstructure:"max_window_dimension"`
	MaxWindowPixels    int    `mapstructure:"max_window_pixels"` // Total pixel budget across all windows
	MaxFrameBytes      int    `mapstructure:"max_frame_bytes"`
	MaxQueuedEvents    int    `mapstructure:"max_queued_events"` // Per connection, overflow drops the client
	FrameRate          int    `mapstructure:"frame_rate"`
}

// SSHConfig contains the remote client listener settings
type SSHConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Port          int      `mapstructure:"port"`
	BindAddress   string   `mapstructure:"bind_address"`
	HostKeyPath   string   `mapstructure:"host_key_path"`
	Whitelist     []string `mapstructure:"whitelist"`      // List of allowed SSH key fingerprints
	WhitelistOnly bool     `mapstructure:"whitelist_only"` // Only allow whitelisted keys
}

// DisplayConfig selects the platform the server presents frames on
type DisplayConfig struct {
	Platform    string `mapstructure:"platform"` // "headless" or "terminal"
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	SnapshotDir string `mapstructure:"snapshot_dir"` // Headless only, empty disables PNG snapshots
}

// ThemeConfig holds decoration colors as #rrggbb or #aarrggbb
type ThemeConfig struct {
	Background    string `mapstructure:"background"`
	Bar           string `mapstructure:"bar"`
	BarHighlight  string `mapstructure:"bar_highlight"`
	Text          string `mapstructure:"text"`
	TextHighlight string `mapstructure:"text_highlight"`
	Border        string `mapstructure:"border"`
	Fallback      string `mapstructure:"fallback"`
	Cursor        string `mapstructure:"cursor"`
}

// WMConfig contains window manager policy settings
type WMConfig struct {
	Modifier string `mapstructure:"modifier"` // super, alt or ctrl
	GridSize int    `mapstructure:"grid_size"`
	Scale    int    `mapstructure:"scale"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"` // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Server: ServerConfig{
			SocketPath:         defaultSocketPath(),
			MaxClients:         64,
			MaxWindows:         256,
			MaxWindowDimension: 8192,
			MaxWindowPixels:    64 << 20,
			MaxFrameBytes:      64 << 20,
			MaxQueuedEvents:    1024,
			FrameRate:          60,
		},
		SSH: SSHConfig{
			Enabled:       false,
			Port:          52600,
			BindAddress:   "0.0.0.0",
			HostKeyPath:   "/etc/orbital/host_key",
			Whitelist:     []string{},
			WhitelistOnly: true,
		},
		Display: DisplayConfig{
			Platform: "terminal",
			Width:    800,
			Height:   600,
		},
		Theme: ThemeConfig{
			Background:    "#1d2025",
			Bar:           "#373b41",
			BarHighlight:  "#527ab8",
			Text:          "#c8c8c8",
			TextHighlight: "#ffffff",
			Border:        "#101010",
			Fallback:      "#2b2b2b",
			Cursor:        "#ffffff",
		},
		WM: WMConfig{
			Modifier: "super",
			GridSize: 16,
			Scale:    1,
		},
		Logging: LoggingConfig{
			Level: "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("orbital")
	viper.SetConfigType("toml")

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		// Add config paths in order of precedence
		viper.AddConfigPath("/etc/orbital")
		if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "orbital"))
		}
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("ORBITAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	return nil
}

// setDefaults registers every key individually so partial files merge
// with the defaults.
func setDefaults() {
	d := DefaultConfig

	viper.SetDefault("server.socket_path", d.Server.SocketPath)
	viper.SetDefault("server.max_clients", d.Server.MaxClients)
	viper.SetDefault("server.max_windows", d.Server.MaxWindows)
	viper.SetDefault("server.max_window_dimension", d.Server.MaxWindowDimension)
	viper.SetDefault("server.max_window_pixels", d.Server.MaxWindowPixels)
	viper.SetDefault("server.max_frame_bytes", d.Server.MaxFrameBytes)
	viper.SetDefault("server.max_queued_events", d.Server.MaxQueuedEvents)
	viper.SetDefault("server.frame_rate", d.Server.FrameRate)

	viper.SetDefault("ssh.enabled", d.SSH.Enabled)
	viper.SetDefault("ssh.port", d.SSH.Port)
	viper.SetDefault("ssh.bind_address", d.SSH.BindAddress)
	viper.SetDefault("ssh.host_key_path", d.SSH.HostKeyPath)
	viper.SetDefault("ssh.whitelist", d.SSH.Whitelist)
	viper.SetDefault("ssh.whitelist_only", d.SSH.WhitelistOnly)

	viper.SetDefault("display.platform", d.Display.Platform)
	viper.SetDefault("display.width", d.Display.Width)
	viper.SetDefault("display.height", d.Display.Height)
	viper.SetDefault("display.snapshot_dir", d.Display.SnapshotDir)

	viper.SetDefault("theme.background", d.Theme.Background)
	viper.SetDefault("theme.bar", d.Theme.Bar)
	viper.SetDefault("theme.bar_highlight", d.Theme.BarHighlight)
	viper.SetDefault("theme.text", d.Theme.Text)
	viper.SetDefault("theme.text_highlight", d.Theme.TextHighlight)
	viper.SetDefault("theme.border", d.Theme.Border)
	viper.SetDefault("theme.fallback", d.Theme.Fallback)
	viper.SetDefault("theme.cursor", d.Theme.Cursor)

	viper.SetDefault("wm.modifier", d.WM.Modifier)
	viper.SetDefault("wm.grid_size", d.WM.GridSize)
	viper.SetDefault("wm.scale", d.WM.Scale)

	viper.SetDefault("logging.level", d.Logging.Level)
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.MaxWindows <= 0:
		return fmt.Errorf("server.max_windows must be positive, got %d", c.Server.MaxWindows)
	case c.Server.MaxWindowDimension <= 0:
		return fmt.Errorf("server.max_window_dimension must be positive, got %d", c.Server.MaxWindowDimension)
	case c.Server.MaxWindowPixels <= 0:
		return fmt.Errorf("server.max_window_pixels must be positive, got %d", c.Server.MaxWindowPixels)
	case c.Server.MaxFrameBytes <= 0:
		return fmt.Errorf("server.max_frame_bytes must be positive, got %d", c.Server.MaxFrameBytes)
	case c.Server.MaxQueuedEvents <= 0:
		return fmt.Errorf("server.max_queued_events must be positive, got %d", c.Server.MaxQueuedEvents)
	case c.Server.FrameRate <= 0 || c.Server.FrameRate > 1000:
		return fmt.Errorf("server.frame_rate must be in 1..1000, got %d", c.Server.FrameRate)
	case c.Display.Width <= 0 || c.Display.Height <= 0:
		return fmt.Errorf("display size must be positive, got %dx%d", c.Display.Width, c.Display.Height)
	case c.Display.Platform != "headless" && c.Display.Platform != "terminal":
		return fmt.Errorf("unknown display.platform %q", c.Display.Platform)
	case c.WM.Scale <= 0:
		return fmt.Errorf("wm.scale must be positive, got %d", c.WM.Scale)
	case c.SSH.Enabled && (c.SSH.Port < 0 || c.SSH.Port > 65535):
		return fmt.Errorf("invalid ssh.port: %d", c.SSH.Port)
	}
	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Fall back to a copy of the defaults if not initialized
		d := DefaultConfig
		d.SSH.Whitelist = slices.Clone(DefaultConfig.SSH.Whitelist)
		cfg = &d
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	if os.Getuid() == 0 {
		return "/etc/orbital/orbital.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/orbital/orbital.toml"
	}

	return filepath.Join(home, ".config", "orbital", "orbital.toml")
}

// AddSSHKeyToWhitelist adds an SSH key fingerprint to the whitelist
func AddSSHKeyToWhitelist(fingerprint string) error {
	c := Get()

	if slices.Contains(c.SSH.Whitelist, fingerprint) {
		return fmt.Errorf("key already whitelisted")
	}

	c.SSH.Whitelist = append(c.SSH.Whitelist, fingerprint)
	viper.Set("ssh.whitelist", c.SSH.Whitelist)
	return Save()
}

// RemoveSSHKeyFromWhitelist removes an SSH key fingerprint from the whitelist
func RemoveSSHKeyFromWhitelist(fingerprint string) error {
	c := Get()

	i := slices.Index(c.SSH.Whitelist, fingerprint)
	if i < 0 {
		return fmt.Errorf("key not found in whitelist")
	}
	c.SSH.Whitelist = slices.Delete(c.SSH.Whitelist, i, i+1)
	viper.Set("ssh.whitelist", c.SSH.Whitelist)
	return Save()
}

// IsSSHKeyWhitelisted checks if an SSH key fingerprint is whitelisted
func IsSSHKeyWhitelisted(fingerprint string) bool {
	return slices.Contains(Get().SSH.Whitelist, fingerprint)
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "orbital.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("orbital-%d.sock", os.Getuid()))
}
