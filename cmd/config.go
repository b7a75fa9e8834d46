package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/orbital/internal/config"
	"github.com/bnema/orbital/internal/logger"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage orbital configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Server]")
		logger.Infof("  Socket: %s", cfg.Server.SocketPath)
		logger.Infof("  Max Clients: %d", cfg.Server.MaxClients)
		logger.Infof("  Max Windows: %d", cfg.Server.MaxWindows)
		logger.Infof("  Max Window Dimension: %d", cfg.Server.MaxWindowDimension)
		logger.Infof("  Max Window Pixels: %d", cfg.Server.MaxWindowPixels)
		logger.Infof("  Max Frame Bytes: %d", cfg.Server.MaxFrameBytes)
		logger.Infof("  Max Queued Events: %d", cfg.Server.MaxQueuedEvents)
		logger.Infof("  Frame Rate: %d", cfg.Server.FrameRate)

		logger.Info("\n[SSH]")
		logger.Infof("  Enabled: %v", cfg.SSH.Enabled)
		logger.Infof("  Listen: %s:%d", cfg.SSH.BindAddress, cfg.SSH.Port)
		logger.Infof("  Host Key: %s", cfg.SSH.HostKeyPath)
		logger.Infof("  Whitelist Only: %v", cfg.SSH.WhitelistOnly)
		for _, fp := range cfg.SSH.Whitelist {
			logger.Infof("    - %s", fp)
		}

		logger.Info("\n[Display]")
		logger.Infof("  Platform: %s", cfg.Display.Platform)
		logger.Infof("  Size: %dx%d", cfg.Display.Width, cfg.Display.Height)
		if cfg.Display.SnapshotDir != "" {
			logger.Infof("  Snapshots: %s", cfg.Display.SnapshotDir)
		}

		logger.Info("\n[Theme]")
		logger.Infof("  Background: %s", cfg.Theme.Background)
		logger.Infof("  Bar: %s / %s", cfg.Theme.Bar, cfg.Theme.BarHighlight)
		logger.Infof("  Text: %s / %s", cfg.Theme.Text, cfg.Theme.TextHighlight)
		logger.Infof("  Border: %s", cfg.Theme.Border)

		logger.Info("\n[WM]")
		logger.Infof("  Modifier: %s", cfg.WM.Modifier)
		logger.Infof("  Grid: %d", cfg.WM.GridSize)
		logger.Infof("  Scale: %d", cfg.WM.Scale)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long:  `Write a configuration file. Without --yes the main settings are asked for interactively.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		yes, _ := cmd.Flags().GetBool("yes")

		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil && !force {
			if yes {
				logger.Infof("Configuration file already exists at: %s", configPath)
				logger.Info("Use --force to overwrite")
				return nil
			}
			overwrite := false
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title("Overwrite existing configuration?").
						Description(configPath).
						Value(&overwrite),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}
			if !overwrite {
				return nil
			}
		}

		if !yes {
			if err := askConfig(); err != nil {
				return err
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		logger.Info("\nYou can now:")
		logger.Info("  - Edit the configuration file directly")
		logger.Info("  - Use 'orbital config show' to view current settings")
		logger.Info("  - Start the server with 'orbital server'")
		return nil
	},
}

// askConfig prompts for the settings people change most and stores them in
// viper for Save.
func askConfig() error {
	cfg := config.Get()
	platformKind := cfg.Display.Platform
	modifier := cfg.WM.Modifier
	sshEnabled := cfg.SSH.Enabled

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Platform").
				Description("Where the server presents its frames").
				Options(
					huh.NewOption("Terminal", "terminal"),
					huh.NewOption("Headless (no output, PNG snapshots)", "headless"),
				).
				Value(&platformKind),
			huh.NewSelect[string]().
				Title("Window manager modifier").
				Options(huh.NewOptions("super", "alt", "ctrl")...).
				Value(&modifier),
			huh.NewConfirm().
				Title("Accept clients over SSH?").
				Value(&sshEnabled),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	viper.Set("display.platform", platformKind)
	viper.Set("wm.modifier", modifier)
	viper.Set("ssh.enabled", sshEnabled)
	cfg.Display.Platform = platformKind
	cfg.WM.Modifier = modifier
	cfg.SSH.Enabled = sshEnabled
	return nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
	configInitCmd.Flags().BoolP("yes", "y", false, "Write the defaults without asking")
}
