package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/orbital/internal/config"
	"github.com/bnema/orbital/internal/logger"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "orbital",
		Short: "Orbital - a small windowing display server",
		Long: `Orbital is a display server with a built-in window manager and compositor.
Clients connect over a unix socket or SSH, create windows, draw into them
and receive input. The server presents frames on a terminal or headless.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				config.SetConfigPath(configPath)
			}
			if err := config.Init(); err != nil {
				return err
			}
			if level := config.Get().Logging.Level; level != "" {
				if err := logger.SetLevel(level); err != nil {
					return err
				}
			}
			return nil
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
