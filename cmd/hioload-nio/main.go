// File: cmd/hioload-nio/main.go
// Author: momentics <momentics@gmail.com>
//
// Command-line driver for the channel and selector core.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-nio/control"
)

var (
	configPath string
	logLevel   string
	store      *control.ConfigStore
)

var rootCmd = &cobra.Command{
	Use:           "hioload-nio",
	Short:         "Interruptible channels and readiness selectors",
	Long:          `hioload-nio exercises the interruptible channel, registration and selector core.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := control.DefaultConfig()
		if configPath != "" {
			loaded, err := control.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := control.ConfigureLogging(cfg.Log); err != nil {
			return err
		}
		store = control.NewConfigStore(cfg)
		store.OnReload(func(c control.Config) {
			if err := control.ConfigureLogging(c.Log); err != nil {
				control.Component("cli").WithError(err).Warn("reloaded log settings rejected")
			}
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		control.Component("cli").WithError(err).Error("command failed")
		os.Exit(1)
	}
}
