// File: cmd/hioload-nio/config.go
// Author: momentics <momentics@gmail.com>
//
// config subcommand: prints the effective configuration as TOML.

package main

import (
	"github.com/spf13/cobra"

	"github.com/momentics/hioload-nio/control"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return control.WriteConfig(cmd.OutOrStdout(), store.GetSnapshot())
	},
}
