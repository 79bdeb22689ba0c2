// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/molecula/nvdstore/ctl"
)

func newConfigCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewConfigCommand(stdin, stdout, stderr)
	ccmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Print the effective configuration",
		Long: `generate-config prints the configuration to stdout: the defaults, or
the defaults merged with the file named by --config.
`,
		// This command carries none of the operational flags the root's
		// viper layering validates config files against; it reads the
		// file itself in Run.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(c *cobra.Command, args []string) error {
			cmd.Path, _ = c.Flags().GetString("config")
			return cmd.Run(context.Background())
		},
	}
	return ccmd
}
