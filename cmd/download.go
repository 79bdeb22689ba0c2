// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/molecula/nvdstore/ctl"
)

func newDownloadCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewDownloadCommand(stdin, stdout, stderr)
	ccmd := &cobra.Command{
		Use:   "download",
		Short: "Download NVD feeds",
		Long: `
Downloads the configured NVD feeds into the local data directory,
skipping feeds whose local copies are already current.
`,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Run(context.Background())
		},
	}

	addConfigFlags(ccmd.Flags(), cmd.Config)
	return ccmd
}
