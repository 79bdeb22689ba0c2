// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/molecula/nvdstore/ctl"
)

func newSampleCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewSampleCommand(stdin, stdout, stderr)
	ccmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a random sample of cached documents",
		Long: `
Draws a random sample from the locally cached feeds and prints a
human-readable rendering of each sampled CVE.
`,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Run(context.Background())
		},
	}

	flags := ccmd.Flags()
	flags.IntVarP(&cmd.Size, "size", "n", cmd.Size, "number of documents to sample")
	addConfigFlags(flags, cmd.Config)
	return ccmd
}
