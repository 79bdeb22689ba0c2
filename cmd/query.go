// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/molecula/nvdstore/ctl"
)

func newQueryCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cmd := ctl.NewQueryCommand(stdin, stdout, stderr)
	ccmd := &cobra.Command{
		Use:   "query",
		Short: "Query cached documents with attribute selectors",
		Long: `
Evaluates an attribute selector against the locally cached feeds and
prints the identifiers of the matching CVEs.
`,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Run(context.Background())
		},
	}

	flags := ccmd.Flags()
	flags.StringVarP(&cmd.Attribute, "attribute", "a", "", "dotted attribute path the selector applies to")
	flags.StringVar(&cmd.Match, "match", "", "anchored regular expression the attribute must match")
	flags.StringVar(&cmd.Search, "search", "", "regular expression to search for within the attribute")
	flags.StringVar(&cmd.Gt, "gt", "", "exclusive lower bound for the attribute")
	flags.StringVar(&cmd.Lt, "lt", "", "exclusive upper bound for the attribute")
	addConfigFlags(flags, cmd.Config)
	return ccmd
}
