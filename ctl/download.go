// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	nvdstore "github.com/molecula/nvdstore"
)

// DownloadCommand fetches NVD feeds into the local data directory.
type DownloadCommand struct {
	Config *Config

	*nvdstore.CmdIO
}

// NewDownloadCommand returns a new instance of DownloadCommand.
func NewDownloadCommand(stdin io.Reader, stdout, stderr io.Writer) *DownloadCommand {
	return &DownloadCommand{
		Config: NewConfig(),
		CmdIO:  nvdstore.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run downloads the configured feeds, skipping the ones whose local
// copies are already current.
func (cmd *DownloadCommand) Run(ctx context.Context) error {
	log, closer, err := newCommandLogger(cmd.Config, cmd.Stderr)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	mgr, err := nvdstore.NewFeedManager(cmd.Config.DataDir,
		nvdstore.WithFeedLogger(log),
		nvdstore.WithFeedConcurrency(cmd.Config.FetchConcurrency),
	)
	if err != nil {
		return err
	}

	names := cmd.Config.feedNames()
	log.Printf("downloading %d feeds to %s", len(names), cmd.Config.DataDir)

	feeds, err := mgr.DownloadMany(ctx, names)
	if err != nil {
		return err
	}
	for _, feed := range feeds {
		fmt.Fprintf(cmd.Stdout, "%s\t%s\t%d bytes\n",
			feed.Name, feed.Metadata.LastModifiedDate.Format("2006-01-02"), feed.Metadata.Size)
	}
	return nil
}
