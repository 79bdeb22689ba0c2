// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"

	nvdstore "github.com/molecula/nvdstore"
)

// SampleCommand prints a random sample of the locally cached documents.
type SampleCommand struct {
	Config *Config

	// Size is the number of documents to sample.
	Size int

	*nvdstore.CmdIO
}

// NewSampleCommand returns a new instance of SampleCommand.
func NewSampleCommand(stdin io.Reader, stdout, stderr io.Writer) *SampleCommand {
	return &SampleCommand{
		Config: NewConfig(),
		Size:   5,
		CmdIO:  nvdstore.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run prints the sample.
func (cmd *SampleCommand) Run(ctx context.Context) error {
	log, closer, err := newCommandLogger(cmd.Config, cmd.Stderr)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	if cmd.Size <= 0 {
		return fmt.Errorf("%w: --size must be > 0", UsageError)
	}

	collection, err := openCollection(cmd.Config, log)
	if err != nil {
		return err
	}
	defer collection.Close()

	return collection.Pretty(cmd.Stdout, cmd.Size)
}
