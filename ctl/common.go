// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"fmt"
	"io"

	nvdstore "github.com/molecula/nvdstore"
	"github.com/molecula/nvdstore/logger"
)

// UsageError wraps errors caused by bad command arguments so callers can
// print usage instead of a stack trace.
var UsageError = fmt.Errorf("usage error")

// newCommandLogger builds the logger a command runs with: stderr by
// default, a reopenable file when log-path is set, verbose when asked.
// The returned closer is nil for stderr logging.
func newCommandLogger(conf *Config, stderr io.Writer) (logger.Logger, io.Closer, error) {
	w := stderr
	var closer io.Closer
	if conf.LogPath != "" {
		fw, err := logger.NewFileWriter(conf.LogPath)
		if err != nil {
			return nil, nil, err
		}
		w = fw
		closer = fw
	}
	if conf.Verbose {
		return logger.NewVerboseLogger(w), closer, nil
	}
	return logger.NewStandardLogger(w), closer, nil
}

// openCollection loads the locally cached feeds named by the config into
// a collection. Feeds must have been downloaded beforehand.
func openCollection(conf *Config, log logger.Logger) (*nvdstore.Collection, error) {
	mgr, err := nvdstore.NewFeedManager(conf.DataDir, nvdstore.WithFeedLogger(log))
	if err != nil {
		return nil, err
	}

	var docs []*nvdstore.Document
	for _, name := range conf.feedNames() {
		feed, err := mgr.Local(name)
		if err != nil {
			return nil, err
		}
		feedDocs, err := feed.Documents()
		if err != nil {
			return nil, err
		}
		docs = append(docs, feedDocs...)
	}

	adapter, err := conf.newAdapter()
	if err != nil {
		return nil, err
	}

	opts := []nvdstore.CollectionOption{
		nvdstore.WithAdapter(adapter),
		nvdstore.WithCollectionLogger(log),
	}
	if conf.Storage != "" {
		opts = append(opts, nvdstore.WithStorage(conf.Storage))
	}
	return nvdstore.NewCollection(nvdstore.NewSliceIterator(docs), opts...)
}
