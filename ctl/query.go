// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"strconv"

	nvdstore "github.com/molecula/nvdstore"
)

// QueryCommand evaluates attribute selectors against locally cached
// feeds and prints the matching CVEs.
type QueryCommand struct {
	Config *Config

	// Attribute is the dotted path the selector is applied to.
	Attribute string

	// At most one of the following is set.
	Match  string // anchored regular expression
	Search string // unanchored regular expression
	Gt     string // lower bound, exclusive
	Lt     string // upper bound, exclusive

	*nvdstore.CmdIO
}

// NewQueryCommand returns a new instance of QueryCommand.
func NewQueryCommand(stdin io.Reader, stdout, stderr io.Writer) *QueryCommand {
	return &QueryCommand{
		Config: NewConfig(),
		CmdIO:  nvdstore.NewCmdIO(stdin, stdout, stderr),
	}
}

// predicate builds the selector the flags describe.
func (cmd *QueryCommand) predicate() (nvdstore.Predicate, error) {
	set := 0
	for _, v := range []string{cmd.Match, cmd.Search, cmd.Gt, cmd.Lt} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of --match, --search, --gt, --lt is required", UsageError)
	}

	sel := nvdstore.DefaultSelectors()
	switch {
	case cmd.Match != "":
		return sel.Match(cmd.Match, true), nil
	case cmd.Search != "":
		return sel.Search(cmd.Search), nil
	case cmd.Gt != "":
		return sel.Gt(numericOrString(cmd.Gt)), nil
	default:
		return sel.Lt(numericOrString(cmd.Lt)), nil
	}
}

// Run executes the query.
func (cmd *QueryCommand) Run(ctx context.Context) error {
	log, closer, err := newCommandLogger(cmd.Config, cmd.Stderr)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	if cmd.Attribute == "" {
		return fmt.Errorf("%w: --attribute is required", UsageError)
	}
	pred, err := cmd.predicate()
	if err != nil {
		return err
	}

	collection, err := openCollection(cmd.Config, log)
	if err != nil {
		return err
	}
	defer collection.Close()

	matches, err := collection.Find(map[string]nvdstore.Predicate{cmd.Attribute: pred}, 0)
	if err != nil {
		return err
	}
	defer matches.Close()

	log.Debugf("query matched %d of %d documents", matches.Count(), collection.Count())

	cur, err := matches.Cursor()
	if err != nil {
		return err
	}
	for {
		doc, err := cur.Next()
		if err != nil {
			break
		}
		fmt.Fprintln(cmd.Stdout, doc.ID())
	}
	return nil
}

// numericOrString parses a flag value as a number when possible, leaving
// it a string otherwise.
func numericOrString(v string) interface{} {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
