// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"fmt"
	"io"
	"os"

	"github.com/molecula/nvdstore/errors"
	"github.com/molecula/nvdstore/logger"
)

// Collection binds a document stream to an adapter and exposes querying
// on top of it. A collection created without explicit storage owns a
// temporary directory and removes it on Close; collections over explicit
// storage leave it in place.
type Collection struct {
	adapter     Adapter
	storage     string
	ownsStorage bool
	log         logger.Logger
}

// CollectionOption configures a Collection before its adapter connects.
type CollectionOption func(*Collection)

// WithStorage directs the collection at an explicit storage directory.
// The directory survives Close.
func WithStorage(storage string) CollectionOption {
	return func(c *Collection) {
		c.storage = storage
		c.ownsStorage = false
	}
}

// WithAdapter replaces the default adapter.
func WithAdapter(adapter Adapter) CollectionOption {
	return func(c *Collection) { c.adapter = adapter }
}

// WithShardSize sets the shard size of the default adapter. Ignored when
// WithAdapter is also given.
func WithShardSize(n int) CollectionOption {
	return func(c *Collection) {
		if _, ok := c.adapter.(*DefaultAdapter); ok || c.adapter == nil {
			c.adapter = NewDefaultAdapter(n)
		}
	}
}

// WithCollectionLogger sets the collection's logger.
func WithCollectionLogger(log logger.Logger) CollectionOption {
	return func(c *Collection) { c.log = log }
}

// NewCollection stores the iterator's documents through an adapter and
// returns a queryable handle over them.
func NewCollection(it DocumentIterator, opts ...CollectionOption) (*Collection, error) {
	c := &Collection{
		adapter:     NewDefaultAdapter(0),
		ownsStorage: true,
		log:         logger.NopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.storage == "" {
		dir, err := os.MkdirTemp("", "nvdstore-collection-*")
		if err != nil {
			return nil, errors.Wrap(err, "creating temporary storage")
		}
		c.storage = dir
		c.ownsStorage = true
	}

	if err := c.adapter.Connect(c.storage); err != nil {
		c.cleanup()
		return nil, err
	}
	if it != nil {
		if err := c.adapter.Process(it); err != nil {
			_ = c.adapter.Close()
			c.cleanup()
			return nil, err
		}
	}
	return c, nil
}

// Storage returns the collection's storage directory.
func (c *Collection) Storage() string { return c.storage }

// Count returns the number of documents the collection holds.
func (c *Collection) Count() int { return c.adapter.Count() }

// Cursor returns a one-shot iterator over the collection's documents.
func (c *Collection) Cursor() (*Cursor, error) { return c.adapter.Cursor() }

// Iterator returns a buffered document iterator over the collection,
// supporting single-document peek and unread.
func (c *Collection) Iterator() (DocumentIterator, error) {
	cur, err := c.adapter.Cursor()
	if err != nil {
		return nil, err
	}
	return newBufIterator(&cursorIterator{cur: cur, log: c.log}), nil
}

// Find evaluates the selectors against every stored document and returns
// the matches as a new collection backed by its own temporary storage.
func (c *Collection) Find(selectors map[string]Predicate, limit int) (*Collection, error) {
	docs, err := c.adapter.Find(selectors, limit)
	if err != nil {
		return nil, err
	}
	return NewCollection(NewSliceIterator(docs), WithCollectionLogger(c.log))
}

// Sample draws a random sample of n documents, with replacement.
func (c *Collection) Sample(n int, entire bool) ([]*Document, error) {
	return c.adapter.Sample(n, entire)
}

// Pretty writes a human-readable rendering of up to n sampled documents.
func (c *Collection) Pretty(w io.Writer, n int) error {
	if c.Count() == 0 {
		_, err := fmt.Fprintln(w, "(empty collection)")
		return err
	}
	if n > c.Count() {
		n = c.Count()
	}
	// buffered documents are not sampleable until they reach a shard
	if a, ok := c.adapter.(*DefaultAdapter); ok {
		if err := a.Flush(); err != nil {
			return err
		}
	}
	sample, err := c.adapter.Sample(n, true)
	if err != nil {
		return err
	}
	for _, doc := range sample {
		if err := doc.Pretty(w); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the adapter and, for owned temporary storage, removes
// the directory.
func (c *Collection) Close() error {
	err := c.adapter.Close()
	c.cleanup()
	return err
}

func (c *Collection) cleanup() {
	if c.ownsStorage && c.storage != "" {
		if err := os.RemoveAll(c.storage); err != nil {
			c.log.Warnf("removing temporary storage %s: %v", c.storage, err)
		}
		c.storage = ""
	}
}

// cursorIterator adapts a Cursor to the DocumentIterator interface.
// Read errors other than exhaustion are logged and terminate iteration.
type cursorIterator struct {
	cur *Cursor
	log logger.Logger
}

func (it *cursorIterator) Next() (*Document, bool) {
	doc, err := it.cur.Next()
	if err != nil {
		if !errors.Is(err, errors.ErrCursorDone) {
			it.log.Errorf("cursor read failed: %v", err)
		}
		return nil, true
	}
	return doc, false
}
