// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"github.com/molecula/nvdstore/errors"
)

// DefaultBatchSize is the batch length used by NextBatch when no explicit
// size has been set.
const DefaultBatchSize = 500

// Cursor is a one-shot forward iterator over an adapter's stored data. It
// reads either a fixed in-memory snapshot or a sequence of shard files,
// never both. Cursors borrow the adapter's descriptors and become invalid
// once the adapter is closed.
type Cursor struct {
	data   []*Document
	shards []*shardFile

	batch    []*Document // current shard's contents
	shardIdx int         // next shard to load
	pos      int         // position within data or batch
	index    int         // absolute position, all sources combined

	batchSize int
}

func newCursor(data []*Document, shards []*shardFile) (*Cursor, error) {
	if data != nil && shards != nil {
		return nil, errors.New(errors.ErrConfiguration, "data and shards are mutually exclusive")
	}
	if data == nil && shards == nil {
		return nil, errors.New(errors.ErrConfiguration, "cursor needs data or shards")
	}
	return &Cursor{
		data:      data,
		shards:    shards,
		batchSize: DefaultBatchSize,
	}, nil
}

// BatchSize returns the batch length used by NextBatch.
func (c *Cursor) BatchSize() int { return c.batchSize }

// SetBatchSize sets the batch length used by NextBatch.
func (c *Cursor) SetBatchSize(n int) error {
	if n <= 0 {
		return errors.Newf(errors.ErrConfiguration, "batch size must be > 0, got: %d", n)
	}
	c.batchSize = n
	return nil
}

// Next returns the next document. Exhaustion is reported as an
// errors.ErrCursorDone error; the cursor cannot be rewound.
func (c *Cursor) Next() (*Document, error) {
	if c.data != nil {
		if c.pos >= len(c.data) {
			return nil, errors.New(errors.ErrCursorDone, "cursor exhausted")
		}
		doc := c.data[c.pos]
		c.pos++
		c.index++
		return doc, nil
	}

	for c.batch == nil || c.pos >= len(c.batch) {
		if c.shardIdx >= len(c.shards) {
			return nil, errors.New(errors.ErrCursorDone, "cursor exhausted")
		}
		docs, err := c.shards[c.shardIdx].load()
		if err != nil {
			return nil, err
		}
		c.batch = docs
		c.shardIdx++
		c.pos = 0
	}

	doc := c.batch[c.pos]
	c.pos++
	c.index++
	return doc, nil
}

// NextBatch returns the next batchSize documents. The returned slice
// always has exactly batchSize entries; when fewer documents remain, the
// tail is padded with nils. An exhausted cursor returns a fully nil batch.
func (c *Cursor) NextBatch() ([]*Document, error) {
	batch := make([]*Document, c.batchSize)
	for i := range batch {
		doc, err := c.Next()
		if err != nil {
			if errors.Is(err, errors.ErrCursorDone) {
				break
			}
			return nil, err
		}
		batch[i] = doc
	}
	return batch, nil
}

// Index returns the number of documents the cursor has yielded.
func (c *Cursor) Index() int { return c.index }
