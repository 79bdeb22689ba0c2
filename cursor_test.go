// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molecula/nvdstore/errors"
)

func TestCursorNext(t *testing.T) {
	a := mustOpenAdapter(t, 10)
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2018", 25))))
	require.NoError(t, a.Flush())

	cur, err := a.Cursor()
	require.NoError(t, err)

	var ids []string
	for {
		doc, err := cur.Next()
		if err != nil {
			if !errors.Is(err, errors.ErrCursorDone) {
				t.Fatal(err)
			}
			break
		}
		ids = append(ids, doc.ID())
	}

	require.Len(t, ids, 25)
	// shard order preserves processing order
	assert.Equal(t, "CVE-2018-0001", ids[0])
	assert.Equal(t, "CVE-2018-0025", ids[24])
	assert.Equal(t, 25, cur.Index())

	// exhausted cursors stay exhausted
	_, err = cur.Next()
	if !errors.Is(err, errors.ErrCursorDone) {
		t.Fatalf("expected cursor done, got %v", err)
	}
}

func TestCursorOverBuffer(t *testing.T) {
	a := mustOpenAdapter(t, 100)
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2018", 7))))

	// nothing has been flushed; the cursor reads the buffer snapshot
	cur, err := a.Cursor()
	require.NoError(t, err)

	seen := 0
	for {
		if _, err := cur.Next(); err != nil {
			break
		}
		seen++
	}
	assert.Equal(t, 7, seen)
}

func TestCursorNextBatchPadding(t *testing.T) {
	a := mustOpenAdapter(t, 10)
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2018", 25))))
	require.NoError(t, a.Flush())

	cur, err := a.Cursor()
	require.NoError(t, err)
	require.NoError(t, cur.SetBatchSize(10))

	// full batches
	for i := 0; i < 2; i++ {
		batch, err := cur.NextBatch()
		require.NoError(t, err)
		require.Len(t, batch, 10)
		for _, doc := range batch {
			assert.NotNil(t, doc)
		}
	}

	// final batch is padded with nils to exactly the batch size
	batch, err := cur.NextBatch()
	require.NoError(t, err)
	require.Len(t, batch, 10)
	for i, doc := range batch {
		if i < 5 {
			assert.NotNil(t, doc)
		} else {
			assert.Nil(t, doc)
		}
	}

	// exhausted cursor yields a fully nil batch
	batch, err = cur.NextBatch()
	require.NoError(t, err)
	require.Len(t, batch, 10)
	for _, doc := range batch {
		assert.Nil(t, doc)
	}
}

func TestCursorSetBatchSize(t *testing.T) {
	cur, err := newCursor([]*Document{}, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultBatchSize, cur.BatchSize())
	require.NoError(t, cur.SetBatchSize(3))
	assert.Equal(t, 3, cur.BatchSize())

	err = cur.SetBatchSize(0)
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCursorExclusiveSources(t *testing.T) {
	_, err := newCursor([]*Document{}, []*shardFile{{}})
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	_, err = newCursor(nil, nil)
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
