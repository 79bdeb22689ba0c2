// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionLifecycle(t *testing.T) {
	c, err := NewCollection(NewSliceIterator(testDocuments("2018", 12)), WithShardSize(5))
	require.NoError(t, err)

	storage := c.Storage()
	if _, err := os.Stat(storage); err != nil {
		t.Fatalf("expected storage directory to exist: %v", err)
	}
	assert.Equal(t, 12, c.Count())

	require.NoError(t, c.Close())

	// owned temporary storage is removed on close
	if _, err := os.Stat(storage); !os.IsNotExist(err) {
		t.Fatalf("expected storage to be removed, got %v", err)
	}
}

func TestCollectionExplicitStorage(t *testing.T) {
	dir := t.TempDir()

	c, err := NewCollection(NewSliceIterator(testDocuments("2018", 3)), WithStorage(dir))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// explicit storage survives close
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected storage to survive: %v", err)
	}
}

func TestCollectionFind(t *testing.T) {
	docs := append(testDocuments("2018", 10), testDocuments("2019", 5)...)
	c, err := NewCollection(NewSliceIterator(docs), WithShardSize(4))
	require.NoError(t, err)
	defer c.Close()

	sel := NewSelectors(TypeCheckSilent, nil)
	matches, err := c.Find(map[string]Predicate{
		"cve.id_": sel.Match("CVE-2019-.*", true),
	}, 0)
	require.NoError(t, err)
	defer matches.Close()

	assert.Equal(t, 5, matches.Count())
	// the result is an independent collection with its own storage
	assert.NotEqual(t, c.Storage(), matches.Storage())
}

func TestCollectionCursor(t *testing.T) {
	c, err := NewCollection(NewSliceIterator(testDocuments("2018", 6)), WithShardSize(4))
	require.NoError(t, err)
	defer c.Close()

	cur, err := c.Cursor()
	require.NoError(t, err)

	seen := 0
	for {
		if _, err := cur.Next(); err != nil {
			break
		}
		seen++
	}
	assert.Equal(t, 6, seen)
}

func TestCollectionIterator(t *testing.T) {
	c, err := NewCollection(NewSliceIterator(testDocuments("2018", 4)), WithShardSize(2))
	require.NoError(t, err)
	defer c.Close()

	it, err := c.Iterator()
	require.NoError(t, err)

	seen := 0
	for {
		doc, eof := it.Next()
		if eof {
			break
		}
		require.NotNil(t, doc)
		seen++
	}
	assert.Equal(t, 4, seen)
}

func TestCollectionIteratorPeek(t *testing.T) {
	c, err := NewCollection(NewSliceIterator(testDocuments("2018", 2)), WithShardSize(2))
	require.NoError(t, err)
	defer c.Close()

	itr, err := c.Iterator()
	require.NoError(t, err)

	buf, ok := itr.(*bufIterator)
	require.True(t, ok)

	peeked, eof := buf.Peek()
	require.False(t, eof)

	next, eof := buf.Next()
	require.False(t, eof)
	assert.Equal(t, peeked.ID(), next.ID())
}

func TestCollectionPretty(t *testing.T) {
	c, err := NewCollection(NewSliceIterator(testDocuments("2018", 3)), WithShardSize(2))
	require.NoError(t, err)
	defer c.Close()

	var out bytes.Buffer
	require.NoError(t, c.Pretty(&out, 2))
	assert.Contains(t, out.String(), "CVE-2018")
}

func TestCollectionWithBoltAdapter(t *testing.T) {
	c, err := NewCollection(NewSliceIterator(testDocuments("2018", 8)), WithAdapter(NewBoltAdapter()))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 8, c.Count())

	sel := NewSelectors(TypeCheckSilent, nil)
	matches, err := c.Find(map[string]Predicate{
		"impact.severity": sel.Match("HIGH", true),
	}, 0)
	require.NoError(t, err)
	defer matches.Close()
	assert.Equal(t, 8, matches.Count())
}
