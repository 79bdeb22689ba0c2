// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molecula/nvdstore/errors"
)

func mustOpenBoltAdapter(t *testing.T) *BoltAdapter {
	t.Helper()
	a := NewBoltAdapter()
	if err := a.Connect(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestBoltAdapterProcessAndCount(t *testing.T) {
	a := mustOpenBoltAdapter(t)
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2018", 10))))
	assert.Equal(t, 10, a.Count())

	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2019", 5))))
	assert.Equal(t, 15, a.Count())
}

func TestBoltAdapterProcessInvalidDocument(t *testing.T) {
	a := mustOpenBoltAdapter(t)
	err := a.Process(NewSliceIterator([]*Document{{}}))
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBoltAdapterFind(t *testing.T) {
	a := mustOpenBoltAdapter(t)
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2018", 10))))
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2019", 4))))

	sel := NewSelectors(TypeCheckSilent, nil)
	docs, err := a.Find(map[string]Predicate{
		"cve.id_": sel.Match("CVE-2019-.*", true),
	}, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 4)
}

func TestBoltAdapterCursor(t *testing.T) {
	a := mustOpenBoltAdapter(t)
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2018", 6))))

	cur, err := a.Cursor()
	require.NoError(t, err)

	var ids []string
	for {
		doc, err := cur.Next()
		if err != nil {
			break
		}
		ids = append(ids, doc.ID())
	}
	require.Len(t, ids, 6)
	// boltdb iterates in key order
	assert.Equal(t, "CVE-2018-0001", ids[0])
	assert.Equal(t, "CVE-2018-0006", ids[5])
}

func TestBoltAdapterCursorEmpty(t *testing.T) {
	a := mustOpenBoltAdapter(t)

	cur, err := a.Cursor()
	require.NoError(t, err)

	_, err = cur.Next()
	if !errors.Is(err, errors.ErrCursorDone) {
		t.Fatalf("expected done error, got %v", err)
	}
}

func TestBoltAdapterSample(t *testing.T) {
	a := mustOpenBoltAdapter(t)
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2018", 10))))

	sample, err := a.Sample(4, false)
	require.NoError(t, err)
	assert.Len(t, sample, 4)

	_, err = a.Sample(11, false)
	if !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBoltAdapterReconnect(t *testing.T) {
	dir := t.TempDir()

	a := NewBoltAdapter()
	require.NoError(t, a.Connect(dir))
	require.NoError(t, a.Process(NewSliceIterator(testDocuments("2018", 9))))
	require.NoError(t, a.Close())

	b := NewBoltAdapter()
	require.NoError(t, b.Connect(dir))
	defer b.Close()

	assert.Equal(t, 9, b.Count())

	docs, err := b.all()
	require.NoError(t, err)
	assert.Len(t, docs, 9)
}
