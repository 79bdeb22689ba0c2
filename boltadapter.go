// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/molecula/nvdstore/errors"
	"github.com/molecula/nvdstore/logger"
)

// boltDBName is the database file created inside the storage directory.
const boltDBName = "documents.db"

var (
	bucketDocuments = []byte("documents")
	bucketMeta      = []byte("meta")
	keyCount        = []byte("count")
)

// BoltAdapter stores documents in a single boltdb file keyed by CVE id.
// Unlike DefaultAdapter it has no in-memory buffer; every Process call is
// a single transaction. Iteration order follows key order, not insertion
// order.
type BoltAdapter struct {
	storage string
	db      *bolt.DB
	count   int

	rnd   *rand.Rand
	log   logger.Logger
	stats StatsClient
}

var _ Adapter = (*BoltAdapter)(nil)

// NewBoltAdapter returns an unconnected boltdb-backed adapter.
func NewBoltAdapter() *BoltAdapter {
	return &BoltAdapter{
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		log:   logger.NopLogger,
		stats: NopStatsClient,
	}
}

// SetLogger sets the adapter's logger. Must be called before Connect.
func (a *BoltAdapter) SetLogger(log logger.Logger) { a.log = log }

// SetStatsClient sets the adapter's stats client. Must be called before
// Connect.
func (a *BoltAdapter) SetStatsClient(stats StatsClient) { a.stats = stats }

// Name returns the adapter identifier.
func (a *BoltAdapter) Name() string { return "BOLT" }

// Storage returns the connected storage directory.
func (a *BoltAdapter) Storage() string { return a.storage }

// Connect opens the database file inside the storage directory, creating
// buckets as needed and reloading the persisted document count.
func (a *BoltAdapter) Connect(storage string) error {
	if storage == "" {
		return errors.New(errors.ErrConfiguration, "storage has not been provided")
	}
	a.storage = storage

	if err := os.MkdirAll(storage, 0o755); err != nil {
		return errors.Wrapf(err, "creating storage directory %s", storage)
	}

	path := filepath.Join(storage, boltDBName)
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return errors.Wrapf(err, "opening database %s", path)
	}
	a.db = db

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if v := meta.Get(keyCount); len(v) == 8 {
			a.count = int(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "initializing database")
	}
	a.log.Debugf("connected bolt adapter to %s (%d documents)", path, a.count)
	return nil
}

// Process stores the stream's documents in a single transaction.
func (a *BoltAdapter) Process(it DocumentIterator) error {
	if a.db == nil {
		return errors.New(errors.ErrConfiguration, "adapter is not connected")
	}

	processed := 0
	err := a.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketDocuments)
		for {
			doc, eof := it.Next()
			if eof {
				break
			}
			id := doc.ID()
			if id == "" {
				return errors.Newf(errors.ErrValidation, "invalid document at position %d: missing cve id", processed)
			}

			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
				return errors.Wrapf(err, "encoding document %s", id)
			}
			if err := bkt.Put([]byte(id), buf.Bytes()); err != nil {
				return errors.Wrapf(err, "storing document %s", id)
			}
			processed++
		}

		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(a.count+processed))
		return tx.Bucket(bucketMeta).Put(keyCount, v[:])
	})
	if err != nil {
		return err
	}

	a.count += processed
	a.stats.Count("processDocuments", int64(processed), 1.0)
	return nil
}

// Count returns the cumulative number of documents processed.
func (a *BoltAdapter) Count() int { return a.count }

// Find returns every stored document for which all selectors hold.
func (a *BoltAdapter) Find(selectors map[string]Predicate, limit int) ([]*Document, error) {
	if limit < 0 {
		return nil, errors.Newf(errors.ErrValidation, "`limit` must be an integer greater than 0, got: %d", limit)
	}

	var out []*Document
	err := a.view(func(doc *Document) error {
		for attr, sel := range selectors {
			ok, err := sel(doc, attr)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		out = append(out, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cursor returns a one-shot iterator over a key-ordered snapshot of the
// stored documents.
func (a *BoltAdapter) Cursor() (*Cursor, error) {
	docs, err := a.all()
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*Document{}
	}
	return newCursor(docs, nil)
}

// Sample draws n documents with replacement. The entire flag is ignored;
// there is no separate buffer to prefer.
func (a *BoltAdapter) Sample(n int, entire bool) ([]*Document, error) {
	if n <= 0 {
		return nil, errors.Newf(errors.ErrValidation, "`sample_size` must be > 0, got: %d", n)
	}
	docs, err := a.all()
	if err != nil {
		return nil, err
	}
	if len(docs) < n {
		return nil, errors.Newf(errors.ErrValidation,
			"`sample_size` can not be greater than the total amount of data: %d > %d", n, len(docs))
	}

	sample := make([]*Document, n)
	for i := range sample {
		sample[i] = docs[a.rnd.Intn(len(docs))]
	}
	return sample, nil
}

// Close closes the database. Safe to call more than once.
func (a *BoltAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	if err != nil {
		return errors.Wrap(err, "closing database")
	}
	return nil
}

// view decodes every stored document and passes it to fn.
func (a *BoltAdapter) view(fn func(*Document) error) error {
	if a.db == nil {
		return errors.New(errors.ErrConfiguration, "adapter is not connected")
	}
	return a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var doc Document
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&doc); err != nil {
				return errors.Wrapf(err, "decoding document %s", k)
			}
			return fn(&doc)
		})
	})
}

// all materializes every stored document in key order.
func (a *BoltAdapter) all() ([]*Document, error) {
	var docs []*Document
	err := a.view(func(doc *Document) error {
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}
