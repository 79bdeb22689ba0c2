// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/molecula/nvdstore/errors"
	"github.com/molecula/nvdstore/logger"
)

const (
	// DefaultShardSize is the number of documents buffered in memory
	// before they are flushed to an on-disk shard.
	DefaultShardSize = 5000

	// metaFileName is the metadata index kept next to the shard files.
	metaFileName = ".meta"
)

// cveYearPattern extracts the feed year embedded in a CVE identifier.
var cveYearPattern = regexp.MustCompile(`^CVE-(\d+)-\d+`)

// Adapter converts storage operations to a concrete backend. DefaultAdapter
// stores documents in gob-encoded shard files; BoltAdapter keeps them in a
// single boltdb file. Adapters are single-writer and not safe for
// concurrent use.
type Adapter interface {
	// Name identifies the adapter implementation.
	Name() string

	// Connect attaches the adapter to a storage directory, creating it
	// and its metadata as needed and reloading any previous state.
	Connect(storage string) error

	// Process consumes the document stream and stores it.
	Process(it DocumentIterator) error

	// Count returns the cumulative number of documents processed.
	Count() int

	// Find scans all stored documents and returns those for which every
	// selector holds.
	Find(selectors map[string]Predicate, limit int) ([]*Document, error)

	// Cursor returns a one-shot iterator positioned at the beginning of
	// the stored data.
	Cursor() (*Cursor, error)

	// Sample draws a random sample of n stored documents, with
	// replacement. When entire is false the in-memory buffer is
	// preferred if it holds enough documents.
	Sample(n int, entire bool) ([]*Document, error)

	// Close releases all file locks and descriptors.
	Close() error
}

// recordMeta locates one document: its slot in the buffer and, once
// flushed, the shard holding it.
type recordMeta struct {
	Index int  `json:"index"`
	Shard *int `json:"shard"`
}

// shardMeta describes one flushed shard. Entries are immutable once
// written; the filename is reconstructed from these fields on reload.
type shardMeta struct {
	ID        int    `json:"id"`
	Mask      string `json:"mask"`
	Size      int    `json:"size"`
	Timestamp int64  `json:"timestamp"`
}

func (m *shardMeta) filename() string {
	return fmt.Sprintf("%d.%s.%d.%d", m.ID, m.Mask, m.Size, m.Timestamp)
}

// adapterMeta is the on-disk layout of the metadata file: a full record
// index plus the shard index, rewritten wholesale on every flush.
type adapterMeta struct {
	CVEData   map[string]*recordMeta `json:"cve_data"`
	ShardData map[string]*shardMeta  `json:"shard_data"`
}

func newAdapterMeta() adapterMeta {
	return adapterMeta{
		CVEData:   make(map[string]*recordMeta),
		ShardData: make(map[string]*shardMeta),
	}
}

// shardFile is one open, advisory-locked shard descriptor.
type shardFile struct {
	id   int
	path string
	file *os.File
}

// load deserializes the shard's full batch.
func (s *shardFile) load() ([]*Document, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seeking shard %d", s.id)
	}
	var docs []*Document
	if err := gob.NewDecoder(s.file).Decode(&docs); err != nil {
		return nil, errors.Wrapf(err, "decoding shard %d", s.id)
	}
	return docs, nil
}

// DefaultAdapter buffers documents in a fixed-capacity slot array and
// flushes full buffers to append-created shard files. It owns its buffer,
// indexes and descriptors exclusively; cursors borrow the descriptors and
// must not outlive it.
type DefaultAdapter struct {
	storage   string
	shardSize int

	buffer   []*Document
	buffered int // occupied slots
	count    int // cumulative documents processed

	meta     adapterMeta
	metaFile *os.File
	shards   []*shardFile

	rnd   *rand.Rand
	stats StatsClient
	log   logger.Logger
}

var _ Adapter = (*DefaultAdapter)(nil)

// NewDefaultAdapter returns an unconnected adapter with the given shard
// size; shardSize <= 0 selects DefaultShardSize.
func NewDefaultAdapter(shardSize int) *DefaultAdapter {
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return &DefaultAdapter{
		shardSize: shardSize,
		buffer:    make([]*Document, shardSize),
		meta:      newAdapterMeta(),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:     NopStatsClient,
		log:       logger.NopLogger,
	}
}

// SetLogger sets the adapter's logger. Must be called before Connect.
func (a *DefaultAdapter) SetLogger(log logger.Logger) { a.log = log }

// SetStatsClient sets the adapter's stats client. Must be called before
// Connect.
func (a *DefaultAdapter) SetStatsClient(stats StatsClient) { a.stats = stats }

// Name returns the adapter identifier.
func (a *DefaultAdapter) Name() string { return "DEFAULT" }

// Storage returns the connected storage directory.
func (a *DefaultAdapter) Storage() string { return a.storage }

// ShardSize returns the buffer capacity.
func (a *DefaultAdapter) ShardSize() int { return a.shardSize }

// Connect attaches the adapter to a storage directory. If a metadata file
// with previous state exists it is reloaded and every shard it references
// is reopened and locked.
func (a *DefaultAdapter) Connect(storage string) error {
	if storage == "" && a.storage == "" {
		return errors.New(errors.ErrConfiguration, "storage has not been provided")
	}
	if storage != "" {
		a.storage = storage
	}

	if err := os.MkdirAll(a.storage, 0o755); err != nil {
		return errors.Wrapf(err, "creating storage directory %s", a.storage)
	}

	metaPath := filepath.Join(a.storage, metaFileName)
	f, err := os.OpenFile(metaPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening metadata file %s", metaPath)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return err
	}
	a.metaFile = f

	raw, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading metadata file")
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a.meta); err != nil {
			return errors.Wrap(err, "parsing metadata file")
		}
		if a.meta.CVEData == nil {
			a.meta.CVEData = make(map[string]*recordMeta)
		}
		if a.meta.ShardData == nil {
			a.meta.ShardData = make(map[string]*shardMeta)
		}
		a.count = len(a.meta.CVEData)
	}

	// Reopen referenced shards in id order so cursor iteration matches
	// the order in which they were written.
	ids := make([]int, 0, len(a.meta.ShardData))
	for key := range a.meta.ShardData {
		id, err := strconv.Atoi(key)
		if err != nil {
			return errors.Wrapf(err, "parsing shard id %q", key)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		meta := a.meta.ShardData[strconv.Itoa(id)]
		path := filepath.Join(a.storage, meta.filename())
		sf, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return errors.Wrapf(err, "opening shard %d", id)
		}
		if err := lockFile(sf); err != nil {
			_ = sf.Close()
			return err
		}
		a.shards = append(a.shards, &shardFile{id: id, path: path, file: sf})
	}

	a.log.Debugf("connected adapter to %s (%d shards)", a.storage, len(a.shards))
	return nil
}

// Process buffers the stream's documents, flushing a shard every time the
// buffer fills. The adapter count accumulates across calls.
func (a *DefaultAdapter) Process(it DocumentIterator) error {
	if a.metaFile == nil {
		return errors.New(errors.ErrConfiguration, "adapter is not connected")
	}

	processed := 0
	for {
		doc, eof := it.Next()
		if eof {
			break
		}
		id := doc.ID()
		if id == "" {
			return errors.Newf(errors.ErrValidation, "invalid document at position %d: missing cve id", processed)
		}

		a.meta.CVEData[id] = &recordMeta{Index: a.buffered}
		a.buffer[a.buffered] = doc
		a.buffered++
		a.count++
		processed++

		if a.buffered == a.shardSize {
			if err := a.flushShard(); err != nil {
				return err
			}
		}
	}

	a.stats.Count("processDocuments", int64(processed), 1.0)
	return nil
}

// Count returns the cumulative number of documents processed.
func (a *DefaultAdapter) Count() int { return a.count }

// Flush forces any buffered documents into a shard. It is a no-op on an
// empty buffer.
func (a *DefaultAdapter) Flush() error {
	if a.buffered == 0 {
		return nil
	}
	return a.flushShard()
}

// flushShard serializes the compacted buffer into a new shard file, updates
// the indexes and rewrites the metadata file. A crash between the shard
// write and the metadata rewrite leaves the metadata stale; this is a
// documented limitation of the format.
func (a *DefaultAdapter) flushShard() error {
	t := time.Now()

	years := make(map[string]struct{})
	for id := range a.meta.CVEData {
		if m := cveYearPattern.FindStringSubmatch(id); m != nil {
			years[m[1]] = struct{}{}
		}
	}

	compacted := make([]*Document, 0, a.buffered)
	for _, doc := range a.buffer {
		if doc != nil {
			compacted = append(compacted, doc)
		}
	}

	shardID := len(a.meta.ShardData)
	mask := EncodeYears(years)
	timestamp := t.Unix()
	path := filepath.Join(a.storage, (&shardMeta{
		ID:        shardID,
		Mask:      mask,
		Size:      len(compacted),
		Timestamp: timestamp,
	}).filename())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "creating shard file %s", path)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := gob.NewEncoder(f).Encode(compacted); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return errors.Wrapf(err, "encoding shard %d", shardID)
	}
	if err := f.Sync(); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return errors.Wrapf(err, "syncing shard %d", shardID)
	}
	a.shards = append(a.shards, &shardFile{id: shardID, path: path, file: f})

	// Stamp the records that were living in the buffer with their shard.
	for _, doc := range compacted {
		if m, ok := a.meta.CVEData[doc.ID()]; ok && m.Shard == nil {
			shard := shardID
			m.Shard = &shard
		}
	}

	a.meta.ShardData[strconv.Itoa(shardID)] = &shardMeta{
		ID:        shardID,
		Mask:      mask,
		Size:      len(compacted),
		Timestamp: timestamp,
	}

	if err := a.rewriteMeta(); err != nil {
		return err
	}

	// Reset the buffer for the next batch.
	a.buffer = make([]*Document, a.shardSize)
	a.buffered = 0

	a.stats.Count("shardFlush", 1, 1.0)
	a.stats.Timing("shardFlushTime", time.Since(t), 1.0)
	a.log.Debugf("flushed shard %d (%d documents, mask %s)", shardID, len(compacted), mask)
	return nil
}

// rewriteMeta truncates and rewrites the whole metadata file. The cost is
// linear in the total number of records per flush; kept as-is because
// changing it changes the on-disk format.
func (a *DefaultAdapter) rewriteMeta() error {
	if _, err := a.metaFile.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking metadata file")
	}
	if err := a.metaFile.Truncate(0); err != nil {
		return errors.Wrap(err, "truncating metadata file")
	}
	if err := json.NewEncoder(a.metaFile).Encode(&a.meta); err != nil {
		return errors.Wrap(err, "encoding metadata file")
	}
	if err := a.metaFile.Sync(); err != nil {
		return errors.Wrap(err, "syncing metadata file")
	}
	return nil
}

// Find returns every stored document for which all selectors hold.
// Buffered documents are flushed first so that the scan sees a fully
// shard-resident snapshot. limit is validated but documents are not
// truncated; filtering is the selectors' job.
func (a *DefaultAdapter) Find(selectors map[string]Predicate, limit int) ([]*Document, error) {
	if a.buffered > 0 {
		if err := a.flushShard(); err != nil {
			return nil, err
		}
	}
	if limit < 0 {
		return nil, errors.Newf(errors.ErrValidation, "`limit` must be an integer greater than 0, got: %d", limit)
	}

	var out []*Document
	for _, sf := range a.shards {
		docs, err := sf.load()
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			keep := true
			for attr, sel := range selectors {
				ok, err := sel(doc, attr)
				if err != nil {
					return nil, err
				}
				if !ok {
					keep = false
					break
				}
			}
			if keep {
				out = append(out, doc)
			}
		}
	}
	return out, nil
}

// Cursor returns a one-shot iterator over the stored data: over the shard
// files if any exist, otherwise over a snapshot of the buffer.
func (a *DefaultAdapter) Cursor() (*Cursor, error) {
	if len(a.shards) > 0 {
		return newCursor(nil, a.shards)
	}

	snapshot := make([]*Document, 0, a.buffered)
	for _, doc := range a.buffer {
		if doc != nil {
			snapshot = append(snapshot, doc)
		}
	}
	return newCursor(snapshot, nil)
}

// Sample draws n documents with replacement. If the buffer holds at least n
// documents and entire is false, the sample is drawn from the buffer alone;
// otherwise it is distributed across shards proportionally to their sizes.
func (a *DefaultAdapter) Sample(n int, entire bool) ([]*Document, error) {
	if n <= 0 {
		return nil, errors.Newf(errors.ErrValidation, "`sample_size` must be > 0, got: %d", n)
	}

	if a.buffered >= n && !entire {
		compacted := make([]*Document, 0, a.buffered)
		for _, doc := range a.buffer {
			if doc != nil {
				compacted = append(compacted, doc)
			}
		}
		sample := make([]*Document, n)
		for i := range sample {
			sample[i] = compacted[a.rnd.Intn(len(compacted))]
		}
		return sample, nil
	}

	total := 0
	for _, meta := range a.meta.ShardData {
		total += meta.Size
	}
	if total < n {
		return nil, errors.Newf(errors.ErrValidation,
			"`sample_size` can not be greater than the total amount of data: %d > %d", n, total)
	}

	perShard := a.distributeSample(n)

	var sample []*Document
	for i, sf := range a.shards {
		if perShard[i] == 0 {
			continue
		}
		docs, err := sf.load()
		if err != nil {
			return nil, err
		}
		for j := 0; j < perShard[i]; j++ {
			sample = append(sample, docs[a.rnd.Intn(len(docs))])
		}
	}
	return sample, nil
}

// distributeSample spreads n sample slots across shards round-robin,
// capping each shard's allocation at its size. Callers have already
// checked that the total stored size covers n.
func (a *DefaultAdapter) distributeSample(n int) []int {
	perShard := make([]int, len(a.shards))
	distributed := 0
	for distributed < n {
		for i, sf := range a.shards {
			if distributed == n {
				break
			}
			size := a.meta.ShardData[strconv.Itoa(sf.id)].Size
			if perShard[i] < size {
				perShard[i]++
				distributed++
			}
		}
	}
	return perShard
}

// Close releases all advisory locks and descriptors. Safe to call more
// than once.
func (a *DefaultAdapter) Close() error {
	var firstErr error
	for _, sf := range a.shards {
		if err := unlockFile(sf.file); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := sf.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "closing shard %d", sf.id)
		}
	}
	a.shards = nil

	if a.metaFile != nil {
		if err := unlockFile(a.metaFile); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := a.metaFile.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "closing metadata file")
		}
		a.metaFile = nil
	}
	return firstErr
}

// lockFile takes a non-blocking exclusive advisory lock. A conflict
// surfaces immediately as an error; locks are never waited on or retried.
func lockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return errors.Newf(errors.ErrLocked, "locking %s: %v", f.Name(), err)
	}
	return nil
}

// unlockFile releases an advisory lock.
func unlockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return errors.Wrapf(err, "unlocking %s", f.Name())
	}
	return nil
}
