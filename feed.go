// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"bufio"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/molecula/nvdstore/errors"
	"github.com/molecula/nvdstore/logger"
)

const (
	// defaultFeedBaseURL is where NVD publishes the JSON 1.0 feeds.
	defaultFeedBaseURL = "https://nvd.nist.gov/feeds/json/cve/1.0"

	// firstFeedYear is the year of the oldest published feed.
	firstFeedYear = 2002

	defaultFeedConcurrency = 4
)

// FeedMetadata is the parsed form of a feed's upstream .meta companion
// file. The sha256 checksum covers the uncompressed JSON payload.
type FeedMetadata struct {
	LastModifiedDate time.Time
	Size             int64
	ZipSize          int64
	GzSize           int64
	SHA256           string
}

// parseFeedMetadata reads the newline-delimited key:value pairs of an
// upstream .meta file. Values may themselves contain colons, so only the
// first colon splits.
func parseFeedMetadata(r io.Reader) (*FeedMetadata, error) {
	meta := &FeedMetadata{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, errors.Newf(errors.ErrFormat, "malformed metadata line: %q", line)
		}
		key, value := parts[0], strings.TrimSpace(parts[1])
		var err error
		switch key {
		case "lastModifiedDate":
			meta.LastModifiedDate, err = time.Parse(time.RFC3339, value)
		case "size":
			meta.Size, err = strconv.ParseInt(value, 10, 64)
		case "zipSize":
			meta.ZipSize, err = strconv.ParseInt(value, 10, 64)
		case "gzSize":
			meta.GzSize, err = strconv.ParseInt(value, 10, 64)
		case "sha256":
			meta.SHA256 = strings.ToUpper(value)
		}
		if err != nil {
			return nil, errors.Newf(errors.ErrFormat, "parsing metadata key %q: %v", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading metadata")
	}
	if meta.SHA256 == "" {
		return nil, errors.New(errors.ErrFormat, "metadata is missing sha256 checksum")
	}
	return meta, nil
}

// Feed is a locally materialized NVD data feed.
type Feed struct {
	Name     string
	Path     string
	Metadata *FeedMetadata
}

// Documents opens the feed's local JSON file and parses its documents.
func (f *Feed) Documents() ([]*Document, error) {
	fd, err := os.Open(f.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening feed %s", f.Name)
	}
	defer fd.Close()
	return ParseFeedDocuments(fd)
}

// DefaultFeedNames returns the standard set of feed names: the two
// rolling feeds plus one per published year up to now.
func DefaultFeedNames() []string {
	names := []string{FeedRecent, FeedModified}
	for year := firstFeedYear; year <= time.Now().Year(); year++ {
		names = append(names, strconv.Itoa(year))
	}
	return names
}

// FeedManager downloads and caches NVD feeds under a data directory.
// Downloads are skipped when the local copy's checksum already matches
// the upstream metadata.
type FeedManager struct {
	dataDir     string
	baseURL     string
	client      *retryablehttp.Client
	concurrency int
	log         logger.Logger
	stats       StatsClient
}

// FeedManagerOption configures a FeedManager.
type FeedManagerOption func(*FeedManager)

// WithFeedLogger sets the manager's logger.
func WithFeedLogger(log logger.Logger) FeedManagerOption {
	return func(m *FeedManager) { m.log = log }
}

// WithFeedStatsClient sets the manager's stats client.
func WithFeedStatsClient(stats StatsClient) FeedManagerOption {
	return func(m *FeedManager) { m.stats = stats }
}

// WithFeedConcurrency bounds the number of parallel downloads.
func WithFeedConcurrency(n int) FeedManagerOption {
	return func(m *FeedManager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithFeedHTTPClient replaces the manager's HTTP client.
func WithFeedHTTPClient(client *retryablehttp.Client) FeedManagerOption {
	return func(m *FeedManager) { m.client = client }
}

// NewFeedManager returns a manager caching feeds under dataDir.
func NewFeedManager(dataDir string, opts ...FeedManagerOption) (*FeedManager, error) {
	if dataDir == "" {
		return nil, errors.New(errors.ErrConfiguration, "data directory has not been provided")
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 5
	client.Logger = nil

	m := &FeedManager{
		dataDir:     dataDir,
		baseURL:     defaultFeedBaseURL,
		client:      client,
		concurrency: defaultFeedConcurrency,
		log:         logger.NopLogger,
		stats:       NopStatsClient,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating data directory %s", m.dataDir)
	}
	return m, nil
}

// localPath returns the on-disk location of a feed's JSON file.
func (m *FeedManager) localPath(name string) string {
	return filepath.Join(m.dataDir, fmt.Sprintf("nvdcve-1.0-%s.json", name))
}

// Local returns the locally cached copy of a feed without touching the
// network. Absence is a validation error.
func (m *FeedManager) Local(name string) (*Feed, error) {
	path := m.localPath(name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrValidation, "feed %s has not been downloaded", name)
		}
		return nil, errors.Wrapf(err, "checking feed %s", name)
	}
	return &Feed{Name: name, Path: path}, nil
}

// FetchMetadata retrieves and parses the upstream metadata for a feed.
func (m *FeedManager) FetchMetadata(ctx context.Context, name string) (*FeedMetadata, error) {
	url := fmt.Sprintf("%s/nvdcve-1.0-%s.meta", m.baseURL, name)
	req, err := retryablehttp.NewRequest("GET", url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building metadata request for feed %s", name)
	}
	req = req.WithContext(ctx)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching metadata for feed %s", name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, errors.Newf(errors.ErrFormat, "fetching metadata for feed %s: unexpected status %d", name, resp.StatusCode)
	}
	return parseFeedMetadata(resp.Body)
}

// Download fetches one feed, skipping the transfer when the local copy is
// already current. The JSON is decompressed on the fly and written under
// an advisory lock, then renamed into place.
func (m *FeedManager) Download(ctx context.Context, name string) (*Feed, error) {
	meta, err := m.FetchMetadata(ctx, name)
	if err != nil {
		return nil, err
	}

	path := m.localPath(name)
	if current, err := m.isCurrent(path, meta.SHA256); err != nil {
		return nil, err
	} else if current {
		m.log.Debugf("feed %s is up to date, skipping download", name)
		m.stats.Count("feedSkipped", 1, 1.0)
		return &Feed{Name: name, Path: path, Metadata: meta}, nil
	}

	t := time.Now()
	url := fmt.Sprintf("%s/nvdcve-1.0-%s.json.gz", m.baseURL, name)
	req, err := retryablehttp.NewRequest("GET", url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building download request for feed %s", name)
	}
	req = req.WithContext(ctx)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "downloading feed %s", name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, errors.Newf(errors.ErrFormat, "downloading feed %s: unexpected status %d", name, resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing feed %s", name)
	}
	defer gz.Close()

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", tmp)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, hash), gz); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, errors.Wrapf(err, "writing feed %s", name)
	}
	if err := f.Sync(); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, errors.Wrapf(err, "syncing feed %s", name)
	}
	if err := unlockFile(f); err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrapf(err, "closing feed %s", name)
	}

	sum := strings.ToUpper(hex.EncodeToString(hash.Sum(nil)))
	if sum != meta.SHA256 {
		_ = os.Remove(tmp)
		return nil, errors.Newf(errors.ErrFormat, "feed %s checksum mismatch: got %s, want %s", name, sum, meta.SHA256)
	}

	if err := os.Rename(tmp, path); err != nil {
		return nil, errors.Wrapf(err, "renaming feed %s into place", name)
	}

	m.stats.Count("feedDownloaded", 1, 1.0)
	m.stats.Timing("feedDownloadTime", time.Since(t), 1.0)
	m.log.Infof("downloaded feed %s (%d bytes)", name, meta.Size)
	return &Feed{Name: name, Path: path, Metadata: meta}, nil
}

// DownloadMany fetches the named feeds in parallel, bounded by the
// manager's concurrency. The first failure cancels the remaining work.
func (m *FeedManager) DownloadMany(ctx context.Context, names []string) ([]*Feed, error) {
	feeds := make([]*Feed, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			feed, err := m.Download(ctx, name)
			if err != nil {
				return err
			}
			feeds[i] = feed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return feeds, nil
}

// isCurrent reports whether the file at path exists and matches the
// upstream checksum.
func (m *FeedManager) isCurrent(path, wantSHA256 string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return false, errors.Wrapf(err, "hashing %s", path)
	}
	return strings.ToUpper(hex.EncodeToString(hash.Sum(nil))) == wantSHA256, nil
}
