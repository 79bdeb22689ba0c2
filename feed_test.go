// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package nvdstore

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeedMetadata(t *testing.T) {
	raw := strings.Join([]string{
		"lastModifiedDate:2018-02-08T15:23:00-05:00",
		"size:21415",
		"zipSize:2079",
		"gzSize:1943",
		"sha256:0B74AC95C1D35DEF422F0B1FB2B65C007CF2875F4A3D0CB56FEA2E3295D88F8A",
		"",
	}, "\r\n")

	meta, err := parseFeedMetadata(strings.NewReader(raw))
	require.NoError(t, err)

	// the date value itself contains colons
	assert.Equal(t, 2018, meta.LastModifiedDate.Year())
	assert.Equal(t, int64(21415), meta.Size)
	assert.Equal(t, int64(1943), meta.GzSize)
	assert.Equal(t, "0B74AC95C1D35DEF422F0B1FB2B65C007CF2875F4A3D0CB56FEA2E3295D88F8A", meta.SHA256)
}

func TestParseFeedMetadataMalformed(t *testing.T) {
	_, err := parseFeedMetadata(strings.NewReader("no separator here"))
	if err == nil {
		t.Fatal("expected error for malformed metadata")
	}

	// missing checksum
	_, err = parseFeedMetadata(strings.NewReader("size:10\n"))
	if err == nil {
		t.Fatal("expected error for missing checksum")
	}
}

// testFeedServer serves a fake NVD endpoint for one feed and counts gz
// downloads.
func testFeedServer(t *testing.T, name, payload string) (*httptest.Server, *int64) {
	t.Helper()

	sum := sha256.Sum256([]byte(payload))
	checksum := strings.ToUpper(hex.EncodeToString(sum[:]))
	var downloads int64

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("/nvdcve-1.0-%s.meta", name), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "lastModifiedDate:2018-02-08T15:23:00-05:00\r\nsize:%d\r\nsha256:%s\r\n", len(payload), checksum)
	})
	mux.HandleFunc(fmt.Sprintf("/nvdcve-1.0-%s.json.gz", name), func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&downloads, 1)
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(payload))
		_ = gz.Close()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &downloads
}

func TestFeedManagerDownload(t *testing.T) {
	srv, downloads := testFeedServer(t, "2018", testFeedJSON)

	mgr, err := NewFeedManager(t.TempDir())
	require.NoError(t, err)
	mgr.baseURL = srv.URL

	feed, err := mgr.Download(context.Background(), "2018")
	require.NoError(t, err)
	require.NotNil(t, feed.Metadata)
	assert.Equal(t, int64(1), atomic.LoadInt64(downloads))

	docs, err := feed.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "CVE-2018-0001", docs[0].ID())

	// a second download sees a current local copy and skips the transfer
	_, err = mgr.Download(context.Background(), "2018")
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(downloads))
}

func TestFeedManagerDownloadMany(t *testing.T) {
	srv, _ := testFeedServer(t, "2018", testFeedJSON)

	mgr, err := NewFeedManager(t.TempDir(), WithFeedConcurrency(2))
	require.NoError(t, err)
	mgr.baseURL = srv.URL

	feeds, err := mgr.DownloadMany(context.Background(), []string{"2018"})
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "2018", feeds[0].Name)
}

func TestFeedManagerLocal(t *testing.T) {
	srv, _ := testFeedServer(t, "2018", testFeedJSON)

	mgr, err := NewFeedManager(t.TempDir())
	require.NoError(t, err)
	mgr.baseURL = srv.URL

	_, err = mgr.Local("2018")
	if err == nil {
		t.Fatal("expected error for missing local feed")
	}

	_, err = mgr.Download(context.Background(), "2018")
	require.NoError(t, err)

	feed, err := mgr.Local("2018")
	require.NoError(t, err)
	assert.Equal(t, "2018", feed.Name)
}

func TestDefaultFeedNames(t *testing.T) {
	names := DefaultFeedNames()
	assert.Equal(t, FeedRecent, names[0])
	assert.Equal(t, FeedModified, names[1])
	assert.Contains(t, names, "2002")
}
