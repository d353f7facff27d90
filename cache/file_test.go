package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/reika0717/sparql-proxy/test"
)

const testKey = "0f1e2d3c4b5a.raw"

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir(), RawCompressor{})

	entry, err := s.Get(testKey)
	test.AssertNotError(t, err, "get before put")
	test.Assert(t, entry == nil, "expected a miss before put")

	test.AssertNotError(t, s.Put(testKey, roundTripEntry), "put")

	// Keys fan out two directory levels deep.
	name := filepath.Join(s.Root, "0f", "1e", testKey)
	_, err = os.Stat(name)
	test.AssertNotError(t, err, "expected entry file on disk")

	entry, err = s.Get(testKey)
	test.AssertNotError(t, err, "get after put")
	test.Assert(t, entry != nil, "expected a hit after put")
	test.AssertEquals(t, entry.ContentType, roundTripEntry.ContentType)
	test.Assert(t, bytes.Equal(entry.Body, roundTripEntry.Body), "body changed")
}

func TestFileStorePurge(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir(), RawCompressor{})
	test.AssertNotError(t, s.Put(testKey, roundTripEntry), "put")
	test.AssertNotError(t, s.Purge(), "purge")
	entry, err := s.Get(testKey)
	test.AssertNotError(t, err, "get after purge")
	test.Assert(t, entry == nil, "expected a miss after purge")
}

func TestFileStoreShortKey(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir(), RawCompressor{})
	_, err := s.Get("ab")
	test.AssertError(t, err, "expected error for a short key")
	test.AssertError(t, s.Put("ab", roundTripEntry), "expected error for a short key")
}

func TestFileStoreOverwrite(t *testing.T) {
	t.Parallel()
	s := NewFileStore(t.TempDir(), RawCompressor{})
	test.AssertNotError(t, s.Put(testKey, roundTripEntry), "first put")
	second := &Entry{ContentType: "text/plain", Body: []byte("updated")}
	test.AssertNotError(t, s.Put(testKey, second), "second put")
	entry, err := s.Get(testKey)
	test.AssertNotError(t, err, "get")
	test.AssertEquals(t, entry.ContentType, "text/plain")
	test.Assert(t, bytes.Equal(entry.Body, second.Body), "last write should win")
}
