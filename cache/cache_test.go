package cache

import (
	"bytes"
	"testing"

	"github.com/reika0717/sparql-proxy/test"
)

var roundTripEntry = &Entry{
	ContentType: "application/sparql-results+json",
	Body:        []byte(`{"head":{"vars":["s"]},"results":{"bindings":[]}}`),
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"raw", "deflate"} {
		c, err := GetCompressor(name)
		test.AssertNotError(t, err, name)
		p, err := serialize(c, roundTripEntry)
		test.AssertNotError(t, err, name)
		got, err := deserialize(c, p)
		test.AssertNotError(t, err, name)
		test.AssertEquals(t, got.ContentType, roundTripEntry.ContentType)
		test.Assert(t, bytes.Equal(got.Body, roundTripEntry.Body), "body changed in round trip")
	}
}

func TestUnknownCompressor(t *testing.T) {
	t.Parallel()
	_, err := GetCompressor("lzma")
	test.AssertError(t, err, "expected error for unknown compressor")
}

func TestCompressorIDsDiffer(t *testing.T) {
	t.Parallel()
	test.AssertEquals(t, RawCompressor{}.ID(), "raw")
	test.AssertEquals(t, DeflateCompressor{}.ID(), "deflate")
}

func TestDeflateShrinksRepetitiveValues(t *testing.T) {
	t.Parallel()
	p := bytes.Repeat([]byte("<http://example.com/s> "), 500)
	encoded, err := DeflateCompressor{}.Encode(p)
	test.AssertNotError(t, err, "encode")
	test.Assert(t, len(encoded) < len(p), "deflate did not shrink a repetitive value")
	decoded, err := DeflateCompressor{}.Decode(encoded)
	test.AssertNotError(t, err, "decode")
	test.Assert(t, bytes.Equal(decoded, p), "decode did not invert encode")
}

func TestNullStore(t *testing.T) {
	t.Parallel()
	s := NullStore{}
	test.AssertNotError(t, s.Put("abcd", roundTripEntry), "put")
	entry, err := s.Get("abcd")
	test.AssertNotError(t, err, "get")
	test.Assert(t, entry == nil, "null store returned an entry")
	test.AssertNotError(t, s.Purge(), "purge")
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore(DeflateCompressor{})
	entry, err := s.Get("abcd")
	test.AssertNotError(t, err, "get before put")
	test.Assert(t, entry == nil, "expected a miss before put")

	test.AssertNotError(t, s.Put("abcd", roundTripEntry), "put")
	entry, err = s.Get("abcd")
	test.AssertNotError(t, err, "get after put")
	test.Assert(t, entry != nil, "expected a hit after put")
	test.AssertEquals(t, entry.ContentType, roundTripEntry.ContentType)
	test.Assert(t, bytes.Equal(entry.Body, roundTripEntry.Body), "body changed")

	test.AssertNotError(t, s.Purge(), "purge")
	entry, err = s.Get("abcd")
	test.AssertNotError(t, err, "get after purge")
	test.Assert(t, entry == nil, "expected a miss after purge")
}
