package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// A Compressor transforms cache values before they are stored. The ID is
// part of every cache key, so registering a new codec abandons entries
// written under a previous one instead of trying to decode them.
type Compressor interface {
	ID() string
	Encode(p []byte) ([]byte, error)
	Decode(p []byte) ([]byte, error)
}

// GetCompressor returns the compressor with the given name ("raw" or
// "deflate").
func GetCompressor(name string) (Compressor, error) {
	switch name {
	case "", "raw":
		return RawCompressor{}, nil
	case "deflate":
		return DeflateCompressor{}, nil
	default:
		return nil, fmt.Errorf("cache: unknown compressor %q", name)
	}
}

// RawCompressor passes values through unchanged.
type RawCompressor struct{}

func (RawCompressor) ID() string { return "raw" }

func (RawCompressor) Encode(p []byte) ([]byte, error) { return p, nil }

func (RawCompressor) Decode(p []byte) ([]byte, error) { return p, nil }

// DeflateCompressor stores values DEFLATE-compressed.
type DeflateCompressor struct{}

func (DeflateCompressor) ID() string { return "deflate" }

func (DeflateCompressor) Encode(p []byte) ([]byte, error) {
	b := new(bytes.Buffer)
	w, err := flate.NewWriter(b, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (DeflateCompressor) Decode(p []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(p))
	defer r.Close()
	return io.ReadAll(r)
}
