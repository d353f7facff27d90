// Package cache stores query results keyed by normalized query
// fingerprint.
package cache

import "encoding/json"

// An Entry is one cached response.
type Entry struct {
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// A Store persists entries under opaque keys. Get returns (nil, nil) on a
// miss. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) (*Entry, error)
	Put(key string, entry *Entry) error
	Purge() error
}

// serialize converts an entry to the bytes a store should persist,
// running them through the store's compressor.
func serialize(c Compressor, entry *Entry) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return c.Encode(raw)
}

// deserialize inverts serialize.
func deserialize(c Compressor, p []byte) (*Entry, error) {
	raw, err := c.Decode(p)
	if err != nil {
		return nil, err
	}
	entry := new(Entry)
	if err := json.Unmarshal(raw, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
