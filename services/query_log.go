package services

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// A QueryLogEntry is one JSONL line describing a /sparql request and its
// response.
type QueryLogEntry struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	IP          string    `json:"ip"`
	Query       string    `json:"query"`
	CacheHit    bool      `json:"cache_hit"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type,omitempty"`
	Body        string    `json:"body,omitempty"`
}

// QueryLogger appends entries to a file, one JSON object per line.
type QueryLogger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewQueryLogger opens (or creates) the log file at path for appending.
func NewQueryLogger(path string) (*QueryLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &QueryLogger{f: f, enc: json.NewEncoder(f)}, nil
}

// Record writes one entry. Failures are logged, never surfaced: query
// logging must not fail requests.
func (ql *QueryLogger) Record(entry QueryLogEntry) {
	if ql == nil {
		return
	}
	ql.mu.Lock()
	defer ql.mu.Unlock()
	if err := ql.enc.Encode(entry); err != nil {
		log.Printf("query log: %s", err)
	}
}

// Close flushes and closes the underlying file.
func (ql *QueryLogger) Close() error {
	if ql == nil {
		return nil
	}
	ql.mu.Lock()
	defer ql.mu.Unlock()
	return ql.f.Close()
}
