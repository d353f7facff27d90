package cache

import (
	"database/sql"

	"github.com/Shyp/go-dberror"
	_ "github.com/lib/pq"
)

// PostgresStore keeps entries in a single cache_entries table, so several
// proxy processes pointed at the same database can share a cache.
type PostgresStore struct {
	conn       *sql.DB
	compressor Compressor
	getStmt    *sql.Stmt
	putStmt    *sql.Stmt
}

const createTableQuery = `-- PostgresStore.create
CREATE TABLE IF NOT EXISTS cache_entries (
	key text PRIMARY KEY,
	value bytea NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
)`

// NewPostgresStore connects to the database at url and prepares the cache
// table and queries.
func NewPostgresStore(url string, c Compressor) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	if _, err := conn.Exec(createTableQuery); err != nil {
		return nil, dberror.GetError(err)
	}
	s := &PostgresStore{conn: conn, compressor: c}
	s.getStmt, err = conn.Prepare(`-- PostgresStore.Get
SELECT value FROM cache_entries WHERE key = $1`)
	if err != nil {
		return nil, err
	}
	s.putStmt, err = conn.Prepare(`-- PostgresStore.Put
INSERT INTO cache_entries (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, created_at = now()`)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Get(key string) (*Entry, error) {
	var p []byte
	err := s.getStmt.QueryRow(key).Scan(&p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dberror.GetError(err)
	}
	return deserialize(s.compressor, p)
}

func (s *PostgresStore) Put(key string, entry *Entry) error {
	p, err := serialize(s.compressor, entry)
	if err != nil {
		return err
	}
	if _, err := s.putStmt.Exec(key, p); err != nil {
		return dberror.GetError(err)
	}
	return nil
}

func (s *PostgresStore) Purge() error {
	if _, err := s.conn.Exec(`-- PostgresStore.Purge
DELETE FROM cache_entries`); err != nil {
		return dberror.GetError(err)
	}
	return nil
}
