// Package cache keeps fetched remote documents, such as the Chainlink feed
// listings, in a small sqlite database shared by every console process.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// Document is a cached body and how old it is relative to its TTL.
type Document struct {
	Hit   bool
	Body  []byte
	Age   time.Duration
	Stale bool
	// Expired is set once the document is older than TTL plus the grace
	// period passed to Get; it must not be served even as a fallback.
	Expired bool
}

func Open(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open document cache: %w", err)
	}
	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS documents (
			key TEXT PRIMARY KEY,
			body BLOB NOT NULL,
			fetched_at INTEGER NOT NULL,
			ttl_seconds INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init document cache: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath)}
	_ = store.Prune(0)
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Key joins parts into a cache key, e.g. Key("chainlink-feeds", "8453").
func Key(parts ...string) string {
	return strings.ToLower(strings.Join(parts, ":"))
}

// Prune deletes documents older than their TTL plus grace.
func (s *Store) Prune(grace time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := time.Now().UTC().Add(-grace).Unix()
	if _, err := s.db.Exec("DELETE FROM documents WHERE fetched_at + ttl_seconds < ?", cutoff); err != nil {
		return fmt.Errorf("prune document cache: %w", err)
	}
	return nil
}

// Get looks key up. grace is how long past its TTL a document may still be
// used as a fallback; a negative grace never expires it.
func (s *Store) Get(key string, grace time.Duration) (Document, error) {
	var (
		body       []byte
		fetchedAt  int64
		ttlSeconds int64
	)
	err := s.db.QueryRow("SELECT body, fetched_at, ttl_seconds FROM documents WHERE key = ?", key).Scan(&body, &fetchedAt, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("read document cache: %w", err)
	}

	age := time.Since(time.Unix(fetchedAt, 0).UTC())
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	stale := age > ttl
	return Document{
		Hit:     true,
		Body:    body,
		Age:     age,
		Stale:   stale,
		Expired: stale && grace >= 0 && age > ttl+grace,
	}, nil
}

// Put stores body under key. Writers serialize on the lock file.
func (s *Store) Put(key string, body []byte, ttl time.Duration) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock document cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock document cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO documents (key, body, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body=excluded.body,
			fetched_at=excluded.fetched_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, body, time.Now().UTC().Unix(), ttlSeconds)
	if err != nil {
		return fmt.Errorf("write document cache: %w", err)
	}
	return nil
}
