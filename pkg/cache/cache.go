// Package cache stores mirrored content on disk keyed by resolved
// URL, with time-based expiry checked lazily on read.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/lee101/webfiddle/pkg/mirror"
)

// DefaultTTL is how long a mirrored page stays servable.
const DefaultTTL = 30 * 24 * time.Hour

// ErrNotFound is returned when no live entry exists for a URL. Both
// a true miss and an expired entry report it; callers never see
// stale content.
var ErrNotFound = errors.New("cache: entry not found")

type entry struct {
	Content   mirror.Content
	ExpiresAt int64
}

// Store is a leveldb-backed content cache. Concurrent writers to the
// same key are allowed; last write wins.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Key returns the cache key for a fully-qualified URL: a fixed tag
// plus the sha256 hex digest, so arbitrarily long URLs map to a
// bounded key.
func Key(resolvedURL string) string {
	sum := sha256.Sum256([]byte(resolvedURL))
	return "hash_" + hex.EncodeToString(sum[:])
}

// Get returns the live entry for resolvedURL, or ErrNotFound. An
// expired entry is deleted as a side effect of the read; there is no
// background sweep.
func (s *Store) Get(resolvedURL string) (*mirror.Content, error) {
	key := []byte(Key(resolvedURL))
	raw, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read %s: %w", resolvedURL, err)
	}

	var e entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		// Unreadable entries are dropped and treated as misses.
		_ = s.db.Delete(key, nil)
		return nil, ErrNotFound
	}
	if time.Now().Unix() >= e.ExpiresAt {
		_ = s.db.Delete(key, nil)
		return nil, ErrNotFound
	}
	return &e.Content, nil
}

// Put upserts the entry for resolvedURL with the given ttl.
func (s *Store) Put(resolvedURL string, content *mirror.Content, ttl time.Duration) error {
	e := entry{
		Content:   *content,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("cache: encode %s: %w", resolvedURL, err)
	}
	if err := s.db.Put([]byte(Key(resolvedURL)), buf.Bytes(), nil); err != nil {
		return fmt.Errorf("cache: write %s: %w", resolvedURL, err)
	}
	return nil
}
