// Package codecache stores generated machine code on disk so repeated runs
// of the same program skip code generation.
package codecache

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"golang.org/x/crypto/blake2b"
)

// FormatVersion is mixed into every key. Bump it whenever the generated code
// for a given source changes so stale entries are never returned.
const FormatVersion = 1

// keyPrefix namespaces cache entries; keyEnd is the first key after them
var (
	keyPrefix = []byte("code/")
	keyEnd    = []byte("code0")
)

// Stats counts lookups since the cache was opened
type Stats struct {
	Hits   uint64
	Misses uint64
}

// Cache is a pebble-backed map from source text to generated code.
// It is safe for concurrent use.
type Cache struct {
	db     *pebble.DB
	arch   string
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Open opens or creates a cache in dir
func Open(dir string) (*Cache, error) {
	return open(dir, &pebble.Options{})
}

func open(dir string, opts *pebble.Options) (*Cache, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("codecache: open %s: %w", dir, err)
	}
	return &Cache{db: db, arch: runtime.GOARCH}, nil
}

// Key returns the database key for source:
// "code/" followed by blake2b-256(version, target arch, source)
func (c *Cache) Key(source string) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{FormatVersion})
	h.Write([]byte(c.arch))
	h.Write([]byte{0})
	h.Write([]byte(source))

	key := make([]byte, 0, len(keyPrefix)+blake2b.Size256)
	key = append(key, keyPrefix...)
	return h.Sum(key)
}

// Get returns the code stored for source. The bool is false on a miss.
func (c *Cache) Get(source string) ([]byte, bool, error) {
	value, closer, err := c.db.Get(c.Key(source))
	if errors.Is(err, pebble.ErrNotFound) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("codecache: get: %w", err)
	}
	defer closer.Close()

	if len(value) == 0 {
		c.misses.Add(1)
		return nil, false, nil
	}

	code := make([]byte, len(value))
	copy(code, value)
	c.hits.Add(1)
	return code, true, nil
}

// Put stores code for source, replacing any previous entry
func (c *Cache) Put(source string, code []byte) error {
	if len(code) == 0 {
		return errors.New("codecache: refusing to store empty code")
	}
	if err := c.db.Set(c.Key(source), code, pebble.Sync); err != nil {
		return fmt.Errorf("codecache: put: %w", err)
	}
	return nil
}

// Delete removes the entry for source if there is one
func (c *Cache) Delete(source string) error {
	if err := c.db.Delete(c.Key(source), pebble.Sync); err != nil {
		return fmt.Errorf("codecache: delete: %w", err)
	}
	return nil
}

// Clear removes every entry
func (c *Cache) Clear() error {
	if err := c.db.DeleteRange(keyPrefix, keyEnd, pebble.Sync); err != nil {
		return fmt.Errorf("codecache: clear: %w", err)
	}
	return nil
}

// Len counts the stored entries
func (c *Cache) Len() (int, error) {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyEnd,
	})
	if err != nil {
		return 0, fmt.Errorf("codecache: iterate: %w", err)
	}
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("codecache: iterate: %w", err)
	}
	return n, nil
}

// Stats returns the hit and miss counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Close flushes and closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}
