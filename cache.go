package germ

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// tagsCacheVersion mirrors motleycoder's FileGroup.CACHE_VERSION: bump it
// whenever the cached tag shape changes, so stale entries are ignored.
const tagsCacheVersion = 4

var tagsCacheBucket = []byte("tags")

// tagsCacheEntry is the gob-encoded value stored per cache key.
type tagsCacheEntry struct {
	Mtime float64
	Data  []Tag
}

// TagsCache is a persistent, mtime-keyed memoization cache for parsed
// tags, backed by a single bbolt database. It implements the
// `cached_function_call` contract from motleycoder's FileGroup: a
// function of (file contents at a given mtime) is computed once and
// reused until the file changes.
type TagsCache struct {
	db *bolt.DB
}

// OpenTagsCache opens (creating if absent) the tags cache database under
// <root>/.germ.tags.cache.v<N>/tags.db.
func OpenTagsCache(root string) (*TagsCache, error) {
	dir := filepath.Join(root, fmt.Sprintf(".germ.tags.cache.v%d", tagsCacheVersion))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating tags cache dir: %w", err)
	}
	path := filepath.Join(dir, "tags.db")
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening tags cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tagsCacheBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing tags cache bucket: %w", err)
	}
	return &TagsCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *TagsCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CachedFunctionCall returns fn(fname)'s cached result if fname's mtime
// hasn't changed since the cache entry was written; otherwise it calls
// fn, stores the result keyed by fname's current mtime, and returns it.
func (c *TagsCache) CachedFunctionCall(fname, key string, fn func(fname string) ([]Tag, error)) ([]Tag, error) {
	info, err := os.Stat(fname)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", fname, err)
	}
	mtime := float64(info.ModTime().UnixNano()) / 1e9
	cacheKey := fname + "::" + key

	if c != nil && c.db != nil {
		if entry, ok := c.get(cacheKey); ok && entry.Mtime == mtime {
			return entry.Data, nil
		}
	}

	data, err := fn(fname)
	if err != nil {
		return nil, err
	}

	if c != nil && c.db != nil {
		if err := c.set(cacheKey, tagsCacheEntry{Mtime: mtime, Data: data}); err != nil {
			log.Warn().Err(err).Str("file", fname).Msg("failed to update tags cache")
		}
	}

	return data, nil
}

func (c *TagsCache) get(key string) (tagsCacheEntry, bool) {
	var entry tagsCacheEntry
	var found bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(tagsCacheBucket)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		dec := gob.NewDecoder(bytes.NewReader(v))
		if err := dec.Decode(&entry); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return entry, found
}

func (c *TagsCache) set(key string, entry tagsCacheEntry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tagsCacheBucket)
		return b.Put([]byte(key), buf.Bytes())
	})
}
