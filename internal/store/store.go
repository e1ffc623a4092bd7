// Package store provides a thin bbolt wrapper for stationcube's local data store.
//
// Design philosophy: the store is an intentional data accumulator, not a
// transparent HTTP cache. Data is written explicitly via fetch and cube
// commands and read back by reshaping and inspection commands. No TTL, no
// auto-invalidation.
//
// Buckets:
//
//	datasets   long observation tables as compressed Arrow IPC streams
//	cubes      geo frames; station geometry (WKB) and one compressed
//	           container blob per variable × station
//	snapshots  saved command lines for reproducible workflows
//	_meta      schema version, created_at
//
// Every payload is wrapped in an envelope carrying the codec id and an
// xxhash64 checksum of the uncompressed bytes.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/stationcube/internal/codec"
)

// SchemaVersion is the layout written by this build. Bump when bucket
// layout or key format changes.
const SchemaVersion = 1

// compactTxSize bounds the bytes copied per transaction during Compact.
const compactTxSize = 1 << 20

// Bucket name constants.
var (
	bucketDatasets  = []byte("datasets")
	bucketCubes     = []byte("cubes")
	bucketSnapshots = []byte("snapshots")
	bucketInternal  = []byte("_meta")
)

// AllBuckets lists every top-level bucket for stats and clear operations.
var AllBuckets = []string{"datasets", "cubes", "snapshots"}

// ErrUnknownBucket is returned by ClearBucket for names not in AllBuckets.
var ErrUnknownBucket = errors.New("unknown bucket")

// Store wraps a bbolt database.
type Store struct {
	db    *bolt.DB
	codec codec.Codec
}

// Open opens (or creates) the bbolt database at path. New payloads are
// compressed with c; nil selects zstd. Payloads written with any built-in
// codec are readable regardless of c.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string, c codec.Codec) (*Store, error) {
	if c == nil {
		var err error
		if c, err = codec.Get(codec.Zstd); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db, codec: c}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// Codec returns the codec used for new writes.
func (s *Store) Codec() codec.Codec {
	return s.codec
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDatasets, bucketCubes, bucketSnapshots, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(strconv.Itoa(SchemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// Meta is the database-level information kept in the _meta bucket.
type Meta struct {
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// Meta reads the schema version and creation time recorded at first open.
func (s *Store) Meta() (Meta, error) {
	var m Meta
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketInternal)
		v, err := strconv.Atoi(string(meta.Get([]byte("schema_version"))))
		if err != nil {
			return fmt.Errorf("%w: schema_version: %v", ErrCorrupt, err)
		}
		m.SchemaVersion = v
		if raw := meta.Get([]byte("created_at")); raw != nil {
			if m.CreatedAt, err = time.Parse(time.RFC3339, string(raw)); err != nil {
				return fmt.Errorf("%w: created_at: %v", ErrCorrupt, err)
			}
		}
		return nil
	})
	return m, err
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds entry count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns entry counts and approximate sizes for all buckets, in
// AllBuckets order. Nested payloads count toward their entry's size.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			var count int
			err := b.ForEach(func(k, v []byte) error {
				count++
				return nil
			})
			if err != nil {
				return err
			}
			stats = append(stats, BucketStats{Name: name, Count: count, Bytes: bucketBytes(b)})
		}
		return nil
	})
	return stats, err
}

func bucketBytes(b *bolt.Bucket) int64 {
	var n int64
	_ = b.ForEach(func(k, v []byte) error {
		n += int64(len(k))
		if v == nil {
			if sub := b.Bucket(k); sub != nil {
				n += bucketBytes(sub)
			}
			return nil
		}
		n += int64(len(v))
		return nil
	})
	return n
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	known := false
	for _, b := range AllBuckets {
		if b == name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("clearing bucket %s: %w", name, ErrUnknownBucket)
	}
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file sizes before and after. The store stays usable.
func (s *Store) Compact() (before, after int64, err error) {
	path := s.db.Path()
	if fi, err := os.Stat(path); err == nil {
		before = fi.Size()
	}

	tmpPath := path + ".compact"
	_ = os.Remove(tmpPath)
	dst, err := bolt.Open(tmpPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("opening compaction target: %w", err)
	}
	if err := bolt.Compact(dst, s.db, compactTxSize); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return 0, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, 0, err
	}
	if err := s.db.Close(); err != nil {
		return 0, 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, 0, fmt.Errorf("replacing database: %w", err)
	}
	if s.db, err = bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second}); err != nil {
		return 0, 0, fmt.Errorf("reopening db %s: %w", path, err)
	}

	if fi, err := os.Stat(path); err == nil {
		after = fi.Size()
	}
	return before, after, nil
}
