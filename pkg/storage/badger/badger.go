package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/emonmirror/emonmirror/pkg/config"
	"github.com/emonmirror/emonmirror/pkg/registry"
	"github.com/emonmirror/emonmirror/pkg/series"
	"github.com/emonmirror/emonmirror/pkg/storage"
)

// Store implements storage.Store using BadgerDB (LSM tree).
//
// Key layout:
//
//	"registry"                    feed registry (JSON)
//	'm' + feedhash(8)             series metadata (JSON)
//	'c' + feedhash(8) + seq(4)    zstd-compressed value chunk
//
// Chunk keys sort by sequence number, so iterating a feed's chunk prefix
// returns the series in time order.
type Store struct {
	db    *badger.DB
	codec *codec
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly default)
	MaxMemoryMB int64
}

var _ storage.Store = (*Store)(nil)

var registryKey = []byte("registry")

// New opens a BadgerDB-backed store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	maxMemoryMB := cfg.MaxMemoryMB
	if maxMemoryMB <= 0 {
		maxMemoryMB = config.DefaultMaxMemoryMB
	}
	memTableSize := maxMemoryMB * 1024 * 1024 / 3

	// A single-operator mirror runs on modest machines; keep Badger's
	// memory consumers bounded well below its defaults.
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	c, err := newCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, codec: c}, nil
}

// LoadRegistry returns the stored feed registry.
func (s *Store) LoadRegistry(ctx context.Context) (*registry.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var reg registry.Registry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(registryKey)
		if err == badger.ErrKeyNotFound {
			return storage.ErrNoRegistry
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &reg)
		})
	})
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// SaveRegistry persists the feed registry. An existing registry is never
// replaced.
func (s *Store) SaveRegistry(ctx context.Context, r *registry.Registry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(registryKey); err == nil {
			return storage.ErrRegistryExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(registryKey, value)
	})
}

// seriesMeta is the per-feed header chunk decoding needs.
type seriesMeta struct {
	Name     string `json:"name"`
	Start    int64  `json:"start"`
	Interval int64  `json:"interval"`
	Length   int    `json:"length"`
}

// LoadSeries returns the named feed's series, or nil if none is stored.
func (s *Store) LoadSeries(ctx context.Context, name string) (*series.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := feedHash(name)
	var result *series.Series

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(hash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var meta seriesMeta
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return fmt.Errorf("failed to decode series meta: %w", err)
		}
		if meta.Name != name {
			return fmt.Errorf("feed name hash collision: %q vs %q", meta.Name, name)
		}

		values := make([]float64, 0, meta.Length)
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = chunkPrefix(hash)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk []float64
			err := it.Item().Value(func(val []byte) error {
				var derr error
				chunk, derr = s.codec.decodeValues(val)
				return derr
			})
			if err != nil {
				return err
			}
			values = append(values, chunk...)
		}

		if len(values) < meta.Length {
			return fmt.Errorf("series %q truncated: have %d ticks, meta says %d",
				name, len(values), meta.Length)
		}
		result = &series.Series{Start: meta.Start, Interval: meta.Interval, Values: values[:meta.Length]}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveSeries replaces the named feed's series.
func (s *Store) SaveSeries(ctx context.Context, name string, sr *series.Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sr == nil {
		return fmt.Errorf("cannot save nil series for feed %q", name)
	}

	hash := feedHash(name)
	meta := seriesMeta{Name: name, Start: sr.Start, Interval: sr.Interval, Length: len(sr.Values)}
	metaValue, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode series meta: %w", err)
	}

	chunks := len(sr.Values) / config.SeriesChunkTicks
	if len(sr.Values)%config.SeriesChunkTicks != 0 {
		chunks++
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(hash), metaValue); err != nil {
			return err
		}
		for seq := 0; seq < chunks; seq++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			lo := seq * config.SeriesChunkTicks
			hi := lo + config.SeriesChunkTicks
			if hi > len(sr.Values) {
				hi = len(sr.Values)
			}
			if err := txn.Set(chunkKey(hash, uint32(seq)), s.codec.encodeValues(sr.Values[lo:hi])); err != nil {
				return err
			}
		}
		// Drop stale chunks past the new tail (a shrink never happens in
		// normal appends, but a replace must not leave orphans).
		return s.dropChunksFrom(txn, hash, uint32(chunks))
	})
}

// dropChunksFrom deletes the feed's chunks with sequence >= from.
func (s *Store) dropChunksFrom(txn *badger.Txn, hash uint64, from uint32) error {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = chunkPrefix(hash)
	iterOpts.PrefetchValues = false

	it := txn.NewIterator(iterOpts)
	defer it.Close()

	var stale [][]byte
	for it.Seek(chunkKey(hash, from)); it.Valid(); it.Next() {
		stale = append(stale, it.Item().KeyCopy(nil))
	}
	for _, key := range stale {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down BadgerDB cleanly.
func (s *Store) Close() error {
	s.codec.close()
	return s.db.Close()
}

// feedHash maps a feed name to its fixed-width key prefix.
func feedHash(name string) uint64 {
	return xxhash.Sum64String(name)
}

func metaKey(hash uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'm'
	binary.BigEndian.PutUint64(key[1:], hash)
	return key
}

func chunkPrefix(hash uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'c'
	binary.BigEndian.PutUint64(key[1:], hash)
	return key
}

func chunkKey(hash uint64, seq uint32) []byte {
	key := make([]byte, 13)
	key[0] = 'c'
	binary.BigEndian.PutUint64(key[1:], hash)
	binary.BigEndian.PutUint32(key[9:], seq)
	return key
}
