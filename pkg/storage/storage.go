package storage

import (
	"context"
	"errors"

	"github.com/emonmirror/emonmirror/pkg/registry"
	"github.com/emonmirror/emonmirror/pkg/series"
)

// ErrNoRegistry is returned when no feed registry has been initialized
// in the store.
var ErrNoRegistry = errors.New("no feed registry in store")

// ErrRegistryExists is returned when initializing a registry over an
// existing one. Feeds can only be added by starting a fresh store.
var ErrRegistryExists = errors.New("feed registry already exists")

// Store is the local table store feeds are mirrored into.
// Implementations: memory (testing), badger (production).
//
// Series are keyed by feed name and stay ordered by time; the missing
// marker round-trips distinct from zero.
type Store interface {
	// LoadRegistry returns the feed registry, or ErrNoRegistry if none
	// has been saved yet.
	LoadRegistry(ctx context.Context) (*registry.Registry, error)

	// SaveRegistry persists the feed registry. Saving over an existing
	// registry returns ErrRegistryExists.
	SaveRegistry(ctx context.Context, r *registry.Registry) error

	// LoadSeries returns the stored series for the named feed, or nil if
	// the feed has no series yet.
	LoadSeries(ctx context.Context, name string) (*series.Series, error)

	// SaveSeries persists the named feed's series, replacing any
	// previous version.
	SaveSeries(ctx context.Context, name string, s *series.Series) error

	// Close cleanly shuts down the storage.
	Close() error
}
