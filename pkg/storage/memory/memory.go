package memory

import (
	"context"
	"sync"

	"github.com/emonmirror/emonmirror/pkg/registry"
	"github.com/emonmirror/emonmirror/pkg/series"
	"github.com/emonmirror/emonmirror/pkg/storage"
)

// Store keeps the registry and all series in memory. Data is lost on
// restart. Useful for testing and development.
type Store struct {
	mu     sync.RWMutex
	reg    *registry.Registry
	series map[string]*series.Series
}

var _ storage.Store = (*Store)(nil)

// New creates an in-memory store.
func New() *Store {
	return &Store{
		series: make(map[string]*series.Series),
	}
}

// LoadRegistry returns the saved registry.
func (s *Store) LoadRegistry(ctx context.Context) (*registry.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.reg == nil {
		return nil, storage.ErrNoRegistry
	}
	cp := *s.reg
	cp.Feeds = append([]registry.Feed(nil), s.reg.Feeds...)
	return &cp, nil
}

// SaveRegistry persists the registry. The registry is created once;
// saving over an existing one is refused.
func (s *Store) SaveRegistry(ctx context.Context, r *registry.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reg != nil {
		return storage.ErrRegistryExists
	}
	cp := *r
	cp.Feeds = append([]registry.Feed(nil), r.Feeds...)
	s.reg = &cp
	return nil
}

// LoadSeries returns the named feed's series, or nil if none is stored.
func (s *Store) LoadSeries(ctx context.Context, name string) (*series.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.series[name].Clone(), nil
}

// SaveSeries replaces the named feed's series.
func (s *Store) SaveSeries(ctx context.Context, name string, sr *series.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series[name] = sr.Clone()
	return nil
}

// Close is a no-op for memory storage.
func (s *Store) Close() error {
	return nil
}
