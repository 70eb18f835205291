// Package registry holds the set of mirrored feeds and their sampling
// metadata. The registry is created once, on the first update run, and
// is read-only afterwards: adding feeds means starting a fresh store.
package registry

import "fmt"

// Feed is one mirrored remote time series. StartTime and Interval are
// discovered from the source when the registry is created and never
// change for the feed's lifetime.
type Feed struct {
	ID        int64  `json:"id"`         // source-side identifier
	Name      string `json:"name"`       // unique, used as the local storage key
	Unit      string `json:"unit"`       // physical unit, e.g. "W"
	StartTime int64  `json:"start_time"` // epoch seconds of the first available remote sample
	Interval  int64  `json:"interval"`   // fixed sampling period in seconds
}

// Registry is the single source of truth for which feeds exist.
type Registry struct {
	Feeds []Feed `json:"feeds"`
}

// Find returns the feed with the given name.
func (r *Registry) Find(name string) (Feed, bool) {
	for _, f := range r.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return Feed{}, false
}

// Names returns the feed names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.Feeds))
	for i, f := range r.Feeds {
		names[i] = f.Name
	}
	return names
}

// Validate checks the registry invariants: non-empty, unique ids and
// names, positive sampling intervals.
func (r *Registry) Validate() error {
	if len(r.Feeds) == 0 {
		return fmt.Errorf("registry has no feeds")
	}
	ids := make(map[int64]bool, len(r.Feeds))
	names := make(map[string]bool, len(r.Feeds))
	for _, f := range r.Feeds {
		if f.Name == "" {
			return fmt.Errorf("feed %d has no name", f.ID)
		}
		if ids[f.ID] {
			return fmt.Errorf("duplicate feed id %d", f.ID)
		}
		if names[f.Name] {
			return fmt.Errorf("duplicate feed name %q", f.Name)
		}
		if f.Interval <= 0 {
			return fmt.Errorf("feed %q has invalid interval %d", f.Name, f.Interval)
		}
		ids[f.ID] = true
		names[f.Name] = true
	}
	return nil
}
