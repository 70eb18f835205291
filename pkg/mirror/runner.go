package mirror

import (
	"context"
	"fmt"

	"github.com/emonmirror/emonmirror/pkg/emoncms"
	"github.com/emonmirror/emonmirror/pkg/registry"
	"github.com/emonmirror/emonmirror/pkg/storage"
)

// Runner drives update passes over every registered feed.
type Runner struct {
	src      emoncms.Source
	store    storage.Store
	reporter Reporter
}

// NewRunner creates a runner over the given source and store.
func NewRunner(src emoncms.Source, store storage.Store) *Runner {
	return &Runner{src: src, store: store}
}

// SetReporter attaches a progress observer. A nil reporter disables
// reporting.
func (r *Runner) SetReporter(rep Reporter) { r.reporter = rep }

func (r *Runner) emit(e Event) {
	if r.reporter != nil {
		r.reporter.Event(e)
	}
}

// InitRegistry discovers metadata for the given remote feed ids and
// persists the registry. It refuses to run when a registry already
// exists: adding feeds requires a fresh store.
func (r *Runner) InitRegistry(ctx context.Context, ids []int64) (*registry.Registry, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no feed ids given")
	}
	if _, err := r.store.LoadRegistry(ctx); err == nil {
		return nil, storage.ErrRegistryExists
	} else if err != storage.ErrNoRegistry {
		return nil, err
	}

	reg := &registry.Registry{}
	for _, id := range ids {
		info, err := r.src.FeedInfo(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("feed %d: %w", id, err)
		}
		meta, err := r.src.FeedMeta(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("feed %d: %w", id, err)
		}
		reg.Feeds = append(reg.Feeds, registry.Feed{
			ID:        id,
			Name:      info.Name,
			Unit:      info.Unit,
			StartTime: meta.StartTime,
			Interval:  meta.Interval,
		})
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if err := r.store.SaveRegistry(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// RunSummary describes the outcome of one update pass.
type RunSummary struct {
	Feeds   int `json:"feeds"`
	Updated int `json:"updated"` // feeds persisted, fully caught up
	Partial int `json:"partial"` // feeds persisted with a remote failure partway
	Failed  int `json:"failed"`  // feeds left untouched
}

// RunUpdate runs one update pass: every registered feed is advanced to
// its current remote end time. Remote failures mid-feed persist the
// partial progress and move on to the next feed; timing-consistency
// errors skip persistence for that feed entirely.
func (r *Runner) RunUpdate(ctx context.Context) (*RunSummary, error) {
	reg, err := r.store.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}

	r.emit(Event{Type: EventRunStarted})
	summary := &RunSummary{Feeds: len(reg.Feeds)}

	for _, feed := range reg.Feeds {
		r.emit(Event{Type: EventFeedStarted, Feed: feed.Name})

		existing, err := r.store.LoadSeries(ctx, feed.Name)
		if err != nil {
			summary.Failed++
			r.emit(Event{Type: EventFeedFailed, Feed: feed.Name, Error: err.Error()})
			continue
		}

		info, err := r.src.FeedInfo(ctx, feed.ID)
		if err != nil {
			summary.Failed++
			r.emit(Event{Type: EventFeedFailed, Feed: feed.Name, Error: err.Error()})
			continue
		}
		// Advance through the feed's current last sample.
		rangeEnd := info.Time + feed.Interval

		result, err := UpdateFeed(ctx, r.src, existing, feed.ID, feed.StartTime, rangeEnd, feed.Interval)
		if err != nil {
			// Timing corruption: leave the stored series untouched.
			summary.Failed++
			r.emit(Event{Type: EventFeedFailed, Feed: feed.Name, Error: err.Error()})
			continue
		}

		if result.Series.Empty() {
			// Nothing fetched and nothing stored before; skip the write.
			if result.Failure != nil {
				summary.Failed++
				r.emit(Event{Type: EventFeedFailed, Feed: feed.Name, Error: result.Failure.Error()})
			} else {
				summary.Updated++
				r.emit(Event{Type: EventFeedUpdated, Feed: feed.Name})
			}
			continue
		}

		if err := r.store.SaveSeries(ctx, feed.Name, result.Series); err != nil {
			summary.Failed++
			r.emit(Event{Type: EventFeedFailed, Feed: feed.Name, Error: err.Error()})
			continue
		}

		if result.Failure != nil {
			summary.Partial++
			r.emit(Event{
				Type:   EventFeedPartial,
				Feed:   feed.Name,
				Blocks: result.Blocks,
				Ticks:  result.Series.Len(),
				Error:  result.Failure.Error(),
			})
		} else {
			summary.Updated++
			r.emit(Event{
				Type:   EventFeedUpdated,
				Feed:   feed.Name,
				Blocks: result.Blocks,
				Ticks:  result.Series.Len(),
			})
		}
	}

	r.emit(Event{Type: EventRunFinished})
	return summary, nil
}
