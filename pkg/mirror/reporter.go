package mirror

import "log"

// Event types emitted over the course of an update pass.
const (
	EventRunStarted  = "run_started"
	EventFeedStarted = "feed_started"
	EventFeedUpdated = "feed_updated"
	EventFeedPartial = "feed_partial"
	EventFeedFailed  = "feed_failed"
	EventRunFinished = "run_finished"
)

// Event is one progress notification from an update pass.
type Event struct {
	Type   string `json:"type"`
	Feed   string `json:"feed,omitempty"`
	Blocks int    `json:"blocks,omitempty"`
	Ticks  int    `json:"ticks,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Reporter observes update-run progress. Implementations must be safe
// for use from the run's goroutine.
type Reporter interface {
	Event(e Event)
}

// LogReporter writes run progress to the standard logger.
type LogReporter struct{}

// Event implements Reporter.
func (LogReporter) Event(e Event) {
	switch e.Type {
	case EventFeedStarted:
		log.Printf("Updating feed %q", e.Feed)
	case EventFeedUpdated:
		log.Printf("Feed %q up to date: %d blocks merged, %d ticks stored", e.Feed, e.Blocks, e.Ticks)
	case EventFeedPartial:
		log.Printf("Warning: feed %q updated partially (%d blocks merged): %s", e.Feed, e.Blocks, e.Error)
	case EventFeedFailed:
		log.Printf("Feed %q failed: %s", e.Feed, e.Error)
	case EventRunFinished:
		log.Printf("Update pass finished")
	}
}
