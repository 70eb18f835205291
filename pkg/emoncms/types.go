package emoncms

import (
	"encoding/json"
	"fmt"

	"github.com/emonmirror/emonmirror/pkg/series"
)

// FeedInfo describes one remote feed as reported by the source.
type FeedInfo struct {
	ID    int64   `json:"id,string"`
	Name  string  `json:"name"`
	Unit  string  `json:"unit"`
	Time  int64   `json:"time"` // epoch seconds of the feed's current last sample
	Value float64 `json:"value"`
}

// FeedMeta carries the sampling metadata of one remote feed.
type FeedMeta struct {
	StartTime int64 `json:"start_time"` // epoch seconds of the first available sample
	Interval  int64 `json:"interval"`   // fixed sampling period in seconds
}

// DataPoint is one element of a fetched block: a millisecond timestamp
// and the value recorded at it. The source encodes unrecorded ticks as
// null, which becomes the missing marker here.
type DataPoint struct {
	Time  int64 // milliseconds since epoch
	Value float64
}

// Seconds returns the point's timestamp truncated to epoch seconds.
func (p DataPoint) Seconds() int64 { return p.Time / 1000 }

// Sample converts the point to an epoch-second sample.
func (p DataPoint) Sample() series.Sample {
	return series.Sample{Time: p.Seconds(), Value: p.Value}
}

// UnmarshalJSON decodes the wire form [timestampMillis, value|null].
func (p *DataPoint) UnmarshalJSON(data []byte) error {
	var pair []*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("data point has %d elements, want 2", len(pair))
	}
	if pair[0] == nil {
		return fmt.Errorf("data point timestamp is null")
	}
	p.Time = int64(*pair[0])
	if pair[1] == nil {
		p.Value = series.Missing()
	} else {
		p.Value = *pair[1]
	}
	return nil
}
