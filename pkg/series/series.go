package series

import "math"

// Sample is one tick of a feed: an epoch-second timestamp and the power
// value observed at it. A tick the source never delivered carries the
// missing marker, not zero.
type Sample struct {
	Time  int64
	Value float64
}

// Missing returns the marker stored for absent values.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Series is a dense, regularly sampled time series. Values[i] holds the
// sample at Start + i*Interval seconds. The grid is gap-free: every
// expected tick between Start and End has an entry, real or missing.
type Series struct {
	Start    int64     // epoch seconds of the first tick
	Interval int64     // seconds between consecutive ticks
	Values   []float64 // missing ticks hold the missing marker
}

// New creates an empty series on the given sampling grid.
func New(interval int64) *Series {
	return &Series{Interval: interval}
}

// Len returns the number of ticks in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}

// Empty reports whether the series has no ticks.
func (s *Series) Empty() bool { return s.Len() == 0 }

// End returns the timestamp of the last tick. Only valid on a non-empty
// series.
func (s *Series) End() int64 {
	return s.Start + int64(len(s.Values)-1)*s.Interval
}

// At returns the sample at index i.
func (s *Series) At(i int) Sample {
	return Sample{Time: s.Start + int64(i)*s.Interval, Value: s.Values[i]}
}

// FloorIndex returns the index of the nearest tick at or before t, or -1
// if t precedes the series.
func (s *Series) FloorIndex(t int64) int {
	if s.Empty() || t < s.Start {
		return -1
	}
	i := int((t - s.Start) / s.Interval)
	if i >= len(s.Values) {
		return len(s.Values) - 1
	}
	return i
}

// Samples materializes the grid as explicit (time, value) pairs.
func (s *Series) Samples() []Sample {
	if s.Empty() {
		return nil
	}
	out := make([]Sample, len(s.Values))
	for i := range s.Values {
		out[i] = s.At(i)
	}
	return out
}

// Clone returns a deep copy so callers can hand series across ownership
// boundaries without aliasing the value slice.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	values := make([]float64, len(s.Values))
	copy(values, s.Values)
	return &Series{Start: s.Start, Interval: s.Interval, Values: values}
}

// MissingCount returns how many ticks hold the missing marker.
func (s *Series) MissingCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, v := range s.Values {
		if IsMissing(v) {
			n++
		}
	}
	return n
}
