package series

import (
	"errors"
	"fmt"
)

// ErrTiming reports a fetched block whose timestamps do not line up with
// the feed's sampling grid. The block must not be merged; the feed's
// update run is aborted before the stored series is touched.
var ErrTiming = errors.New("block timing misaligned with sampling grid")

// ErrGridFault reports an internal consistency failure: a block sample
// passed timing validation but still falls between grid ticks.
var ErrGridFault = errors.New("sample timestamp off the sampling grid")

// Merge folds one fetched block into an existing series and returns the
// extended series. The block is an ordered list of epoch-second samples
// from the remote source; it may be empty and may contain ticks outside
// the requested bounds, which are dropped. Every expected tick between
// the resumption point and the block's last timestamp gets an entry,
// real or missing, so the result stays a gap-free grid.
//
// Merge is pure: neither input is mutated and persistence is the
// caller's responsibility.
func Merge(existing *Series, block []Sample, interval, lo, hi int64) (*Series, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %d", interval)
	}
	if len(block) == 0 {
		return existing, nil
	}

	first := block[0].Time
	last := block[len(block)-1].Time
	if (last-first)%interval != 0 {
		return nil, fmt.Errorf("%w: block spans [%d, %d], span not a multiple of %ds",
			ErrTiming, first, last, interval)
	}

	start := first
	if !existing.Empty() {
		if existing.Interval != interval {
			return nil, fmt.Errorf("%w: series interval %ds, block interval %ds",
				ErrTiming, existing.Interval, interval)
		}
		tail := existing.End()
		if (first-tail)%interval != 0 {
			return nil, fmt.Errorf("%w: gap from series tail %d to block start %d not a multiple of %ds",
				ErrTiming, tail, first, interval)
		}
		start = tail + interval
	}
	if last < start {
		// Every block tick is already covered by the existing series.
		return existing, nil
	}

	n := (last-start)/interval + 1
	values := make([]float64, n)
	for i := range values {
		values[i] = Missing()
	}
	for _, p := range block {
		if p.Time < lo || p.Time > hi || p.Time < start {
			continue
		}
		off := p.Time - start
		if off%interval != 0 {
			return nil, fmt.Errorf("%w: sample at %d, grid start %d, interval %ds",
				ErrGridFault, p.Time, start, interval)
		}
		values[off/interval] = p.Value
	}

	if existing.Empty() {
		return &Series{Start: start, Interval: interval, Values: values}, nil
	}
	merged := make([]float64, 0, len(existing.Values)+len(values))
	merged = append(merged, existing.Values...)
	merged = append(merged, values...)
	return &Series{Start: existing.Start, Interval: interval, Values: merged}, nil
}
