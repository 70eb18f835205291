// Package mirror drives incremental update passes: it pulls bounded
// blocks of remote samples per feed and folds them into the locally
// stored dense series.
package mirror

import (
	"context"

	"github.com/emonmirror/emonmirror/pkg/config"
	"github.com/emonmirror/emonmirror/pkg/emoncms"
	"github.com/emonmirror/emonmirror/pkg/series"
)

// Result is the outcome of one feed's update run. A remote-source
// failure partway through ends the run early but keeps everything merged
// before it: Series then holds the partial progress and Failure the
// cause, so the caller can persist what arrived and decide about a
// retry.
type Result struct {
	Series  *series.Series
	Blocks  int   // blocks fetched and merged
	Failure error // remote-source failure that ended the run early, nil on a clean run
}

// UpdateFeed extends existing with remote samples from the feed until it
// is caught up to rangeEnd (exclusive). The update resumes from the
// stored tail when existing is non-empty, otherwise from rangeStart, and
// fetches blocks of at most config.MaxBlockSamples ticks strictly in
// increasing time order.
//
// A timing-consistency violation is returned as an error: nothing from
// the offending block is merged and the caller must not persist.
// Remote-source failures are reported through Result.Failure instead.
func UpdateFeed(ctx context.Context, src emoncms.Source, existing *series.Series, feedID, rangeStart, rangeEnd, interval int64) (Result, error) {
	start := rangeStart
	if !existing.Empty() {
		start = existing.End() + interval
	}

	current := existing
	blocks := 0
	blockSpan := int64(config.MaxBlockSamples) * interval

	for blockStart := start; blockStart < rangeEnd; blockStart += blockSpan {
		if err := ctx.Err(); err != nil {
			return Result{Series: current, Blocks: blocks, Failure: err}, nil
		}

		blockEnd := blockStart + blockSpan
		if blockEnd > rangeEnd {
			blockEnd = rangeEnd
		}

		points, err := src.FetchRange(ctx, feedID, blockStart, blockEnd, interval)
		if err != nil {
			// Best effort: keep the progress merged so far, skip the
			// remaining blocks.
			return Result{Series: current, Blocks: blocks, Failure: err}, nil
		}

		block := make([]series.Sample, len(points))
		for i, p := range points {
			block[i] = p.Sample()
		}

		merged, err := series.Merge(current, block, interval, blockStart, blockEnd-interval)
		if err != nil {
			return Result{}, err
		}
		current = merged
		blocks++
	}

	return Result{Series: current, Blocks: blocks}, nil
}
