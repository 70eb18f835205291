package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/emonmirror/emonmirror/pkg/config"
	"github.com/emonmirror/emonmirror/pkg/emoncms"
	"github.com/emonmirror/emonmirror/pkg/series"
)

// fakeSource serves synthetic dense data and scripted failures.
type fakeSource struct {
	interval int64
	endTime  int64 // current last sample per feed
	value    func(t int64) float64
	failAt   map[int64]bool // block start -> fail the fetch
	failFeed int64          // restrict failAt to one feed id (0 = any)
	fetches  []int64        // recorded block starts
	info     map[int64]emoncms.FeedInfo
	meta     map[int64]emoncms.FeedMeta
}

func (f *fakeSource) ListFeeds(ctx context.Context) ([]emoncms.FeedInfo, error) {
	var out []emoncms.FeedInfo
	for _, fi := range f.info {
		out = append(out, fi)
	}
	return out, nil
}

func (f *fakeSource) FeedInfo(ctx context.Context, id int64) (emoncms.FeedInfo, error) {
	fi, ok := f.info[id]
	if !ok {
		return emoncms.FeedInfo{}, &emoncms.RemoteError{Op: "aget", Message: "Feed does not exist"}
	}
	return fi, nil
}

func (f *fakeSource) FeedMeta(ctx context.Context, id int64) (emoncms.FeedMeta, error) {
	m, ok := f.meta[id]
	if !ok {
		return emoncms.FeedMeta{}, &emoncms.RemoteError{Op: "getmeta", Message: "Feed does not exist"}
	}
	return m, nil
}

func (f *fakeSource) FetchRange(ctx context.Context, id, start, end, interval int64) ([]emoncms.DataPoint, error) {
	f.fetches = append(f.fetches, start)
	if f.failAt[start] && (f.failFeed == 0 || f.failFeed == id) {
		return nil, &emoncms.TransportError{Op: "data", Err: errors.New("connection reset")}
	}
	var points []emoncms.DataPoint
	for t := start; t < end && t <= f.endTime; t += interval {
		points = append(points, emoncms.DataPoint{Time: t * 1000, Value: f.value(t)})
	}
	return points, nil
}

func newFakeSource(interval, endTime int64) *fakeSource {
	return &fakeSource{
		interval: interval,
		endTime:  endTime,
		value:    func(t int64) float64 { return float64(t) },
		failAt:   map[int64]bool{},
		info:     map[int64]emoncms.FeedInfo{},
		meta:     map[int64]emoncms.FeedMeta{},
	}
}

func TestUpdateFeed_SingleBlock(t *testing.T) {
	const interval = 10
	src := newFakeSource(interval, 490)

	result, err := UpdateFeed(context.Background(), src, nil, 1, 0, 500, interval)
	if err != nil {
		t.Fatalf("UpdateFeed failed: %v", err)
	}
	if result.Failure != nil {
		t.Fatalf("Unexpected failure: %v", result.Failure)
	}
	if result.Blocks != 1 {
		t.Errorf("Expected 1 block, got %d", result.Blocks)
	}
	if result.Series.Len() != 50 {
		t.Fatalf("Expected 50 ticks, got %d", result.Series.Len())
	}
	if result.Series.Values[49] != 490 {
		t.Errorf("Unexpected last value %v", result.Series.Values[49])
	}
}

func TestUpdateFeed_PartialFailureKeepsEarlierBlocks(t *testing.T) {
	const interval = 10
	blockSpan := int64(config.MaxBlockSamples) * interval
	rangeEnd := 3 * blockSpan

	src := newFakeSource(interval, rangeEnd)
	src.failAt[blockSpan] = true // block 2 fails

	result, err := UpdateFeed(context.Background(), src, nil, 1, 0, rangeEnd, interval)
	if err != nil {
		t.Fatalf("UpdateFeed failed: %v", err)
	}

	// Exactly block 1's data survives and block 3 was never attempted.
	if result.Failure == nil {
		t.Fatal("Expected a recorded failure")
	}
	var transportErr *emoncms.TransportError
	if !errors.As(result.Failure, &transportErr) {
		t.Errorf("Expected the transport failure, got %v", result.Failure)
	}
	if result.Blocks != 1 {
		t.Errorf("Expected 1 merged block, got %d", result.Blocks)
	}
	if result.Series.Len() != config.MaxBlockSamples {
		t.Errorf("Expected %d ticks, got %d", config.MaxBlockSamples, result.Series.Len())
	}
	if len(src.fetches) != 2 {
		t.Errorf("Expected 2 fetches (block 3 skipped), got %d", len(src.fetches))
	}
}

func TestUpdateFeed_ResumptionMatchesSinglePass(t *testing.T) {
	const interval = 10
	blockSpan := int64(config.MaxBlockSamples) * interval
	midEnd := blockSpan
	fullEnd := blockSpan + 500*interval

	src := newFakeSource(interval, fullEnd)

	// Two passes: up to midEnd, then resume to fullEnd.
	first, err := UpdateFeed(context.Background(), src, nil, 1, 0, midEnd, interval)
	if err != nil || first.Failure != nil {
		t.Fatalf("First pass failed: %v / %v", err, first.Failure)
	}
	resumed, err := UpdateFeed(context.Background(), src, first.Series, 1, 0, fullEnd, interval)
	if err != nil || resumed.Failure != nil {
		t.Fatalf("Resumed pass failed: %v / %v", err, resumed.Failure)
	}

	// One direct pass over the whole range.
	direct, err := UpdateFeed(context.Background(), newFakeSource(interval, fullEnd), nil, 1, 0, fullEnd, interval)
	if err != nil || direct.Failure != nil {
		t.Fatalf("Direct pass failed: %v / %v", err, direct.Failure)
	}

	if resumed.Series.Len() != direct.Series.Len() {
		t.Fatalf("Length mismatch: resumed %d, direct %d", resumed.Series.Len(), direct.Series.Len())
	}
	for i := range resumed.Series.Values {
		if resumed.Series.Values[i] != direct.Series.Values[i] {
			t.Fatalf("Value mismatch at index %d: %v vs %v", i, resumed.Series.Values[i], direct.Series.Values[i])
		}
	}
}

func TestUpdateFeed_NoNewDataIsNoop(t *testing.T) {
	const interval = 10
	src := newFakeSource(interval, 490)

	first, err := UpdateFeed(context.Background(), src, nil, 1, 0, 500, interval)
	if err != nil {
		t.Fatalf("UpdateFeed failed: %v", err)
	}

	again, err := UpdateFeed(context.Background(), src, first.Series, 1, 0, 500, interval)
	if err != nil {
		t.Fatalf("UpdateFeed failed: %v", err)
	}
	if again.Blocks != 0 {
		t.Errorf("Expected no blocks fetched, got %d", again.Blocks)
	}
	if again.Series.Len() != first.Series.Len() {
		t.Errorf("Re-run changed the series: %d vs %d", again.Series.Len(), first.Series.Len())
	}
	for i := range again.Series.Values {
		if again.Series.Values[i] != first.Series.Values[i] {
			t.Fatalf("Re-run changed value at %d", i)
		}
	}
}

func TestUpdateFeed_GapsAreExplicit(t *testing.T) {
	const interval = 10
	src := newFakeSource(interval, 490)
	// Drop two ticks from the remote response entirely.
	dropped := map[int64]bool{100: true, 200: true}
	gappy := &gappySource{fakeSource: src, dropped: dropped}

	result, err := UpdateFeed(context.Background(), gappy, nil, 1, 0, 500, interval)
	if err != nil {
		t.Fatalf("UpdateFeed failed: %v", err)
	}
	if result.Series.Len() != 50 {
		t.Fatalf("Expected 50 ticks, got %d", result.Series.Len())
	}
	for i := 0; i < result.Series.Len(); i++ {
		s := result.Series.At(i)
		missing := series.IsMissing(s.Value)
		if dropped[s.Time] != missing {
			t.Errorf("Tick %d: dropped=%v missing=%v", s.Time, dropped[s.Time], missing)
		}
	}
}

// gappySource filters ticks out of the fake's responses.
type gappySource struct {
	*fakeSource
	dropped map[int64]bool
}

func (g *gappySource) FetchRange(ctx context.Context, id, start, end, interval int64) ([]emoncms.DataPoint, error) {
	points, err := g.fakeSource.FetchRange(ctx, id, start, end, interval)
	if err != nil {
		return nil, err
	}
	kept := points[:0]
	for _, p := range points {
		if !g.dropped[p.Seconds()] {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func TestUpdateFeed_TimingCorruptionIsFatal(t *testing.T) {
	const interval = 10
	src := newFakeSource(interval, 490)
	bad := &skewedSource{fakeSource: src}

	_, err := UpdateFeed(context.Background(), bad, nil, 1, 0, 500, interval)
	if !errors.Is(err, series.ErrTiming) && !errors.Is(err, series.ErrGridFault) {
		t.Fatalf("Expected a timing error, got %v", err)
	}
}

// skewedSource shifts one interior timestamp off the grid.
type skewedSource struct {
	*fakeSource
}

func (s *skewedSource) FetchRange(ctx context.Context, id, start, end, interval int64) ([]emoncms.DataPoint, error) {
	points, err := s.fakeSource.FetchRange(ctx, id, start, end, interval)
	if err != nil || len(points) < 3 {
		return points, err
	}
	points[1].Time += 5000 // 5s skew on a 10s grid
	return points, nil
}
