package series

import (
	"errors"
	"testing"
)

func grid(start, interval int64, values ...float64) *Series {
	return &Series{Start: start, Interval: interval, Values: values}
}

func TestMerge_EmptyExisting(t *testing.T) {
	block := []Sample{
		{Time: 100, Value: 1},
		{Time: 110, Value: 2},
		{Time: 130, Value: 4},
	}

	got, err := Merge(nil, block, 10, 100, 130)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if got.Start != 100 || got.Len() != 4 {
		t.Fatalf("Expected grid 100..130 (4 ticks), got start=%d len=%d", got.Start, got.Len())
	}
	// Tick 120 was never delivered; it must exist as an explicit missing entry.
	if !IsMissing(got.Values[2]) {
		t.Errorf("Expected tick 120 to be missing, got %v", got.Values[2])
	}
	if got.Values[0] != 1 || got.Values[1] != 2 || got.Values[3] != 4 {
		t.Errorf("Unexpected merged values: %v", got.Values)
	}
}

func TestMerge_AppendsToExisting(t *testing.T) {
	existing := grid(100, 10, 1, 2)

	block := []Sample{
		{Time: 120, Value: 3},
		{Time: 140, Value: 5},
	}

	got, err := Merge(existing, block, 10, 120, 140)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if got.Len() != 5 {
		t.Fatalf("Expected 5 ticks, got %d", got.Len())
	}
	// Consecutive timestamps must differ by exactly one interval.
	for i := 1; i < got.Len(); i++ {
		if got.At(i).Time-got.At(i-1).Time != 10 {
			t.Fatalf("Grid density violated at index %d", i)
		}
	}
	if !IsMissing(got.Values[3]) {
		t.Errorf("Expected tick 130 to be missing, got %v", got.Values[3])
	}

	// Merge must not mutate its inputs.
	if existing.Len() != 2 {
		t.Errorf("Existing series mutated: len=%d", existing.Len())
	}
}

func TestMerge_EmptyBlockIsNoop(t *testing.T) {
	existing := grid(100, 10, 1, 2)

	got, err := Merge(existing, nil, 10, 120, 200)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got.Len() != 2 || got.Values[0] != 1 || got.Values[1] != 2 {
		t.Errorf("Empty block changed the series: %v", got.Values)
	}
}

func TestMerge_MisalignedBlockSpan(t *testing.T) {
	block := []Sample{
		{Time: 100, Value: 1},
		{Time: 115, Value: 2}, // span of 15s on a 10s grid
	}

	_, err := Merge(nil, block, 10, 100, 120)
	if !errors.Is(err, ErrTiming) {
		t.Fatalf("Expected ErrTiming, got %v", err)
	}
}

func TestMerge_MisalignedGapToTail(t *testing.T) {
	existing := grid(100, 10, 1, 2)

	block := []Sample{
		{Time: 125, Value: 3},
		{Time: 135, Value: 4},
	}

	_, err := Merge(existing, block, 10, 120, 140)
	if !errors.Is(err, ErrTiming) {
		t.Fatalf("Expected ErrTiming, got %v", err)
	}
}

func TestMerge_OffGridSample(t *testing.T) {
	// Span and gap validation pass (first/last aligned) but an interior
	// sample sits between ticks.
	block := []Sample{
		{Time: 100, Value: 1},
		{Time: 115, Value: 2},
		{Time: 120, Value: 3},
	}

	_, err := Merge(nil, block, 10, 100, 120)
	if !errors.Is(err, ErrGridFault) {
		t.Fatalf("Expected ErrGridFault, got %v", err)
	}
}

func TestMerge_DropsSamplesOutsideBounds(t *testing.T) {
	// The remote source is not trusted to respect the requested bounds.
	block := []Sample{
		{Time: 100, Value: 1},
		{Time: 110, Value: 2},
		{Time: 120, Value: 3},
	}

	got, err := Merge(nil, block, 10, 100, 110)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	// The grid still extends to the block's last timestamp, but the
	// out-of-bounds value is discarded.
	if got.Len() != 3 {
		t.Fatalf("Expected 3 ticks, got %d", got.Len())
	}
	if !IsMissing(got.Values[2]) {
		t.Errorf("Expected out-of-bounds tick to be missing, got %v", got.Values[2])
	}
}

func TestMerge_BlockFullyBehindTail(t *testing.T) {
	existing := grid(100, 10, 1, 2, 3)

	// Re-delivered old data must not change the series.
	block := []Sample{
		{Time: 100, Value: 9},
		{Time: 110, Value: 9},
	}

	got, err := Merge(existing, block, 10, 100, 110)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got.Len() != 3 || got.Values[0] != 1 {
		t.Errorf("Stale block changed the series: %v", got.Values)
	}
}

func TestFloorIndex(t *testing.T) {
	s := grid(100, 10, 1, 2, 3)

	cases := []struct {
		t    int64
		want int
	}{
		{99, -1},
		{100, 0},
		{109, 0},
		{110, 1},
		{120, 2},
		{500, 2},
	}
	for _, c := range cases {
		if got := s.FloorIndex(c.t); got != c.want {
			t.Errorf("FloorIndex(%d) = %d, want %d", c.t, got, c.want)
		}
	}
}
