package energy

import (
	"math"
	"testing"

	"github.com/emonmirror/emonmirror/pkg/series"
)

func TestSummarize_ResidualClosesTheBalance(t *testing.T) {
	averaged := map[string]Averaged{
		"mains":  {Values: []float64{100, 200, 300}, Counts: []int{3, 3, 2}},
		"solar":  {Values: []float64{10, 20, 30}, Counts: []int{3, 3, 3}},
		"heater": {Values: []float64{40, 50, 60}, Counts: []int{2, 3, 3}},
	}

	s, err := Summarize([]string{"mains", "solar", "heater"}, averaged, []string{"mains"})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if len(s.Names) != 3 || s.Names[0] != UnknownFeed || s.Names[1] != "solar" || s.Names[2] != "heater" {
		t.Fatalf("Unexpected columns: %v", s.Names)
	}

	// Energy conservation: each row's columns sum to the total-power
	// feeds' energy.
	for i := 0; i < 3; i++ {
		rowSum := 0.0
		for _, v := range s.Energy[i] {
			rowSum += v
		}
		total := averaged["mains"].Values[i]
		if math.Abs(rowSum-total) > 1e-9 {
			t.Errorf("Row %d: columns sum to %v, total is %v", i, rowSum, total)
		}
	}

	// Unknown = total - known feeds.
	if math.Abs(s.Energy[0][0]-50) > 1e-9 {
		t.Errorf("Unknown[0] = %v, want 50", s.Energy[0][0])
	}

	// Unknown's counts reuse the first total-power feed's counts.
	if s.Counts[0][0] != 3 || s.Counts[2][0] != 2 {
		t.Errorf("Unexpected Unknown counts: %v %v", s.Counts[0][0], s.Counts[2][0])
	}
}

func TestSummarize_MissingPropagation(t *testing.T) {
	averaged := map[string]Averaged{
		"mains": {Values: []float64{100, series.Missing()}, Counts: []int{2, 0}},
		"solar": {Values: []float64{series.Missing(), 20}, Counts: []int{0, 2}},
	}

	s, err := Summarize([]string{"mains", "solar"}, averaged, []string{"mains"})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	// Missing known values are excluded from the residual subtraction.
	if math.Abs(s.Energy[0][0]-100) > 1e-9 {
		t.Errorf("Unknown[0] = %v, want 100 (missing solar excluded)", s.Energy[0][0])
	}
	// A missing total makes the residual missing.
	if !series.IsMissing(s.Energy[1][0]) {
		t.Errorf("Unknown[1] = %v, want missing", s.Energy[1][0])
	}
	// The known column carries its own value either way.
	if math.Abs(s.Energy[1][1]-20) > 1e-9 {
		t.Errorf("solar[1] = %v, want 20", s.Energy[1][1])
	}
}

func TestSummarize_TotalFeedsMayOverlapFeeds(t *testing.T) {
	averaged := map[string]Averaged{
		"grid":  {Values: []float64{60}, Counts: []int{1}},
		"solar": {Values: []float64{40}, Counts: []int{1}},
		"oven":  {Values: []float64{30}, Counts: []int{1}},
	}

	// grid+solar make up the site total; oven is the only known feed.
	s, err := Summarize([]string{"grid", "solar", "oven"}, averaged, []string{"grid", "solar"})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(s.Names) != 2 || s.Names[1] != "oven" {
		t.Fatalf("Unexpected columns: %v", s.Names)
	}
	if math.Abs(s.Energy[0][0]-70) > 1e-9 {
		t.Errorf("Unknown = %v, want 100-30 = 70", s.Energy[0][0])
	}
}

func TestSummarize_Validation(t *testing.T) {
	averaged := map[string]Averaged{
		"mains": {Values: []float64{1, 2}, Counts: []int{1, 1}},
		"short": {Values: []float64{1}, Counts: []int{1}},
	}

	if _, err := Summarize([]string{"mains"}, averaged, nil); err == nil {
		t.Error("Expected error for empty total-power feeds")
	}
	if _, err := Summarize([]string{"absent"}, averaged, []string{"mains"}); err == nil {
		t.Error("Expected error for unknown feed")
	}
	if _, err := Summarize([]string{"mains", "short"}, averaged, []string{"mains"}); err == nil {
		t.Error("Expected error for mismatched axis lengths")
	}
}
