package energy

import (
	"time"

	"github.com/emonmirror/emonmirror/pkg/series"
)

// Averaged is one feed's multi-year mean energy on the common
// within-year period axis. Counts[i] is how many years contributed a
// non-missing value at index i; Values[i] is missing when no year did.
type Averaged struct {
	Values []float64
	Counts []int
}

// referenceYear fixes the within-year axis length. Any non-leap year
// works; the choice only determines how many periods one year has.
const referenceYear = 2001

// PeriodsPerYear returns the number of periods starting within one
// reference non-leap year.
func PeriodsPerYear(period Period) int {
	start := time.Date(referenceYear, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	for p := period.Floor(start); p.Year() <= referenceYear; p = period.Next(p) {
		if p.Year() == referenceYear {
			n++
		}
	}
	return n
}

// Average integrates the series year by year and averages the results
// onto the common within-year axis. February 29 is excluded entirely,
// both its samples and any bucket starting on it, so leap and non-leap
// years line up index for index. Years whose periodization still yields
// more entries than the axis are truncated at the axis length.
func Average(s *series.Series, period Period, years []int, unit Unit, allowedMissing float64) Averaged {
	n := PeriodsPerYear(period)
	sums := make([]float64, n)
	counts := make([]int, n)

	for _, year := range years {
		samples := yearSamples(s, year)
		if len(samples) == 0 {
			continue
		}
		index := axisIndex(period, year)
		for _, ep := range integrateSamples(samples, period, unit, allowedMissing, true) {
			i, ok := index[ep.Start.Unix()]
			if !ok || i >= n {
				continue
			}
			if series.IsMissing(ep.Energy) {
				continue
			}
			sums[i] += ep.Energy
			counts[i]++
		}
	}

	values := make([]float64, n)
	for i := range values {
		if counts[i] == 0 {
			// No contributing year: explicit missing, never 0/0.
			values[i] = series.Missing()
		} else {
			values[i] = sums[i] / float64(counts[i])
		}
	}
	return Averaged{Values: values, Counts: counts}
}

// SpannedYears returns every calendar year covered by any of the
// series, in order. Nil and empty series are skipped; an empty result
// means there is nothing to average.
func SpannedYears(loaded map[string]*series.Series) []int {
	first, last := 0, 0
	for _, s := range loaded {
		if s.Empty() {
			continue
		}
		from := time.Unix(s.Start, 0).UTC().Year()
		to := time.Unix(s.End(), 0).UTC().Year()
		if first == 0 || from < first {
			first = from
		}
		if to > last {
			last = to
		}
	}
	if first == 0 {
		return nil
	}
	years := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		years = append(years, y)
	}
	return years
}

// yearSamples filters the series to one calendar year, dropping
// February 29 samples.
func yearSamples(s *series.Series, year int) []series.Sample {
	if s.Empty() {
		return nil
	}
	var out []series.Sample
	for i := 0; i < s.Len(); i++ {
		sm := s.At(i)
		t := time.Unix(sm.Time, 0).UTC()
		if t.Year() != year || isLeapDay(t) {
			continue
		}
		out = append(out, sm)
	}
	return out
}

// axisIndex maps the period starts of one year (leap day excluded) to
// their within-year ordinal.
func axisIndex(period Period, year int) map[int64]int {
	index := make(map[int64]int)
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	for p := period.Floor(start); p.Year() <= year; p = period.Next(p) {
		if p.Year() != year || isLeapDay(p) {
			continue
		}
		index[p.Unix()] = i
		i++
	}
	return index
}
