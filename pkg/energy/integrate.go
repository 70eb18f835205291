package energy

import (
	"sort"
	"time"

	"github.com/emonmirror/emonmirror/pkg/series"
)

// EnergyPeriod is one aggregation bucket's integrated energy. Energy
// carries the missing marker when the bucket had no usable estimate.
type EnergyPeriod struct {
	Start  time.Time `json:"start"`
	Energy float64   `json:"energy"`
}

// Integrate converts a power series into per-period energy. Buckets run
// from the period containing the first sample through the period
// containing the last, contiguous and ordered.
//
// Within a bucket the samples are selected with inclusive-bracket
// semantics: the nearest sample at or before the period start and at or
// before the period end anchor the subrange, so boundary energy is not
// dropped between buckets. If the fraction of missing samples in the
// subrange stays within allowedMissing they count as zero; past the
// tolerance the bucket's result is missing rather than a biased low
// estimate. Buckets with fewer than two usable samples are missing.
func Integrate(s *series.Series, period Period, unit Unit, allowedMissing float64) []EnergyPeriod {
	return integrateSamples(s.Samples(), period, unit, allowedMissing, false)
}

// integrateSamples is the sample-list core shared with the multi-year
// averager, which feeds it leap-day-filtered (hence non-dense) data.
// With skipLeapDay set, buckets starting on February 29 are omitted so
// every year produces the same within-year axis.
func integrateSamples(samples []series.Sample, period Period, unit Unit, allowedMissing float64, skipLeapDay bool) []EnergyPeriod {
	if len(samples) == 0 {
		return nil
	}

	first := time.Unix(samples[0].Time, 0).UTC()
	last := time.Unix(samples[len(samples)-1].Time, 0).UTC()
	lastPeriod := period.Floor(last)

	var out []EnergyPeriod
	for p := period.Floor(first); !p.After(lastPeriod); p = period.Next(p) {
		if skipLeapDay && isLeapDay(p) {
			continue
		}
		end := period.Next(p)
		out = append(out, EnergyPeriod{
			Start:  p,
			Energy: integrateOne(samples, p.Unix(), end.Unix(), unit, allowedMissing),
		})
	}
	return out
}

// integrateOne integrates the bracketed subrange [start, end] of the
// sample list, in joules, converted to unit.
func integrateOne(samples []series.Sample, start, end int64, unit Unit, allowedMissing float64) float64 {
	lo := floorSample(samples, start)
	if lo < 0 {
		lo = 0
	}
	hi := floorSample(samples, end)
	if hi-lo+1 < 2 {
		return series.Missing()
	}
	sub := samples[lo : hi+1]

	missing := 0
	for _, sm := range sub {
		if series.IsMissing(sm.Value) {
			missing++
		}
	}
	zeroFill := false
	if missing > 0 {
		frac := float64(missing) / float64(len(sub))
		if frac > allowedMissing {
			return series.Missing()
		}
		zeroFill = true
	}

	value := func(i int) float64 {
		v := sub[i].Value
		if zeroFill && series.IsMissing(v) {
			return 0
		}
		return v
	}

	// Trapezoidal rule: piecewise-linear power between samples.
	var joules float64
	for i := 0; i+1 < len(sub); i++ {
		dt := float64(sub[i+1].Time - sub[i].Time)
		joules += (value(i) + value(i+1)) / 2 * dt
	}
	return unit.FromJoules(joules)
}

// floorSample returns the index of the last sample at or before t, or -1.
func floorSample(samples []series.Sample, t int64) int {
	n := sort.Search(len(samples), func(i int) bool { return samples[i].Time > t })
	return n - 1
}
