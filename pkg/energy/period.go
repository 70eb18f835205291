// Package energy derives per-period energy figures from mirrored power
// series: numerical integration into calendar buckets, multi-year
// averaging on a common within-year axis, and cross-feed residual
// accounting.
package energy

import (
	"fmt"
	"time"
)

// Period is one aggregation bucket size: a calendar length (months or
// days) or a fixed duration. Exactly one of the fields is set.
type Period struct {
	Months   int
	Days     int
	Duration time.Duration
}

// Common calendar periods.
var (
	Day   = Period{Days: 1}
	Week  = Period{Days: 7}
	Month = Period{Months: 1}
)

// ParsePeriod reads "day", "week", "month" or any time.ParseDuration
// string such as "6h".
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	return Period{Duration: d}, nil
}

func (p Period) String() string {
	switch {
	case p.Months == 1:
		return "month"
	case p.Months > 0:
		return fmt.Sprintf("%dmo", p.Months)
	case p.Days == 7:
		return "week"
	case p.Days == 1:
		return "day"
	case p.Days > 0:
		return fmt.Sprintf("%dd", p.Days)
	default:
		return p.Duration.String()
	}
}

// Floor returns the start of the period containing t. All calendar math
// is in UTC; weeks start on Monday.
func (p Period) Floor(t time.Time) time.Time {
	t = t.UTC()
	switch {
	case p.Months > 0:
		m := (int(t.Month()) - 1) / p.Months * p.Months
		return time.Date(t.Year(), time.Month(m+1), 1, 0, 0, 0, 0, time.UTC)
	case p.Days == 7:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		weekday := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -weekday)
	case p.Days > 0:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if p.Days > 1 {
			ordinal := day.Unix() / 86400
			day = time.Unix(ordinal/int64(p.Days)*int64(p.Days)*86400, 0).UTC()
		}
		return day
	default:
		sec := int64(p.Duration / time.Second)
		u := t.Unix()
		return time.Unix(u-floorMod(u, sec), 0).UTC()
	}
}

// Next returns the start of the period after the one starting at t.
func (p Period) Next(t time.Time) time.Time {
	switch {
	case p.Months > 0:
		return t.AddDate(0, p.Months, 0)
	case p.Days > 0:
		return t.AddDate(0, 0, p.Days)
	default:
		return t.Add(p.Duration)
	}
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// isLeapDay reports whether t falls on February 29.
func isLeapDay(t time.Time) bool {
	return t.Month() == time.February && t.Day() == 29
}
