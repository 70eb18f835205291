// Package export writes every stored series into one flat CSV table.
//
// The table has a unix-seconds time column followed by one column per
// registry feed. Feeds may run on different intervals; the time column
// is the sorted union of all sample times, and a feed that has no
// sample (or a missing sample) at a given time gets an empty cell.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/emonmirror/emonmirror/pkg/series"
	"github.com/emonmirror/emonmirror/pkg/storage"
)

// Exporter reads series out of a store and renders them as CSV.
type Exporter struct {
	store storage.Store
}

// NewExporter creates a new exporter over the given store.
func NewExporter(store storage.Store) *Exporter {
	return &Exporter{store: store}
}

// Result contains stats about a completed export.
type Result struct {
	Feeds      int       `json:"feeds"`
	Rows       int       `json:"rows"`
	ExportedAt time.Time `json:"exported_at"`
}

// ExportCSV writes the full table to w. The feed columns follow the
// registry order.
func (e *Exporter) ExportCSV(ctx context.Context, w io.Writer) (*Result, error) {
	reg, err := e.store.LoadRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	loaded := make([]*series.Series, len(reg.Feeds))
	for i, feed := range reg.Feeds {
		s, err := e.store.LoadSeries(ctx, feed.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load series %q: %w", feed.Name, err)
		}
		loaded[i] = s
	}

	times := collectTimes(loaded)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := make([]string, 0, len(reg.Feeds)+1)
	header = append(header, "time")
	for _, feed := range reg.Feeds {
		header = append(header, feed.Name)
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	row := make([]string, len(header))
	for _, t := range times {
		row[0] = strconv.FormatInt(t, 10)
		for i, s := range loaded {
			row[i+1] = cell(s, t)
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	return &Result{
		Feeds:      len(reg.Feeds),
		Rows:       len(times),
		ExportedAt: time.Now(),
	}, nil
}

// ExportToFile writes the table to a new file at path. An existing
// destination is never overwritten.
func (e *Exporter) ExportToFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("refusing to overwrite %s", path)
		}
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	result, exportErr := e.ExportCSV(ctx, f)
	closeErr := f.Close()
	if exportErr != nil {
		os.Remove(path)
		return nil, exportErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	return result, nil
}

// collectTimes returns the sorted union of sample times across all
// series, missing samples included. Rows for missing samples keep the
// table's time axis dense per feed even when values are absent.
func collectTimes(loaded []*series.Series) []int64 {
	seen := make(map[int64]bool)
	for _, s := range loaded {
		if s == nil {
			continue
		}
		for i := 0; i < s.Len(); i++ {
			seen[s.Start+int64(i)*s.Interval] = true
		}
	}
	times := make([]int64, 0, len(seen))
	for t := range seen {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}

// cell renders one feed's value at time t, or an empty string when the
// feed has no value there.
func cell(s *series.Series, t int64) string {
	if s == nil || s.Interval == 0 {
		return ""
	}
	if t < s.Start || (t-s.Start)%s.Interval != 0 {
		return ""
	}
	i := int((t - s.Start) / s.Interval)
	if i >= s.Len() {
		return ""
	}
	v := s.Values[i]
	if series.IsMissing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
