package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/emonmirror/emonmirror/pkg/config"
	"github.com/emonmirror/emonmirror/pkg/energy"
	"github.com/emonmirror/emonmirror/pkg/export"
	"github.com/emonmirror/emonmirror/pkg/httpx"
	"github.com/emonmirror/emonmirror/pkg/mirror"
	"github.com/emonmirror/emonmirror/pkg/series"
	"github.com/emonmirror/emonmirror/pkg/storage"
)

// handleFeeds returns the feed registry.
func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	reg, err := s.store.LoadRegistry(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoRegistry) {
			httpx.RespondError(w, http.StatusNotFound, err)
		} else {
			httpx.RespondError(w, http.StatusInternalServerError, err)
		}
		return
	}
	httpx.RespondJSON(w, http.StatusOK, reg.Feeds)
}

// SeriesResponse is one feed's stored grid. Values holds null for
// missing ticks.
type SeriesResponse struct {
	Name     string     `json:"name"`
	Start    int64      `json:"start"`
	Interval int64      `json:"interval"`
	Values   []*float64 `json:"values"`
}

// handleSeries returns one feed's stored series.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sr, err := s.store.LoadSeries(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	if sr == nil {
		httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("no series for feed %q", name))
		return
	}

	values := make([]*float64, sr.Len())
	for i, v := range sr.Values {
		if !series.IsMissing(v) {
			v := v
			values[i] = &v
		}
	}
	httpx.RespondJSON(w, http.StatusOK, SeriesResponse{
		Name:     name,
		Start:    sr.Start,
		Interval: sr.Interval,
		Values:   values,
	})
}

// EnergyPoint is one period's energy. A null energy means too many
// samples were missing.
type EnergyPoint struct {
	Start  int64    `json:"start"`
	Energy *float64 `json:"energy"`
}

// EnergyResponse is the period energy series for one feed.
type EnergyResponse struct {
	Name    string        `json:"name"`
	Period  string        `json:"period"`
	Unit    string        `json:"unit"`
	Periods []EnergyPoint `json:"periods"`
}

// aggregationParams reads the period, unit, and tolerance query
// parameters, falling back to the configured defaults.
func aggregationParams(r *http.Request) (energy.Period, energy.Unit, float64, error) {
	periodStr := r.URL.Query().Get("period")
	if periodStr == "" {
		periodStr = config.DefaultPeriod
	}
	period, err := energy.ParsePeriod(periodStr)
	if err != nil {
		return energy.Period{}, energy.Unit{}, 0, err
	}

	unitStr := r.URL.Query().Get("unit")
	if unitStr == "" {
		unitStr = config.DefaultEnergyUnit
	}
	unit, err := energy.ParseUnit(unitStr)
	if err != nil {
		return energy.Period{}, energy.Unit{}, 0, err
	}

	tolerance := config.DefaultMissingTolerance
	if t := r.URL.Query().Get("tolerance"); t != "" {
		tolerance, err = strconv.ParseFloat(t, 64)
		if err != nil || tolerance < 0 || tolerance > 1 {
			return energy.Period{}, energy.Unit{}, 0, fmt.Errorf("invalid tolerance %q", t)
		}
	}
	return period, unit, tolerance, nil
}

// handleEnergy returns one feed's energy per period.
func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	period, unit, tolerance, err := aggregationParams(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	sr, err := s.store.LoadSeries(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}
	if sr == nil {
		httpx.RespondErrorString(w, http.StatusNotFound, fmt.Sprintf("no series for feed %q", name))
		return
	}

	periods := energy.Integrate(sr, period, unit, tolerance)
	points := make([]EnergyPoint, len(periods))
	for i, p := range periods {
		points[i].Start = p.Start.Unix()
		if !series.IsMissing(p.Energy) {
			e := p.Energy
			points[i].Energy = &e
		}
	}
	httpx.RespondJSON(w, http.StatusOK, EnergyResponse{
		Name:    name,
		Period:  period.String(),
		Unit:    unit.Name,
		Periods: points,
	})
}

// SummaryResponse is the cross-feed summary matrix. Energy holds null
// for missing cells.
type SummaryResponse struct {
	Names  []string     `json:"names"`
	Period string       `json:"period"`
	Unit   string       `json:"unit"`
	Years  []int        `json:"years"`
	Energy [][]*float64 `json:"energy"`
	Counts [][]int      `json:"counts"`
}

// handleSummary builds the multi-year summary across all registered
// feeds. The total query parameter names the total-power feeds; years
// narrows the averaged years and defaults to every year with data.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period, unit, tolerance, err := aggregationParams(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	totalNames := splitList(r.URL.Query()["total"])
	if len(totalNames) == 0 {
		httpx.RespondErrorString(w, http.StatusBadRequest, "missing total parameter")
		return
	}

	years, err := parseYears(r.URL.Query().Get("years"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	reg, err := s.store.LoadRegistry(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoRegistry) {
			httpx.RespondError(w, http.StatusNotFound, err)
		} else {
			httpx.RespondError(w, http.StatusInternalServerError, err)
		}
		return
	}

	loaded := make(map[string]*series.Series, len(reg.Feeds))
	for _, feed := range reg.Feeds {
		sr, err := s.store.LoadSeries(r.Context(), feed.Name)
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		loaded[feed.Name] = sr
	}

	if len(years) == 0 {
		years = energy.SpannedYears(loaded)
	}
	if len(years) == 0 {
		httpx.RespondErrorString(w, http.StatusNotFound, "no stored data to summarize")
		return
	}

	averaged := make(map[string]energy.Averaged, len(loaded))
	for name, sr := range loaded {
		averaged[name] = energy.Average(sr, period, years, unit, tolerance)
	}

	summary, err := energy.Summarize(reg.Names(), averaged, totalNames)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	rows := make([][]*float64, len(summary.Energy))
	for i, row := range summary.Energy {
		rows[i] = make([]*float64, len(row))
		for j, v := range row {
			if !series.IsMissing(v) {
				v := v
				rows[i][j] = &v
			}
		}
	}
	httpx.RespondJSON(w, http.StatusOK, SummaryResponse{
		Names:  summary.Names,
		Period: period.String(),
		Unit:   unit.Name,
		Years:  years,
		Energy: rows,
		Counts: summary.Counts,
	})
}

// handleExport streams all stored series as one CSV table.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="feeds.csv"`)

	if _, err := export.NewExporter(s.store).ExportCSV(r.Context(), w); err != nil {
		// Loads happen before the first write, so the error reply is
		// still deliverable.
		w.Header().Del("Content-Disposition")
		if errors.Is(err, storage.ErrNoRegistry) {
			httpx.RespondError(w, http.StatusNotFound, err)
		} else {
			httpx.RespondError(w, http.StatusInternalServerError, err)
		}
	}
}

// handleUpdate triggers an update pass in the background. Only one run
// may be in flight; progress streams to the run watchers.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.src == nil {
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "no remote source configured")
		return
	}
	if !s.updating.CompareAndSwap(false, true) {
		httpx.RespondErrorString(w, http.StatusConflict, "update already running")
		return
	}

	go func() {
		defer s.updating.Store(false)

		runner := mirror.NewRunner(s.src, s.store)
		runner.SetReporter(fanoutReporter{mirror.LogReporter{}, s.hub})

		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if _, err := runner.RunUpdate(ctx); err != nil {
			s.hub.Event(mirror.Event{Type: mirror.EventRunFinished, Error: err.Error()})
		}
	}()

	httpx.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// fanoutReporter forwards each event to every wrapped reporter.
type fanoutReporter []mirror.Reporter

func (f fanoutReporter) Event(e mirror.Event) {
	for _, rep := range f {
		rep.Event(e)
	}
}

// splitList flattens repeated query parameters and their comma-joined
// forms into one name list.
func splitList(params []string) []string {
	var out []string
	for _, p := range params {
		for _, name := range strings.Split(p, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// parseYears parses a comma-separated year list.
func parseYears(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var years []int
	for _, part := range strings.Split(s, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		years = append(years, y)
	}
	return years, nil
}
