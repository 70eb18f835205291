package energy

import (
	"fmt"

	"github.com/emonmirror/emonmirror/pkg/series"
)

// Summary is the cross-feed energy matrix: one row per within-year
// period, one column per feed, with the residual "Unknown" column
// first. For every row the columns sum to the total-power feeds' energy;
// Unknown is defined to close that balance and captures unmeasured
// loads.
type Summary struct {
	Names  []string    `json:"names"`
	Energy [][]float64 `json:"energy"`
	Counts [][]int     `json:"counts"`
}

// UnknownFeed is the name of the computed residual column.
const UnknownFeed = "Unknown"

// Missing-value arithmetic here follows one rule throughout: a missing
// value is excluded from a sum and a sum with no contributors is
// missing.
func sumAt(averaged map[string]Averaged, names []string, i int) float64 {
	total := 0.0
	contributed := false
	for _, name := range names {
		v := averaged[name].Values[i]
		if series.IsMissing(v) {
			continue
		}
		total += v
		contributed = true
	}
	if !contributed {
		return series.Missing()
	}
	return total
}

// Summarize assembles the averaged series of several feeds into one
// matrix. totalNames are the feeds whose sum is the site's total power;
// they may overlap feedNames. Feeds not listed in totalNames become the
// known columns, and Unknown[i] = total[i] - sum(known[i]).
//
// Unknown's count column reuses the counts of the first total-power
// feed; it is a simplification, not a true aggregate count.
func Summarize(feedNames []string, averaged map[string]Averaged, totalNames []string) (*Summary, error) {
	if len(totalNames) == 0 {
		return nil, fmt.Errorf("no total-power feeds given")
	}

	rows := -1
	for _, name := range append(append([]string{}, feedNames...), totalNames...) {
		avg, ok := averaged[name]
		if !ok {
			return nil, fmt.Errorf("no averaged series for feed %q", name)
		}
		if rows == -1 {
			rows = len(avg.Values)
		} else if len(avg.Values) != rows {
			return nil, fmt.Errorf("feed %q has %d periods, want %d", name, len(avg.Values), rows)
		}
	}

	isTotal := make(map[string]bool, len(totalNames))
	for _, name := range totalNames {
		isTotal[name] = true
	}
	var known []string
	for _, name := range feedNames {
		if !isTotal[name] {
			known = append(known, name)
		}
	}

	s := &Summary{
		Names:  append([]string{UnknownFeed}, known...),
		Energy: make([][]float64, rows),
		Counts: make([][]int, rows),
	}

	unknownCounts := averaged[totalNames[0]].Counts
	for i := 0; i < rows; i++ {
		row := make([]float64, len(s.Names))
		countRow := make([]int, len(s.Names))

		total := sumAt(averaged, totalNames, i)
		knownSum := 0.0
		if len(known) > 0 {
			knownSum = sumAt(averaged, known, i)
			if series.IsMissing(knownSum) {
				knownSum = 0
			}
		}
		if series.IsMissing(total) {
			row[0] = series.Missing()
		} else {
			row[0] = total - knownSum
		}
		countRow[0] = unknownCounts[i]

		for j, name := range known {
			row[j+1] = averaged[name].Values[i]
			countRow[j+1] = averaged[name].Counts[i]
		}
		s.Energy[i] = row
		s.Counts[i] = countRow
	}
	return s, nil
}
