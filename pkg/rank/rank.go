// Package rank orders probe results by measured latency and applies a
// per-country diversity cap to produce the final peer selection.
package rank

import (
	"errors"
	"sort"

	"github.com/meshutils/peerpick/pkg/types"
)

// ErrInsufficientPeers is returned when no reachable peer survives
// filtering. Callers must exit non-zero so the condition is
// distinguishable from a successful empty run.
var ErrInsufficientPeers = errors.New("no reachable peers to select from")

// Options control a selection round.
type Options struct {
	// Best is the target selection size
	Best int
	// MaxFromCountry caps how many selected peers may share one
	// country code, 0 means unlimited
	MaxFromCountry int
}

// Select filters unreachable results, sorts the remainder by mean
// latency, and greedily accepts peers while honoring the country cap.
// Ties keep their input order, so identical inputs always yield an
// identical selection. Fewer survivors than Best is not an error; zero
// survivors is reported as ErrInsufficientPeers.
func Select(results []types.PeerResult, opts Options) (types.Selection, error) {
	reachable := make([]types.PeerResult, 0, len(results))
	for _, r := range results {
		if r.Reachable && r.PacketLoss < 1.0 {
			reachable = append(reachable, r)
		}
	}
	if len(reachable) == 0 || opts.Best < 1 {
		return types.Selection{}, ErrInsufficientPeers
	}

	sort.SliceStable(reachable, func(i, j int) bool {
		return reachable[i].MeanLatency() < reachable[j].MeanLatency()
	})

	perCountry := make(map[string]int)
	selection := make(types.Selection, 0, opts.Best)
	for _, r := range reachable {
		if opts.MaxFromCountry > 0 && perCountry[r.Record.Country] >= opts.MaxFromCountry {
			continue
		}
		perCountry[r.Record.Country]++
		selection = append(selection, r)
		if len(selection) >= opts.Best {
			break
		}
	}
	return selection, nil
}
