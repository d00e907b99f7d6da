package types

import (
	"fmt"
	"time"
)

// PeerResult is the probe outcome for a single record. Exactly one is
// produced per record per run; results are read-only once written.
type PeerResult struct {
	Record     PeerRecord
	Reachable  bool
	PacketLoss float64
	// Latencies holds the round-trip times of successful probes, in
	// probe order. Empty when every probe was lost.
	Latencies []time.Duration
}

// MeanLatency returns the arithmetic mean of the successful samples.
// It is defined only when at least one sample exists; the zero value
// is returned otherwise.
func (r PeerResult) MeanLatency() time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range r.Latencies {
		total += l
	}
	return total / time.Duration(len(r.Latencies))
}

func (r PeerResult) String() string {
	if !r.Reachable {
		return fmt.Sprintf("%s unreachable", r.Record)
	}
	return fmt.Sprintf("%s rtt=%s loss=%.0f%%", r.Record,
		r.MeanLatency().Round(time.Microsecond), r.PacketLoss*100)
}

// Selection is the final ordered, capped, latency-ranked subset of
// reachable peers.
type Selection []PeerResult

// Addrs returns the ordered peer URIs to hand to the config writer.
func (s Selection) Addrs() []string {
	addrs := make([]string, 0, len(s))
	for _, r := range s {
		addrs = append(addrs, r.Record.URI)
	}
	return addrs
}
