package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/meshutils/peerpick/pkg/types"
	"github.com/projectdiscovery/gologger"
	syncutil "github.com/projectdiscovery/utils/sync"
)

// Options control a probing round.
type Options struct {
	// Pings is the number of echo probes per peer
	Pings int
	// Interval is the pause between a peer's own probes
	Interval time.Duration
	// Parallel bounds how many peers are probed concurrently
	Parallel int
}

func (o Options) validate() error {
	if o.Pings < 1 {
		return fmt.Errorf("pings must be >= 1, got %d", o.Pings)
	}
	if o.Parallel < 1 {
		return fmt.Errorf("parallel must be >= 1, got %d", o.Parallel)
	}
	if o.Interval < 0 {
		return fmt.Errorf("interval must be >= 0, got %s", o.Interval)
	}
	return nil
}

// Prober runs one measurement round over a set of peer records.
type Prober struct {
	pinger Pinger
	opts   Options
}

// NewProber instance
func NewProber(pinger Pinger, opts Options) (*Prober, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Prober{pinger: pinger, opts: opts}, nil
}

// Probe measures every record and returns one result per record, in
// input order. At most Parallel peers are probed concurrently; each
// worker owns a single peer's full probe sequence and writes into an
// exclusive slot of the results slice. Unreachable peers are data, not
// errors. Cancellation is honored between peer-level units of work:
// peers not yet started are recorded as full loss and no slot is ever
// partially written.
func (p *Prober) Probe(ctx context.Context, records []types.PeerRecord) ([]types.PeerResult, error) {
	if len(records) == 0 {
		return nil, nil
	}

	results := make([]types.PeerResult, len(records))

	awg, err := syncutil.New(syncutil.WithSize(p.opts.Parallel))
	if err != nil {
		return nil, fmt.Errorf("failed to create adaptive waitgroup: %w", err)
	}

	progress := newProgress(len(records))
	defer progress.stop()

	started := len(records)
	for i := range records {
		if ctx.Err() != nil {
			started = i
			break
		}
		awg.Add()
		go func(slot int, rec types.PeerRecord) {
			defer awg.Done()
			results[slot] = p.probeOne(ctx, rec)
			gologger.Verbose().Msgf("%s", results[slot])
			progress.mark()
		}(i, records[i])
	}
	awg.Wait()

	// peers never started still get exactly one result
	for i := started; i < len(records); i++ {
		results[i] = unprobedResult(records[i])
	}
	return results, nil
}

// probeOne runs the full probe sequence for a single peer. The peer's
// own probes execute in temporal sequence, spaced by Interval, so they
// never interfere with their own loss measurement.
func (p *Prober) probeOne(ctx context.Context, rec types.PeerRecord) types.PeerResult {
	res := types.PeerResult{Record: rec}
	failed := 0
	for n := 0; n < p.opts.Pings; n++ {
		if n > 0 && p.opts.Interval > 0 {
			select {
			case <-ctx.Done():
				failed += p.opts.Pings - n
				return finishResult(res, failed, p.opts.Pings)
			case <-time.After(p.opts.Interval):
			}
		}
		if ctx.Err() != nil {
			failed += p.opts.Pings - n
			return finishResult(res, failed, p.opts.Pings)
		}
		rtt, err := p.pinger.Ping(ctx, rec.Addr)
		if err != nil {
			failed++
			continue
		}
		res.Latencies = append(res.Latencies, rtt)
	}
	return finishResult(res, failed, p.opts.Pings)
}

func finishResult(res types.PeerResult, failed, pings int) types.PeerResult {
	res.PacketLoss = float64(failed) / float64(pings)
	res.Reachable = res.PacketLoss < 1.0
	return res
}

func unprobedResult(rec types.PeerRecord) types.PeerResult {
	return types.PeerResult{
		Record:     rec,
		Reachable:  false,
		PacketLoss: 1.0,
	}
}
