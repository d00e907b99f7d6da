package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/meshutils/peerpick/pkg/probe"
	"github.com/meshutils/peerpick/pkg/rank"
	"github.com/meshutils/peerpick/pkg/sources"
	"github.com/meshutils/peerpick/pkg/types"
	"github.com/meshutils/peerpick/pkg/yggconf"
	"github.com/projectdiscovery/gologger"
	errorutil "github.com/projectdiscovery/utils/errors"
)

// Runner contains the internal logic of the program
type Runner struct {
	options *Options
}

// NewRunner instance
func NewRunner(options *Options) (*Runner, error) {
	return &Runner{options: options}, nil
}

// Run executes one full selection round: gather candidate peers, probe
// them, rank the survivors, and rewrite the configured peers block. The
// first fatal failure aborts the remaining stages, so the config is
// never touched after an upstream error.
func (r *Runner) Run(ctx context.Context) error {
	gologger.Verbose().Msgf("starting run %s", r.options.RunID)

	confData, proceed, err := r.preflightConfig()
	if err != nil {
		return err
	}
	if !proceed {
		return nil
	}

	records, err := r.gatherPeers(ctx)
	if err != nil {
		return err
	}

	results, err := r.probePeers(ctx, records)
	if err != nil {
		return err
	}

	selection, err := rank.Select(results, rank.Options{
		Best:           r.options.Best,
		MaxFromCountry: r.options.MaxFromCountry,
	})
	if err != nil {
		if errors.Is(err, rank.ErrInsufficientPeers) {
			return fmt.Errorf("%w (probed %d peers, none answered)", err, len(results))
		}
		return err
	}

	r.printSelection(selection)

	if r.options.ConfigFile != "" {
		updated, err := yggconf.RewritePeers(confData, selection.Addrs())
		if err != nil {
			return err
		}
		if err := yggconf.WriteConfig(r.options.ConfigFile, updated); err != nil {
			return err
		}
		gologger.Info().Msgf("updated %d peers in %s", len(selection), r.options.ConfigFile)
	}
	return nil
}

// Close the runner instance
func (r *Runner) Close() {}

// preflightConfig reads the target config and decides whether the run
// should proceed, before any probing work is spent. proceed=false with
// a nil error is the clean "config already has peers" stop.
func (r *Runner) preflightConfig() (confData []byte, proceed bool, err error) {
	if r.options.ConfigFile == "" {
		return nil, true, nil
	}

	data, err := os.ReadFile(r.options.ConfigFile)
	if err != nil {
		return nil, false, errorutil.NewWithErr(err).Msgf("cannot read config file %s", r.options.ConfigFile)
	}
	if err := yggconf.CheckWritable(r.options.ConfigFile); err != nil {
		return nil, false, err
	}
	if yggconf.HasPeers(data) && !r.options.RewriteConfigPeers && !r.options.Force {
		gologger.Warning().Msgf("config %s already has peers, use -rewrite-config-peers or -force to overwrite", r.options.ConfigFile)
		return nil, false, nil
	}
	return data, true, nil
}

// gatherPeers returns the deduplicated candidate set: the live peer
// list (falling back to the cache when the source is unreachable) plus
// any user-provided targets.
func (r *Runner) gatherPeers(ctx context.Context) ([]types.PeerRecord, error) {
	cache := &sources.Cache{Path: r.options.PeersCache}

	var records []types.PeerRecord
	if r.options.CacheOnly {
		cached, err := cache.Load()
		if err != nil {
			return nil, err
		}
		if len(cached) == 0 {
			return nil, fmt.Errorf("%w: cache %s holds no peers", sources.ErrPeerFetch, r.options.PeersCache)
		}
		records = cached
	} else {
		owner, repo, err := splitRepo(r.options.PeersRepo)
		if err != nil {
			return nil, err
		}
		fetched, err := sources.Fetch(ctx, sources.FetchOptions{
			Owner:    owner,
			Repo:     repo,
			Ref:      r.options.PeersRef,
			Parallel: r.options.Parallel,
		})
		if err != nil {
			gologger.Warning().Msgf("live peer fetch failed: %s", err)
			cached, cerr := cache.Load()
			if cerr != nil {
				gologger.Warning().Msgf("%s", cerr)
			}
			if len(cached) == 0 {
				return nil, fmt.Errorf("%w: live fetch failed and no usable cache", sources.ErrPeerFetch)
			}
			records = cached
		} else {
			records = fetched
			if err := cache.Save(fetched, r.options.RunID); err != nil {
				gologger.Warning().Msgf("error saving peer cache: %s", err)
			}
		}
	}

	if len(r.options.Targets) > 0 {
		extra, err := sources.ExpandTargets(r.options.Targets)
		if err != nil {
			return nil, err
		}
		records = append(records, extra...)
	}

	records = dedupeRecords(records)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no candidate peers to probe", sources.ErrPeerFetch)
	}
	return records, nil
}

func (r *Runner) probePeers(ctx context.Context, records []types.PeerRecord) ([]types.PeerResult, error) {
	pinger, err := probe.NewICMPPinger(r.options.Timeout())
	if err != nil {
		return nil, err
	}
	defer pinger.Close()

	prober, err := probe.NewProber(pinger, probe.Options{
		Pings:    r.options.Pings,
		Interval: r.options.Interval(),
		Parallel: r.options.Parallel,
	})
	if err != nil {
		return nil, err
	}

	gologger.Info().Msgf("probing %d peers (%d pings each, %d parallel)", len(records), r.options.Pings, r.options.Parallel)
	return prober.Probe(ctx, records)
}

// printSelection prints the final ranked list
func (r *Runner) printSelection(selection types.Selection) {
	gologger.Info().Msgf("selected %d best peers", len(selection))
	for i, res := range selection {
		details := fmt.Sprintf("rtt=%s loss=%.0f%% country=%s",
			res.MeanLatency().Round(100*time.Microsecond), res.PacketLoss*100, res.Record.Country)
		fmt.Printf("%d. %s (%s)\n", i+1, au.Cyan(res.Record.URI), au.Faint(details))
	}
}

// dedupeRecords drops later records sharing an earlier record's URI,
// keeping discovery order
func dedupeRecords(records []types.PeerRecord) []types.PeerRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, rec := range records {
		if _, dup := seen[rec.URI]; dup {
			continue
		}
		seen[rec.URI] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func splitRepo(repo string) (owner, name string, err error) {
	owner, name, found := strings.Cut(repo, "/")
	if !found || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid peers repository %q, expected owner/name", repo)
	}
	return owner, name, nil
}
