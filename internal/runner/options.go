package runner

import (
	"os"
	"time"

	"github.com/logrusorgru/aurora/v4"
	"github.com/meshutils/peerpick/pkg/version"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"
	envutil "github.com/projectdiscovery/utils/env"
	updateutils "github.com/projectdiscovery/utils/update"
	"github.com/rs/xid"
)

var au *aurora.Aurora

var (
	PeersRepoEnv  = envutil.GetEnvOrDefault("PEERPICK_PEERS_REPO", "yggdrasil-network/public-peers")
	PeersRefEnv   = envutil.GetEnvOrDefault("PEERPICK_PEERS_REF", "master")
	PeersCacheEnv = envutil.GetEnvOrDefault("PEERPICK_PEERS_CACHE", "")
)

// Options contains the configuration options for a peer selection run.
// Every stage receives its parameters from here; nothing reads ambient
// global state.
type Options struct {
	ConfigFile         string
	RewriteConfigPeers bool
	Force              bool

	PeersRepo  string
	PeersRef   string
	PeersCache string
	Targets    goflags.StringSlice

	Pings      int
	IntervalMs int
	TimeoutMs  int
	Parallel   int
	CacheOnly  bool

	Best           int
	MaxFromCountry int

	Verbose            bool
	Silent             bool
	NoColor            bool
	Version            bool
	DisableUpdateCheck bool

	// RunID correlates log lines and the cache file with one run
	RunID string
}

// Interval between a peer's own probes
func (options *Options) Interval() time.Duration {
	return time.Duration(options.IntervalMs) * time.Millisecond
}

// Timeout for a single probe
func (options *Options) Timeout() time.Duration {
	return time.Duration(options.TimeoutMs) * time.Millisecond
}

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := &Options{}
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`peerpick discovers public mesh relay peers, measures their latency and packet loss, and rewrites the local Yggdrasil configuration with the best-performing diverse subset`)

	flagSet.CreateGroup("config", "Config",
		flagSet.StringVarP(&options.ConfigFile, "config", "c", "", "yggdrasil configuration file to rewrite"),
		flagSet.BoolVarP(&options.RewriteConfigPeers, "rewrite-config-peers", "rw", false, "replace peers already present in the config file"),
		flagSet.BoolVar(&options.Force, "force", false, "run even if the config file already has peers"),
	)

	flagSet.CreateGroup("source", "Source",
		flagSet.StringVarP(&options.PeersRepo, "peers-repo", "pr", PeersRepoEnv, "github repository holding the public peer documents (owner/name)"),
		flagSet.StringVarP(&options.PeersRef, "peers-ref", "pf", PeersRefEnv, "git ref of the peer repository to read"),
		flagSet.StringVarP(&options.PeersCache, "peers-cache", "pc", PeersCacheEnv, "json file to cache the fetched peer list"),
		flagSet.BoolVarP(&options.CacheOnly, "cache-only", "co", false, "skip the live fetch and use the cached peer list"),
		flagSet.StringSliceVarP(&options.Targets, "target", "t", nil, "extra peer candidates to probe (uri, host, ip or cidr, comma separated; bare targets default to tls on port 443)", goflags.CommaSeparatedStringSliceOptions),
	)

	flagSet.CreateGroup("probe", "Probe",
		flagSet.IntVar(&options.Pings, "pings", 5, "number of echo probes per peer"),
		flagSet.IntVarP(&options.IntervalMs, "ping-interval", "pi", 100, "pause between a peer's probes in milliseconds"),
		flagSet.IntVarP(&options.TimeoutMs, "ping-timeout", "pt", 2000, "single probe timeout in milliseconds"),
		flagSet.IntVarP(&options.Parallel, "parallel", "p", 10, "number of peers probed concurrently"),
	)

	flagSet.CreateGroup("selection", "Selection",
		flagSet.IntVarP(&options.Best, "best", "b", 5, "number of best peers to select"),
		flagSet.IntVarP(&options.MaxFromCountry, "max-from-country", "mc", 0, "maximum selected peers sharing one country (0 = unlimited)"),
	)

	flagSet.CreateGroup("debug", "Debug",
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "show verbose output"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only results in output"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
		flagSet.CallbackVarP(GetUpdateCallback(), "self-update", "up", "update peerpick to latest version"),
		flagSet.BoolVarP(&options.DisableUpdateCheck, "disable-update-check", "duc", false, "disable automatic peerpick update check"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	// configure aurora for logging
	au = aurora.New(aurora.WithColors(true))

	options.configureOutput()

	showBanner()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version.GetVersion())
		os.Exit(0)
	}

	if !options.DisableUpdateCheck {
		latestVersion, err := updateutils.GetToolVersionCallback("peerpick", version.GetVersion())()
		if err != nil {
			if options.Verbose {
				gologger.Error().Msgf("peerpick version check failed: %v", err.Error())
			}
		} else {
			gologger.Info().Msgf("Current peerpick version %v %v", version.GetVersion(), updateutils.GetVersionDescription(version.GetVersion(), latestVersion))
		}
	}

	options.RunID = xid.New().String()

	validateOptions(options)

	return options
}

func validateOptions(options *Options) {
	if options.Pings < 1 {
		gologger.Fatal().Msgf("pings must be at least 1, got %d", options.Pings)
	}
	if options.Parallel < 1 {
		gologger.Fatal().Msgf("parallel must be at least 1, got %d", options.Parallel)
	}
	if options.Best < 1 {
		gologger.Fatal().Msgf("best must be at least 1, got %d", options.Best)
	}
	if options.MaxFromCountry < 0 {
		gologger.Fatal().Msgf("max-from-country must not be negative, got %d", options.MaxFromCountry)
	}
	if options.IntervalMs < 0 {
		gologger.Fatal().Msgf("ping-interval must not be negative, got %d", options.IntervalMs)
	}
	if options.CacheOnly && options.PeersCache == "" {
		gologger.Fatal().Msgf("cache-only requires a peers-cache path")
	}
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	// If the user desires verbose output, show verbose output
	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
		au = aurora.New(aurora.WithColors(false))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}
