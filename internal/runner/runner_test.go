package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/meshutils/peerpick/pkg/sources"
	"github.com/meshutils/peerpick/pkg/types"
)

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		repo      string
		wantOwner string
		wantName  string
		wantErr   bool
	}{
		{"yggdrasil-network/public-peers", "yggdrasil-network", "public-peers", false},
		{"owner/", "", "", true},
		{"/name", "", "", true},
		{"no-slash", "", "", true},
	}
	for _, tt := range tests {
		owner, name, err := splitRepo(tt.repo)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitRepo(%q) error = %v, wantErr %v", tt.repo, err, tt.wantErr)
			continue
		}
		if owner != tt.wantOwner || name != tt.wantName {
			t.Errorf("splitRepo(%q) = (%q, %q), want (%q, %q)", tt.repo, owner, name, tt.wantOwner, tt.wantName)
		}
	}
}

func seedCache(t *testing.T) (string, []types.PeerRecord) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.json")
	peers := []types.PeerRecord{
		{Addr: "de1.example.com", URI: "tls://de1.example.com:443", Region: "europe", Country: "germany"},
		{Addr: "us1.example.com", URI: "tls://us1.example.com:443", Region: "north-america", Country: "united-states"},
	}
	cache := &sources.Cache{Path: path}
	if err := cache.Save(peers, "test-run"); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}
	return path, peers
}

// points the peer source at a server that always fails
func brokenPeerSource(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("PEERPICK_GITHUB_API", srv.URL)
	t.Setenv("PEERPICK_GITHUB_RAW", srv.URL)
}

func TestGatherPeersFetchFallsBackToCache(t *testing.T) {
	brokenPeerSource(t)
	cachePath, peers := seedCache(t)

	r := &Runner{options: &Options{
		PeersRepo:  "ygg/public-peers",
		PeersRef:   "master",
		PeersCache: cachePath,
		Parallel:   2,
	}}
	records, err := r.gatherPeers(context.Background())
	if err != nil {
		t.Fatalf("gatherPeers() should fall back to the cache, got error: %v", err)
	}
	if len(records) != len(peers) {
		t.Fatalf("got %d records, want %d", len(records), len(peers))
	}
	for i := range peers {
		if records[i].URI != peers[i].URI {
			t.Errorf("record %d = %s, want %s", i, records[i].URI, peers[i].URI)
		}
	}
}

func TestGatherPeersFetchFailsWithoutCache(t *testing.T) {
	brokenPeerSource(t)

	r := &Runner{options: &Options{
		PeersRepo: "ygg/public-peers",
		PeersRef:  "master",
		Parallel:  2,
	}}
	_, err := r.gatherPeers(context.Background())
	if !errors.Is(err, sources.ErrPeerFetch) {
		t.Errorf("expected ErrPeerFetch without a cache, got %v", err)
	}
}

func TestGatherPeersCacheOnly(t *testing.T) {
	cachePath, peers := seedCache(t)

	r := &Runner{options: &Options{CacheOnly: true, PeersCache: cachePath}}
	records, err := r.gatherPeers(context.Background())
	if err != nil {
		t.Fatalf("gatherPeers() error: %v", err)
	}
	if len(records) != len(peers) {
		t.Fatalf("got %d records, want %d", len(records), len(peers))
	}
}

func TestGatherPeersCacheOnlyMissing(t *testing.T) {
	r := &Runner{options: &Options{
		CacheOnly:  true,
		PeersCache: filepath.Join(t.TempDir(), "absent.json"),
	}}
	_, err := r.gatherPeers(context.Background())
	if !errors.Is(err, sources.ErrPeerFetch) {
		t.Errorf("expected ErrPeerFetch for empty cache, got %v", err)
	}
}

func TestPreflightConfigGate(t *testing.T) {
	populated := "{\n  Peers: [\n    \"tls://a:443\"\n  ]\n}\n"
	empty := "{\n  Peers: []\n}\n"

	tests := []struct {
		name        string
		content     string
		rewrite     bool
		force       bool
		wantProceed bool
	}{
		{"empty peers block", empty, false, false, true},
		{"populated without flags", populated, false, false, false},
		{"populated with rewrite", populated, true, false, true},
		{"populated with force", populated, false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "yggdrasil.conf")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("writing config: %v", err)
			}

			r := &Runner{options: &Options{
				ConfigFile:         path,
				RewriteConfigPeers: tt.rewrite,
				Force:              tt.force,
			}}
			data, proceed, err := r.preflightConfig()
			if err != nil {
				t.Fatalf("preflightConfig() error: %v", err)
			}
			if proceed != tt.wantProceed {
				t.Errorf("proceed = %v, want %v", proceed, tt.wantProceed)
			}
			if proceed && string(data) != tt.content {
				t.Errorf("config data not returned for the rewrite stage")
			}
		})
	}
}

func TestPreflightConfigUnset(t *testing.T) {
	r := &Runner{options: &Options{}}
	if _, proceed, err := r.preflightConfig(); err != nil || !proceed {
		t.Errorf("no config file should proceed without error, got proceed=%v err=%v", proceed, err)
	}
}

func TestDedupeRecords(t *testing.T) {
	records := []types.PeerRecord{
		{Addr: "a", URI: "tls://a:443", Country: "de"},
		{Addr: "b", URI: "tls://b:443", Country: "us"},
		{Addr: "a", URI: "tls://a:443", Country: "de"},
		{Addr: "a", URI: "tcp://a:9001", Country: "de"},
	}
	out := dedupeRecords(records)
	if len(out) != 3 {
		t.Fatalf("got %d records, want 3: %v", len(out), out)
	}
	if out[0].URI != "tls://a:443" || out[1].URI != "tls://b:443" || out[2].URI != "tcp://a:9001" {
		t.Errorf("dedupe broke discovery order: %v", out)
	}
}
