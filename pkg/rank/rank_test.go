package rank

import (
	"errors"
	"testing"
	"time"

	"github.com/meshutils/peerpick/pkg/types"
)

func reachablePeer(uri, country string, rttMs ...int) types.PeerResult {
	latencies := make([]time.Duration, 0, len(rttMs))
	for _, ms := range rttMs {
		latencies = append(latencies, time.Duration(ms)*time.Millisecond)
	}
	return types.PeerResult{
		Record:    types.PeerRecord{Addr: uri, URI: uri, Country: country},
		Reachable: true,
		Latencies: latencies,
	}
}

func lostPeer(uri, country string) types.PeerResult {
	return types.PeerResult{
		Record:     types.PeerRecord{Addr: uri, URI: uri, Country: country},
		Reachable:  false,
		PacketLoss: 1.0,
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		results  []types.PeerResult
		opts     Options
		want     []string
		wantErr  error
		validate func(t *testing.T, sel types.Selection)
	}{
		{
			name: "country cap skips and backfills",
			// 3 DE peers at 10/20/30ms, 5 US peers at 5/15/25/35/45ms,
			// best=4 cap=2 -> US:5, DE:10, US:15, DE:20
			results: []types.PeerResult{
				reachablePeer("de1", "de", 10),
				reachablePeer("de2", "de", 20),
				reachablePeer("de3", "de", 30),
				reachablePeer("us1", "us", 5),
				reachablePeer("us2", "us", 15),
				reachablePeer("us3", "us", 25),
				reachablePeer("us4", "us", 35),
				reachablePeer("us5", "us", 45),
			},
			opts: Options{Best: 4, MaxFromCountry: 2},
			want: []string{"us1", "de1", "us2", "de2"},
		},
		{
			name: "cap zero is unlimited",
			results: []types.PeerResult{
				reachablePeer("us1", "us", 5),
				reachablePeer("us2", "us", 15),
				reachablePeer("us3", "us", 25),
			},
			opts: Options{Best: 3},
			want: []string{"us1", "us2", "us3"},
		},
		{
			name: "unreachable peers never selected",
			results: []types.PeerResult{
				lostPeer("down1", "de"),
				reachablePeer("up1", "de", 40),
				lostPeer("down2", "us"),
			},
			opts: Options{Best: 5},
			want: []string{"up1"},
		},
		{
			name: "fewer survivors than best is not an error",
			results: []types.PeerResult{
				reachablePeer("a", "nl", 12),
				reachablePeer("b", "nl", 7),
			},
			opts: Options{Best: 10},
			want: []string{"b", "a"},
		},
		{
			name: "zero survivors",
			results: []types.PeerResult{
				lostPeer("down1", "de"),
				lostPeer("down2", "us"),
			},
			opts:    Options{Best: 3},
			wantErr: ErrInsufficientPeers,
		},
		{
			name:    "empty input",
			results: nil,
			opts:    Options{Best: 3},
			wantErr: ErrInsufficientPeers,
		},
		{
			name: "equal latencies keep input order",
			results: []types.PeerResult{
				reachablePeer("first", "de", 10),
				reachablePeer("second", "us", 10),
				reachablePeer("third", "fr", 10),
			},
			opts: Options{Best: 3},
			want: []string{"first", "second", "third"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Select(tt.results, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Select() error = %v, want %v", err, tt.wantErr)
				}
				if len(sel) != 0 {
					t.Fatalf("expected empty selection, got %d entries", len(sel))
				}
				return
			}
			if err != nil {
				t.Fatalf("Select() unexpected error: %v", err)
			}
			got := sel.Addrs()
			if len(got) != len(tt.want) {
				t.Fatalf("Select() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("Select()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
			if tt.validate != nil {
				tt.validate(t, sel)
			}
		})
	}
}

func TestSelectInvariants(t *testing.T) {
	results := []types.PeerResult{
		reachablePeer("de1", "de", 10),
		lostPeer("down", "de"),
		reachablePeer("de2", "de", 20),
		reachablePeer("us1", "us", 5),
		reachablePeer("us2", "us", 15),
		reachablePeer("nl1", "nl", 5),
	}
	opts := Options{Best: 4, MaxFromCountry: 1}

	sel, err := Select(results, opts)
	if err != nil {
		t.Fatalf("Select() unexpected error: %v", err)
	}

	if len(sel) > opts.Best {
		t.Fatalf("selection size %d exceeds best=%d", len(sel), opts.Best)
	}
	perCountry := make(map[string]int)
	for i, r := range sel {
		if !r.Reachable {
			t.Fatalf("unreachable peer %s selected", r.Record.URI)
		}
		perCountry[r.Record.Country]++
		if perCountry[r.Record.Country] > opts.MaxFromCountry {
			t.Fatalf("country %s exceeds cap", r.Record.Country)
		}
		if i > 0 && sel[i-1].MeanLatency() > r.MeanLatency() {
			t.Fatalf("selection not sorted by mean latency at index %d", i)
		}
	}

	// same inputs must produce the same selection
	again, err := Select(results, opts)
	if err != nil {
		t.Fatalf("Select() second run error: %v", err)
	}
	gotA, gotB := sel.Addrs(), again.Addrs()
	for i := range gotA {
		if gotA[i] != gotB[i] {
			t.Fatalf("selection not deterministic: %v vs %v", gotA, gotB)
		}
	}
}
