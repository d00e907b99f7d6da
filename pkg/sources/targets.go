package sources

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/meshutils/peerpick/pkg/types"
	"github.com/projectdiscovery/mapcidr"
)

// bare targets without a scheme get a dialable default form
const defaultTargetPort = 443

// ExpandTargets converts user-provided extra candidates into peer
// records. Targets can be full peer URIs (tls://host:port), bare hosts,
// IPs, or CIDR ranges; CIDRs are expanded into individual addresses.
// Bare targets default to tls on port 443 so the selection always
// writes a dialable URI. Unlike source-document peers these carry no
// country, so they never count against the diversity cap of a named
// country.
func ExpandTargets(targets []string) ([]types.PeerRecord, error) {
	var records []types.PeerRecord
	seen := make(map[string]struct{})

	add := func(rec types.PeerRecord) {
		if _, dup := seen[rec.URI]; dup {
			return
		}
		seen[rec.URI] = struct{}{}
		records = append(records, rec)
	}

	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}

		if strings.Contains(target, "://") {
			rec, err := parseTargetURI(target)
			if err != nil {
				return nil, err
			}
			add(rec)
			continue
		}

		if _, _, err := net.ParseCIDR(target); err == nil {
			ips, err := mapcidr.IPAddresses(target)
			if err != nil {
				return nil, fmt.Errorf("failed to expand CIDR %s: %w", target, err)
			}
			for _, ip := range ips {
				rec, err := manualRecord(ip)
				if err != nil {
					continue
				}
				add(rec)
			}
			continue
		}

		rec, err := manualRecord(target)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", target, err)
		}
		add(rec)
	}
	return records, nil
}

func manualRecord(addr string) (types.PeerRecord, error) {
	addr = strings.Trim(addr, "[]")
	host := addr
	if ip := net.ParseIP(addr); ip != nil && ip.To4() == nil {
		host = "[" + addr + "]"
	}
	uri := fmt.Sprintf("tls://%s:%d", host, defaultTargetPort)
	return types.NewPeerRecord(addr, uri, "manual", "")
}

func parseTargetURI(target string) (types.PeerRecord, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return types.PeerRecord{}, fmt.Errorf("invalid target uri %q", target)
	}
	rec, err := types.NewPeerRecord(u.Hostname(), target, "manual", "")
	if err != nil {
		return types.PeerRecord{}, fmt.Errorf("invalid target uri %q: %w", target, err)
	}
	return rec, nil
}
