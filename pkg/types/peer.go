package types

import (
	"fmt"
	"net"
	"strings"
)

// PeerRecord describes one candidate relay endpoint taken from a peer
// source. Records are immutable after construction; identity is URI.
type PeerRecord struct {
	// Addr is the bare host or IP the endpoint is probed at
	Addr string `json:"addr"`
	// URI is the full dialable form, e.g. tls://host:port
	URI string `json:"uri"`
	// Region is the source document region, e.g. europe
	Region string `json:"region,omitempty"`
	// Country is the lowercase country slug, "unknown" when absent
	Country string `json:"country,omitempty"`
	// Label is optional free-form metadata
	Label string `json:"label,omitempty"`
}

// NewPeerRecord validates and normalizes a candidate endpoint. Malformed
// records are rejected here, at the source boundary, so the probing and
// ranking stages never see them.
func NewPeerRecord(addr, uri, region, country string) (PeerRecord, error) {
	addr = strings.Trim(strings.TrimSpace(addr), "[]")
	if addr == "" {
		return PeerRecord{}, fmt.Errorf("peer address is empty")
	}
	if !validHost(addr) {
		return PeerRecord{}, fmt.Errorf("invalid peer address: %q", addr)
	}
	country = strings.ToLower(strings.TrimSpace(country))
	if country == "" {
		country = "unknown"
	}
	if uri == "" {
		uri = addr
	}
	return PeerRecord{
		Addr:    addr,
		URI:     uri,
		Region:  region,
		Country: country,
	}, nil
}

func (p PeerRecord) String() string {
	return fmt.Sprintf("%s (%s/%s)", p.URI, p.Region, p.Country)
}

// validHost accepts an IP literal or a DNS-style hostname
func validHost(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z':
			case c >= 'A' && c <= 'Z':
			case c >= '0' && c <= '9':
			case c == '-' || c == '_':
			default:
				return false
			}
		}
	}
	return true
}
