// Package sources supplies candidate peer records: live fetches from
// the public-peers repository, user-provided targets, and the on-disk
// peer cache.
package sources

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/meshutils/peerpick/pkg/types"
	"github.com/projectdiscovery/gologger"
)

// peer lines look like: * `tls://host:port` or * `tcp://[2001:db8::1]:9002`
var peerLineRe = regexp.MustCompile("^\\s*\\*\\s*`(tls|tcp|quic)://([\\d.\\[\\]a-zA-Z:_-]+)(:\\d+[^`]*)`")

// ParsePeerLine extracts a peer record from one markdown line of a
// regional peer document. Lines without a peer entry yield ok=false.
func ParsePeerLine(line, region, country string) (types.PeerRecord, bool) {
	m := peerLineRe.FindStringSubmatch(line)
	if m == nil {
		return types.PeerRecord{}, false
	}
	scheme, host, portPart := m[1], m[2], m[3]
	uri := scheme + "://" + host + portPart

	rec, err := types.NewPeerRecord(host, uri, region, country)
	if err != nil {
		gologger.Verbose().Msgf("skipping malformed peer entry %q: %s", uri, err)
		return types.PeerRecord{}, false
	}
	return rec, true
}

// ParsePeerDocument parses a whole regional markdown document.
func ParsePeerDocument(doc, region, country string) []types.PeerRecord {
	var records []types.PeerRecord
	scanner := bufio.NewScanner(strings.NewReader(doc))
	for scanner.Scan() {
		if rec, ok := ParsePeerLine(scanner.Text(), region, country); ok {
			records = append(records, rec)
		}
	}
	return records
}
