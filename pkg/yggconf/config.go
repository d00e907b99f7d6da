// Package yggconf inspects and rewrites the Peers block of a Yggdrasil
// configuration file. The config dialect is HJSON-like, so the rewrite
// is a textual substitution that leaves every other byte untouched
// rather than a parse-and-dump that would destroy comments and layout.
package yggconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrConfigWrite means the destination config cannot be (re)written.
// It is raised before any destructive edit.
var ErrConfigWrite = errors.New("configuration file not writable")

// matches the opening of a Peers block, bare or quoted key
var peersKeyRe = regexp.MustCompile(`(?m)^[ \t]*"?Peers"?[ \t]*:?[ \t]*\[`)

// locatePeersBlock returns the byte span of the block body, between the
// brackets. Peer URIs may contain ']' inside quoted strings, so the
// closing bracket is found with a small scan instead of a regex.
func locatePeersBlock(data []byte) (open, end int, ok bool) {
	loc := peersKeyRe.FindIndex(data)
	if loc == nil {
		return 0, 0, false
	}
	open = loc[1]
	inString := false
	for i := open; i < len(data); i++ {
		c := data[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == ']':
			return open, i, true
		}
	}
	return 0, 0, false
}

// HasPeers reports whether the config already lists at least one peer.
func HasPeers(data []byte) bool {
	open, end, ok := locatePeersBlock(data)
	if !ok {
		return false
	}
	for _, line := range strings.Split(string(data[open:end]), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		return true
	}
	return false
}

// RewritePeers replaces the Peers block body with the given ordered
// URIs, preserving the rest of the file byte-for-byte. When the config
// has no Peers block one is appended to the top-level object.
func RewritePeers(data []byte, uris []string) ([]byte, error) {
	body := formatPeersBody(uris)

	open, end, ok := locatePeersBlock(data)
	if ok {
		out := make([]byte, 0, len(data)+len(body))
		out = append(out, data[:open]...)
		out = append(out, body...)
		out = append(out, data[end:]...)
		return out, nil
	}

	// no existing block, insert before the closing brace of the
	// top-level object
	if idx := strings.LastIndexByte(string(data), '}'); idx >= 0 {
		block := fmt.Sprintf("  Peers: [%s]\n", body)
		out := make([]byte, 0, len(data)+len(block))
		out = append(out, data[:idx]...)
		out = append(out, block...)
		out = append(out, data[idx:]...)
		return out, nil
	}
	return nil, fmt.Errorf("%w: no top-level object to hold a Peers block", ErrConfigWrite)
}

func formatPeersBody(uris []string) string {
	if len(uris) == 0 {
		return ""
	}
	var b strings.Builder
	for i, uri := range uris {
		b.WriteString("\n    ")
		b.WriteString(fmt.Sprintf("%q", uri))
		if i < len(uris)-1 {
			b.WriteByte(',')
		}
	}
	b.WriteString("\n  ")
	return b.String()
}

// WriteConfig writes the updated config through a temp file rename so a
// failure never leaves a partially written config behind.
func WriteConfig(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConfigWrite, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s", ErrConfigWrite, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s", ErrConfigWrite, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s", ErrConfigWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s", ErrConfigWrite, err)
	}
	return nil
}
