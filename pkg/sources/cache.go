package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/meshutils/peerpick/pkg/types"
	"github.com/projectdiscovery/gologger"
	fileutil "github.com/projectdiscovery/utils/file"
)

// Cache persists the fetched peer list between runs so a later run can
// proceed when the live source is unreachable. It holds peer records
// only, never probe results.
type Cache struct {
	Path string
}

type cacheFile struct {
	RunID     string             `json:"run_id"`
	FetchedAt time.Time          `json:"fetched_at"`
	Peers     []types.PeerRecord `json:"peers"`
}

// Save writes the record set to disk
func (c *Cache) Save(records []types.PeerRecord, runID string) error {
	if c == nil || c.Path == "" {
		return nil
	}
	data, err := json.MarshalIndent(cacheFile{
		RunID:     runID,
		FetchedAt: time.Now().UTC(),
		Peers:     records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling peer cache: %w", err)
	}
	if dir := filepath.Dir(c.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating cache directory: %w", err)
		}
	}
	return os.WriteFile(c.Path, data, 0644)
}

// Load reads the cached record set. A missing cache file is a miss, not
// an error.
func (c *Cache) Load() ([]types.PeerRecord, error) {
	if c == nil || c.Path == "" {
		return nil, nil
	}
	if !fileutil.FileExists(c.Path) {
		return nil, nil
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("error reading cache file: %w", err)
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("error parsing cache file %s: %w", c.Path, err)
	}
	if len(cf.Peers) > 0 && !cf.FetchedAt.IsZero() {
		gologger.Info().Msgf("using %d cached peers fetched %s", len(cf.Peers), humanize.Time(cf.FetchedAt))
	}
	return cf.Peers, nil
}
