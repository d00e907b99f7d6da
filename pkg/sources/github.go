package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/meshutils/peerpick/pkg/client"
	"github.com/meshutils/peerpick/pkg/types"
	"github.com/meshutils/peerpick/pkg/version"
	"github.com/projectdiscovery/gologger"
	envutil "github.com/projectdiscovery/utils/env"
	sliceutil "github.com/projectdiscovery/utils/slice"
	syncutil "github.com/projectdiscovery/utils/sync"
	"github.com/tidwall/gjson"
)

// ErrPeerFetch means the live peer list could not be retrieved. The
// pipeline may still proceed from the cache; without one the condition
// is fatal.
var ErrPeerFetch = errors.New("peer list source unavailable")

// endpoints are resolved per fetch so overrides apply without restart
func apiServer() string {
	return envutil.GetEnvOrDefault("PEERPICK_GITHUB_API", "https://api.github.com")
}

func rawServer() string {
	return envutil.GetEnvOrDefault("PEERPICK_GITHUB_RAW", "https://raw.githubusercontent.com")
}

// regional directories of the public-peers repository
var knownRegions = []string{"africa", "asia", "europe", "mena", "north-america", "south-america", "other"}

// FetchOptions configure a live peer list fetch.
type FetchOptions struct {
	Owner    string
	Repo     string
	Ref      string
	Parallel int

	// HTTPClient overrides the default client, used by tests
	HTTPClient *http.Client
}

type peerDoc struct {
	path    string
	region  string
	country string
}

// Fetch lists the repository tree through the git-trees API, pulls each
// regional country document concurrently, and returns the parsed peer
// records in discovery order, deduplicated by URI. Fetch does not retry;
// a failed fetch escalates to the caller's cache fallback.
func Fetch(ctx context.Context, opts FetchOptions) ([]types.PeerRecord, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("%w: no repository configured", ErrPeerFetch)
	}
	if opts.Ref == "" {
		opts.Ref = "master"
	}
	if opts.Parallel < 1 {
		opts.Parallel = 10
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = client.NewClient("peerpick/" + version.GetVersion())
	}

	treeURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", apiServer(), opts.Owner, opts.Repo, opts.Ref)
	body, err := get(ctx, httpClient, treeURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPeerFetch, err)
	}

	result := gjson.ParseBytes(body)
	if result.Get("truncated").Bool() {
		gologger.Warning().Msgf("repository tree listing for %s/%s is truncated", opts.Owner, opts.Repo)
	}

	var docs []peerDoc
	result.Get("tree").ForEach(func(_, entry gjson.Result) bool {
		path := entry.Get("path").String()
		region, country, ok := splitDocPath(path)
		if !ok {
			return true
		}
		gologger.Verbose().Msgf("found peer document %s", path)
		docs = append(docs, peerDoc{path: path, region: region, country: country})
		return true
	})
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no regional peer documents in %s/%s@%s", ErrPeerFetch, opts.Owner, opts.Repo, opts.Ref)
	}

	// each document gets an exclusive slot so discovery order is stable
	perDoc := make([][]types.PeerRecord, len(docs))
	awg, err := syncutil.New(syncutil.WithSize(opts.Parallel))
	if err != nil {
		return nil, fmt.Errorf("failed to create adaptive waitgroup: %w", err)
	}
	for i := range docs {
		awg.Add()
		go func(slot int, doc peerDoc) {
			defer awg.Done()
			rawURL := fmt.Sprintf("%s/%s/%s/%s/%s", rawServer(), opts.Owner, opts.Repo, opts.Ref, doc.path)
			raw, err := get(ctx, httpClient, rawURL)
			if err != nil {
				gologger.Warning().Msgf("failed to fetch %s: %s", doc.path, err)
				return
			}
			perDoc[slot] = ParsePeerDocument(string(raw), doc.region, doc.country)
		}(i, docs[i])
	}
	awg.Wait()

	seen := make(map[string]struct{})
	regions := make(map[string]struct{})
	var records []types.PeerRecord
	for _, recs := range perDoc {
		for _, rec := range recs {
			if _, dup := seen[rec.URI]; dup {
				continue
			}
			seen[rec.URI] = struct{}{}
			regions[rec.Region] = struct{}{}
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no peers parsed from %d documents", ErrPeerFetch, len(docs))
	}

	gologger.Info().Msgf("discovered %s public peers across %d regions",
		humanize.Comma(int64(len(records))), len(regions))
	return records, nil
}

func splitDocPath(path string) (region, country string, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 2 || !strings.HasSuffix(parts[1], ".md") {
		return "", "", false
	}
	if !sliceutil.Contains(knownRegions, parts[0]) {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".md"), true
}

func get(ctx context.Context, httpClient *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}
	return body, nil
}
