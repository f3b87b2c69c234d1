package specsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"cxcli/internal/api"
	"cxcli/internal/apispec"
	"cxcli/internal/cache"

	"github.com/charmbracelet/log"
)

const (
	releaseRegion  = "EastUS"
	releaseChannel = "release-a"
	platformDomain = ".citrixworkspacesapi.net"
)

// excludedReleases publish no usable API description.
var excludedReleases = map[string]bool{
	"Console":                 true,
	"DemoResourceProvider":    true,
	"Encryption":              true,
	"FasHub":                  true,
	"HealthDataStatusManager": true,
	"MediaStorage":            true,
	"ReleasesProxy":           true,
	"WebRelay":                true,
}

// platformServices are not listed by the releases API but always exist.
var platformServices = []string{
	"customers",
	"cloudlibrary",
	"cloudlicense",
	"directory",
	"features",
	"healthdatastore",
	"identity",
	"messaging",
	"notifications",
	"partner",
	"registry",
	"serviceprofiles",
	"trust",
}

// ReleaseLister lists the service deployments of a customer.
type ReleaseLister interface {
	ListReleases(ctx context.Context, customerID string) ([]api.Release, error)
}

// Options configures a Syncer.
type Options struct {
	CatalogURL     string
	CatalogBaseURL string
	Workers        int
	UserAgent      string
}

// Report summarizes one sync run.
type Report struct {
	Fetched  int
	Skipped  []string    // group keys already present in the cache
	Groups   []string    // group keys written by this run
	Index    cache.Index // metadata index rebuilt after the run
	Failures error       // accumulated fetch failures, nil when none
}

// Syncer populates the spec cache.
type Syncer struct {
	store   *cache.Manager
	client  *http.Client
	fetcher *Fetcher
	opts    Options
	logger  *log.Logger
}

// NewSyncer creates a syncer writing into store.
func NewSyncer(store *cache.Manager, client *http.Client, opts Options, logger *log.Logger) *Syncer {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Syncer{
		store:   store,
		client:  client,
		fetcher: NewFetcher(client, opts.Workers, opts.UserAgent, logger),
		opts:    opts,
		logger:  logger,
	}
}

// Reset deletes every cached spec.
func (s *Syncer) Reset() error {
	return s.store.Reset()
}

// Catalog returns the public catalog as catalog name → spec path. The
// catalog document is downloaded once and reused from the cache.
func (s *Syncer) Catalog(ctx context.Context) (map[string]string, error) {
	data, err := s.store.ReadFile(ctx, cache.CatalogFileName)
	if errors.Is(err, os.ErrNotExist) {
		data, err = s.download(ctx, s.opts.CatalogURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch catalog: %w", err)
		}
		if err := s.store.WriteFile(ctx, cache.CatalogFileName, data); err != nil {
			return nil, fmt.Errorf("failed to cache catalog: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return ScanCatalog(doc), nil
}

func (s *Syncer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: unexpected status: %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// SyncPublic fetches every spec listed in the public catalog.
func (s *Syncer) SyncPublic(ctx context.Context) (*Report, error) {
	apis, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return s.Sync(ctx, Entries(apis, s.opts.CatalogBaseURL))
}

// SyncUnpublished fetches the swagger documents of services deployed for
// customerID that the public catalog does not list.
func (s *Syncer) SyncUnpublished(ctx context.Context, lister ReleaseLister, customerID string) (*Report, error) {
	releases, err := lister.ListReleases(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.Sync(ctx, UnpublishedEntries(releases))
}

// UnpublishedEntries selects the releases worth syncing and adds the
// platform services the releases API does not report.
func UnpublishedEntries(releases []api.Release) []Entry {
	byName := make(map[string]Entry)
	for _, r := range releases {
		if r.Region != releaseRegion || r.Release != releaseChannel {
			continue
		}
		if !strings.HasSuffix(r.Fqdn, platformDomain) || excludedReleases[r.Service] {
			continue
		}
		name := strings.ToLower(r.Service)
		byName[name] = Entry{Name: name, Source: "https://" + r.Fqdn + discoverySuffix, PinHost: true}
	}
	for _, name := range platformServices {
		byName[name] = Entry{
			Name:    name,
			Source:  "https://" + name + platformDomain + discoverySuffix,
			PinHost: true,
		}
	}
	entries := make([]Entry, 0, len(byName))
	for _, e := range byName {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Sync fetches entries whose group is not cached yet, merges fragments
// per group, persists each group and rebuilds the metadata index.
func (s *Syncer) Sync(ctx context.Context, entries []Entry) (*Report, error) {
	report := &Report{}
	skipped := make(map[string]bool)
	skip := func(key string) bool {
		if s.store.Exists(key) {
			skipped[key] = true
			return true
		}
		return false
	}
	results, failures, err := s.fetcher.FetchAll(ctx, entries, skip)
	if err != nil {
		return nil, err
	}
	report.Fetched = len(results)
	report.Failures = failures
	for key := range skipped {
		report.Skipped = append(report.Skipped, key)
	}
	sort.Strings(report.Skipped)

	groups := make(map[string]apispec.Document)
	for _, r := range results {
		applyFixups(r.Entry.Name, r.Body)
		fixHost(r.Body, r.Entry.Source, r.Entry.PinHost)
		groups[r.GroupKey] = Merge(groups[r.GroupKey], r.Body, func(path []string, _, _ any) {
			s.logger.Debug("merge overwrote value", "group", r.GroupKey, "path", strings.Join(path, "."), "from", r.Entry.Name)
		})
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		doc := groups[key]
		if version, err := probeVersion(doc); err != nil {
			s.logger.Warn("merged spec does not parse as an API description", "group", key, "err", err)
		} else {
			s.logger.Debug("merged spec", "group", key, "version", version)
		}
		if err := s.store.Write(ctx, key, doc); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", key, err)
		}
	}
	report.Groups = keys

	index, err := s.store.RebuildIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata index: %w", err)
	}
	report.Index = index
	if failures != nil {
		s.logger.Warn("some specs could not be fetched", "err", failures)
	}
	return report, nil
}
