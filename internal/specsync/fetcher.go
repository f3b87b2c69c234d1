package specsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"cxcli/internal/apispec"

	"cloudeng.io/errors"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// DefaultWorkers is the number of fragments fetched in parallel.
const DefaultWorkers = 4

// discoverySuffix is served by platform services that publish their own
// swagger document; it is always JSON.
const discoverySuffix = "/swagger/docs/v1"

// ConfigError reports an entry that cannot be fetched as configured.
type ConfigError struct {
	Entry Entry
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: unsupported spec format for %s", e.Entry.Name, e.Entry.Source)
}

type format int

const (
	formatJSON format = iota
	formatYAML
)

func sourceFormat(source string) (format, bool) {
	p := source
	if u, err := url.Parse(source); err == nil {
		p = u.Path
	}
	switch {
	case strings.HasSuffix(p, ".yaml"), strings.HasSuffix(p, ".yml"):
		return formatYAML, true
	case strings.HasSuffix(p, ".json"), strings.HasSuffix(p, discoverySuffix):
		return formatJSON, true
	}
	return 0, false
}

// Result is one successfully fetched fragment.
type Result struct {
	Entry    Entry
	GroupKey string
	Body     apispec.Document
}

// Fetcher downloads spec fragments with bounded parallelism.
type Fetcher struct {
	client    *http.Client
	workers   int
	userAgent string
	logger    *log.Logger
}

// NewFetcher creates a fetcher. workers < 1 selects DefaultWorkers.
func NewFetcher(client *http.Client, workers int, userAgent string, logger *log.Logger) *Fetcher {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{client: client, workers: workers, userAgent: userAgent, logger: logger}
}

// FetchAll fetches every entry whose group is not skipped. Results are
// returned in entry order; failed or skipped entries are absent. Individual
// fetch failures are logged and accumulated in failures, they never abort
// the batch. An entry with an unsupported suffix fails the whole call
// before any network I/O.
func (f *Fetcher) FetchAll(ctx context.Context, entries []Entry, skip func(groupKey string) bool) (results []Result, failures error, err error) {
	for _, e := range entries {
		if _, ok := sourceFormat(e.Source); !ok {
			return nil, nil, &ConfigError{Entry: e}
		}
	}

	slots := make([]*Result, len(entries))
	var (
		mu   sync.Mutex
		errs errors.M
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, e := range entries {
		key := GroupKey(e.Name)
		if skip != nil && skip(key) {
			continue
		}
		g.Go(func() error {
			body, err := f.Fetch(gctx, e)
			if err != nil {
				f.logger.Warn("failed to fetch spec", "name", e.Name, "url", e.Source, "err", err)
				mu.Lock()
				errs.Append(err)
				mu.Unlock()
				return nil
			}
			slots[i] = &Result{Entry: e, GroupKey: key, Body: body}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, errs.Err(), nil
}

// Fetch downloads and decodes one fragment.
func (f *Fetcher) Fetch(ctx context.Context, e Entry) (apispec.Document, error) {
	fmtKind, ok := sourceFormat(e.Source)
	if !ok {
		return nil, &ConfigError{Entry: e}
	}
	data, err := f.get(ctx, e.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	doc, err := decode(fmtKind, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: unexpected status: %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func decode(kind format, data []byte) (apispec.Document, error) {
	var raw any
	switch kind {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
		raw = stringKeys(raw)
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("spec is not an object")
	}
	return apispec.Document(doc), nil
}

// stringKeys converts yaml mappings with non-string keys (e.g. numeric
// response codes) into JSON-compatible maps.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = stringKeys(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = stringKeys(val)
		}
		return t
	}
	return v
}
