package specsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	"cxcli/internal/api"
	"cxcli/internal/apispec"
	"cxcli/internal/cache"

	"github.com/stretchr/testify/require"
)

const catalogDoc = `{
  "sections": [
    {"title": "System Log", "apis": "/specs/systemlog.json"},
    {"children": [
      {"title": "Monitor_Alerts", "apis": "/specs/adm/alerts.yaml"},
      {"title": "Monitor_Events", "apis": "/specs/adm/events.yml"}
    ]},
    {"title": "Export and Import REST APIs", "apis": "/specs/microapps.json"},
    {"title": "Broken", "apis": "/specs/broken.json"}
  ]
}`

var specBodies = map[string]string{
	"/specs/systemlog.json": `{
  "swagger": "2.0",
  "info": {"title": "System Log", "version": "1"},
  "host": "api.cloud.com",
  "basePath": "/systemlog",
  "paths": {"/records": {"get": {"operationId": "GetRecords", "responses": {"200": {"description": "ok"}}}}}
}`,
	"/specs/adm/alerts.yaml": `swagger: "2.0"
info:
  title: ADM Monitor
  version: "1"
paths:
  /alerts:
    get:
      operationId: GetAlerts
      responses:
        200:
          description: ok
`,
	"/specs/adm/events.yml": `swagger: "2.0"
info:
  title: ADM Monitor
  version: "1"
paths:
  /events:
    get:
      operationId: GetEvents
      responses:
        200:
          description: ok
`,
	discoverySuffix: `{
  "swagger": "2.0",
  "info": {"title": "Platform Service", "version": "v1"},
  "host": "internal.example.com",
  "paths": {"/ping": {"get": {"operationId": "Ping"}}}
}`,
	"/specs/microapps.json": `{
  "swagger": "2.0",
  "info": {"title": "Microapps", "version": "1"},
  "host": "{customerid}.{geo}.example.com",
  "paths": {
    "/export": {"post": {"operationId": "Export", "parameters": [{"name": "body", "in": "body", "schema": {"type": "object"}}]}},
    "/health": {"get": {"operationId": "Health"}}
  }
}`,
}

type specServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newSpecServer(t *testing.T) *specServer {
	t.Helper()
	s := &specServer{hits: make(map[string]int)}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		if r.URL.Path == "/catalog.json" {
			_, _ = w.Write([]byte(catalogDoc))
			return
		}
		body, ok := specBodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *specServer) resetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[string]int)
}

func (s *specServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestSyncer(t *testing.T, server *specServer) (*Syncer, *cache.Manager) {
	t.Helper()
	store := cache.NewManager(filepath.Join(t.TempDir(), "apispecs"))
	t.Cleanup(func() { _ = store.Close() })
	syncer := NewSyncer(store, server.Client(), Options{
		CatalogURL:     server.URL + "/catalog.json",
		CatalogBaseURL: server.URL,
		Workers:        2,
		UserAgent:      "cxcli/0.1",
	}, nil)
	return syncer, store
}

func TestSyncPublic(t *testing.T) {
	ctx := context.Background()
	server := newSpecServer(t)
	syncer, store := newTestSyncer(t, server)

	report, err := syncer.SyncPublic(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, report.Fetched)
	require.Empty(t, report.Skipped)
	require.Equal(t, []string{"adm_monitor", "microapps", "systemlog"}, report.Groups)
	require.ErrorContains(t, report.Failures, "broken")
	require.Equal(t, cache.Index{
		"adm_monitor": "ADM Monitor",
		"microapps":   "Microapps",
		"systemlog":   "System Log",
	}, report.Index)

	monitor, err := store.Read(ctx, "adm_monitor")
	require.NoError(t, err)
	require.Contains(t, monitor.Paths(), "/alerts")
	require.Contains(t, monitor.Paths(), "/events")
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	require.Equal(t, u.Host, monitor["host"])

	microapps, err := store.Read(ctx, "microapps")
	require.NoError(t, err)
	export := microapps.Paths()["/export"].(map[string]any)["post"].(map[string]any)
	require.Len(t, export["parameters"], 3)
	health := microapps.Paths()["/health"].(map[string]any)["get"].(map[string]any)
	require.NotContains(t, health, "parameters")

	systemlog, err := store.Read(ctx, "systemlog")
	require.NoError(t, err)
	require.Equal(t, "api.cloud.com", systemlog["host"])
}

func TestSyncSecondRunFetchesNothing(t *testing.T) {
	ctx := context.Background()
	server := newSpecServer(t)
	syncer, store := newTestSyncer(t, server)

	first, err := syncer.SyncPublic(ctx)
	require.NoError(t, err)

	server.resetHits()
	second, err := syncer.SyncPublic(ctx)
	require.NoError(t, err)
	require.Zero(t, second.Fetched)
	require.Empty(t, second.Groups)
	require.Equal(t, []string{"adm_monitor", "microapps", "systemlog"}, second.Skipped)
	require.Equal(t, first.Index, second.Index)

	require.Zero(t, server.hitCount("/catalog.json"))
	for path := range specBodies {
		require.Zero(t, server.hitCount(path), path)
	}

	loaded, err := store.LoadIndex(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Index, loaded)
}

func TestSyncResetRefetches(t *testing.T) {
	ctx := context.Background()
	server := newSpecServer(t)
	syncer, _ := newTestSyncer(t, server)

	_, err := syncer.SyncPublic(ctx)
	require.NoError(t, err)
	require.NoError(t, syncer.Reset())

	server.resetHits()
	report, err := syncer.SyncPublic(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, report.Fetched)
	require.Equal(t, 1, server.hitCount("/catalog.json"))
}

func TestSyncUnsupportedSuffix(t *testing.T) {
	server := newSpecServer(t)
	syncer, _ := newTestSyncer(t, server)

	_, err := syncer.Sync(context.Background(), []Entry{
		{Name: "systemlog", Source: server.URL + "/specs/systemlog.json"},
		{Name: "odd", Source: server.URL + "/specs/odd.txt"},
	})
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "odd", cfgErr.Entry.Name)
	require.Zero(t, server.hitCount("/specs/systemlog.json"))
}

func TestSourceFormat(t *testing.T) {
	for _, tc := range []struct {
		source string
		want   format
		ok     bool
	}{
		{"https://h/a.yaml", formatYAML, true},
		{"https://h/a.yml", formatYAML, true},
		{"https://h/a.json", formatJSON, true},
		{"https://h/a.json?x=1", formatJSON, true},
		{"https://trust.citrixworkspacesapi.net/swagger/docs/v1", formatJSON, true},
		{"https://h/a.txt", 0, false},
	} {
		got, ok := sourceFormat(tc.source)
		require.Equal(t, tc.ok, ok, tc.source)
		require.Equal(t, tc.want, got, tc.source)
	}
}

func TestUnpublishedEntries(t *testing.T) {
	entries := UnpublishedEntries([]api.Release{
		{Service: "Catalog", Region: "EastUS", Release: "release-a", Fqdn: "catalog.citrixworkspacesapi.net"},
		{Service: "Catalog2", Region: "WestUS", Release: "release-a", Fqdn: "catalog2.citrixworkspacesapi.net"},
		{Service: "Other", Region: "EastUS", Release: "release-b", Fqdn: "other.citrixworkspacesapi.net"},
		{Service: "Elsewhere", Region: "EastUS", Release: "release-a", Fqdn: "elsewhere.example.com"},
		{Service: "WebRelay", Region: "EastUS", Release: "release-a", Fqdn: "webrelay.citrixworkspacesapi.net"},
	})
	byName := make(map[string]Entry)
	for _, e := range entries {
		byName[e.Name] = e
	}
	require.Len(t, entries, len(platformServices)+1)
	require.Equal(t, Entry{
		Name:    "catalog",
		Source:  "https://catalog.citrixworkspacesapi.net/swagger/docs/v1",
		PinHost: true,
	}, byName["catalog"])
	require.Equal(t, "https://trust.citrixworkspacesapi.net/swagger/docs/v1", byName["trust"].Source)
	require.NotContains(t, byName, "webrelay")
	require.NotContains(t, byName, "elsewhere")
}

type fakeLister []api.Release

func (f fakeLister) ListReleases(context.Context, string) ([]api.Release, error) {
	return f, nil
}

// redirectTransport sends every request to the test server regardless of
// the requested host.
type redirectTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = ""
	return rt.base.RoundTrip(r)
}

func TestSyncUnpublishedPinsHost(t *testing.T) {
	ctx := context.Background()
	server := newSpecServer(t)
	target, err := url.Parse(server.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: redirectTransport{target: target, base: server.Client().Transport}}

	store := cache.NewManager(filepath.Join(t.TempDir(), "apispecs"))
	t.Cleanup(func() { _ = store.Close() })
	syncer := NewSyncer(store, client, Options{Workers: 3}, nil)

	report, err := syncer.SyncUnpublished(ctx, fakeLister{
		{Service: "Catalog", Region: "EastUS", Release: "release-a", Fqdn: "catalog.citrixworkspacesapi.net"},
	}, "cust1")
	require.NoError(t, err)
	require.NoError(t, report.Failures)
	require.Equal(t, len(platformServices)+1, report.Fetched)
	require.Equal(t, len(platformServices)+1, server.hitCount(discoverySuffix))

	doc, err := store.Read(ctx, "catalog")
	require.NoError(t, err)
	require.Equal(t, "catalog.citrixworkspacesapi.net", doc["host"])
	require.Equal(t, "Platform Service", report.Index.Title("trust"))
}

func TestFixHost(t *testing.T) {
	doc := apispec.Document{}
	fixHost(doc, "https://trust.citrixworkspacesapi.net/swagger/docs/v1", false)
	require.Equal(t, "trust.citrixworkspacesapi.net", doc["host"])

	doc = apispec.Document{"host": "declared.example.com"}
	fixHost(doc, "https://spec.example.com/a.json", false)
	require.Equal(t, "declared.example.com", doc["host"])

	fixHost(doc, "https://spec.example.com/a.json", true)
	require.Equal(t, "spec.example.com", doc["host"])

	doc = apispec.Document{"servers": []any{map[string]any{"url": "https://srv.example.com"}}}
	fixHost(doc, "https://spec.example.com/a.json", false)
	require.NotContains(t, doc, "host")
}

func TestApplyFixups(t *testing.T) {
	newDoc := func() apispec.Document {
		return apispec.Document{"paths": map[string]any{
			"/a": map[string]any{
				"get":  map[string]any{"parameters": []any{}},
				"post": map[string]any{},
			},
		}}
	}

	doc := newDoc()
	applyFixups("wem", doc)
	get := doc.Paths()["/a"].(map[string]any)["get"].(map[string]any)
	require.Equal(t, []any{map[string]any{"name": "api", "in": "path", "required": "true"}}, get["parameters"])
	post := doc.Paths()["/a"].(map[string]any)["post"].(map[string]any)
	require.NotContains(t, post, "parameters")

	doc = newDoc()
	applyFixups("systemlog", doc)
	require.Equal(t, newDoc(), doc)
}

func TestProbeVersion(t *testing.T) {
	version, err := probeVersion(apispec.Document{
		"openapi": "3.0.1",
		"info":    map[string]any{"title": "t", "version": "1"},
		"paths":   map[string]any{},
	})
	require.NoError(t, err)
	require.Equal(t, "3.0.1", version)
}
