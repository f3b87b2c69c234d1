package manifest

import (
	"context"
	"slices"
	"strings"

	"cxcli/internal/apispec"
	"cxcli/internal/cache"

	"github.com/charmbracelet/log"
)

// Loader builds the manifest from the spec cache.
type Loader struct {
	store      *cache.Manager
	normalizer *apispec.Normalizer
	logger     *log.Logger
}

// NewLoader creates a loader reading from store.
func NewLoader(store *cache.Manager, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		store:      store,
		normalizer: apispec.NewNormalizer(logger),
		logger:     logger,
	}
}

// Load returns every cached service. Only services whose name tokens all
// appear in args are read and normalized; the rest take their title from
// the metadata index, or "" when the index does not list them. Load
// returns cache.ErrNoIndex when specs were never synced.
func (l *Loader) Load(ctx context.Context, args []string) (*Manifest, error) {
	index, err := l.store.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := l.store.GroupKeys()
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	for _, key := range keys {
		if !requested(key, args) {
			m.Services = append(m.Services, apispec.NewServiceStub(key, index.Title(key)))
			continue
		}
		svc, err := l.loadService(ctx, key)
		if err != nil {
			l.logger.Error("failed to load spec", "service", key, "err", err)
			svc = apispec.NewServiceStub(key, index.Title(key))
		}
		m.Services = append(m.Services, svc)
	}
	return m, nil
}

func (l *Loader) loadService(ctx context.Context, key string) (*apispec.ServiceSpec, error) {
	doc, err := l.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return l.normalizer.Normalize(key, doc)
}

func requested(groupKey string, args []string) bool {
	tokens := strings.Split(groupKey, "_")
	if !slices.Contains(args, tokens[0]) {
		return false
	}
	return len(tokens) < 2 || slices.Contains(args, tokens[1])
}
