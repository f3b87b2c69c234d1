package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cxcli/internal/apispec"

	"github.com/grokify/omnistorage"
	"github.com/grokify/omnistorage/backend/file"
)

const (
	indexFileName   = "metacache.json"
	CatalogFileName = "allspec.json"
	specExt         = ".json"
)

// ErrNoIndex is returned when specs have not been synced yet.
var ErrNoIndex = errors.New("spec metadata index not found")

// Index maps a group key to the title of its cached spec.
type Index map[string]string

// Title returns the title for key, or "" when the index does not know it.
func (i Index) Title(key string) string {
	return i[key]
}

// Manager owns the on-disk spec cache: one JSON document per group key
// plus the metadata index.
type Manager struct {
	dir     string
	backend omnistorage.Backend
}

// NewManager creates a cache manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:     dir,
		backend: file.New(file.Config{Root: dir}),
	}
}

// Dir returns the cache directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Close releases the storage backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

func groupFile(groupKey string) string {
	return groupKey + specExt
}

// Exists reports whether a cached document exists for groupKey.
func (m *Manager) Exists(groupKey string) bool {
	_, err := os.Stat(filepath.Join(m.dir, groupFile(groupKey)))
	return err == nil
}

// WriteFile stores data under name in the cache directory.
func (m *Manager) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return err
	}
	w, err := m.backend.NewWriter(ctx, name)
	if err != nil {
		return fmt.Errorf("creating writer for %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return w.Close()
}

// ReadFile returns the contents stored under name. Missing files yield an
// error satisfying errors.Is(err, os.ErrNotExist).
func (m *Manager) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if _, err := os.Stat(filepath.Join(m.dir, name)); err != nil {
		return nil, err
	}
	r, err := m.backend.NewReader(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("creating reader for %s: %w", name, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Write persists one merged group document.
func (m *Manager) Write(ctx context.Context, groupKey string, doc apispec.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", groupKey, err)
	}
	return m.WriteFile(ctx, groupFile(groupKey), data)
}

// Read loads one cached group document.
func (m *Manager) Read(ctx context.Context, groupKey string) (apispec.Document, error) {
	data, err := m.ReadFile(ctx, groupFile(groupKey))
	if err != nil {
		return nil, err
	}
	var doc apispec.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", groupKey, err)
	}
	return doc, nil
}

// GroupKeys lists the cached group keys in sorted order. A missing cache
// directory yields no keys.
func (m *Manager) GroupKeys() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, specExt) || name == indexFileName || name == CatalogFileName {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, specExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// RebuildIndex re-scans every cached document for its title and persists
// the result as the metadata index.
func (m *Manager) RebuildIndex(ctx context.Context) (Index, error) {
	keys, err := m.GroupKeys()
	if err != nil {
		return nil, err
	}
	index := make(Index, len(keys))
	for _, key := range keys {
		doc, err := m.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		index[key] = doc.Title()
	}
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := m.WriteFile(ctx, indexFileName, data); err != nil {
		return nil, err
	}
	return index, nil
}

// LoadIndex reads the metadata index, returning ErrNoIndex when specs have
// never been synced.
func (m *Manager) LoadIndex(ctx context.Context) (Index, error) {
	data, err := m.ReadFile(ctx, indexFileName)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoIndex
	}
	if err != nil {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing metadata index: %w", err)
	}
	return index, nil
}

// Reset deletes the whole cache. A cache directory that does not exist is
// not an error.
func (m *Manager) Reset() error {
	if err := os.RemoveAll(m.dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
