package specsync

import (
	"sort"
	"strings"
)

// Entry is one spec fragment to fetch.
type Entry struct {
	Name   string // catalog name, e.g. "systemlog" or "adm_stats"
	Source string // absolute URL of the fragment
	// PinHost forces the document host to the source authority even when
	// the document declares one.
	PinHost bool
}

// multiComponentPrefix marks catalog names of services split into several
// components that share one CLI namespace.
const multiComponentPrefix = "adm"

// catalogRenames maps normalized catalog titles to their CLI names.
var catalogRenames = map[string]string{
	"exportandimportrestapis":       "microapps",
	"windowsmanagement":             "wem",
	"globalappconfigurationservice": "globalappconfiguration",
}

// GroupKey derives the cache group for a catalog name. Components of a
// multi-component service collapse onto their first two tokens.
func GroupKey(name string) string {
	if strings.HasPrefix(name, multiComponentPrefix) && strings.Contains(name, "_") {
		parts := strings.Split(name, "_")
		return parts[0] + "_" + parts[1]
	}
	return name
}

func catalogName(title, apis string) string {
	name := strings.ToLower(title)
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, "cloudservicesplatform-", "")
	if strings.Contains(apis, "/adm/") {
		name = multiComponentPrefix + "_" + name
	}
	if renamed, ok := catalogRenames[name]; ok {
		name = renamed
	}
	return name
}

// ScanCatalog collects every {title, apis} entry found at any depth of the
// catalog document, keyed by normalized catalog name. Later entries with
// the same name win.
func ScanCatalog(data any) map[string]string {
	apis := make(map[string]string)
	scanCatalog(data, apis)
	return apis
}

func scanCatalog(data any, apis map[string]string) {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			scanCatalog(item, apis)
		}
	case map[string]any:
		title, hasTitle := v["title"].(string)
		path, hasAPIs := v["apis"].(string)
		if hasTitle && hasAPIs {
			apis[catalogName(title, path)] = path
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			scanCatalog(v[k], apis)
		}
	}
}

// Entries turns a catalog name → path mapping into sorted entries whose
// sources are resolved against baseURL.
func Entries(apis map[string]string, baseURL string) []Entry {
	entries := make([]Entry, 0, len(apis))
	for name, path := range apis {
		source := path
		if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
			source = strings.TrimSuffix(baseURL, "/") + path
		}
		entries = append(entries, Entry{Name: name, Source: source})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
