package apispec

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Document is a raw swagger/openapi body as decoded from JSON or YAML.
type Document map[string]any

// Title returns info.title, or "" when absent.
func (d Document) Title() string {
	info, _ := d["info"].(map[string]any)
	title, _ := info["title"].(string)
	return title
}

// Description returns info.description, or "" when absent.
func (d Document) Description() string {
	info, _ := d["info"].(map[string]any)
	desc, _ := info["description"].(string)
	return desc
}

// Paths returns the paths object.
func (d Document) Paths() map[string]any {
	paths, _ := d["paths"].(map[string]any)
	return paths
}

// Base returns the host and base path requests are sent to. Swagger 2
// documents declare host/basePath; openapi 3 documents fall back to the
// first server URL.
func (d Document) Base() (host, basePath string, err error) {
	if h, ok := d["host"].(string); ok && h != "" {
		bp, _ := d["basePath"].(string)
		return h, strings.TrimSuffix(bp, "/"), nil
	}
	servers, _ := d["servers"].([]any)
	if len(servers) > 0 {
		srv, _ := servers[0].(map[string]any)
		raw, _ := srv["url"].(string)
		u, perr := url.Parse(raw)
		if perr == nil && u.Host != "" {
			return u.Host, strings.TrimSuffix(u.Path, "/"), nil
		}
	}
	return "", "", fmt.Errorf("document declares no host")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}

func stringList(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s, true
		}
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprint(item))
	}
	return out, true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
