package specsync

import (
	"reflect"
	"sort"
)

// ConflictFunc is called when Merge overwrites an existing value of dst
// with a different one. path is the key path from the document root.
type ConflictFunc func(path []string, old, new any)

// Merge deep-merges src into dst and returns dst. Where both sides hold a
// map at the same key the maps are merged recursively; any other value in
// src replaces the value in dst. Maps taken from src are copied so dst
// never aliases src.
func Merge(dst, src map[string]any, conflict ConflictFunc) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	merge(dst, src, nil, conflict)
	return dst
}

func merge(dst, src map[string]any, path []string, conflict ConflictFunc) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		value := src[k]
		at := append(path[:len(path):len(path)], k)
		if srcMap, ok := value.(map[string]any); ok {
			dstMap, ok := dst[k].(map[string]any)
			if !ok {
				if old, exists := dst[k]; exists && conflict != nil {
					conflict(at, old, srcMap)
				}
				dstMap = make(map[string]any, len(srcMap))
				dst[k] = dstMap
			}
			merge(dstMap, srcMap, at, conflict)
			continue
		}
		if old, exists := dst[k]; exists && conflict != nil && !reflect.DeepEqual(old, value) {
			conflict(at, old, value)
		}
		dst[k] = value
	}
}
