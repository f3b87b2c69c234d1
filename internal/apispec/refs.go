package apispec

import (
	"fmt"
	"strings"
)

// maxRefDepth bounds reference chasing so that a cyclic chain of
// references is reported instead of looping forever.
const maxRefDepth = 64

// refResolver follows $ref indirections against the document's shared
// parameters and definitions sections.
type refResolver struct {
	parameters  map[string]any
	definitions map[string]any
}

func newRefResolver(doc Document) *refResolver {
	params, _ := doc["parameters"].(map[string]any)
	defs, _ := doc["definitions"].(map[string]any)
	if defs == nil {
		if comps, ok := doc["components"].(map[string]any); ok {
			defs, _ = comps["schemas"].(map[string]any)
			if params == nil {
				params, _ = comps["parameters"].(map[string]any)
			}
		}
	}
	return &refResolver{parameters: params, definitions: defs}
}

func refName(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := m["$ref"].(string)
	if !ok {
		return "", false
	}
	return ref[strings.LastIndex(ref, "/")+1:], true
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *refResolver) definition(name string) (map[string]any, error) {
	def, ok := r.definitions[name].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unresolvable schema reference %q", name)
	}
	return def, nil
}

// resolveProperties replaces every referenced property schema with its
// definition, returning a new map when anything changed.
func (r *refResolver) resolveProperties(props map[string]any) (map[string]any, bool, error) {
	var out map[string]any
	for key, value := range props {
		name, ok := refName(value)
		if !ok {
			continue
		}
		def, err := r.definition(name)
		if err != nil {
			return nil, false, err
		}
		if out == nil {
			out = copyMap(props)
		}
		out[key] = def
	}
	if out == nil {
		return props, false, nil
	}
	return out, true, nil
}

// Resolve follows parameter and schema references until none remain. The
// shared sections are never modified; resolved maps are copies. Resolving
// an already resolved parameter returns an equal parameter.
func (r *refResolver) Resolve(param map[string]any) (map[string]any, error) {
	for range maxRefDepth {
		changed := false
		if name, ok := refName(param); ok {
			next, ok := r.parameters[name].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("unresolvable parameter reference %q", name)
			}
			param = next
			changed = true
		}
		if schema, ok := param["schema"].(map[string]any); ok {
			if name, ok := refName(schema); ok {
				def, err := r.definition(name)
				if err != nil {
					return nil, err
				}
				param = copyMap(param)
				param["schema"] = def
				schema = def
				changed = true
			}
			if props, ok := schema["properties"].(map[string]any); ok {
				resolved, propsChanged, err := r.resolveProperties(props)
				if err != nil {
					return nil, err
				}
				// one level down: object properties flatten into flags too
				for key, value := range resolved {
					prop, ok := value.(map[string]any)
					if !ok {
						continue
					}
					inner, ok := prop["properties"].(map[string]any)
					if !ok {
						continue
					}
					innerResolved, innerChanged, err := r.resolveProperties(inner)
					if err != nil {
						return nil, err
					}
					if innerChanged {
						if !propsChanged {
							resolved = copyMap(resolved)
							propsChanged = true
						}
						prop = copyMap(prop)
						prop["properties"] = innerResolved
						resolved[key] = prop
					}
				}
				if propsChanged {
					schema = copyMap(schema)
					schema["properties"] = resolved
					param = copyMap(param)
					param["schema"] = schema
					changed = true
				}
			}
		}
		if !changed {
			return param, nil
		}
	}
	return nil, fmt.Errorf("reference chain deeper than %d", maxRefDepth)
}
