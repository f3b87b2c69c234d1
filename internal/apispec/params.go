package apispec

import (
	"fmt"
	"strings"
)

// flatten converts one resolved raw parameter into parameter specs. A
// parameter whose schema declares properties yields one spec per property.
func (n *Normalizer) flatten(groupKey, opID string, param map[string]any) []*ParameterSpec {
	location := Location(fmt.Sprint(param["in"]))
	required := isTrue(param["required"])
	name, _ := param["name"].(string)

	schema, _ := param["schema"].(map[string]any)
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		elem := param
		if t, ok := schema["type"]; ok {
			elem = copyMap(param)
			elem["type"] = t
			if _, ok := elem["enum"]; !ok && schema["enum"] != nil {
				elem["enum"] = schema["enum"]
			}
		}
		if ps := n.element(groupKey, opID, location, name, elem, required); ps != nil {
			return []*ParameterSpec{ps}
		}
		return nil
	}

	requiredList, hasRequired := stringList(schema["required"])
	var out []*ParameterSpec
	for _, key := range sortedKeys(props) {
		elem, ok := props[key].(map[string]any)
		if !ok || !hasType(elem) {
			continue
		}
		subRequired := required && (!hasRequired || contains(requiredList, key))
		if ps := n.element(groupKey, opID, location, key, elem, subRequired); ps != nil {
			out = append(out, ps)
		}
	}
	return out
}

func hasType(elem map[string]any) bool {
	if _, ok := elem["type"]; ok {
		return true
	}
	_, ok := elem["properties"].(map[string]any)
	return ok
}

func elementType(elem map[string]any) ValueType {
	t, ok := elem["type"].(string)
	if !ok {
		if _, ok := elem["properties"].(map[string]any); ok {
			return TypeObject
		}
		return TypeString
	}
	return ValueType(t)
}

// booleanEnum reports whether every enum value reads as true/false.
func booleanEnum(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if !strings.EqualFold(v, "true") && !strings.EqualFold(v, "false") {
			return false
		}
	}
	return true
}

func (n *Normalizer) element(groupKey, opID string, location Location, key string, elem map[string]any, required bool) *ParameterSpec {
	ps := &ParameterSpec{
		Name:        key,
		FlagName:    key,
		Location:    location,
		Type:        elementType(elem),
		Description: helpText(elem),
		Required:    required,
	}

	if ps.Type == TypeObject {
		props, ok := elem["properties"].(map[string]any)
		if !ok {
			ps.Type = TypeString
		} else {
			requiredList, hasRequired := stringList(elem["required"])
			for _, pk := range sortedKeys(props) {
				prop, _ := props[pk].(map[string]any)
				nested := &ParameterSpec{
					Name:        pk,
					FlagName:    key + "-" + pk,
					Location:    location,
					Type:        elementType(prop),
					Description: helpText(prop),
					Required:    required && (!hasRequired || contains(requiredList, pk)),
				}
				if nested.Type == TypeObject {
					nested.Type = TypeString
				}
				ps.Nested = append(ps.Nested, nested)
			}
			return ps
		}
	}

	if enum, ok := stringList(elem["enum"]); ok {
		if ps.Type != TypeBoolean && booleanEnum(enum) {
			ps.Type = TypeBoolean
		} else if ps.Type != TypeBoolean {
			ps.Enum = enum
		}
	}

	switch ps.Type {
	case TypeString, TypeInteger, TypeNumber, TypeFile, TypeBoolean, TypeArray:
		return ps
	}
	n.logger.Error("unhandled parameter type", "service", groupKey, "operation", opID, "parameter", key, "type", ps.Type)
	return nil
}

func helpText(elem map[string]any) string {
	desc, _ := elem["description"].(string)
	if strings.TrimSpace(desc) == "" {
		return "-"
	}
	return desc
}
