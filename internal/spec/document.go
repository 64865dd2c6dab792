package spec

import "fmt"

// Document is a parsed OpenAPI or Swagger definition kept as a generic tree of
// maps, slices and scalars.
type Document map[string]any

// normalizeTree converts YAML decoded mappings with non-string keys into
// map[string]any so the tree looks the same as one decoded from JSON.
func normalizeTree(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = normalizeTree(child)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = normalizeTree(child)
		}
		return out
	case []any:
		for i, child := range val {
			val[i] = normalizeTree(child)
		}
		return val
	default:
		return val
	}
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func containsString(list []any, want string) bool {
	for _, v := range list {
		if s, ok := v.(string); ok && s == want {
			return true
		}
	}
	return false
}

// IsSwagger2 reports whether the document declares swagger: "2.x".
func (d Document) IsSwagger2() bool {
	if s := asString(d["swagger"]); len(s) > 1 && s[:2] == "2." {
		return true
	}
	return false
}
