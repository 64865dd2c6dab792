package spec

import (
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// Resolve follows a local reference ("#/components/schemas/Pet") from the
// document root and returns the referenced mapping. Anything else, including
// external references, missing segments and non-mapping targets, yields an
// empty map.
func (d Document) Resolve(ref string) map[string]any {
	if !strings.HasPrefix(ref, "#/") {
		return map[string]any{}
	}
	var current any = map[string]any(d)
	for _, part := range strings.Split(ref[2:], "/") {
		node, ok := asMap(current)
		if !ok {
			return map[string]any{}
		}
		next, ok := node[jsonpointer.Unescape(part)]
		if !ok {
			return map[string]any{}
		}
		current = next
	}
	if m, ok := asMap(current); ok {
		return m
	}
	return map[string]any{}
}

// deref returns m itself, or the mapping its top-level $ref points at.
func (d Document) deref(m map[string]any) map[string]any {
	if ref, ok := m["$ref"].(string); ok {
		return d.Resolve(ref)
	}
	return m
}
