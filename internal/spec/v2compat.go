package spec

// Swagger 2.0 non-body parameters carry their schema inline (type, format,
// items, enum, default) instead of under a schema key.
var swagger2SchemaKeys = []string{
	"type", "format", "items", "enum", "default",
	"minimum", "maximum", "minLength", "maxLength", "pattern",
}

// schemaFromSwagger2Param synthesizes a schema from the inline fields of a
// Swagger 2.0 parameter. Parameters without any of those fields yield an
// empty schema.
func schemaFromSwagger2Param(pm map[string]any) map[string]any {
	m := map[string]any{}
	for _, key := range swagger2SchemaKeys {
		if v, ok := pm[key]; ok {
			m[key] = v
		}
	}
	if asString(m["type"]) == "file" {
		m["type"] = "string"
		m["format"] = "binary"
	}
	return m
}
