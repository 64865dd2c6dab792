package spec

import (
	"encoding/json"
	"strings"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi3"
)

// Info is the document metadata surfaced to hosts (server identity, listings).
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	// SpecVersion is the declared openapi/swagger version string.
	SpecVersion string `json:"specVersion,omitempty"`
}

// DocumentInfo decodes the info object with kin-openapi's typed models.
// Undecodable metadata degrades to empty fields.
func DocumentInfo(doc Document) Info {
	if doc.IsSwagger2() {
		data, err := json.Marshal(doc)
		if err == nil {
			var v2 openapi2.T
			if err := json.Unmarshal(data, &v2); err == nil {
				return Info{
					Title:       safeStr(v2.Info.Title),
					Version:     safeStr(v2.Info.Version),
					Description: safeStr(v2.Info.Description),
					SpecVersion: safeStr(v2.Swagger),
				}
			}
		}
	}

	out := Info{SpecVersion: safeStr(asString(doc["openapi"]))}
	if out.SpecVersion == "" {
		out.SpecVersion = safeStr(asString(doc["swagger"]))
	}
	raw, ok := doc["info"]
	if !ok {
		return out
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return out
	}
	var info openapi3.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return out
	}
	out.Title = safeStr(info.Title)
	out.Version = safeStr(info.Version)
	out.Description = safeStr(info.Description)
	return out
}

func safeStr(s string) string { return strings.TrimSpace(s) }
