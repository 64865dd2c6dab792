package spec

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/cast"
)

// BaseURL derives the absolute server URL operations are called against.
//
// servers[0].url wins (relative URLs are anchored at the origin of sourceURL),
// then the Swagger 2.0 host/basePath/schemes triple, then the origin of
// sourceURL itself. Only the first server entry is considered.
func BaseURL(doc Document, sourceURL string) string {
	if servers, ok := asSlice(doc["servers"]); ok && len(servers) > 0 {
		if srv, ok := asMap(servers[0]); ok {
			if u := asString(srv["url"]); u != "" {
				u = expandServerVariables(u, srv)
				if strings.HasPrefix(u, "/") {
					return origin(sourceURL) + u
				}
				return u
			}
		}
		return origin(sourceURL)
	}

	if host, ok := doc["host"]; ok {
		scheme := "https"
		if schemes, ok := asSlice(doc["schemes"]); ok && len(schemes) > 0 {
			if s := asString(schemes[0]); s != "" {
				scheme = s
			}
		}
		return scheme + "://" + asString(host) + asString(doc["basePath"])
	}

	return origin(sourceURL)
}

// expandServerVariables substitutes {name} with the declared default of each
// server variable, or its first enum value when no default is set.
func expandServerVariables(u string, srv map[string]any) string {
	if typed, ok := decodeServer(srv); ok {
		for name, v := range typed.Variables {
			if v == nil {
				continue
			}
			def := v.Default
			if def == "" && len(v.Enum) > 0 {
				def = v.Enum[0]
			}
			if def != "" {
				u = strings.ReplaceAll(u, "{"+name+"}", def)
			}
		}
		return u
	}

	// Non-string defaults do not fit openapi3.ServerVariable.
	vars, ok := asMap(srv["variables"])
	if !ok {
		return u
	}
	for name, raw := range vars {
		v, ok := asMap(raw)
		if !ok {
			continue
		}
		if def, ok := v["default"]; ok {
			u = strings.ReplaceAll(u, "{"+name+"}", cast.ToString(def))
		}
	}
	return u
}

// origin returns scheme://authority of raw, or "" when raw is not a URL.
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func decodeServer(srv map[string]any) (*openapi3.Server, bool) {
	data, err := json.Marshal(srv)
	if err != nil {
		return nil, false
	}
	var typed openapi3.Server
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, false
	}
	return &typed, true
}
