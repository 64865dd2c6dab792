package spec

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// BuildOption configures how operations are compiled from a document.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[HttpMethod]struct{}
	pathRes     []*regexp.Regexp
	logger      *zap.Logger
}

// WithIncludeTags keeps only operations that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if c.includeTags == nil {
				c.includeTags = make(map[string]struct{}, len(tags))
			}
			c.includeTags[t] = struct{}{}
		}
	}
}

// WithExcludeTags removes operations that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		for _, t := range tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if c.excludeTags == nil {
				c.excludeTags = make(map[string]struct{}, len(tags))
			}
			c.excludeTags[t] = struct{}{}
		}
	}
}

// WithMethods keeps only operations using one of the provided HTTP methods.
func WithMethods(methods []HttpMethod) BuildOption {
	return func(c *buildConfig) {
		for _, m := range methods {
			if c.methods == nil {
				c.methods = make(map[HttpMethod]struct{}, len(methods))
			}
			c.methods[HttpMethod(strings.ToLower(string(m)))] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only operations whose path matches at least one of
// the provided regular expressions. An invalid pattern never matches.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				re = regexp.MustCompile("a^$")
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// WithLogger sets the logger used to report collisions and totals.
func WithLogger(l *zap.Logger) BuildOption {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// CompileAll compiles every (path, method) pair under doc.paths. Paths are
// visited in sorted order and methods in the order of Methods. Operations
// sharing an identifier are disambiguated with a numeric suffix. A document
// without paths yields no operations.
func CompileAll(doc Document, opts ...BuildOption) []*Operation {
	cfg := &buildConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	paths, ok := asMap(doc["paths"])
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var out []*Operation
	seen := make(map[string]int)
	for _, p := range keys {
		item, ok := asMap(paths[p])
		if !ok {
			continue
		}
		if !allowByPath(p, cfg) {
			continue
		}
		shared, _ := asSlice(item["parameters"])
		for _, m := range Methods {
			opMap, ok := asMap(item[string(m)])
			if !ok {
				continue
			}
			if len(cfg.methods) > 0 {
				if _, ok := cfg.methods[m]; !ok {
					continue
				}
			}

			op := Compile(doc, p, m, opMap, shared)
			if !allowByTags(op.Tags, cfg) {
				continue
			}
			if n, dup := seen[op.ID]; dup {
				seen[op.ID] = n + 1
				renamed := fmt.Sprintf("%s_%d", op.ID, n+1)
				cfg.logger.Warn("duplicate operation identifier",
					zap.String("id", op.ID), zap.String("renamed", renamed))
				op.ID = renamed
			} else {
				seen[op.ID] = 1
			}
			for _, name := range op.Collisions {
				cfg.logger.Warn("argument name collision, keeping first declaration",
					zap.String("operation", op.ID), zap.String("argument", name))
			}
			out = append(out, op)
		}
	}
	cfg.logger.Debug("compiled operations", zap.Int("count", len(out)))
	return out
}

var idUnsafe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Compile derives one operation. shared holds the path-item level parameters,
// which operation-level parameters override by (in, name). Missing or
// malformed fields fall back to defaults.
func Compile(doc Document, path string, method HttpMethod, raw map[string]any, shared []any) *Operation {
	op := &Operation{
		ID:          operationID(path, method, raw),
		Method:      method,
		Path:        path,
		Summary:     safeStr(asString(raw["summary"])),
		Description: description(path, method, raw),
		Tags:        tagsOf(raw),
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]map[string]any{},
			Required:   []string{},
		},
		Routes: map[string]Channel{},
	}

	own, _ := asSlice(raw["parameters"])
	for _, p := range mergeParameters(doc, shared, own) {
		if p.In == ChannelBody {
			// Swagger 2.0 body parameter.
			if props := bodyParameters(doc, p.Schema); len(props) > 0 {
				for _, bp := range props {
					op.add(bp, fmt.Sprintf("    %s: %s", bp.Name, bp.Description))
				}
				continue
			}
		}
		op.add(p, fmt.Sprintf("    %s (%s): %s", p.Name, p.In, p.Description))
	}

	if schema := requestBodySchema(doc, raw); schema != nil {
		for _, bp := range bodyParameters(doc, schema) {
			op.add(bp, fmt.Sprintf("    %s: %s", bp.Name, bp.Description))
		}
	}
	return op
}

// add records one argument in the schema, the routing table and the docs.
// The first argument to claim a name keeps it.
func (o *Operation) add(p Parameter, doc string) {
	if _, taken := o.Routes[p.Name]; taken {
		o.Collisions = append(o.Collisions, p.Name)
		return
	}
	prop := make(map[string]any, len(p.Schema)+1)
	for k, v := range p.Schema {
		prop[k] = v
	}
	prop["description"] = p.Description
	o.InputSchema.Properties[p.Name] = prop
	if p.Required {
		o.InputSchema.Required = append(o.InputSchema.Required, p.Name)
	}
	o.Routes[p.Name] = p.In
	o.Params = append(o.Params, p)
	o.docs = append(o.docs, doc)
}

func operationID(path string, method HttpMethod, raw map[string]any) string {
	if id := safeStr(asString(raw["operationId"])); id != "" {
		return id
	}
	return string(method) + "_" + idUnsafe.ReplaceAllString(path, "_")
}

func description(path string, method HttpMethod, raw map[string]any) string {
	if d := safeStr(asString(raw["description"])); d != "" {
		return d
	}
	if s := safeStr(asString(raw["summary"])); s != "" {
		return s
	}
	return strings.ToUpper(string(method)) + " " + path
}

func tagsOf(raw map[string]any) []string {
	list, _ := asSlice(raw["tags"])
	tags := make([]string, 0, len(list))
	for _, t := range list {
		if s := safeStr(asString(t)); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}

func paramKey(in Channel, name string) string { return string(in) + ":" + name }

// mergeParameters resolves parameter references and overlays operation-level
// entries on the shared path-item entries, preserving declaration order.
func mergeParameters(doc Document, shared, own []any) []Parameter {
	var out []Parameter
	index := make(map[string]int)
	for _, list := range [][]any{shared, own} {
		for _, entry := range list {
			p, ok := toParameter(doc, entry)
			if !ok {
				continue
			}
			key := paramKey(p.In, p.Name)
			if i, exists := index[key]; exists {
				out[i] = p
				continue
			}
			index[key] = len(out)
			out = append(out, p)
		}
	}
	return out
}

func toParameter(doc Document, entry any) (Parameter, bool) {
	m, ok := asMap(entry)
	if !ok {
		return Parameter{}, false
	}
	m = doc.deref(m)
	name := asString(m["name"])
	if name == "" {
		return Parameter{}, false
	}
	schema, ok := asMap(m["schema"])
	if ok {
		schema = doc.deref(schema)
	} else {
		schema = schemaFromSwagger2Param(m)
	}
	return Parameter{
		Name:        name,
		In:          Channel(asString(m["in"])),
		Required:    asBool(m["required"]),
		Description: asString(m["description"]),
		Schema:      schema,
	}, true
}

// requestBodySchema returns requestBody.content["application/json"].schema
// with its top-level reference resolved, or nil.
func requestBodySchema(doc Document, raw map[string]any) map[string]any {
	rb, ok := asMap(raw["requestBody"])
	if !ok {
		return nil
	}
	rb = doc.deref(rb)
	content, ok := asMap(rb["content"])
	if !ok {
		return nil
	}
	media, ok := asMap(content["application/json"])
	if !ok {
		return nil
	}
	schema, ok := asMap(media["schema"])
	if !ok {
		return nil
	}
	return doc.deref(schema)
}

// bodyParameters flattens the first-level properties of a body schema into
// body arguments, ordered by name. Nested schemas are kept whole.
func bodyParameters(doc Document, schema map[string]any) []Parameter {
	schema = doc.deref(schema)
	props, ok := asMap(schema["properties"])
	if !ok || len(props) == 0 {
		return nil
	}
	required, _ := asSlice(schema["required"])

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Parameter, 0, len(names))
	for _, name := range names {
		ps, _ := asMap(props[name])
		if ps == nil {
			ps = map[string]any{}
		}
		ps = doc.deref(ps)
		out = append(out, Parameter{
			Name:        name,
			In:          ChannelBody,
			Required:    containsString(required, name),
			Description: asString(ps["description"]),
			Schema:      ps,
		})
	}
	return out
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

func allowByPath(path string, cfg *buildConfig) bool {
	if len(cfg.pathRes) == 0 {
		return true
	}
	for _, re := range cfg.pathRes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
