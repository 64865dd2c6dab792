// Package manifest writes compiled operations to disk as JSON tool
// definitions: one manifest.json index plus operations/<name>.json per
// operation. Output is deterministic for a given document.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mark3labs/openapi-toolbox/internal/spec"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var fileUnsafe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// fileName maps an operation id onto a single path element not already in
// taken.
func fileName(id string, taken map[string][]byte) string {
	name := fileUnsafe.ReplaceAllString(id, "_")
	name = strings.Trim(name, ".")
	if name == "" {
		name = "_"
	}
	candidate := name
	for n := 2; ; n++ {
		if _, dup := taken["operations/"+candidate+".json"]; !dup {
			return candidate + ".json"
		}
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
}

// Options controls where and how the manifest is written.
type Options struct {
	OutDir string // required
	Force  bool   // overwrite a non-empty OutDir
	DryRun bool   // plan only
}

// Source describes the document the operations were compiled from.
type Source struct {
	Location string
	BaseURL  string
	Info     spec.Info
}

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result lists the planned files in path order.
type Result struct {
	Planned []PlannedFile
}

type index struct {
	Title      string       `json:"title"`
	Version    string       `json:"version"`
	Source     string       `json:"source"`
	BaseURL    string       `json:"baseURL"`
	Operations []indexEntry `json:"operations"`
}

type indexEntry struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Path   string `json:"path"`
	File   string `json:"file"`
}

type toolFile struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Method      string                  `json:"method"`
	Path        string                  `json:"path"`
	Tags        []string                `json:"tags,omitempty"`
	InputSchema spec.InputSchema        `json:"input_schema"`
	Routes      map[string]spec.Channel `json:"routes"`
}

// Emit renders the manifest for ops.
func Emit(ctx context.Context, src Source, ops []*spec.Operation, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("manifest: OutDir is required")
	}

	files := map[string][]byte{}
	idx := index{
		Title:      src.Info.Title,
		Version:    src.Info.Version,
		Source:     src.Location,
		BaseURL:    src.BaseURL,
		Operations: make([]indexEntry, 0, len(ops)),
	}
	for _, op := range ops {
		rel := "operations/" + fileName(op.ID, files)
		data, err := json.MarshalIndent(toolFile{
			Name:        op.ID,
			Description: op.Doc(),
			Method:      strings.ToUpper(string(op.Method)),
			Path:        op.Path,
			Tags:        op.Tags,
			InputSchema: op.InputSchema,
			Routes:      op.Routes,
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", rel, err)
		}
		files[rel] = append(data, '\n')
		idx.Operations = append(idx.Operations, indexEntry{
			Name:   op.ID,
			Method: strings.ToUpper(string(op.Method)),
			Path:   op.Path,
			File:   rel,
		})
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest.json: %w", err)
	}
	files["manifest.json"] = append(data, '\n')

	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, p)
	}
	sort.Strings(rels)
	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: 0o644})
	}

	if !opts.DryRun {
		if err := writeFiles(opts.OutDir, files, opts.Force); err != nil {
			return nil, err
		}
	}
	return &Result{Planned: planned}, nil
}

func writeFiles(outDir string, files map[string][]byte, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil && len(entries) > 0 {
			return fmt.Errorf("manifest: output directory %q is not empty (use --force to overwrite)", abs)
		}
	}
	for rel, content := range files {
		p := filepath.Join(abs, filepath.FromSlash(rel))
		if r, err := filepath.Rel(abs, p); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return fmt.Errorf("manifest: %s escapes output directory", rel)
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return fmt.Errorf("write temp %s: %w", rel, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", rel, err)
		}
	}
	return nil
}
