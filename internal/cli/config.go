package cli

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/openapi-toolbox/internal/spec"
	"github.com/mark3labs/openapi-toolbox/internal/toolbox"
)

// ToolboxConfig captures every input that shapes a toolbox after merging
// defaults, config file values, and CLI overrides.
type ToolboxConfig struct {
	Spec        string
	BaseURL     string
	Headers     map[string]string
	EnvFile     string
	Timeout     time.Duration
	Retries     uint
	IncludeTags []string
	ExcludeTags []string
	Methods     []string
	Paths       []string
	ConfigPath  string
	Verbose     bool
}

func defaultToolboxConfig() ToolboxConfig {
	return ToolboxConfig{Timeout: 30 * time.Second}
}

// addToolboxFlags registers the flags shared by every command that loads a
// document.
func addToolboxFlags(flags *pflag.FlagSet) {
	flags.String("spec", "", "Path or URL to the Swagger/OpenAPI document")
	flags.String("base-url", "", "Call operations against this URL instead of the derived one")
	flags.StringArray("header", nil, "Header sent with every call, as Name=Value (repeatable)")
	flags.String("env-file", "", "Dotenv file consulted when expanding ${VAR} in header values")
	flags.Duration("timeout", 0, "HTTP timeout for fetching the document and calling operations")
	flags.Uint("retries", 0, "Extra attempts when fetching the document fails transiently")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.StringSlice("methods", nil, "Only include operations using these HTTP methods")
	flags.StringSlice("paths", nil, "Only include paths matching these regular expressions")
}

func resolveToolboxConfig(cmd *cobra.Command) (*ToolboxConfig, error) {
	cfg := defaultToolboxConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.expandHeaders(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFlagOverrides(flags *pflag.FlagSet, cfg *ToolboxConfig) error {
	var err error
	if flags.Changed("spec") {
		if cfg.Spec, err = flags.GetString("spec"); err != nil {
			return err
		}
	}
	if flags.Changed("base-url") {
		if cfg.BaseURL, err = flags.GetString("base-url"); err != nil {
			return err
		}
	}
	if flags.Changed("header") {
		values, err := flags.GetStringArray("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, kv := range values {
			name, value, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(name) == "" {
				return newUsageError(fmt.Sprintf("--header %q: expected Name=Value", kv))
			}
			cfg.Headers[strings.TrimSpace(name)] = value
		}
	}
	if flags.Changed("env-file") {
		if cfg.EnvFile, err = flags.GetString("env-file"); err != nil {
			return err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("retries") {
		if cfg.Retries, err = flags.GetUint("retries"); err != nil {
			return err
		}
	}
	if flags.Changed("include-tags") {
		if cfg.IncludeTags, err = flags.GetStringSlice("include-tags"); err != nil {
			return err
		}
	}
	if flags.Changed("exclude-tags") {
		if cfg.ExcludeTags, err = flags.GetStringSlice("exclude-tags"); err != nil {
			return err
		}
	}
	if flags.Changed("methods") {
		if cfg.Methods, err = flags.GetStringSlice("methods"); err != nil {
			return err
		}
	}
	if flags.Changed("paths") {
		if cfg.Paths, err = flags.GetStringSlice("paths"); err != nil {
			return err
		}
	}
	if flags.Changed("verbose") {
		if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
			return err
		}
	}
	return nil
}

func (c *ToolboxConfig) normalize() {
	c.Spec = strings.TrimSpace(c.Spec)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.EnvFile = strings.TrimSpace(c.EnvFile)
	c.IncludeTags = sanitizeList(c.IncludeTags)
	c.ExcludeTags = sanitizeList(c.ExcludeTags)
	c.Paths = sanitizeList(c.Paths)
	methods := sanitizeList(c.Methods)
	for i, m := range methods {
		methods[i] = strings.ToLower(m)
	}
	c.Methods = methods
}

func (c *ToolboxConfig) validate() error {
	if c.Spec == "" {
		return newUsageError("--spec is required (set via flag or config file)")
	}
	if overlap := intersect(c.IncludeTags, c.ExcludeTags); len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}
	for _, m := range c.Methods {
		if !knownMethod(m) {
			return newUsageError(fmt.Sprintf("unsupported method %q (allowed: %s)", m, methodList()))
		}
	}
	for _, p := range c.Paths {
		if _, err := regexp.Compile(p); err != nil {
			return newUsageError(fmt.Sprintf("invalid path pattern %q: %v", p, err))
		}
	}
	if c.Timeout < 0 {
		return newUsageError("timeout must not be negative")
	}
	return nil
}

// expandHeaders substitutes ${VAR} in header values. The process
// environment wins over the env file.
func (c *ToolboxConfig) expandHeaders() error {
	fileEnv := map[string]string{}
	if c.EnvFile != "" {
		m, err := godotenv.Read(c.EnvFile)
		if err != nil {
			return newUsageError(fmt.Sprintf("read env file %q: %v", c.EnvFile, err))
		}
		fileEnv = m
	}
	lookup := func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return fileEnv[name]
	}
	for k, v := range c.Headers {
		c.Headers[k] = os.Expand(v, lookup)
	}
	return nil
}

func knownMethod(m string) bool {
	for _, known := range spec.Methods {
		if string(known) == m {
			return true
		}
	}
	return false
}

func methodList() string {
	names := make([]string, 0, len(spec.Methods))
	for _, m := range spec.Methods {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// newToolbox builds an uninitialized toolbox from cfg.
func newToolbox(cfg *ToolboxConfig, logger *zap.Logger) *toolbox.Toolbox {
	client := &http.Client{Timeout: cfg.Timeout}
	methods := make([]spec.HttpMethod, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods = append(methods, spec.HttpMethod(m))
	}
	return toolbox.New(cfg.Spec,
		toolbox.WithBaseURL(cfg.BaseURL),
		toolbox.WithHeaders(cfg.Headers),
		toolbox.WithHTTPClient(client),
		toolbox.WithLogger(logger),
		toolbox.WithLoadOptions(
			spec.WithHTTPClient(client),
			spec.WithAttempts(cfg.Retries+1),
		),
		toolbox.WithBuildOptions(
			spec.WithIncludeTags(cfg.IncludeTags),
			spec.WithExcludeTags(cfg.ExcludeTags),
			spec.WithMethods(methods),
			spec.WithPathPatterns(cfg.Paths),
		),
	)
}

func sanitizeList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyConfigFromFile(cfg *ToolboxConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		var ferr error
		switch normalizeKey(key) {
		case "spec":
			cfg.Spec, ferr = valueAsString(value)
		case "baseurl":
			cfg.BaseURL, ferr = valueAsString(value)
		case "headers":
			cfg.Headers, ferr = valueAsStringMap(value)
		case "envfile":
			cfg.EnvFile, ferr = valueAsString(value)
		case "timeout":
			cfg.Timeout, ferr = valueAsDuration(value)
		case "retries":
			cfg.Retries, ferr = cast.ToUintE(value)
		case "includetags":
			cfg.IncludeTags, ferr = valueAsStringSlice(value)
		case "excludetags":
			cfg.ExcludeTags, ferr = valueAsStringSlice(value)
		case "methods":
			cfg.Methods, ferr = valueAsStringSlice(value)
		case "paths":
			cfg.Paths, ferr = valueAsStringSlice(value)
		case "verbose":
			cfg.Verbose, ferr = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if ferr != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, ferr))
		}
	}
	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

// valueAsStringMap accepts a mapping of scalars. Values are stringified.
func valueAsStringMap(v any) (map[string]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, elem := range val {
			s, err := cast.ToStringE(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected mapping, got %T", v)
	}
}

// valueAsDuration accepts Go duration strings ("30s") or a number of seconds.
func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(strings.TrimSpace(val))
	case int, int64, float64:
		secs, err := cast.ToFloat64E(val)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
