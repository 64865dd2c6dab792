package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"gopkg.in/yaml.v3"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError   ErrorCode = "InputError"
	NetworkError ErrorCode = "NetworkError"
	HTTPError    ErrorCode = "HTTPError"
	ParseError   ErrorCode = "ParseError"
)

var (
	// ErrFetch matches any SpecError raised while retrieving the document.
	ErrFetch = errors.New("spec: fetch failed")
	// ErrParse matches any SpecError raised while decoding the document.
	ErrParse = errors.New("spec: parse failed")
)

// SpecError is a structured loader error.
type SpecError struct {
	Code       ErrorCode
	Message    string
	Location   string // file path or URL
	StatusCode int    // set for HTTPError
	Cause      error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

func (e *SpecError) Is(target error) bool {
	switch target {
	case ErrFetch:
		return e.Code == InputError || e.Code == NetworkError || e.Code == HTTPError
	case ErrParse:
		return e.Code == ParseError
	}
	return false
}

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// Attempts is the total number of fetch attempts; 1 disables retries.
	Attempts uint
	// BackoffBase is the base delay between attempts.
	BackoffBase time.Duration
	// Client overrides the HTTP client used for fetching.
	Client *http.Client
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 30 * time.Second,
		Attempts:    1,
		BackoffBase: 200 * time.Millisecond,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option { return func(s *Settings) { s.HTTPTimeout = d } }
func WithAttempts(n uint) Option { return func(s *Settings) { s.Attempts = n } }
func WithBackoffBase(d time.Duration) Option { return func(s *Settings) { s.BackoffBase = d } }
func WithHTTPClient(c *http.Client) Option { return func(s *Settings) { s.Client = c } }

// Raw is a retrieved, not yet decoded, OpenAPI or Swagger document.
type Raw struct {
	Data        []byte
	ContentType string
	Location    string
}

// Fetch retrieves the document bytes. input may be an http/https URL or a
// filesystem path.
func Fetch(ctx context.Context, input string, opts ...Option) (*Raw, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""
	if !isURL {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
		}
		return &Raw{Data: data, Location: abs}, nil
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
	}

	raw, err := fetchWithRetry(ctx, input, settings)
	if err != nil {
		var se *SpecError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
	}
	return raw, nil
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) (*Raw, error) {
	client := settings.Client
	if client == nil {
		client = &http.Client{Timeout: settings.HTTPTimeout}
	}
	attempts := settings.Attempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var out *Raw
	err := retry.Do(
		func() error {
			raw, err := fetchOnce(ctx, client, rawURL)
			if err != nil {
				return err
			}
			out = raw
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(backoff),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fetchOnce(ctx context.Context, client *http.Client, rawURL string) (*Raw, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("build request: %v", err), Location: rawURL, Cause: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &SpecError{
			Code:       HTTPError,
			Message:    fmt.Sprintf("fetch %s: http %d: %s", rawURL, resp.StatusCode, strings.TrimSpace(string(body))),
			Location:   rawURL,
			StatusCode: resp.StatusCode,
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Raw{Data: data, ContentType: resp.Header.Get("Content-Type"), Location: rawURL}, nil
}

// isTransient reports whether a failed fetch is worth another attempt:
// network errors, 5xx and 429.
func isTransient(err error) bool {
	var se *SpecError
	if errors.As(err, &se) {
		return se.Code == HTTPError && (se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// IsYAML reports whether a document should be decoded as YAML, judged by its
// content type or the extension of its location.
func IsYAML(contentType, location string) bool {
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		return true
	}
	loc := strings.ToLower(location)
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		loc = strings.ToLower(u.Path)
	}
	return strings.HasSuffix(loc, ".yaml") || strings.HasSuffix(loc, ".yml")
}

// Decode parses raw bytes into a Document, as YAML or JSON per IsYAML.
func Decode(raw *Raw) (Document, error) {
	var root any
	if IsYAML(raw.ContentType, raw.Location) {
		if err := yaml.Unmarshal(raw.Data, &root); err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse yaml: %v", err), Location: raw.Location, Cause: err}
		}
	} else {
		if err := json.Unmarshal(raw.Data, &root); err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse json: %v", err), Location: raw.Location, Cause: err}
		}
	}
	m, ok := asMap(normalizeTree(root))
	if !ok {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("spec: document root is %T, expected a mapping", root), Location: raw.Location}
	}
	return Document(m), nil
}

// Load fetches and decodes a document.
func Load(ctx context.Context, input string, opts ...Option) (Document, error) {
	raw, err := Fetch(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}
