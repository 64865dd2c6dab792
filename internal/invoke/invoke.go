// Package invoke turns a compiled operation and a set of named arguments into
// an HTTP request and decodes the response.
package invoke

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/mark3labs/openapi-toolbox/internal/spec"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Result is the outcome of one invocation. Non-2xx responses are results too.
type Result struct {
	Status  int               `json:"status"`
	Data    any               `json:"data"`
	Headers map[string]string `json:"headers"`
}

// OK reports whether the status is in the 2xx range.
func (r *Result) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Invoker sends requests for compiled operations. One Invoker serves every
// operation of a toolbox; it holds no per-call state.
type Invoker struct {
	client  Doer
	headers map[string]string
	logger  *zap.Logger
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithClient sets the HTTP client. The default is http.DefaultClient.
func WithClient(c Doer) Option {
	return func(i *Invoker) {
		if c != nil {
			i.client = c
		}
	}
}

// WithHeaders sets headers sent with every request, before Accept and any
// header arguments.
func WithHeaders(h map[string]string) Option {
	return func(i *Invoker) {
		for k, v := range h {
			i.headers[k] = v
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// New returns an Invoker configured by opts.
func New(opts ...Option) *Invoker {
	inv := &Invoker{
		client:  http.DefaultClient,
		headers: map[string]string{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.logger = inv.logger.With(zap.String("component", "invoke"))
	return inv
}

// Invoke routes args into the request described by op and sends it to
// baseURL+op.Path. Arguments the operation does not declare are ignored.
// Only transport failures are returned as errors.
func (inv *Invoker) Invoke(ctx context.Context, op *spec.Operation, baseURL string, args map[string]any) (*Result, error) {
	if args == nil {
		args = map[string]any{}
	}

	path := op.Path
	query := url.Values{}
	headers := map[string]string{}
	var cookies []*http.Cookie
	payload := map[string]any{}

	for _, p := range op.Params {
		v, present := args[p.Name]
		if !present {
			continue
		}
		if p.In == spec.ChannelBody {
			payload[p.Name] = v
			continue
		}
		if v == nil {
			continue
		}
		switch p.In {
		case spec.ChannelPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(stringify(v)))
		case spec.ChannelQuery:
			for _, s := range stringifyAll(v) {
				query.Add(p.Name, s)
			}
		case spec.ChannelHeader:
			headers[p.Name] = stringify(v)
		case spec.ChannelCookie:
			cookies = append(cookies, &http.Cookie{Name: p.Name, Value: stringify(v)})
		default:
			inv.logger.Debug("argument location not transmitted",
				zap.String("operation", op.ID), zap.String("argument", p.Name), zap.String("in", string(p.In)))
		}
	}

	target, err := url.Parse(baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: build url: %w", op.ID, err)
	}
	if len(query) > 0 {
		q := target.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("invoke %s: encode body: %w", op.ID, err)
		}
		body = bytes.NewReader(data)
	}

	method := strings.ToUpper(string(op.Method))
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: build request: %w", op.ID, err)
	}
	for k, v := range inv.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", op.ID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: read response: %w", op.ID, err)
	}
	inv.logger.Debug("invoked operation",
		zap.String("operation", op.ID),
		zap.String("method", method),
		zap.String("url", target.String()),
		zap.Int("status", resp.StatusCode))

	return &Result{
		Status:  resp.StatusCode,
		Data:    decodeBody(raw),
		Headers: flattenHeaders(resp.Header),
	}, nil
}

// decodeBody parses JSON and falls back to the raw text.
func decodeBody(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

// stringify renders scalars the way they read; composite values are sent as
// compact JSON.
func stringify(v any) string {
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprint(v)
}

func stringifyAll(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			if e != nil {
				out = append(out, stringify(e))
			}
		}
		return out
	}
	return []string{stringify(v)}
}
