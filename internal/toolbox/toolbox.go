// Package toolbox exposes the operations of one OpenAPI/Swagger document as
// named, callable tools.
package toolbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mark3labs/openapi-toolbox/internal/invoke"
	"github.com/mark3labs/openapi-toolbox/internal/spec"
)

// State is the lifecycle phase of a Toolbox.
type State int

const (
	Uninitialized State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "uninitialized"
}

// ErrUnknownOperation is returned by Call for names that were not compiled.
var ErrUnknownOperation = errors.New("toolbox: unknown operation")

// Fetcher loads and parses the document at source.
type Fetcher func(ctx context.Context, source string) (spec.Document, error)

// Tool is the host-facing view of one operation.
type Tool struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema spec.InputSchema `json:"input_schema"`
}

// Toolbox compiles a document once and dispatches calls to its operations.
type Toolbox struct {
	source string
	args   map[string]any

	fetch      Fetcher
	loadOpts   []spec.Option
	buildOpts  []spec.BuildOption
	baseURL    string
	headers    map[string]string
	httpClient invoke.Doer
	logger     *zap.Logger

	mu      sync.Mutex
	state   State
	info    spec.Info
	base    string
	ops     []*spec.Operation
	byName  map[string]*spec.Operation
	invoker *invoke.Invoker
}

// Option configures a Toolbox.
type Option func(*Toolbox)

// WithArgs stores free-form arguments alongside the toolbox.
func WithArgs(args map[string]any) Option { return func(tb *Toolbox) { tb.args = args } }

// WithFetcher replaces the document loader.
func WithFetcher(f Fetcher) Option { return func(tb *Toolbox) { tb.fetch = f } }

// WithLoadOptions passes options to the default loader.
func WithLoadOptions(opts ...spec.Option) Option {
	return func(tb *Toolbox) { tb.loadOpts = append(tb.loadOpts, opts...) }
}

// WithBuildOptions passes filters to the compiler.
func WithBuildOptions(opts ...spec.BuildOption) Option {
	return func(tb *Toolbox) { tb.buildOpts = append(tb.buildOpts, opts...) }
}

// WithBaseURL bypasses base URL derivation.
func WithBaseURL(u string) Option { return func(tb *Toolbox) { tb.baseURL = strings.TrimSpace(u) } }

// WithHeaders sets headers sent with every call.
func WithHeaders(h map[string]string) Option { return func(tb *Toolbox) { tb.headers = h } }

func WithHTTPClient(c invoke.Doer) Option { return func(tb *Toolbox) { tb.httpClient = c } }

func WithLogger(l *zap.Logger) Option {
	return func(tb *Toolbox) {
		if l != nil {
			tb.logger = l
		}
	}
}

// New returns an uninitialized toolbox for the document at source.
func New(source string, opts ...Option) *Toolbox {
	tb := &Toolbox{source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(tb)
	}
	tb.logger = tb.logger.With(zap.String("component", "toolbox"))
	if tb.fetch == nil {
		loadOpts := tb.loadOpts
		tb.fetch = func(ctx context.Context, source string) (spec.Document, error) {
			return spec.Load(ctx, source, loadOpts...)
		}
	}
	return tb
}

// Init fetches and compiles the document. It runs at most once successfully;
// later calls return immediately. A failed Init leaves the toolbox
// Uninitialized.
func (tb *Toolbox) Init(ctx context.Context) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.state == Ready {
		return nil
	}

	doc, err := tb.fetch(ctx, tb.source)
	if err != nil {
		return fmt.Errorf("load %s: %w", tb.source, err)
	}

	info := spec.DocumentInfo(doc)
	base := tb.baseURL
	if base == "" {
		base = spec.BaseURL(doc, tb.source)
	}
	buildOpts := append([]spec.BuildOption{spec.WithLogger(tb.logger)}, tb.buildOpts...)
	ops := spec.CompileAll(doc, buildOpts...)

	byName := make(map[string]*spec.Operation, len(ops))
	for _, op := range ops {
		byName[op.ID] = op
	}
	invOpts := []invoke.Option{invoke.WithHeaders(tb.headers), invoke.WithLogger(tb.logger)}
	if tb.httpClient != nil {
		invOpts = append(invOpts, invoke.WithClient(tb.httpClient))
	}

	tb.info = info
	tb.base = base
	tb.ops = ops
	tb.byName = byName
	tb.invoker = invoke.New(invOpts...)
	tb.state = Ready

	paths, _ := doc["paths"].(map[string]any)
	tb.logger.Info("spec loaded",
		zap.String("title", info.Title),
		zap.String("version", info.Version),
		zap.Int("paths", len(paths)),
		zap.Int("operations", len(ops)),
		zap.String("baseURL", base))
	return nil
}

// State reports the lifecycle phase.
func (tb *Toolbox) State() State {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.state
}

// Operations initializes the toolbox if needed and returns the compiled
// operations in compile order.
func (tb *Toolbox) Operations(ctx context.Context) ([]*spec.Operation, error) {
	if err := tb.Init(ctx); err != nil {
		return nil, err
	}
	return tb.ops, nil
}

// Operation returns the named operation.
func (tb *Toolbox) Operation(ctx context.Context, name string) (*spec.Operation, error) {
	if err := tb.Init(ctx); err != nil {
		return nil, err
	}
	op, ok := tb.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return op, nil
}

// Tools returns the host-facing definitions of every operation.
func (tb *Toolbox) Tools(ctx context.Context) ([]Tool, error) {
	ops, err := tb.Operations(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]Tool, 0, len(ops))
	for _, op := range ops {
		tools = append(tools, Tool{Name: op.ID, Description: op.Doc(), InputSchema: op.InputSchema})
	}
	return tools, nil
}

// Call invokes the named operation with args.
func (tb *Toolbox) Call(ctx context.Context, name string, args map[string]any) (*invoke.Result, error) {
	op, err := tb.Operation(ctx, name)
	if err != nil {
		return nil, err
	}
	return tb.invoker.Invoke(ctx, op, tb.base, args)
}

// Info returns the document metadata. It is empty before Init.
func (tb *Toolbox) Info() spec.Info {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.info
}

// BaseURL returns the URL operations are called against. It is empty before
// Init.
func (tb *Toolbox) BaseURL() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.base
}

func (tb *Toolbox) Source() string       { return tb.source }
func (tb *Toolbox) Args() map[string]any { return tb.args }
