package toolbox

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/openapi-toolbox/internal/spec"
)

func petDocument(server string) spec.Document {
	return spec.Document{
		"openapi": "3.0.0",
		"info":    map[string]any{"title": "Pets", "version": "2.1"},
		"servers": []any{map[string]any{"url": server}},
		"paths": map[string]any{
			"/pets/{id}": map[string]any{
				"get": map[string]any{
					"parameters": []any{
						map[string]any{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "integer"}},
					},
				},
			},
			"/pets": map[string]any{
				"post": map[string]any{
					"operationId": "createPet",
					"tags":        []any{"write"},
					"requestBody": map[string]any{"content": map[string]any{"application/json": map[string]any{
						"schema": map[string]any{"properties": map[string]any{"name": map[string]any{"type": "string"}}},
					}}},
				},
			},
		},
	}
}

func countingFetcher(doc spec.Document, calls *int32) Fetcher {
	return func(ctx context.Context, source string) (spec.Document, error) {
		atomic.AddInt32(calls, 1)
		return doc, nil
	}
}

func TestInit_OnceAndCached(t *testing.T) {
	t.Parallel()
	var calls int32
	tb := New("https://api.example.com/openapi.json",
		WithFetcher(countingFetcher(petDocument("https://api.example.com/v1"), &calls)),
		WithArgs(map[string]any{"owner": "me"}))

	assert.Equal(t, Uninitialized, tb.State())
	assert.Empty(t, tb.BaseURL())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tb.Operations(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ops, err := tb.Operations(context.Background())
	require.NoError(t, err)
	assert.Len(t, ops, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, Ready, tb.State())
	assert.Equal(t, "https://api.example.com/v1", tb.BaseURL())
	assert.Equal(t, "Pets", tb.Info().Title)
	assert.Equal(t, "2.1", tb.Info().Version)
	assert.Equal(t, map[string]any{"owner": "me"}, tb.Args())
}

func TestInit_FailureStaysUninitialized(t *testing.T) {
	t.Parallel()
	boom := errors.New("unreachable")
	var calls int32
	tb := New("https://api.example.com/openapi.json", WithFetcher(func(ctx context.Context, source string) (spec.Document, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	}))

	_, err := tb.Operations(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Uninitialized, tb.State())

	_, err = tb.Operations(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCall_UsesSharedInvokerAndBaseURL(t *testing.T) {
	t.Parallel()
	var gotPath, gotAuth, gotBody string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer api.Close()

	var calls int32
	tb := New(api.URL+"/openapi.json",
		WithFetcher(countingFetcher(petDocument("/ignored"), &calls)),
		WithBaseURL(api.URL+"/v2"),
		WithHeaders(map[string]string{"Authorization": "Bearer k"}),
		WithHTTPClient(api.Client()))

	res, err := tb.Call(context.Background(), "get__pets__id_", map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, map[string]any{"ok": true}, res.Data)
	assert.Equal(t, "/v2/pets/7", gotPath)
	assert.Equal(t, "Bearer k", gotAuth)

	_, err = tb.Call(context.Background(), "createPet", map[string]any{"name": "Rex"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Rex"}`, gotBody)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCall_UnknownOperation(t *testing.T) {
	t.Parallel()
	var calls int32
	tb := New("https://api.example.com/openapi.json", WithFetcher(countingFetcher(petDocument("https://x"), &calls)))
	_, err := tb.Call(context.Background(), "nope", nil)
	require.ErrorIs(t, err, ErrUnknownOperation)
}

func TestTools_DescribeOperations(t *testing.T) {
	t.Parallel()
	var calls int32
	tb := New("https://api.example.com/openapi.json",
		WithFetcher(countingFetcher(petDocument("https://x"), &calls)),
		WithBuildOptions(spec.WithExcludeTags([]string{"write"})))

	tools, err := tb.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get__pets__id_", tools[0].Name)
	assert.Equal(t, "GET /pets/{id}\n\nParameters:\n    id (path): ", tools[0].Description)
	assert.Equal(t, []string{"id"}, tools[0].InputSchema.Required)
}

func TestDefaultFetcherLoadsFromURL(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte("openapi: 3.0.0\ninfo:\n  title: Remote\n  version: '1'\nservers:\n  - url: /api\npaths:\n  /ping:\n    get:\n      operationId: ping\n"))
	}))
	defer srv.Close()

	tb := New(srv.URL + "/openapi.yaml")
	ops, err := tb.Operations(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "ping", ops[0].ID)
	assert.Equal(t, srv.URL+"/api", tb.BaseURL())
	assert.Equal(t, "Remote", tb.Info().Title)
}
