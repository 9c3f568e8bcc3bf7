package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyor/gantry/pkg/schema"
)

func fetchState(url string, extra map[string]any) map[string]any {
	req := map[string]any{"url": url}
	for k, v := range extra {
		req[k] = v
	}
	return map[string]any{httpRequestKey: req}
}

func TestHTTPTool_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"greeting": "hello", "count": 42})
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPToolConfig{})
	out, err := tool.Transform(context.Background(), fetchState(srv.URL, nil))
	require.NoError(t, err)

	resp, ok := out[httpResponseKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 200, resp["status_code"])
	assert.Contains(t, resp["content_type"], "application/json")

	body, ok := resp["body"].(map[string]any)
	require.True(t, ok, "JSON body should be decoded")
	assert.Equal(t, "hello", body["greeting"])
}

func TestHTTPTool_PostJSONBody(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPToolConfig{})
	out, err := tool.Transform(context.Background(), fetchState(srv.URL, map[string]any{
		"method": "post",
		"body":   map[string]any{"name": "gantry"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "gantry", received["name"])
	resp := out[httpResponseKey].(map[string]any)
	assert.Equal(t, 201, resp["status_code"])
}

func TestHTTPTool_TextBodyKeptAsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain response"))
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPToolConfig{})
	out, err := tool.Transform(context.Background(), fetchState(srv.URL, nil))
	require.NoError(t, err)

	resp := out[httpResponseKey].(map[string]any)
	assert.Equal(t, "plain response", resp["body"])
}

func TestHTTPTool_CustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-123", r.Header.Get("X-Api-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPToolConfig{})
	_, err := tool.Transform(context.Background(), fetchState(srv.URL, map[string]any{
		"headers": map[string]any{"X-Api-Key": "token-123"},
	}))
	require.NoError(t, err)
}

func TestHTTPTool_MissingRequest(t *testing.T) {
	tool := NewHTTPTool(HTTPToolConfig{})
	_, err := tool.Transform(context.Background(), map[string]any{})

	var gerr *schema.GantryError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)
}

func TestHTTPTool_InvalidURL(t *testing.T) {
	tool := NewHTTPTool(HTTPToolConfig{})
	_, err := tool.Transform(context.Background(), fetchState("ftp://example.com/file", nil))

	var gerr *schema.GantryError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)
}

func TestHTTPTool_ResponseBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for i := 0; i < 100; i++ {
			w.Write([]byte("0123456789"))
		}
	}))
	defer srv.Close()

	tool := NewHTTPTool(HTTPToolConfig{MaxResponseBody: 64})
	out, err := tool.Transform(context.Background(), fetchState(srv.URL, nil))
	require.NoError(t, err)

	resp := out[httpResponseKey].(map[string]any)
	assert.Len(t, resp["body"], 64)
}

func TestHTTPTool_DoesNotMutateInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	in := fetchState(srv.URL, nil)
	tool := NewHTTPTool(HTTPToolConfig{})
	out, err := tool.Transform(context.Background(), in)
	require.NoError(t, err)

	assert.NotContains(t, in, httpResponseKey)
	assert.Contains(t, out, httpResponseKey)
}
