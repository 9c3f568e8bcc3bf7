package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/halcyor/gantry/internal/expressions"
	"github.com/halcyor/gantry/internal/registry"
	"github.com/halcyor/gantry/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second

	// State keys the http_fetch tool reads from and writes to.
	httpRequestKey  = "http_request"
	httpResponseKey = "http_response"
)

// HTTPToolConfig configures the http_fetch tool.
type HTTPToolConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

// HTTPTool fetches a URL described by the run state. It reads the
// request from state["http_request"] (url, method, headers, body,
// timeout) and merges the response into state["http_response"].
type HTTPTool struct {
	config HTTPToolConfig
}

// NewHTTPTool creates the http_fetch node tool.
func NewHTTPTool(cfg HTTPToolConfig) *HTTPTool {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &HTTPTool{config: cfg}
}

var _ registry.Tool = (*HTTPTool)(nil)

func (t *HTTPTool) Name() string { return "http_fetch" }

func (t *HTTPTool) Description() string {
	return "Fetch a URL described by state.http_request and record the response under state.http_response"
}

func (t *HTTPTool) Transform(ctx context.Context, state map[string]any) (map[string]any, error) {
	reqRaw, ok := state[httpRequestKey].(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http_fetch: state.%s must be an object", httpRequestKey)
	}

	rawURL := stateString(reqRaw, "url")
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http_fetch: invalid url %q", rawURL)
	}

	method := strings.ToUpper(stateString(reqRaw, "method"))
	if method == "" {
		method = http.MethodGet
	}

	timeout := t.config.DefaultTimeout
	if ts := stateString(reqRaw, "timeout"); ts != "" {
		if d, parseErr := time.ParseDuration(ts); parseErr == nil {
			timeout = d
		}
	}

	var bodyReader io.Reader
	contentType := ""
	if rawBody, present := reqRaw["body"]; present && rawBody != nil {
		b, marshalErr := json.Marshal(rawBody)
		if marshalErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "http_fetch: failed to marshal body as JSON").WithCause(marshalErr)
		}
		bodyReader = strings.NewReader(string(b))
		contentType = "application/json"
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http_fetch: failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if hdrs, present := reqRaw["headers"].(map[string]any); present {
		for k, v := range hdrs {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http_fetch: request failed").WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http_fetch: failed to read response body").WithCause(err)
	}

	// Decode JSON responses into structured state; keep everything
	// else as text.
	var body any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if json.Unmarshal(raw, &decoded) == nil {
			body = decoded
		}
	}

	out := expressions.DeepCopyMap(state)
	out[httpResponseKey] = map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"body":         body,
		"content_type": resp.Header.Get("Content-Type"),
		"duration_ms":  time.Since(start).Milliseconds(),
	}
	return out, nil
}
