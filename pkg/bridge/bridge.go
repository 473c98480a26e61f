// Package bridge implements the HTTP client for the remote tool bridge.
//
// The bridge exposes three logical operations:
//
//	GET  /health -> { status: "ok" }
//	GET  /tools  -> { tools: [{ name: str }] } or a raw name array
//	POST /call   -> { result: any } | { error: str }
//
// /tools and /call are protected by an API key header (x-api-key) or a
// bearer token when the server was started with credentials. The health and
// readiness endpoints remain public so monitoring keeps working without a
// key.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = 750 * time.Millisecond

	apiKeyHeader = "x-api-key"

	// bearerTokenTTL bounds the lifetime of minted bearer tokens. Tokens
	// are minted per request, so a short TTL is enough.
	bearerTokenTTL = time.Minute

	pathHealth = "/health"
	pathReady  = "/ready"
	pathTools  = "/tools"
	pathCall   = "/call"

	// routeNotFoundMarker is the string the bridge includes in a 404 body
	// when the /call route itself is missing, as opposed to the named tool.
	routeNotFoundMarker = "route not found"
)

// Config holds bridge client configuration. It is immutable after NewClient.
type Config struct {
	// BaseURL is the bridge base address. Required. Trailing slashes are
	// stripped at construction.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each individual HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the total number of attempts for retryable calls (>= 1).
	MaxRetries int `yaml:"max_retries"`

	// Backoff is the linear backoff unit: the wait before attempt k+1 is
	// Backoff * k.
	Backoff time.Duration `yaml:"backoff"`

	// APIKey is sent in the x-api-key header on authenticated endpoints.
	APIKey string `yaml:"api_key"`

	// BearerSecret, when set, switches authentication to short-lived HS256
	// bearer tokens signed with this shared secret.
	BearerSecret string `yaml:"bearer_secret"`
}

// Client talks to a remote tool bridge. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client

	mu        sync.RWMutex
	toolCache []string
	populated bool

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error

	// now feeds token issuance; swapped out in tests.
	now func() time.Time
}

// NewClient validates cfg, normalizes the base URL, and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("bridge base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		sleep: sleepContext,
		now:   time.Now,
	}, nil
}

// BaseURL returns the normalized base address.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Probe performs the liveness check. It never returns an error: any
// network failure, non-2xx status, or malformed body maps to false. Probe
// does not retry and sends no credentials.
func (c *Client) Probe(ctx context.Context) bool {
	return c.probe(ctx, pathHealth)
}

// Ready performs the readiness check with the same swallow-all semantics
// as Probe.
func (c *Client) Ready(ctx context.Context) bool {
	return c.probe(ctx, pathReady)
}

func (c *Client) probe(ctx context.Context, path string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok"
}

// ListTools returns the tool names advertised by the bridge. The result is
// cached for the lifetime of the client; forceRefresh bypasses and
// repopulates the cache. A 404 from an old server yields an empty list.
func (c *Client) ListTools(ctx context.Context, forceRefresh bool) ([]string, error) {
	if !forceRefresh {
		c.mu.RLock()
		if c.populated {
			cached := c.toolCache
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()
	}

	env, err := c.do(ctx, http.MethodGet, pathTools, nil)
	if err != nil {
		return nil, err
	}
	tools := parseToolList(env)

	c.mu.Lock()
	c.toolCache = tools
	c.populated = true
	c.mu.Unlock()
	return tools, nil
}

// parseToolList accepts both { tools: [{name}...] } and a raw name array.
func parseToolList(env *envelope) []string {
	if env.notFound || len(env.raw) == 0 {
		return nil
	}

	var wrapped struct {
		Tools json.RawMessage `json:"tools"`
	}
	list := env.raw
	if err := json.Unmarshal(env.raw, &wrapped); err == nil && wrapped.Tools != nil {
		list = wrapped.Tools
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(list, &entries); err != nil {
		slog.Warn("unexpected /tools response shape", "body", truncate(string(env.raw), 200))
		return nil
	}

	tools := make([]string, 0, len(entries))
	for _, entry := range entries {
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(entry, &named); err == nil && named.Name != "" {
			tools = append(tools, named.Name)
			continue
		}
		var plain string
		if err := json.Unmarshal(entry, &plain); err == nil && plain != "" {
			tools = append(tools, plain)
		}
	}
	return tools
}

// CallTool invokes a named tool with the given arguments and returns the
// raw result payload. The payload is opaque to the client beyond top-level
// error detection. Arguments are marshaled once per logical call and never
// mutated across retries.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	body := map[string]any{"name": name, "arguments": arguments}

	env, err := c.do(ctx, http.MethodPost, pathCall, body)
	if err != nil {
		return nil, err
	}
	if env.notFound {
		return nil, &NotFoundError{
			Tool:   name,
			Route:  strings.Contains(strings.ToLower(env.notFoundDetail), routeNotFoundMarker),
			Detail: truncate(env.notFoundDetail, 200),
		}
	}

	var result struct {
		Result json.RawMessage `json:"result"`
		Error  *string         `json:"error"`
	}
	if len(env.raw) > 0 {
		if err := json.Unmarshal(env.raw, &result); err != nil {
			return nil, fmt.Errorf("decoding /call response: %w", err)
		}
	}
	if result.Error != nil {
		return nil, &InvocationError{Tool: name, Detail: *result.Error}
	}
	return result.Result, nil
}

// envelope carries one decoded HTTP exchange. A 404 is benign at this
// layer: it sets notFound instead of producing an error, so callers decide
// how to translate it.
type envelope struct {
	raw            json.RawMessage
	notFound       bool
	notFoundDetail string
}

// do runs the retry loop. Server faults (5xx), connection failures, and
// unparseable bodies are retried with linear backoff (Backoff * attempt).
// 401 fails immediately with ErrUnauthorized, 404 returns a benign
// envelope. Exhaustion surfaces the last failure wrapped in ExhaustedError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	var last error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		env, retryable, err := c.once(ctx, method, path, payload)
		if err == nil {
			return env, nil
		}
		if !retryable {
			return nil, err
		}
		last = err
		if attempt == c.cfg.MaxRetries {
			break
		}
		wait := c.cfg.Backoff * time.Duration(attempt)
		slog.Warn("bridge request failed, retrying",
			"path", path,
			"attempt", attempt,
			"max_retries", c.cfg.MaxRetries,
			"retry_in", wait,
			"error", err,
		)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	slog.Error("bridge request exhausted retries", "path", path, "attempts", c.cfg.MaxRetries, "error", last)
	return nil, &ExhaustedError{Attempts: c.cfg.MaxRetries, Last: last}
}

// once performs a single attempt. The second return reports whether the
// failure is retryable.
func (c *Client) once(ctx context.Context, method, path string, payload []byte) (*envelope, bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req, path); err != nil {
		return nil, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(string(raw), 200))
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return &envelope{notFound: true, notFoundDetail: string(raw)}, false, nil
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, true, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	// An empty 2xx body is an empty successful payload, not an error.
	if len(bytes.TrimSpace(raw)) == 0 {
		return &envelope{}, false, nil
	}
	if !json.Valid(raw) {
		return nil, true, fmt.Errorf("malformed response body: %s", truncate(string(raw), 200))
	}
	return &envelope{raw: raw}, false, nil
}

// authorize attaches credentials to req. Health and readiness probes stay
// unauthenticated so monitoring works without a key.
func (c *Client) authorize(req *http.Request, path string) error {
	if path == pathHealth || path == pathReady {
		return nil
	}
	if c.cfg.BearerSecret != "" {
		token, err := c.mintBearerToken()
		if err != nil {
			return fmt.Errorf("minting bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}
	return nil
}

// mintBearerToken signs a short-lived HS256 token with the shared secret.
func (c *Client) mintBearerToken() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss": "dbms-agent",
		"iat": now.Unix(),
		"exp": now.Add(bearerTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.BearerSecret))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
