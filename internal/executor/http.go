package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/constants"
	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/tracing"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

const maxResponseBody = 64 << 20 // screenshots are large

// HTTP talks to a remote tool server.
type HTTP struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	healthTimeout time.Duration
	logger        *logger.Logger
}

// HTTPOption configures an HTTP executor.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.httpClient = c }
}

// WithHealthTimeout overrides the health check timeout.
func WithHealthTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		if d > 0 {
			h.healthTimeout = d
		}
	}
}

// NewHTTP creates an executor for the tool server at baseURL. An empty token
// sends no Authorization header.
func NewHTTP(baseURL, token string, log *logger.Logger, opts ...HTTPOption) *HTTP {
	if log == nil {
		log = logger.Default()
	}
	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// Bash commands may run for the full server-side timeout.
		httpClient:    &http.Client{Timeout: constants.BashTimeout + 30*time.Second},
		healthTimeout: constants.HealthCheckTimeout,
		logger:        log.WithFields(zap.String("component", "http-executor"), zap.String("container_url", baseURL)),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// BaseURL returns the tool server address.
func (h *HTTP) BaseURL() string { return h.baseURL }

// ExecuteAction posts the action to /api/tool.
func (h *HTTP) ExecuteAction(ctx context.Context, action v1.Action) v1.ActionResult {
	ctx, span := tracing.TraceAction(ctx, "http", string(action.Action))
	defer span.End()

	var res v1.ActionResult
	if err := h.post(ctx, "/api/tool", action, &res); err != nil {
		tracing.MarkFailed(span, err.Error())
		return v1.ActionResult{Error: err.Error()}
	}
	if !res.OK() {
		tracing.MarkFailed(span, res.Error)
	}
	return res
}

// ExecuteBash posts the command to /api/bash.
func (h *HTTP) ExecuteBash(ctx context.Context, command string) v1.BashResponse {
	ctx, span := tracing.TraceBash(ctx, "http", len(command))
	defer span.End()

	var res v1.BashResponse
	if err := h.post(ctx, "/api/bash", v1.BashRequest{Command: command}, &res); err != nil {
		tracing.MarkFailed(span, err.Error())
		return v1.BashResponse{Error: err.Error()}
	}
	return res
}

// GetInfo fetches /api/info. It is unauthenticated on the server side.
func (h *HTTP) GetInfo(ctx context.Context) (*v1.InfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Container returned %d", resp.StatusCode)
	}
	var info v1.InfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse info response: %w", err)
	}
	return &info, nil
}

// HealthCheck reports whether /api/health answers {"status":"ok"} within the
// health timeout. Every failure counts as unhealthy.
func (h *HTTP) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Debug("health check failed", zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	var health v1.HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok"
}

// post sends body as JSON and decodes a 2xx response into out. A non-2xx
// status becomes "Container returned <code>: <text>".
func (h *HTTP) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Warn("request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("Container returned %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

var (
	_ Executor = (*HTTP)(nil)
	_ Executor = (*Direct)(nil)
)
