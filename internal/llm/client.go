package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/logger"
)

const (
	// DefaultBaseURL is the public Anthropic API.
	DefaultBaseURL = "https://api.anthropic.com"
	// APIVersion is sent as anthropic-version on every request.
	APIVersion = "2023-06-01"

	statusOverloaded = 529
)

// ErrMissingAPIKey is returned by NewHTTPClient when no key is configured.
var ErrMissingAPIKey = errors.New("anthropic API key is required")

// Client sends one Messages API request.
type Client interface {
	CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error)
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("anthropic API error: status %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("anthropic API error: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		statusOverloaded:
		return true
	}
	return false
}

// Config configures HTTPClient.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds one HTTP attempt.
	Timeout time.Duration
	// RetryMaxElapsed bounds all attempts of one request. 0 uses 2 minutes.
	RetryMaxElapsed time.Duration
	// RetryInitialInterval is the first backoff step. 0 uses the backoff default.
	RetryInitialInterval time.Duration
}

// HTTPClient talks to the Messages API over HTTP.
type HTTPClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	cfg        Config
	logger     *logger.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for cfg.
func NewHTTPClient(cfg Config, log *logger.Logger) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 2 * time.Minute
	}
	if log == nil {
		log = logger.Default()
	}
	return &HTTPClient{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     log.WithFields(zap.String("component", "llm-client")),
	}, nil
}

// CreateMessage sends req, retrying rate limits, overloads and network errors
// with exponential backoff.
func (c *HTTPClient) CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.cfg.RetryMaxElapsed
	b.MaxInterval = 30 * time.Second
	if c.cfg.RetryInitialInterval > 0 {
		b.InitialInterval = c.cfg.RetryInitialInterval
	}

	var out *MessageResponse
	attempt := 0
	operation := func() error {
		attempt++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", APIVersion)
		if len(req.Betas) > 0 {
			httpReq.Header.Set("anthropic-beta", strings.Join(req.Betas, ","))
		}

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("network error during LLM request, retrying",
				zap.Int("attempt", attempt), zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := parseAPIError(resp.StatusCode, respBody)
			if apiErr.Retryable() {
				c.logger.Warn("LLM request failed, retrying",
					zap.Int("attempt", attempt),
					zap.Int("status", resp.StatusCode),
					zap.String("error_type", apiErr.Type))
				return apiErr
			}
			c.logger.Error("LLM request rejected",
				zap.Int("status", resp.StatusCode),
				zap.String("response", string(respBody)))
			return backoff.Permanent(apiErr)
		}

		var decoded MessageResponse
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		c.logger.Debug("LLM request complete",
			zap.String("model", decoded.Model),
			zap.Duration("duration", time.Since(start)),
			zap.String("stop_reason", decoded.StopReason),
			zap.Int("input_tokens", decoded.Usage.InputTokens),
			zap.Int("output_tokens", decoded.Usage.OutputTokens))
		out = &decoded
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
