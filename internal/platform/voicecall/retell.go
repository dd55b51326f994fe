// Package voicecall talks to the Retell voice-agent API: it allocates web-call
// sessions and decodes the call events Retell posts back.
package voicecall

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

	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/platform/apperr"
)

const DefaultBaseURL = "https://api.retellai.com"

const createWebCallPath = "/v2/create-web-call"

// NotConfiguredMessage is reported when no API key is set.
const NotConfiguredMessage = "Server Error: RETELL_API_KEY is not configured."

// Option configures a RetellClient.
type Option func(*RetellClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *RetellClient) { r.httpClient = c }
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return func(r *RetellClient) {
		if u != "" {
			r.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// RetellClient creates web calls through the Retell REST API.
type RetellClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewRetellClient returns a client for apiKey. An empty key yields a client
// whose Configured reports false.
func NewRetellClient(apiKey string, logger zerolog.Logger, opts ...Option) *RetellClient {
	c := &RetellClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With().Str("component", "voicecall").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether an API key is present.
func (c *RetellClient) Configured() bool { return c.apiKey != "" }

type createWebCallRequest struct {
	AgentID  string            `json:"agent_id"`
	Metadata map[string]string `json:"metadata"`
}

// CreateWebCall allocates a web-call session for agentID, tagging it with
// userID so the call-ended webhook can be attributed. The response body is
// returned unmodified for the browser SDK.
func (c *RetellClient) CreateWebCall(ctx context.Context, agentID, userID string) (json.RawMessage, error) {
	if c.apiKey == "" {
		c.logger.Error().Msg(NotConfiguredMessage)
		return nil, apperr.Configuration(NotConfiguredMessage)
	}

	payload, err := json.Marshal(createWebCallRequest{
		AgentID:  agentID,
		Metadata: map[string]string{"user_id": userID},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal create-web-call request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createWebCallPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build create-web-call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		msg := "Network Error: Failed to connect to Retell API. " + err.Error()
		c.logger.Error().Err(err).Str("user_id", userID).Msg("create web call failed")
		return nil, apperr.Upstream(msg, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		msg := "Network Error: Failed to connect to Retell API. " + err.Error()
		return nil, apperr.Upstream(msg, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("Retell API Error (%d): %s", resp.StatusCode, string(body))
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("user_id", userID).
			Msg("retell rejected create web call")
		return nil, apperr.Upstream(msg, nil)
	}

	if !json.Valid(body) {
		return nil, apperr.Upstream("Retell API returned a malformed response", errors.New(string(body)))
	}

	c.logger.Info().
		Str("user_id", userID).
		Dur("latency", time.Since(start)).
		Msg("web call created")
	return json.RawMessage(body), nil
}
