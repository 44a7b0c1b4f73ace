package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/agriassist/internal/metrics"
)

// envelope is the `{ success, data, message }` wrapper every endpoint uses.
// The login endpoint puts token and user next to success instead of
// under data.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user"`
}

// Client is a thin HTTP client for the AgriAssist REST API. It handles
// Bearer token authentication, the response envelope, and automatic retry
// with exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many times a 429 answer is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics attaches request counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a REST client. baseURL includes the /api prefix
// (e.g. https://agriassist.example.com/api); token may be empty for
// unauthenticated calls such as Login.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call performs a request and decodes the envelope's data into result
// when result is non-nil.
func (c *Client) call(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	env, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if result == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("unmarshaling data from %s %s: %w", method, path, err)
	}
	return nil
}

// do builds the request, handles auth, rate limiting with exponential
// backoff, and decodes the response envelope.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
) (*envelope, error) {
	url := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.Request(method, "error")
			return nil, fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			c.metrics.Request(method, "error")
			return nil, fmt.Errorf("reading response body: %w", readErr)
		}
		c.metrics.Request(method, strconv.Itoa(resp.StatusCode))

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)
			if attempt == c.maxRetries {
				break
			}
			c.log.Debug().
				Str("method", method).
				Str("path", path).
				Dur("wait", waitDuration).
				Msg("rate limited, backing off")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		var env envelope
		decodeErr := json.Unmarshal(respBody, &env)

		if resp.StatusCode == http.StatusUnauthorized {
			msg := env.Message
			if msg == "" {
				msg = "token rejected, log in again"
			}
			return nil, &AuthError{Method: method, Path: path, Message: msg}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := env.Message
			if decodeErr != nil || msg == "" {
				msg = strings.TrimSpace(string(respBody))
			}
			return nil, &APIError{
				Method:     method,
				Path:       path,
				StatusCode: resp.StatusCode,
				Message:    msg,
			}
		}

		// No content to parse (e.g. 204).
		if resp.StatusCode == http.StatusNoContent {
			return &envelope{Success: true}, nil
		}

		if decodeErr != nil {
			return nil, fmt.Errorf(
				"unmarshaling response from %s %s: %w",
				method, path, decodeErr,
			)
		}

		if !env.Success {
			return nil, &APIError{
				Method:     method,
				Path:       path,
				StatusCode: resp.StatusCode,
				Message:    env.Message,
			}
		}

		return &env, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
