// Package transport holds the two contracts the client assumes of its
// collaborators: a REST endpoint set and a bidirectional realtime channel.
// Everything above this package is orchestration; everything below it is
// the backend's problem.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the REST client. It attaches the session's bearer token to
// every request and converts failure bodies into APIError values.
type Client struct {
	baseURL        string
	http           *http.Client
	tokenSource    func() string
	onUnauthorized func()
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetTokenSource installs the function consulted for the bearer token on
// each request. An empty return means no Authorization header is sent.
func (c *Client) SetTokenSource(fn func() string) {
	c.tokenSource = fn
}

// SetUnauthorizedHandler installs the hook invoked whenever the server
// answers 401. The session layer uses it to force logout.
func (c *Client) SetUnauthorizedHandler(fn func()) {
	c.onUnauthorized = fn
}

// Do performs a JSON request. body and out may be nil. Errors from the
// server are returned as *APIError with the server's message preserved.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokenSource != nil {
		if token := c.tokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	}
	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		apiErr.Message = payload.Message
	} else if len(data) > 0 {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
