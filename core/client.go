// Package streaming drives chat generation streams against an UltraChat
// backend: it opens server-sent-event bodies, interprets them into typed
// conversation deltas, correlates multi-round tool calls, and exposes
// branch navigation over the conversation message tree.
package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client talks to one UltraChat backend. It enforces the at-most-one
// active stream per conversation invariant: starting a new stream cancels
// the previous one for the same conversation before the request is sent.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	active map[string]*Stream
}

type ClientOption func(*Client)

// WithHTTPClient replaces the transport. The client still owns request
// cancellation; the passed client is only used for dispatch.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		active: map[string]*Stream{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// registerStream cancels any stream still active for the conversation and
// records the replacement. An empty conversation id groups streams that are
// creating a new conversation.
func (c *Client) registerStream(conversationID string, stream *Stream) {
	c.mu.Lock()
	previous := c.active[conversationID]
	c.active[conversationID] = stream
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
}

func (c *Client) releaseStream(conversationID string, stream *Stream) {
	c.mu.Lock()
	if c.active[conversationID] == stream {
		delete(c.active, conversationID)
	}
	c.mu.Unlock()
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

func decodeBody(resp *http.Response, out any) error {
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError turns a non-streaming error response into a human-readable
// error. Backends disagree on the error body shape, so the fields are tried
// in a fixed preference order before giving up and stringifying the body.
func apiError(resp *http.Response) error {
	fallback := fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil || len(body) == 0 {
		return fallback
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fallback
	}

	if message, ok := parsed["error"].(string); ok && message != "" {
		return fmt.Errorf("%s", message)
	}
	switch detail := parsed["detail"].(type) {
	case string:
		if detail != "" {
			return fmt.Errorf("%s", detail)
		}
	case []any:
		var messages []string
		for _, entry := range detail {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if msg, ok := item["msg"].(string); ok && msg != "" {
				messages = append(messages, msg)
			} else if msg, ok := item["message"].(string); ok && msg != "" {
				messages = append(messages, msg)
			}
		}
		if len(messages) > 0 {
			return fmt.Errorf("%s", strings.Join(messages, "; "))
		}
	}
	if message, ok := parsed["message"].(string); ok && message != "" {
		return fmt.Errorf("%s", message)
	}

	return fmt.Errorf("%s", string(body))
}
