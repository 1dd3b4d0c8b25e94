// Package voice runs full-duplex voice conversations against an UltraChat
// backend: microphone audio goes up a websocket, transcripts and response
// tokens come back as typed deltas, and synthesized speech is scheduled
// gap-free on the output device.
package voice

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const voiceChatPath = "/voice/ws/voice-chat"

// Client opens voice sessions against one backend. It enforces the
// at-most-one active session per conversation invariant: opening a new
// session closes the previous one for the same conversation.
type Client struct {
	endpoint string
	dialer   *websocket.Dialer

	mu     sync.Mutex
	active map[string]*Session
}

type ClientOption func(*Client)

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	endpoint, err := websocketEndpoint(baseURL)
	if err != nil {
		return nil, err
	}

	client := &Client{
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
		active:   map[string]*Session{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// websocketEndpoint derives the voice-chat socket address from the backend
// base URL, accepting either http(s) or ws(s) forms.
func websocketEndpoint(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported base url scheme: %q", parsed.Scheme)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + voiceChatPath
	return parsed.String(), nil
}

// OpenSession connects a new voice session and blocks until the server
// confirms readiness. A session still active for the same conversation is
// closed first.
func (c *Client) OpenSession(ctx context.Context, opts ...SessionOption) (*Session, error) {
	options := SessionOptions{TTSSampleRate: defaultTTSSampleRate}
	for _, opt := range opts {
		opt(&options)
	}

	session := newSession(c, options)
	c.registerSession(options.ConversationID, session)

	if err := session.connect(ctx); err != nil {
		c.releaseSession(options.ConversationID, session)
		return nil, err
	}
	return session, nil
}

// registerSession closes any session still active for the conversation and
// records the replacement. An empty conversation id groups sessions that
// are creating a new conversation.
func (c *Client) registerSession(conversationID string, session *Session) {
	c.mu.Lock()
	previous := c.active[conversationID]
	c.active[conversationID] = session
	c.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
}

func (c *Client) releaseSession(conversationID string, session *Session) {
	c.mu.Lock()
	if c.active[conversationID] == session {
		delete(c.active, conversationID)
	}
	c.mu.Unlock()
}
