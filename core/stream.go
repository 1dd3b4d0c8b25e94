package streaming

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/ultrachat/ultrachat-go/core/events"
	"github.com/ultrachat/ultrachat-go/core/sse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Result is the terminal outcome of a consumed generation stream.
type Result struct {
	ConversationID string
	Text           string
	ToolCalls      []ToolCallRecord
}

// Stream is the handle for one in-flight generation request. Cancellation
// acts on the handle, never on shared client state, so concurrent requests
// against other conversations are unaffected.
//
// A Stream is single-use: Deltas may be consumed once, by one goroutine.
type Stream struct {
	client *Client
	key    string

	ctx    context.Context
	cancel context.CancelFunc

	path  string
	query url.Values
	body  map[string]any

	interpreter *interpreter
	err         error

	closeOnce sync.Once
}

// SendMessage starts a generation stream for a message. Any stream still
// active for the same conversation is cancelled first. The request itself
// is issued lazily when Deltas is consumed.
func (c *Client) SendMessage(ctx context.Context, message string, opts ...SendOption) *Stream {
	options := SendOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	body := map[string]any{
		"message": message,
		"stream":  true,
	}
	if options.ConversationID != "" {
		body["conversation_id"] = options.ConversationID
	}
	if options.ParentID != "" {
		body["parent_id"] = options.ParentID
	}
	if options.Model != "" {
		body["model"] = options.Model
	}
	if options.ProfileID != "" {
		body["profile_id"] = options.ProfileID
	}
	if options.EnableThinking {
		body["enable_thinking"] = true
	}
	if options.WebSearch {
		body["web_search"] = true
	}
	if options.UseMemory {
		body["use_memory"] = true
	}
	if options.Generation != nil {
		body["options"] = options.Generation
	}
	if len(options.Tools) > 0 {
		body["tools"] = options.Tools
	}

	return c.newStream(ctx, options.ConversationID, "/chat/send", nil, body)
}

// Regenerate streams a fresh response for an existing user message,
// branching the message tree.
func (c *Client) Regenerate(ctx context.Context, messageID string, opts ...SendOption) *Stream {
	options := SendOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	body := map[string]any{"message_id": messageID}
	if options.Model != "" {
		body["model"] = options.Model
	}
	if options.Generation != nil {
		body["options"] = options.Generation
	}

	return c.newStream(ctx, options.ConversationID, "/chat/regenerate", nil, body)
}

// EditAndContinue rewrites a user message and streams the regenerated
// response on a new branch.
func (c *Client) EditAndContinue(ctx context.Context, messageID, content string, opts ...SendOption) *Stream {
	options := SendOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	query := url.Values{}
	query.Set("message_id", messageID)
	if options.Model != "" {
		query.Set("model", options.Model)
	}

	return c.newStream(ctx, options.ConversationID, "/chat/edit", query, map[string]any{"content": content})
}

func (c *Client) newStream(ctx context.Context, conversationKey, path string, query url.Values, body map[string]any) *Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	stream := &Stream{
		client:      c,
		key:         conversationKey,
		ctx:         streamCtx,
		cancel:      cancel,
		path:        path,
		query:       query,
		body:        body,
		interpreter: newInterpreter(),
	}
	c.registerStream(conversationKey, stream)
	return stream
}

// Deltas issues the request and produces the normalized delta sequence in
// arrival order. Transport failures terminate the sequence with an error;
// backend error events terminate it with an AssistantResponseFailed delta.
// Cancellation through Close ends the sequence silently.
func (s *Stream) Deltas() func(func(events.Event, error) bool) {
	return func(yield func(events.Event, error) bool) {
		defer s.finish()

		ctx, span := tracer.Start(s.ctx, "interpret generation stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.path", s.path))

		path := s.path
		if len(s.query) > 0 {
			path += "?" + s.query.Encode()
		}

		resp, err := s.client.postJSON(ctx, path, s.body)
		if err != nil {
			if s.cancelled(err) {
				return
			}
			span.RecordError(err)
			s.err = err
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			err := apiError(resp)
			span.RecordError(err)
			s.err = err
			yield(nil, err)
			return
		}

		for frame, err := range sse.Frames(ctx, resp.Body) {
			if err != nil {
				if s.cancelled(err) {
					return
				}
				span.RecordError(err)
				s.err = err
				yield(nil, err)
				return
			}

			for _, event := range s.interpreter.interpret(frame) {
				if !yield(event, nil) {
					return
				}
			}

			if failure := s.interpreter.failure; failure != nil {
				span.RecordError(failure)
				span.SetStatus(codes.Error, failure.Error())
				s.err = failure
				return
			}
			if s.interpreter.completed {
				span.SetAttributes(attribute.String("response.conversation_id", s.interpreter.conversationID))
				return
			}
		}

		// The transport closed without a done frame. Already-emitted deltas
		// stand, but the consumer gets the failure as a terminal error
		// rather than having to notice the missing outcome via Result.
		if s.ctx.Err() == nil {
			err := errors.New("stream closed before completion")
			span.RecordError(err)
			s.err = err
			yield(nil, err)
		}
	}
}

// Result returns the terminal outcome after Deltas has been consumed.
func (s *Stream) Result() (*Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.interpreter.completed {
		return nil, errors.New("stream not completed")
	}

	return &Result{
		ConversationID: s.interpreter.conversationID,
		Text:           s.interpreter.text.String(),
		ToolCalls:      s.interpreter.snapshotCalls(),
	}, nil
}

// Close cancels the stream. Deltas already emitted are unaffected; pending
// network reads are aborted and the in-flight decoder state is dropped.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}

func (s *Stream) cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || s.ctx.Err() != nil
}

func (s *Stream) finish() {
	s.client.releaseStream(s.key, s)
	s.Close()
}
