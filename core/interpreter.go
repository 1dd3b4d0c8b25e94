package streaming

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/ultrachat/ultrachat-go/core/events"
	"github.com/ultrachat/ultrachat-go/core/sse"
	"github.com/ultrachat/ultrachat-go/internal/utils"
)

type ToolCallStatus string

const (
	// ToolCallPendingThinking marks a round that has streamed planning text
	// but no call yet.
	ToolCallPendingThinking ToolCallStatus = "pending_thinking"
	// ToolCallRunning marks an announced call awaiting its result.
	ToolCallRunning ToolCallStatus = "running"
	// ToolCallComplete marks a call with its result attached.
	ToolCallComplete ToolCallStatus = "complete"
)

// ToolCallRecord is one tool invocation within a generation turn. Records
// mutate in place while the stream is live; everything handed out through
// events or Result is a detached copy.
type ToolCallRecord struct {
	ID        string
	Tool      string
	Round     int
	Arguments map[string]any
	Thinking  string
	Result    *string
	Status    ToolCallStatus
}

// interpreter folds decoded frames for one generation request into
// conversation deltas. It is single-use: the round-scoped thinking buffers
// make reuse across requests unsafe.
type interpreter struct {
	conversationID string
	startEmitted   bool
	text           strings.Builder

	// pendingThinking holds placeholder records for rounds whose planning
	// text arrived before the call itself. Placeholders never appear in the
	// final call list; their thinking moves onto the real record.
	pendingThinking map[int]*ToolCallRecord
	calls           []*ToolCallRecord

	completed bool
	failure   error
}

func newInterpreter() *interpreter {
	return &interpreter{pendingThinking: map[int]*ToolCallRecord{}}
}

// interpret consumes one frame and returns the deltas it produced. After a
// done or error frame the interpreter is terminal and drops further input.
func (i *interpreter) interpret(frame sse.Frame) []events.Event {
	if i.completed || i.failure != nil {
		return nil
	}

	payload := frame.Payload()

	switch frame.Event {
	case "start":
		i.setConversationID(asString(payload["conversation_id"]))
		return i.emitStarted()

	case "status":
		return i.interpretStatus(payload)

	case "token":
		token := asString(payload["token"])
		if token == "" {
			token = asString(payload["content"])
		}
		if token == "" {
			return nil
		}
		i.text.WriteString(token)
		return []events.Event{events.NewAssistantResponseSegment(token)}

	case "done":
		i.setConversationID(asString(payload["conversation_id"]))
		i.completed = true
		// Round-scoped buffers do not survive the request.
		i.pendingThinking = map[int]*ToolCallRecord{}
		return []events.Event{events.NewAssistantResponseFinal(i.conversationID, i.text.String())}

	case "error":
		message := asString(payload["error"])
		if message == "" {
			message = asString(payload["message"])
		}
		if message == "" {
			message = asString(payload["raw"])
		}
		if message == "" {
			message = frame.Data
		}
		i.failure = errors.New(message)
		return []events.Event{events.NewAssistantResponseFailed(message)}
	}

	logger.Debug("ignoring unrecognized stream event", "event", frame.Event)
	return nil
}

func (i *interpreter) interpretStatus(payload map[string]any) []events.Event {
	switch asString(payload["status"]) {
	case "generating":
		i.setConversationID(asString(payload["conversation_id"]))
		return i.emitStarted()

	case "tool_thinking_delta":
		round := asInt(payload["round"])
		delta := asString(payload["delta"])
		if delta == "" {
			return nil
		}

		placeholder := i.pendingThinking[round]
		if placeholder == nil {
			placeholder = &ToolCallRecord{
				ID:     uuid.NewString(),
				Round:  round,
				Status: ToolCallPendingThinking,
			}
			i.pendingThinking[round] = placeholder
		}
		placeholder.Thinking += delta
		return []events.Event{events.NewToolCallThinkingSegment(round, delta)}

	case "tool_call":
		round := asInt(payload["round"])
		call := &ToolCallRecord{
			ID:        uuid.NewString(),
			Tool:      asString(payload["tool"]),
			Round:     round,
			Arguments: asMap(payload["arguments"]),
			Status:    ToolCallRunning,
		}
		if placeholder := i.pendingThinking[round]; placeholder != nil {
			call.Thinking = placeholder.Thinking
			delete(i.pendingThinking, round)
		}
		i.calls = append(i.calls, call)
		return []events.Event{events.NewToolCallStarted(call.ID, call.Tool, asMap(payload["arguments"]), round, call.Thinking)}

	case "tool_result":
		name := asString(payload["tool"])
		result := asString(payload["result"])

		// Rounds can repeat the same tool name, so results attach to the
		// most recent matching call that has none yet.
		for idx := len(i.calls) - 1; idx >= 0; idx-- {
			call := i.calls[idx]
			if call.Tool != name || call.Result != nil {
				continue
			}
			call.Result = utils.Ptr(result)
			call.Status = ToolCallComplete
			return []events.Event{events.NewToolCallCompleted(call.ID, call.Tool, call.Round, result)}
		}

		// A result without a call is still data: synthesize a standalone
		// record rather than dropping it.
		call := &ToolCallRecord{
			ID:     uuid.NewString(),
			Tool:   name,
			Round:  asInt(payload["round"]),
			Result: utils.Ptr(result),
			Status: ToolCallComplete,
		}
		i.calls = append(i.calls, call)
		return []events.Event{events.NewToolCallCompleted(call.ID, call.Tool, call.Round, result)}
	}

	return nil
}

func (i *interpreter) setConversationID(id string) {
	// First writer wins; later events must not downgrade an id already set.
	if i.conversationID == "" && id != "" {
		i.conversationID = id
	}
}

func (i *interpreter) emitStarted() []events.Event {
	if i.startEmitted {
		return nil
	}
	i.startEmitted = true
	return []events.Event{events.NewAssistantResponseStarted(i.conversationID)}
}

// snapshotCalls deep-copies the call records so consumers never observe
// later in-place mutation.
func (i *interpreter) snapshotCalls() []ToolCallRecord {
	var snapshot []ToolCallRecord
	if err := copier.CopyWithOption(&snapshot, i.calls, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to snapshot tool call records", "error", err)
		return nil
	}
	return snapshot
}

func asString(value any) string {
	s, _ := value.(string)
	return s
}

func asInt(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}
