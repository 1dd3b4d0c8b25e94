package events

const (
	// KindToolCallThinkingSegment identifies incremental planning text for a round.
	KindToolCallThinkingSegment Kind = "tool_call.thinking_segment"
	// KindToolCallStarted identifies tool call announcement.
	KindToolCallStarted Kind = "tool_call.started"
	// KindToolCallCompleted identifies a result attaching to a call.
	KindToolCallCompleted Kind = "tool_call.completed"
)

// ToolCallThinkingSegment carries planning text streamed before the call
// for its round is known.
type ToolCallThinkingSegment struct {
	Base
	Round int
	Delta string
}

// NewToolCallThinkingSegment creates a thinking segment event.
func NewToolCallThinkingSegment(round int, delta string) ToolCallThinkingSegment {
	return ToolCallThinkingSegment{Base: NewBase(KindToolCallThinkingSegment), Round: round, Delta: delta}
}

// ToolCallStarted marks a tool invocation announced by the backend.
// Thinking holds whatever planning text was buffered for the same round.
type ToolCallStarted struct {
	Base
	ID        string
	Name      string
	Arguments map[string]any
	Round     int
	Thinking  string
}

// NewToolCallStarted creates a tool call started event.
func NewToolCallStarted(id, name string, arguments map[string]any, round int, thinking string) ToolCallStarted {
	return ToolCallStarted{Base: NewBase(KindToolCallStarted), ID: id, Name: name, Arguments: arguments, Round: round, Thinking: thinking}
}

// ToolCallCompleted marks a result attaching to a call.
type ToolCallCompleted struct {
	Base
	ID     string
	Name   string
	Round  int
	Result string
}

// NewToolCallCompleted creates a tool call completed event.
func NewToolCallCompleted(id, name string, round int, result string) ToolCallCompleted {
	return ToolCallCompleted{Base: NewBase(KindToolCallCompleted), ID: id, Name: name, Round: round, Result: result}
}
