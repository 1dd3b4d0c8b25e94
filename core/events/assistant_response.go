package events

const (
	// KindAssistantResponseStarted identifies acceptance of a generation request.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseSegment identifies a streamed response text segment.
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	// KindAssistantResponseFinal identifies stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
	// KindAssistantResponseFailed identifies a terminal stream failure.
	KindAssistantResponseFailed Kind = "assistant_response.failed"
)

// AssistantResponseStarted marks the backend accepting a generation request.
// ConversationID may be empty when the backend resolves it only at
// completion.
type AssistantResponseStarted struct {
	Base
	ConversationID string
}

// NewAssistantResponseStarted creates a response started event.
func NewAssistantResponseStarted(conversationID string) AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewBase(KindAssistantResponseStarted), ConversationID: conversationID}
}

// AssistantResponseSegment carries one streamed text segment.
type AssistantResponseSegment struct {
	Base
	Text string
}

// NewAssistantResponseSegment creates a response segment event.
func NewAssistantResponseSegment(text string) AssistantResponseSegment {
	return AssistantResponseSegment{Base: NewBase(KindAssistantResponseSegment), Text: text}
}

// AssistantResponseFinal marks stream completion with the assembled text.
type AssistantResponseFinal struct {
	Base
	ConversationID string
	Text           string
}

// NewAssistantResponseFinal creates a response final event.
func NewAssistantResponseFinal(conversationID, text string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), ConversationID: conversationID, Text: text}
}

// AssistantResponseFailed marks a terminal stream failure.
type AssistantResponseFailed struct {
	Base
	Message string
}

// NewAssistantResponseFailed creates a response failed event.
func NewAssistantResponseFailed(message string) AssistantResponseFailed {
	return AssistantResponseFailed{Base: NewBase(KindAssistantResponseFailed), Message: message}
}
