package streaming

import (
	"testing"

	"github.com/ultrachat/ultrachat-go/core/events"
	"github.com/ultrachat/ultrachat-go/core/sse"
)

func frame(event, data string) sse.Frame {
	return sse.Frame{Event: event, Data: data}
}

func TestInterpreterAssemblesTokenText(t *testing.T) {
	i := newInterpreter()

	started := i.interpret(frame("start", `{"conversation_id": "c1"}`))
	if len(started) != 1 {
		t.Fatalf("expected one started event, got %d", len(started))
	}
	if event := started[0].(events.AssistantResponseStarted); event.ConversationID != "c1" {
		t.Fatalf("expected conversation id on start, got %q", event.ConversationID)
	}

	i.interpret(frame("token", `{"token": "He"}`))
	i.interpret(frame("token", `{"content": "llo"}`))

	final := i.interpret(frame("done", `{"conversation_id": "other"}`))
	if len(final) != 1 {
		t.Fatalf("expected one final event, got %d", len(final))
	}
	event := final[0].(events.AssistantResponseFinal)
	if event.Text != "Hello" {
		t.Fatalf("expected assembled text, got %q", event.Text)
	}
	if event.ConversationID != "c1" {
		t.Fatalf("expected the first conversation id to win, got %q", event.ConversationID)
	}

	if !i.completed {
		t.Fatal("expected interpreter to be completed")
	}
	if got := i.interpret(frame("token", `{"token": "late"}`)); got != nil {
		t.Fatalf("expected input after done to be dropped, got %d events", len(got))
	}
}

func TestInterpreterGeneratingStatusSetsConversationID(t *testing.T) {
	i := newInterpreter()

	started := i.interpret(frame("status", `{"status": "generating", "conversation_id": "c7"}`))
	if len(started) != 1 {
		t.Fatalf("expected started event from generating status, got %d", len(started))
	}
	if i.conversationID != "c7" {
		t.Fatalf("expected conversation id from generating status, got %q", i.conversationID)
	}

	if again := i.interpret(frame("start", `{"conversation_id": "c8"}`)); again != nil {
		t.Fatalf("expected started to be emitted once, got %d more events", len(again))
	}
	if i.conversationID != "c7" {
		t.Fatalf("expected first writer to win, got %q", i.conversationID)
	}
}

func TestInterpreterCorrelatesThinkingCallAndResult(t *testing.T) {
	i := newInterpreter()

	i.interpret(frame("status", `{"status": "tool_thinking_delta", "delta": "check ", "round": 1}`))
	i.interpret(frame("status", `{"status": "tool_thinking_delta", "delta": "the weather", "round": 1}`))

	startedEvents := i.interpret(frame("status", `{"status": "tool_call", "tool": "weather", "arguments": {"city": "Paris"}, "round": 1}`))
	if len(startedEvents) != 1 {
		t.Fatalf("expected one tool call event, got %d", len(startedEvents))
	}
	started := startedEvents[0].(events.ToolCallStarted)
	if started.Thinking != "check the weather" {
		t.Fatalf("expected buffered thinking on the call, got %q", started.Thinking)
	}
	if started.Arguments["city"] != "Paris" {
		t.Fatalf("expected arguments on the call, got %v", started.Arguments)
	}
	if len(i.pendingThinking) != 0 {
		t.Fatal("expected the placeholder to be consumed")
	}

	completedEvents := i.interpret(frame("status", `{"status": "tool_result", "tool": "weather", "result": "sunny", "round": 1}`))
	if len(completedEvents) != 1 {
		t.Fatalf("expected one completion event, got %d", len(completedEvents))
	}
	completed := completedEvents[0].(events.ToolCallCompleted)
	if completed.ID != started.ID {
		t.Fatal("expected the result to attach to the announced call")
	}
	if completed.Result != "sunny" {
		t.Fatalf("unexpected result %q", completed.Result)
	}

	if len(i.calls) != 1 || i.calls[0].Status != ToolCallComplete {
		t.Fatalf("expected a single complete record, got %+v", i.calls)
	}
}

func TestInterpreterMatchesMostRecentPendingCall(t *testing.T) {
	i := newInterpreter()

	i.interpret(frame("status", `{"status": "tool_call", "tool": "search", "round": 1}`))
	i.interpret(frame("status", `{"status": "tool_call", "tool": "search", "round": 2}`))

	first := i.interpret(frame("status", `{"status": "tool_result", "tool": "search", "result": "r2"}`))
	if got := first[0].(events.ToolCallCompleted).Round; got != 2 {
		t.Fatalf("expected the most recent pending call to match first, got round %d", got)
	}

	second := i.interpret(frame("status", `{"status": "tool_result", "tool": "search", "result": "r1"}`))
	if got := second[0].(events.ToolCallCompleted).Round; got != 1 {
		t.Fatalf("expected the earlier call to match next, got round %d", got)
	}

	if *i.calls[0].Result != "r1" || *i.calls[1].Result != "r2" {
		t.Fatalf("results attached to the wrong calls: %+v", i.calls)
	}
}

func TestInterpreterSynthesizesRecordForUnmatchedResult(t *testing.T) {
	i := newInterpreter()

	completedEvents := i.interpret(frame("status", `{"status": "tool_result", "tool": "search", "result": "found", "round": 3}`))
	if len(completedEvents) != 1 {
		t.Fatalf("expected one completion event, got %d", len(completedEvents))
	}
	completed := completedEvents[0].(events.ToolCallCompleted)
	if completed.Name != "search" || completed.Round != 3 || completed.Result != "found" {
		t.Fatalf("unexpected synthesized completion %+v", completed)
	}

	if len(i.calls) != 1 || i.calls[0].Status != ToolCallComplete {
		t.Fatalf("expected a standalone complete record, got %+v", i.calls)
	}
}

func TestInterpreterErrorTerminatesWithMessage(t *testing.T) {
	i := newInterpreter()

	failedEvents := i.interpret(frame("error", `{"error": "model overloaded"}`))
	if len(failedEvents) != 1 {
		t.Fatalf("expected one failure event, got %d", len(failedEvents))
	}
	if got := failedEvents[0].(events.AssistantResponseFailed).Message; got != "model overloaded" {
		t.Fatalf("unexpected failure message %q", got)
	}

	if i.failure == nil {
		t.Fatal("expected failure to be recorded")
	}
	if got := i.interpret(frame("token", `{"token": "late"}`)); got != nil {
		t.Fatalf("expected input after error to be dropped, got %d events", len(got))
	}
}

func TestInterpreterErrorFallsBackToRawPayload(t *testing.T) {
	i := newInterpreter()

	failedEvents := i.interpret(frame("error", `service unavailable`))
	if got := failedEvents[0].(events.AssistantResponseFailed).Message; got != "service unavailable" {
		t.Fatalf("expected raw payload as the message, got %q", got)
	}
}

func TestInterpreterTreatsMalformedFieldsAsAbsent(t *testing.T) {
	i := newInterpreter()

	if got := i.interpret(frame("token", `{"token": 42}`)); got != nil {
		t.Fatalf("expected a non-string token to produce nothing, got %d events", len(got))
	}
	if got := i.interpret(frame("status", `{"status": "tool_thinking_delta", "delta": 7, "round": "x"}`)); got != nil {
		t.Fatalf("expected malformed thinking fields to produce nothing, got %d events", len(got))
	}
	if i.failure != nil {
		t.Fatalf("malformed fields must not be fatal: %v", i.failure)
	}
}

func TestInterpreterSnapshotDetachesRecords(t *testing.T) {
	i := newInterpreter()

	i.interpret(frame("status", `{"status": "tool_call", "tool": "search", "arguments": {"q": "go"}, "round": 1}`))
	snapshot := i.snapshotCalls()
	if len(snapshot) != 1 {
		t.Fatalf("expected one record, got %d", len(snapshot))
	}

	i.interpret(frame("status", `{"status": "tool_result", "tool": "search", "result": "found"}`))
	if snapshot[0].Result != nil || snapshot[0].Status != ToolCallRunning {
		t.Fatal("expected the snapshot to be unaffected by later mutation")
	}
}
