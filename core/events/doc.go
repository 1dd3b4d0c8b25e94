// Package events defines the typed conversation-delta contract emitted by
// the streaming interpreter and the voice session.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - assistant_response.*
//   - tool_call.*
//   - user_input.*
//   - voice_session.*
//
// Semantics used across the package:
//
//   - Segment: append-only text piece emitted in stream order.
//   - Started/Completed: lifecycle boundaries for one logical operation.
//   - Final: terminal immutable text/state for the current stream.
//
// Events are immutable snapshots. Producers never retain a reference to an
// emitted event's payload; consumers may hold them indefinitely.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): generation
//     accepted, conversation id resolved where the backend sent one early.
//   - AssistantResponseSegment (assistant_response.segment): streamed
//     response text segment.
//   - AssistantResponseFinal (assistant_response.final): response stream
//     completed, carries the assembled text.
//   - AssistantResponseFailed (assistant_response.failed): stream aborted
//     with a backend or transport error.
//
// tool_call events
//
//   - ToolCallThinkingSegment (tool_call.thinking_segment): incremental
//     planning text for a round, may precede the call itself.
//   - ToolCallStarted (tool_call.started): tool invocation announced by the
//     backend, carries any thinking buffered for its round.
//   - ToolCallCompleted (tool_call.completed): result attached to a call.
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): speech activity began.
//   - UserSpeechEnded (user_input.speech_ended): speech activity ended.
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     mutable interim transcript snapshot.
//   - UserTranscriptFinal (user_input.transcript_final): terminal transcript
//     for the utterance.
//
// voice_session events
//
//   - VoiceSessionUpdated (voice_session.updated): session state machine
//     transition, one event per edge.
package events
