package voice

import (
	streaming "github.com/ultrachat/ultrachat-go/core"
	"github.com/ultrachat/ultrachat-go/core/events"
	"github.com/ultrachat/ultrachat-go/core/vad"
)

type SessionOptions struct {
	ConversationID string
	ProfileID      string
	EnableThinking bool
	Tools          []streaming.Tool

	// TTSSampleRate is the rate response audio is decoded at until the
	// server's ready message overrides it.
	TTSSampleRate int

	Capture  Capture
	Detector vad.BoundaryDetector
	Output   Output

	EventCallback func(events.Event)
	StateCallback func(State)
}

type SessionOption func(*SessionOptions)

func WithConversation(conversationID string) SessionOption {
	return func(o *SessionOptions) {
		o.ConversationID = conversationID
	}
}

func WithProfile(profileID string) SessionOption {
	return func(o *SessionOptions) {
		o.ProfileID = profileID
	}
}

func WithThinking() SessionOption {
	return func(o *SessionOptions) {
		o.EnableThinking = true
	}
}

func WithTools(tools ...streaming.Tool) SessionOption {
	return func(o *SessionOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}

func WithTTSSampleRate(sampleRate int) SessionOption {
	return func(o *SessionOptions) {
		o.TTSSampleRate = sampleRate
	}
}

// WithCapture attaches a microphone source. The session forwards its
// chunks to the server and the boundary detector while listening.
func WithCapture(capture Capture) SessionOption {
	return func(o *SessionOptions) {
		o.Capture = capture
	}
}

// WithBoundaryDetector attaches a speech boundary source. Detected ends of
// speech close the utterance without an explicit EndSpeech call.
func WithBoundaryDetector(detector vad.BoundaryDetector) SessionOption {
	return func(o *SessionOptions) {
		o.Detector = detector
	}
}

// WithOutput attaches the playback device response audio is scheduled on.
func WithOutput(output Output) SessionOption {
	return func(o *SessionOptions) {
		o.Output = output
	}
}

// WithEventCallback registers the consumer for conversation deltas. The
// callback runs on the session's read goroutine and must not block.
func WithEventCallback(callback func(events.Event)) SessionOption {
	return func(o *SessionOptions) {
		o.EventCallback = callback
	}
}

func WithStateCallback(callback func(State)) SessionOption {
	return func(o *SessionOptions) {
		o.StateCallback = callback
	}
}
