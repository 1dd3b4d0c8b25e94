// Package vad defines the speech-boundary capability the voice session
// consumes: something that takes continuous audio and reports where speech
// starts and ends. Detection internals stay behind the interface.
package vad

import (
	"context"

	"github.com/ultrachat/ultrachat-go/core/audio"
)

// BoundaryDetector segments continuous audio into speech spans.
// Implementations invoke the configured callbacks from their own
// processing goroutine; callbacks must not block.
type BoundaryDetector interface {
	Start(ctx context.Context, opts ...DetectionOption) error
	SendAudio(audio []byte) error
	Close() error
}

type DetectionOptions struct {
	EncodingInfo audio.EncodingInfo

	SpeechStartedCallback func()
	SpeechEndedCallback   func()
}

type DetectionOption func(*DetectionOptions)

func WithEncodingInfo(encodingInfo audio.EncodingInfo) DetectionOption {
	return func(o *DetectionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithSpeechStartedCallback(callback func()) DetectionOption {
	return func(o *DetectionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) DetectionOption {
	return func(o *DetectionOptions) {
		o.SpeechEndedCallback = callback
	}
}
