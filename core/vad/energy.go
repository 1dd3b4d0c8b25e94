package vad

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ultrachat/ultrachat-go/core/audio"
)

const (
	defaultThreshold = 0.015
	defaultHangover  = 700 * time.Millisecond
)

// EnergyDetector is the local boundary source: speech starts when chunk
// RMS energy crosses the threshold and ends once energy stays below it for
// the hangover window. Silence is measured in audio time, not wall time,
// so detection does not depend on delivery cadence.
type EnergyDetector struct {
	mu sync.Mutex

	options   DetectionOptions
	threshold float64
	hangover  time.Duration

	started  bool
	inSpeech bool
	silence  time.Duration
}

type EnergyOption func(*EnergyDetector)

// WithThreshold overrides the normalized RMS level treated as speech.
func WithThreshold(threshold float64) EnergyOption {
	return func(d *EnergyDetector) {
		d.threshold = threshold
	}
}

// WithHangover overrides how much sub-threshold audio ends an utterance.
func WithHangover(hangover time.Duration) EnergyOption {
	return func(d *EnergyDetector) {
		d.hangover = hangover
	}
}

func NewEnergyDetector(opts ...EnergyOption) *EnergyDetector {
	detector := &EnergyDetector{
		threshold: defaultThreshold,
		hangover:  defaultHangover,
	}
	for _, opt := range opts {
		opt(detector)
	}
	return detector
}

func (d *EnergyDetector) Start(_ context.Context, opts ...DetectionOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("detector already started")
	}

	d.options = DetectionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&d.options)
	}

	if d.options.EncodingInfo.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported encoding: %s", d.options.EncodingInfo.Format.Name())
	}

	d.started = true
	d.inSpeech = false
	d.silence = 0
	return nil
}

func (d *EnergyDetector) SendAudio(chunk []byte) error {
	d.mu.Lock()

	if !d.started {
		d.mu.Unlock()
		return fmt.Errorf("detector not started")
	}

	energy := rmsEnergy(audio.BytesToPCM16(chunk))
	duration := d.options.EncodingInfo.Duration(chunk)

	var boundary func()
	if energy >= d.threshold {
		d.silence = 0
		if !d.inSpeech {
			d.inSpeech = true
			boundary = d.options.SpeechStartedCallback
		}
	} else if d.inSpeech {
		d.silence += duration
		if d.silence >= d.hangover {
			d.inSpeech = false
			d.silence = 0
			boundary = d.options.SpeechEndedCallback
		}
	}
	d.mu.Unlock()

	if boundary != nil {
		boundary()
	}
	return nil
}

// Close flushes an open speech span so no utterance ends without a
// boundary.
func (d *EnergyDetector) Close() error {
	d.mu.Lock()
	wasInSpeech := d.inSpeech && d.started
	ended := d.options.SpeechEndedCallback
	d.started = false
	d.inSpeech = false
	d.silence = 0
	d.mu.Unlock()

	if wasInSpeech && ended != nil {
		ended()
	}
	return nil
}

func rmsEnergy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, sample := range samples {
		normalized := float64(sample) / 32768
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(len(samples)))
}
