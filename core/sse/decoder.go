// Package sse decodes event/data framed streaming bodies into discrete
// frames, independent of how the transport chunks the bytes.
package sse

import (
	"context"
	"encoding/json"
	"io"
	"strings"
)

const (
	eventPrefix = "event:"
	dataPrefix  = "data:"
)

// Frame is one decoded event/data pair.
type Frame struct {
	Event string
	Data  string
}

// Payload parses the frame data as a JSON object. Anything that is not a
// JSON object is forwarded as {"raw": <data>} so one malformed frame cannot
// take down the rest of the stream.
func (f Frame) Payload() map[string]any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(f.Data), &payload); err != nil {
		return map[string]any{"raw": f.Data}
	}
	return payload
}

// Decoder reassembles frames from arbitrarily chunked text. The zero value
// is ready to use. A Decoder belongs to a single stream; its carry-over
// buffer makes it unsafe to share across streams.
type Decoder struct {
	carry string

	pendingEvent string
	hasEvent     bool
}

// Feed consumes one transport chunk and returns the frames it completed.
// A trailing fragment without a newline is held back, it may be the prefix
// of a line still in flight.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.carry += string(chunk)

	lines := strings.Split(d.carry, "\n")
	d.carry = lines[len(lines)-1]

	var frames []Frame
	for _, line := range lines[:len(lines)-1] {
		line = strings.TrimSuffix(line, "\r")

		switch {
		case strings.HasPrefix(line, eventPrefix):
			d.pendingEvent = strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))
			d.hasEvent = true

		case strings.HasPrefix(line, dataPrefix):
			// Data without a preceding event line carries no routable frame
			// and is dropped rather than guessed at.
			if !d.hasEvent {
				continue
			}
			frames = append(frames, Frame{
				Event: d.pendingEvent,
				Data:  strings.TrimSpace(strings.TrimPrefix(line, dataPrefix)),
			})
			d.pendingEvent = ""
			d.hasEvent = false
		}
	}

	return frames
}

// Reset drops all partial state so the decoder can be pointed at a new
// stream.
func (d *Decoder) Reset() {
	d.carry = ""
	d.pendingEvent = ""
	d.hasEvent = false
}

// Frames reads r until it closes and produces decoded frames in arrival
// order. An unterminated frame at close is discarded. The sequence ends
// early if the context is cancelled or the yield stops consuming.
func Frames(ctx context.Context, r io.Reader) func(func(Frame, error) bool) {
	return func(yield func(Frame, error) bool) {
		decoder := Decoder{}
		buf := make([]byte, 4096)

		for {
			if ctx.Err() != nil {
				return
			}

			n, err := r.Read(buf)
			if n > 0 {
				for _, frame := range decoder.Feed(buf[:n]) {
					if !yield(frame, nil) {
						return
					}
				}
			}
			if err != nil {
				if err != io.EOF {
					yield(Frame{}, err)
				}
				return
			}
		}
	}
}
