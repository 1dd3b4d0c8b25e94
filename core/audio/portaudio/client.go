//go:build cgo

// Package portaudio is the fallback device client for platforms where the
// miniaudio backend is unavailable. Capture satisfies the voice session's
// microphone contract; playback is a simple blocking writer without
// scheduled positioning.
package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/ultrachat/ultrachat-go/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	mu        sync.Mutex
	capturing bool
	stop      chan struct{}

	leftoverAudio []byte
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// StartCapture pumps microphone chunks to onAudio until StopCapture is
// called or the context ends.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = true
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	if err := c.stream.Start(); err != nil {
		c.mu.Lock()
		c.capturing = false
		c.mu.Unlock()
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			default:
				if err := c.stream.Read(); err != nil {
					continue
				}
				onAudio(audio.PCM16Bytes(c.in))
			}
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = false
	close(c.stop)
	c.mu.Unlock()

	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio stream: %w", err)
	}
	return nil
}

// SendAudio plays a PCM16 chunk, blocking per device buffer. A tail that
// does not fill a whole buffer is held back until more audio arrives.
func (c *Client) SendAudio(raw []byte) error {
	frameBytes := c.bufferSize * 2

	raw = append(c.leftoverAudio, raw...)
	for len(raw) >= frameBytes {
		copy(c.out, audio.BytesToPCM16(raw[:frameBytes]))
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
		raw = raw[frameBytes:]
	}

	c.leftoverAudio = append([]byte(nil), raw...)
	return nil
}

func (c *Client) ClearBuffer() {
	c.leftoverAudio = nil
}

func (c *Client) Close() error {
	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("failed to close portaudio stream: %w", err)
	}
	return portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}