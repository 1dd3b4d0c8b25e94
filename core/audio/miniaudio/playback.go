//go:build cgo

package miniaudio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/ultrachat/ultrachat-go/core/audio"
)

// playbackClient keeps a sample timeline ahead of the device playhead.
// Frames are written at absolute positions on the device clock; the data
// callback drains the timeline head and advances the playhead, emitting
// silence wherever nothing was scheduled.
type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	sampleRate   int

	timeline []int16
	played   int64

	mu         sync.Mutex
	timelineMu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(c.sampleRate)
	channels := 1
	format := malgo.FormatS16

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio()},
	); err != nil {
		return err
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	c.ClearBuffer()
	return nil
}

// ClockPosition reports how much audio the device has consumed since it
// started. This is the clock frames are scheduled against.
func (c *playbackClient) ClockPosition() time.Duration {
	c.timelineMu.Lock()
	defer c.timelineMu.Unlock()
	if c.sampleRate <= 0 {
		return 0
	}
	return time.Duration(c.played) * time.Second / time.Duration(c.sampleRate)
}

// ScheduleAt writes a frame into the timeline at an absolute position on
// the device clock. Positions already consumed are clipped to the playhead;
// unscheduled stretches between frames stay silent.
func (c *playbackClient) ScheduleAt(frame audio.Frame, start time.Duration) error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return fmt.Errorf("device not started")
	}
	if frame.SampleRate != c.sampleRate {
		return fmt.Errorf("frame rate %d does not match device rate %d", frame.SampleRate, c.sampleRate)
	}

	startSample := int64(start.Seconds() * float64(c.sampleRate))

	c.timelineMu.Lock()
	defer c.timelineMu.Unlock()

	offset := startSample - c.played
	if offset < 0 {
		offset = 0
	}

	end := int(offset) + len(frame.Samples)
	for len(c.timeline) < end {
		c.timeline = append(c.timeline, 0)
	}
	copy(c.timeline[offset:end], frame.Samples)
	return nil
}

// ClearBuffer drops everything not yet played. The playhead keeps running.
func (c *playbackClient) ClearBuffer() {
	c.timelineMu.Lock()
	defer c.timelineMu.Unlock()
	c.timeline = nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio() malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount)

		c.timelineMu.Lock()
		defer c.timelineMu.Unlock()

		n := need
		if n > len(c.timeline) {
			n = len(c.timeline)
		}
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(pOutput[i*2:], uint16(c.timeline[i]))
		}
		for i := n * 2; i < need*2 && i < len(pOutput); i++ {
			pOutput[i] = 0
		}

		c.timeline = c.timeline[n:]
		c.played += int64(need)
	}
}