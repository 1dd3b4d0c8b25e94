//go:build cgo

package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/ultrachat/ultrachat-go/core/audio"
)

// 30ms periods at the session rate keep boundary detection responsive
// without flooding the websocket with tiny chunks.
const (
	captureChunkFrames = 480
	capturePeriods     = 3
)

type captureClient struct {
	mu     sync.Mutex
	device *malgo.Device

	// consumeMu is separate from mu: the device data thread reads consume
	// while Stop holds mu waiting for that thread to drain.
	consumeMu sync.Mutex
	consume   func(chunk []byte)
}

// Init opens the default microphone as a mono PCM16 device at the rate the
// rest of the pipeline expects. The device stays stopped until Start.
func (c *captureClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	encoding := audio.GetDefaultEncodingInfo()
	bytesPerFrame := encoding.Format.ByteSize()

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = captureChunkFrames
	config.Periods = capturePeriods

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			size := int(frameCount) * bytesPerFrame
			if size == 0 || len(input) < size {
				return
			}
			c.consumeMu.Lock()
			consume := c.consume
			c.consumeMu.Unlock()
			if consume != nil {
				consume(input[:size])
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	c.device = device
	return nil
}

// Start begins delivering microphone chunks to consume. Starting a device
// that is already running only swaps the consumer.
func (c *captureClient) Start(consume func(chunk []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("capture device not initialized")
	}

	c.setConsumer(consume)
	if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		c.setConsumer(nil)
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// Stop detaches the consumer before stopping the device so no chunk is
// delivered after Stop returns.
func (c *captureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("capture device not initialized")
	}

	c.setConsumer(nil)
	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.setConsumer(nil)
	return nil
}

func (c *captureClient) setConsumer(consume func(chunk []byte)) {
	c.consumeMu.Lock()
	c.consume = consume
	c.consumeMu.Unlock()
}