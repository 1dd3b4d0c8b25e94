package audio

import (
	"encoding/base64"
	"encoding/binary"
	"time"
)

// Frame is one captured utterance segment: little-endian signed 16-bit
// samples plus the rate they were captured at. Frames are built from float
// microphone data right before transmission and are not reused afterwards.
type Frame struct {
	Samples    []int16
	SampleRate int
	CapturedAt time.Time
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(f.Samples)) / float64(f.SampleRate) * float64(time.Second))
}

// Bytes returns the frame payload as little-endian PCM16, the wire format
// for voice frames.
func (f Frame) Bytes() []byte {
	return PCM16Bytes(f.Samples)
}

// FloatToPCM16 quantizes normalized float samples into signed 16-bit PCM.
// Inputs outside [-1, 1] are clamped, not wrapped.
func FloatToPCM16(samples []float32) []int16 {
	pcm := make([]int16, len(samples))
	for i, sample := range samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		if sample < 0 {
			pcm[i] = int16(sample * 32768)
		} else {
			pcm[i] = int16(sample * 32767)
		}
	}
	return pcm
}

// PCM16ToFloat expands signed 16-bit PCM back into normalized floats. A
// round trip through FloatToPCM16 stays within one quantization step
// (1/32768) of the original value.
func PCM16ToFloat(pcm []int16) []float32 {
	samples := make([]float32, len(pcm))
	for i, sample := range pcm {
		if sample < 0 {
			samples[i] = float32(sample) / 32768
		} else {
			samples[i] = float32(sample) / 32767
		}
	}
	return samples
}

// PCM16Bytes serializes samples as little-endian bytes.
func PCM16Bytes(pcm []int16) []byte {
	raw := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(sample))
	}
	return raw
}

// BytesToPCM16 parses little-endian bytes into samples. A trailing odd byte
// is dropped.
func BytesToPCM16(raw []byte) []int16 {
	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return pcm
}

// EncodeBase64 wraps raw PCM16 for JSON transport.
func EncodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeBase64 unwraps JSON-transported PCM16.
func DecodeBase64(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}
