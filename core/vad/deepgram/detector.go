// Package deepgram adapts Deepgram's live-listen vad_events into the
// boundary detector contract, for deployments that want hosted detection
// instead of the local energy heuristic.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/ultrachat/ultrachat-go/core/audio"
	"github.com/ultrachat/ultrachat-go/core/vad"
)

type Detector struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	options vad.DetectionOptions

	// unendedSegment tracks a started span so UtteranceEnd without a
	// matching SpeechStarted does not emit a spurious boundary.
	unendedSegment bool
}

func NewDetector() *Detector {
	return &Detector{}
}

func (d *Detector) Start(ctx context.Context, opts ...vad.DetectionOption) error {
	d.options = vad.DetectionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&d.options)
	}

	conn, err := connectWebsocket(d.options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	d.conn = conn
	go d.readAndProcessMessages(ctx, conn)

	return nil
}

func connectWebsocket(encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenURL, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("vad_events", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("interim_results", "true")
	queryParams.Set("endpointing", "300")

	listenURL.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenURL.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (d *Detector) SendAudio(chunk []byte) error {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	if d.conn == nil {
		return fmt.Errorf("detector not started")
	}
	if err := d.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (d *Detector) Close() error {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	if d.conn == nil {
		return nil
	}

	if err := d.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		if aggressiveCloseErr := d.conn.Close(); aggressiveCloseErr != nil {
			return fmt.Errorf("failed to close websocket: %w", aggressiveCloseErr)
		}
	}
	d.conn = nil
	return nil
}

func (d *Detector) readAndProcessMessages(_ context.Context, conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			d.connMu.Lock()
			d.conn = nil
			d.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		d.processMessage(msg)
	}
}

func (d *Detector) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeSpeechStartedResponse:
		d.unendedSegment = true
		if d.options.SpeechStartedCallback != nil {
			d.options.SpeechStartedCallback()
		}

	case api.TypeUtteranceEndResponse:
		if !d.unendedSegment {
			return
		}
		d.unendedSegment = false
		if d.options.SpeechEndedCallback != nil {
			d.options.SpeechEndedCallback()
		}
	}
}
