package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ultrachat/ultrachat-go/core/audio"
	"github.com/ultrachat/ultrachat-go/core/events"
)

type fakeCapture struct {
	mu     sync.Mutex
	live   bool
	starts int
}

func (c *fakeCapture) StartCapture(_ context.Context, _ func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = true
	c.starts++
	return nil
}

func (c *fakeCapture) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = false
	return nil
}

func (c *fakeCapture) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func voiceTestServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voice/ws/voice-chat" {
			t.Errorf("unexpected websocket path %q", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func awaitKind(t *testing.T, ch <-chan events.Event, kind events.Kind) events.Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-ch:
			if event.Kind() == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func awaitState(t *testing.T, ch <-chan State, state State) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == state {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", state)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	responseAudio := audio.PCM16Bytes([]int16{1000, -1000, 500, -500})

	server := voiceTestServer(t, func(conn *websocket.Conn) {
		var config map[string]any
		if err := conn.ReadJSON(&config); err != nil {
			t.Errorf("failed to read config: %v", err)
			return
		}
		if config["type"] != "config" {
			t.Errorf("expected config before anything else, got %v", config["type"])
		}
		if config["conversation_id"] != "c1" {
			t.Errorf("expected conversation id in config, got %v", config["conversation_id"])
		}

		if err := conn.WriteJSON(map[string]any{"type": "ready", "tts_sample_rate": 48000}); err != nil {
			return
		}

		// Binary audio until the end_speech control closes the utterance.
		sawAudio := false
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				t.Errorf("connection dropped before end of speech: %v", err)
				return
			}
			if msgType == websocket.BinaryMessage {
				sawAudio = true
				continue
			}
			var control map[string]any
			if err := json.Unmarshal(msg, &control); err != nil {
				t.Errorf("unparseable control message: %v", err)
				return
			}
			if control["type"] == "end_speech" {
				break
			}
		}
		if !sawAudio {
			t.Error("expected audio before end_speech")
		}

		_ = conn.WriteJSON(map[string]any{"type": "transcription", "text": "hi there", "final": true})
		_ = conn.WriteJSON(map[string]any{"type": "llm_token", "token": "He"})
		_ = conn.WriteJSON(map[string]any{"type": "llm_token", "token": "llo"})
		_ = conn.WriteJSON(map[string]any{"type": "audio", "data": audio.EncodeBase64(responseAudio)})
		_ = conn.WriteJSON(map[string]any{"type": "done"})

		// Hold the connection until the client tears it down.
		_, _, _ = conn.ReadMessage()
	})

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	eventCh := make(chan events.Event, 64)
	stateCh := make(chan State, 64)
	output := &fakeOutput{clock: time.Second}
	session, err := client.OpenSession(context.Background(),
		WithConversation("c1"),
		WithOutput(output),
		WithEventCallback(func(event events.Event) { eventCh <- event }),
		WithStateCallback(func(state State) { stateCh <- state }),
	)
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	defer session.Close()

	if session.State() != StateListening {
		t.Fatalf("expected listening after open, got %s", session.State())
	}
	if session.ttsSampleRate != 48000 {
		t.Fatalf("expected ready to override the sample rate, got %d", session.ttsSampleRate)
	}

	if err := session.SendAudio(audio.PCM16Bytes([]int16{10, -10})); err != nil {
		t.Fatalf("failed to send audio: %v", err)
	}
	if err := session.EndSpeech(audio.PCM16Bytes([]int16{20, -20})); err != nil {
		t.Fatalf("failed to end speech: %v", err)
	}
	awaitState(t, stateCh, StateProcessing)

	transcript := awaitKind(t, eventCh, events.KindUserTranscriptFinal).(events.UserTranscriptFinal)
	if transcript.Transcript != "hi there" {
		t.Fatalf("expected final transcript, got %q", transcript.Transcript)
	}

	final := awaitKind(t, eventCh, events.KindAssistantResponseFinal).(events.AssistantResponseFinal)
	if final.Text != "Hello" {
		t.Fatalf("expected assembled response text, got %q", final.Text)
	}

	frames := output.frames()
	if len(frames) != 1 {
		t.Fatalf("expected one scheduled frame, got %d", len(frames))
	}
	if frames[0].frame.SampleRate != 48000 {
		t.Fatalf("expected response audio at the negotiated rate, got %d", frames[0].frame.SampleRate)
	}
	if got := len(frames[0].frame.Samples); got != 4 {
		t.Fatalf("expected decoded samples, got %d", got)
	}

	awaitState(t, stateCh, StateSpeaking)
	awaitState(t, stateCh, StateListening)
}

func TestSessionRejectsAudioOutsideListening(t *testing.T) {
	server := voiceTestServer(t, func(conn *websocket.Conn) {
		var config map[string]any
		if err := conn.ReadJSON(&config); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "ready", "tts_sample_rate": 24000})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	session, err := client.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	defer session.Close()

	if err := session.EndSpeech(nil); err != nil {
		t.Fatalf("failed to end speech: %v", err)
	}
	if err := session.SendAudio([]byte{0, 0}); err == nil {
		t.Fatal("expected audio to be rejected while processing")
	}
}

func TestSessionServerErrorMovesToErrorState(t *testing.T) {
	server := voiceTestServer(t, func(conn *websocket.Conn) {
		var config map[string]any
		if err := conn.ReadJSON(&config); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "ready", "tts_sample_rate": 24000})
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "stt backend unavailable"})
		_, _, _ = conn.ReadMessage()
	})

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	eventCh := make(chan events.Event, 64)
	session, err := client.OpenSession(context.Background(),
		WithEventCallback(func(event events.Event) { eventCh <- event }),
	)
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	defer session.Close()

	failed := awaitKind(t, eventCh, events.KindAssistantResponseFailed).(events.AssistantResponseFailed)
	if failed.Message != "stt backend unavailable" {
		t.Fatalf("expected server error message, got %q", failed.Message)
	}

	if session.State() != StateError {
		t.Fatalf("expected error state, got %s", session.State())
	}
	if session.Err() == nil {
		t.Fatal("expected session error to be recorded")
	}
}

func TestOpenSessionReplacesActiveSession(t *testing.T) {
	server := voiceTestServer(t, func(conn *websocket.Conn) {
		var config map[string]any
		if err := conn.ReadJSON(&config); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "ready", "tts_sample_rate": 24000})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	first, err := client.OpenSession(context.Background(), WithConversation("c1"))
	if err != nil {
		t.Fatalf("failed to open first session: %v", err)
	}
	second, err := client.OpenSession(context.Background(), WithConversation("c1"))
	if err != nil {
		t.Fatalf("failed to open second session: %v", err)
	}
	defer second.Close()

	if first.State() != StateClosed {
		t.Fatalf("expected the first session to be closed, got %s", first.State())
	}
	if second.State() != StateListening {
		t.Fatalf("expected the second session to be live, got %s", second.State())
	}
}

func TestConnectAfterCloseReportsClosed(t *testing.T) {
	client, err := NewClient("http://localhost:0")
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	capture := &fakeCapture{}
	session := newSession(client, SessionOptions{Capture: capture})
	_ = session.Close()

	if err := session.connect(context.Background()); err == nil || err.Error() != "session closed" {
		t.Fatalf("expected closed session to be reported, got %v", err)
	}
	if capture.starts != 0 {
		t.Fatal("expected capture to stay untouched on a closed session")
	}
}

func TestOpenSessionReplacementReleasesCapture(t *testing.T) {
	server := voiceTestServer(t, func(conn *websocket.Conn) {
		var config map[string]any
		if err := conn.ReadJSON(&config); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "ready", "tts_sample_rate": 24000})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	// Two opens race for the same conversation: the loser is closed while
	// its connect may still be mid-handshake. Whatever the interleaving,
	// no microphone may be left running once the survivors are closed.
	for range 25 {
		captures := [2]*fakeCapture{{}, {}}
		var sessions [2]*Session

		var wg sync.WaitGroup
		for i := range captures {
			wg.Add(1)
			go func() {
				defer wg.Done()
				session, err := client.OpenSession(context.Background(),
					WithConversation("c1"),
					WithCapture(captures[i]),
				)
				if err == nil {
					sessions[i] = session
				}
			}()
		}
		wg.Wait()

		for _, session := range sessions {
			if session != nil {
				_ = session.Close()
			}
		}
		for i, capture := range captures {
			if capture.running() {
				t.Fatalf("capture %d left running after its session was replaced", i)
			}
		}
	}
}

func TestWebsocketEndpointSchemes(t *testing.T) {
	endpoint, err := websocketEndpoint("https://chat.example.com/api/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if endpoint != "wss://chat.example.com/api/voice/ws/voice-chat" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}

	if _, err := websocketEndpoint("ftp://chat.example.com"); err == nil {
		t.Fatal("expected unsupported scheme to be rejected")
	}
}
