package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ultrachat/ultrachat-go/core/audio"
	"github.com/ultrachat/ultrachat-go/core/events"
	"github.com/ultrachat/ultrachat-go/core/vad"
	"go.opentelemetry.io/otel/attribute"
)

const defaultTTSSampleRate = 24000

// State is the lifecycle position of a voice session.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateConfiguring State = "configuring"
	StateListening   State = "listening"
	StateProcessing  State = "processing"
	StateSpeaking    State = "speaking"
	StateError       State = "error"
	StateClosed      State = "closed"
)

// Capture feeds microphone audio to the session while it is listening.
type Capture interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// Session is one voice conversation over a websocket. It owns its
// connection, capture pipeline and playback cursor; closing it releases
// all three without touching other sessions.
type Session struct {
	client *Client
	key    string

	options   SessionOptions
	scheduler *Scheduler

	conn    *websocket.Conn
	writeMu sync.Mutex

	// captureMu serializes claiming the microphone against Close releasing
	// it, so a connect overtaken by a replacement cannot leave capture
	// running with no owner.
	captureMu sync.Mutex

	mu            sync.Mutex
	state         State
	ttsSampleRate int
	responseText  strings.Builder
	err           error

	readyCh chan error

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newSession(client *Client, options SessionOptions) *Session {
	session := &Session{
		client:        client,
		key:           options.ConversationID,
		options:       options,
		state:         StateIdle,
		ttsSampleRate: options.TTSSampleRate,
		readyCh:       make(chan error, 1),
	}
	if options.Output != nil {
		session.scheduler = NewScheduler(options.Output)
	}
	return session
}

// connect dials the websocket, sends the single config message and waits
// for the server's ready confirmation before capture starts, so no audio
// is ever sent ahead of the config.
func (s *Session) connect(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "connect voice session")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", s.key))

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		cancel()
		if state == StateClosed {
			return fmt.Errorf("session closed")
		}
		return fmt.Errorf("session already started")
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.setState(StateConnecting)
	conn, _, err := s.client.dialer.DialContext(ctx, s.client.endpoint, nil)
	if err != nil {
		err = fmt.Errorf("failed to open voice websocket: %w", err)
		span.RecordError(err)
		s.fail(err)
		return err
	}

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()

	// A replacement may have closed the session while the dial was in
	// flight; the closer saw no connection yet, so this one is ours to
	// drop.
	if s.State() == StateClosed {
		conn.Close()
		return fmt.Errorf("session closed")
	}

	s.setState(StateConfiguring)
	if err := s.writeJSON(configMessage{
		Type:           messageTypeConfig,
		ConversationID: s.options.ConversationID,
		ProfileID:      s.options.ProfileID,
		EnableThinking: s.options.EnableThinking,
		Tools:          s.options.Tools,
	}); err != nil {
		err = fmt.Errorf("failed to send config: %w", err)
		span.RecordError(err)
		conn.Close()
		s.fail(err)
		return err
	}

	go s.readAndProcessMessages(sessionCtx, conn)

	select {
	case err := <-s.readyCh:
		if err != nil {
			span.RecordError(err)
			conn.Close()
			s.fail(err)
			return err
		}
	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	}

	s.mu.Lock()
	span.SetAttributes(attribute.Int("tts.sample_rate", s.ttsSampleRate))
	s.mu.Unlock()

	// The microphone is claimed under captureMu so a Close racing the
	// handshake either runs first (observed here) or blocks until capture
	// is started and then releases it.
	s.captureMu.Lock()
	if s.State() == StateClosed {
		s.captureMu.Unlock()
		return fmt.Errorf("session closed")
	}
	s.setState(StateListening)
	captureErr := s.startCapture(sessionCtx)
	s.captureMu.Unlock()

	if captureErr != nil {
		span.RecordError(captureErr)
		_ = s.Close()
		return captureErr
	}
	return nil
}

// startCapture wires the boundary detector and the microphone source.
// Captured chunks are fanned out to the server and the detector; detected
// ends of speech close the utterance automatically.
func (s *Session) startCapture(ctx context.Context) error {
	if s.options.Detector != nil {
		if err := s.options.Detector.Start(ctx,
			vad.WithSpeechStartedCallback(func() {
				s.emit(events.NewUserSpeechStarted())
			}),
			vad.WithSpeechEndedCallback(func() {
				if err := s.EndSpeech(nil); err != nil {
					logger.Warn("failed to close utterance on detected boundary", "error", err)
				}
			}),
		); err != nil {
			return fmt.Errorf("failed to start boundary detector: %w", err)
		}
	}

	if s.options.Capture != nil {
		if err := s.options.Capture.StartCapture(ctx, func(chunk []byte) {
			if err := s.SendAudio(chunk); err != nil {
				return
			}
			if s.options.Detector != nil {
				_ = s.options.Detector.SendAudio(chunk)
			}
		}); err != nil {
			return fmt.Errorf("failed to start capture: %w", err)
		}
	}
	return nil
}

// SendAudio forwards one PCM16 little-endian chunk to the server. Chunks
// are only accepted while the session is listening; audio produced during
// processing or playback is dropped at the source.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateListening {
		return fmt.Errorf("session not listening")
	}

	return s.writeBinary(chunk)
}

// EndSpeech closes the current utterance. Any remaining audio goes out
// first so the server transcribes the complete utterance, then the
// end_speech control marks the boundary and the session waits for the
// response.
func (s *Session) EndSpeech(finalChunk []byte) error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return fmt.Errorf("session not listening")
	}
	s.mu.Unlock()

	if len(finalChunk) > 0 {
		if err := s.writeBinary(finalChunk); err != nil {
			return err
		}
	}
	if err := s.writeJSON(endSpeechMsg); err != nil {
		return fmt.Errorf("failed to send end of speech: %w", err)
	}

	s.emit(events.NewUserSpeechEnded())
	s.setState(StateProcessing)
	return nil
}

// Stop asks the server to abandon the in-flight response and drops any
// audio not yet scheduled. Best effort: the session returns to listening
// regardless of what the server does with the request.
func (s *Session) Stop() error {
	if err := s.writeJSON(stopMsg); err != nil {
		return fmt.Errorf("failed to send stop: %w", err)
	}

	if s.scheduler != nil {
		s.scheduler.Reset()
	}
	s.mu.Lock()
	s.responseText.Reset()
	s.mu.Unlock()

	s.setState(StateListening)
	return nil
}

// Err reports the failure that moved the session into the error state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State reports the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears the session down: stop is attempted best effort, capture and
// detection are released before the connection so no audio is written to a
// dead socket, then the websocket closes. Closed is terminal; Close is
// safe to call more than once.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		_ = s.writeJSON(stopMsg)

		// Closed is recorded before capture is released: a connect still
		// in flight checks the state under captureMu and backs off
		// instead of re-claiming the microphone.
		s.setState(StateClosed)

		s.captureMu.Lock()
		if s.options.Capture != nil {
			_ = s.options.Capture.StopCapture()
		}
		if s.options.Detector != nil {
			_ = s.options.Detector.Close()
		}
		s.captureMu.Unlock()

		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		s.writeMu.Lock()
		if s.conn != nil {
			closeErr = s.conn.Close()
			s.conn = nil
		}
		s.writeMu.Unlock()

		s.client.releaseSession(s.key, s)
	})
	return closeErr
}

func (s *Session) readAndProcessMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			err = fmt.Errorf("voice websocket closed: %w", err)
			s.signalReady(err)
			s.mu.Lock()
			terminal := s.state == StateClosed
			s.mu.Unlock()
			if !terminal && ctx.Err() == nil {
				s.fail(err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		s.processMessage(msg)
	}
}

func (s *Session) processMessage(msg []byte) {
	var parsed serverMessage
	if err := json.Unmarshal(msg, &parsed); err != nil {
		logger.Warn("dropping unparseable voice message", "error", err)
		return
	}

	switch parsed.Type {
	case messageTypeReady:
		s.mu.Lock()
		if parsed.TTSSampleRate > 0 {
			s.ttsSampleRate = parsed.TTSSampleRate
		}
		s.mu.Unlock()
		s.signalReady(nil)

	case messageTypeTranscription:
		if parsed.Final {
			s.emit(events.NewUserTranscriptFinal(parsed.Text))
		} else {
			s.emit(events.NewUserTranscriptInterimUpdated(parsed.Text))
		}

	case messageTypeLLMToken:
		s.mu.Lock()
		s.responseText.WriteString(parsed.Token)
		s.mu.Unlock()
		s.emit(events.NewAssistantResponseSegment(parsed.Token))

	case messageTypeAudio:
		raw, err := audio.DecodeBase64(parsed.Data)
		if err != nil {
			logger.Warn("dropping undecodable audio message", "error", err)
			return
		}
		s.mu.Lock()
		sampleRate := s.ttsSampleRate
		s.mu.Unlock()

		s.setState(StateSpeaking)
		if s.scheduler != nil {
			if _, err := s.scheduler.Enqueue(audio.Frame{
				Samples:    audio.BytesToPCM16(raw),
				SampleRate: sampleRate,
			}); err != nil {
				logger.Warn("failed to schedule response audio", "error", err)
			}
		}

	case messageTypeDone:
		s.mu.Lock()
		text := s.responseText.String()
		s.responseText.Reset()
		s.mu.Unlock()

		if s.scheduler != nil {
			s.scheduler.Reset()
		}
		s.setState(StateListening)
		s.emit(events.NewAssistantResponseFinal(s.key, text))

	case messageTypeError:
		message := parsed.Message
		if message == "" {
			message = "voice session error"
		}
		err := errors.New(message)
		s.signalReady(err)
		s.fail(err)
		s.emit(events.NewAssistantResponseFailed(message))
	}
}

// setState records a transition and notifies observers. Closed is terminal
// so late transitions from the read goroutine are dropped.
func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	if s.options.StateCallback != nil {
		s.options.StateCallback(state)
	}
	s.emit(events.NewVoiceSessionUpdated(string(state)))
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.setState(StateError)
}

func (s *Session) emit(event events.Event) {
	if s.options.EventCallback != nil {
		s.options.EventCallback(event)
	}
}

// signalReady delivers the connect outcome at most once.
func (s *Session) signalReady(err error) {
	select {
	case s.readyCh <- err:
	default:
	}
}

func (s *Session) writeJSON(msg any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

func (s *Session) writeBinary(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to write audio to websocket: %w", err)
	}
	return nil
}
