package voice

import (
	streaming "github.com/ultrachat/ultrachat-go/core"
)

// Wire protocol for the voice-chat websocket. The client sends exactly one
// config message before any audio, then binary PCM16 frames while the user
// speaks, end_speech once the utterance is over, and stop to abandon an
// in-flight response. The server answers with typed JSON messages carrying
// transcripts, response tokens and base64 speech audio.
const (
	messageTypeConfig    = "config"
	messageTypeEndSpeech = "end_speech"
	messageTypeStop      = "stop"

	messageTypeReady         = "ready"
	messageTypeTranscription = "transcription"
	messageTypeLLMToken      = "llm_token"
	messageTypeAudio         = "audio"
	messageTypeDone          = "done"
	messageTypeError         = "error"
)

type configMessage struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id,omitempty"`
	ProfileID      string           `json:"profile_id,omitempty"`
	EnableThinking bool             `json:"enable_thinking,omitempty"`
	Tools          []streaming.Tool `json:"tools,omitempty"`
}

type controlMessage struct {
	Type string `json:"type"`
}

var (
	endSpeechMsg = controlMessage{Type: messageTypeEndSpeech}
	stopMsg      = controlMessage{Type: messageTypeStop}
)

// serverMessage is the envelope for everything the server sends. Fields are
// populated per message type; the rest stay zero.
type serverMessage struct {
	Type string `json:"type"`

	// ready
	TTSSampleRate int `json:"tts_sample_rate"`

	// transcription
	Text  string `json:"text"`
	Final bool   `json:"final"`

	// llm_token
	Token string `json:"token"`

	// audio, base64 PCM16 little-endian
	Data string `json:"data"`

	// error
	Message string `json:"message"`
}
