// Package realtime is the client for the hosted speech-to-speech model's
// websocket API: session configuration, audio append, response truncation,
// and a typed view of the subset of server events the bridge acts on.
package realtime

import (
	"encoding/json"
	"fmt"
)

// ServerEvent is the tagged union of model events the bridge consumes.
type ServerEvent interface {
	serverEvent() string
}

// AudioDeltaEvent carries one chunk of synthesized response audio.
type AudioDeltaEvent struct {
	ItemID string
	Delta  string
}

func (AudioDeltaEvent) serverEvent() string { return "response.audio.delta" }

// SpeechStartedEvent fires when the model's voice-activity detector hears
// the caller start talking; it is the bridge's barge-in signal.
type SpeechStartedEvent struct{}

func (SpeechStartedEvent) serverEvent() string { return "input_audio_buffer.speech_started" }

// CallerTranscriptEvent is the completed transcription of one caller
// utterance.
type CallerTranscriptEvent struct {
	Text string
}

func (CallerTranscriptEvent) serverEvent() string {
	return "conversation.item.input_audio_transcription.completed"
}

// AssistantTranscriptEvent is the completed transcript of one assistant
// response.
type AssistantTranscriptEvent struct {
	Text string
}

func (AssistantTranscriptEvent) serverEvent() string { return "response.audio_transcript.done" }

// NotedEvent is an allow-listed event type surfaced for logging only; it
// has no effect on call state.
type NotedEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e NotedEvent) serverEvent() string { return e.Type }

// notedTypes is the observability allow-list: these model events are worth
// a log line but carry no state transition.
var notedTypes = map[string]struct{}{
	"error":                             {},
	"response.content.done":             {},
	"rate_limits.updated":               {},
	"response.done":                     {},
	"input_audio_buffer.committed":      {},
	"input_audio_buffer.speech_stopped": {},
	"session.created":                   {},
}

// decodeServerEvent parses one model frame. It returns (nil, nil) for
// event types outside the bridge's interest; those are ignored without
// error per the adapter contract.
func decodeServerEvent(data []byte) (ServerEvent, error) {
	var head struct {
		Type       string `json:"type"`
		ItemID     string `json:"item_id"`
		Delta      string `json:"delta"`
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode model event: %w", err)
	}
	switch head.Type {
	case "response.audio.delta":
		if head.Delta == "" {
			return nil, nil
		}
		return AudioDeltaEvent{ItemID: head.ItemID, Delta: head.Delta}, nil
	case "input_audio_buffer.speech_started":
		return SpeechStartedEvent{}, nil
	case "conversation.item.input_audio_transcription.completed":
		return CallerTranscriptEvent{Text: head.Transcript}, nil
	case "response.audio_transcript.done":
		return AssistantTranscriptEvent{Text: head.Transcript}, nil
	}
	if _, ok := notedTypes[head.Type]; ok {
		return NotedEvent{Type: head.Type, Raw: json.RawMessage(data)}, nil
	}
	return nil, nil
}

// Command envelopes sent to the model.

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	TurnDetection           turnDetection `json:"turn_detection"`
	InputAudioFormat        string        `json:"input_audio_format"`
	InputAudioTranscription transcription `json:"input_audio_transcription"`
	OutputAudioFormat       string        `json:"output_audio_format"`
	Voice                   string        `json:"voice"`
	Instructions            string        `json:"instructions"`
	Modalities              []string      `json:"modalities"`
	Temperature             float64       `json:"temperature"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type transcription struct {
	Model string `json:"model"`
}

type itemCreate struct {
	Type string   `json:"type"`
	Item convItem `json:"item"`
}

type convItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreate struct {
	Type string `json:"type"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type itemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int64  `json:"audio_end_ms"`
}
