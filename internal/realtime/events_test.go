package realtime

import (
	"encoding/json"
	"testing"
)

func TestDecodeAudioDelta(t *testing.T) {
	raw := `{"type":"response.audio.delta","item_id":"item_1","delta":"b2s=","output_index":0,"content_index":0}`
	ev, err := decodeServerEvent([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	delta, ok := ev.(AudioDeltaEvent)
	if !ok {
		t.Fatalf("expected AudioDeltaEvent, got %T", ev)
	}
	if delta.ItemID != "item_1" || delta.Delta != "b2s=" {
		t.Fatalf("unexpected fields: %+v", delta)
	}
}

func TestDecodeAudioDeltaWithoutPayloadIsSkipped(t *testing.T) {
	ev, err := decodeServerEvent([]byte(`{"type":"response.audio.delta","item_id":"item_1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected empty delta to be skipped, got %T", ev)
	}
}

func TestDecodeSpeechStarted(t *testing.T) {
	ev, err := decodeServerEvent([]byte(`{"type":"input_audio_buffer.speech_started","audio_start_ms":120}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := ev.(SpeechStartedEvent); !ok {
		t.Fatalf("expected SpeechStartedEvent, got %T", ev)
	}
}

func TestDecodeTranscripts(t *testing.T) {
	ev, err := decodeServerEvent([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello there"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	caller, ok := ev.(CallerTranscriptEvent)
	if !ok || caller.Text != "hello there" {
		t.Fatalf("caller transcript: %T %+v", ev, ev)
	}

	ev, err = decodeServerEvent([]byte(`{"type":"response.audio_transcript.done","transcript":"hi, ready to begin?"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assistant, ok := ev.(AssistantTranscriptEvent)
	if !ok || assistant.Text != "hi, ready to begin?" {
		t.Fatalf("assistant transcript: %T %+v", ev, ev)
	}
}

func TestDecodeNotedAllowList(t *testing.T) {
	for _, typ := range []string{
		"error", "response.content.done", "rate_limits.updated", "response.done",
		"input_audio_buffer.committed", "input_audio_buffer.speech_stopped", "session.created",
	} {
		raw, _ := json.Marshal(map[string]string{"type": typ})
		ev, err := decodeServerEvent(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", typ, err)
		}
		noted, ok := ev.(NotedEvent)
		if !ok {
			t.Fatalf("%s: expected NotedEvent, got %T", typ, ev)
		}
		if noted.Type != typ {
			t.Fatalf("noted type mismatch: %q vs %q", noted.Type, typ)
		}
	}
}

func TestDecodeUnknownTypeIgnored(t *testing.T) {
	ev, err := decodeServerEvent([]byte(`{"type":"response.output_item.added","item":{}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected unknown type to be ignored, got %T", ev)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := decodeServerEvent([]byte(`{broken`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestSessionUpdateWireShape(t *testing.T) {
	upd := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			TurnDetection:           turnDetection{Type: "server_vad"},
			InputAudioFormat:        "g711_ulaw",
			InputAudioTranscription: transcription{Model: "whisper-1"},
			OutputAudioFormat:       "g711_ulaw",
			Voice:                   "alloy",
			Instructions:            "be brief",
			Modalities:              []string{"text", "audio"},
			Temperature:             0.8,
		},
	}
	b, err := json.Marshal(upd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != "session.update" {
		t.Fatalf("type: %v", m["type"])
	}
	sess := m["session"].(map[string]interface{})
	if sess["turn_detection"].(map[string]interface{})["type"] != "server_vad" {
		t.Fatalf("turn_detection: %v", sess["turn_detection"])
	}
	if sess["input_audio_format"] != "g711_ulaw" || sess["output_audio_format"] != "g711_ulaw" {
		t.Fatalf("audio formats: %v", sess)
	}
	if sess["input_audio_transcription"].(map[string]interface{})["model"] != "whisper-1" {
		t.Fatalf("transcription model: %v", sess["input_audio_transcription"])
	}
}

func TestTruncateWireShape(t *testing.T) {
	b, err := json.Marshal(itemTruncate{
		Type:         "conversation.item.truncate",
		ItemID:       "item_9",
		ContentIndex: 0,
		AudioEndMS:   150,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"conversation.item.truncate","item_id":"item_9","content_index":0,"audio_end_ms":150}`
	if string(b) != want {
		t.Fatalf("truncate envelope:\n got %s\nwant %s", b, want)
	}
}
