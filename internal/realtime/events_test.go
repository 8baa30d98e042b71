package realtime

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseServerEventVariants(t *testing.T) {
	created, err := ParseServerEvent([]byte(`{"type":"response.created","response":{"id":"resp_1"}}`))
	if err != nil {
		t.Fatalf("parse response.created: %v", err)
	}
	if msg, ok := created.(ResponseCreated); !ok || msg.Response.ID != "resp_1" {
		t.Fatalf("response.created parsed as %#v", created)
	}

	done, err := ParseServerEvent([]byte(`{"type":"response.done","response":{"id":"resp_1"}}`))
	if err != nil {
		t.Fatalf("parse response.done: %v", err)
	}
	if msg, ok := done.(ResponseDone); !ok || msg.Response.ID != "resp_1" {
		t.Fatalf("response.done parsed as %#v", done)
	}

	delta, err := ParseServerEvent([]byte(`{"type":"response.audio_transcript.delta","delta":"hel"}`))
	if err != nil {
		t.Fatalf("parse delta: %v", err)
	}
	if msg, ok := delta.(AudioTranscriptDelta); !ok || msg.Delta != "hel" {
		t.Fatalf("delta parsed as %#v", delta)
	}

	tr, err := ParseServerEvent([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hi brenda"}`))
	if err != nil {
		t.Fatalf("parse transcript: %v", err)
	}
	if msg, ok := tr.(InputTranscriptComplete); !ok || msg.Transcript != "hi brenda" {
		t.Fatalf("transcript parsed as %#v", tr)
	}

	se, err := ParseServerEvent([]byte(`{"type":"error","error":{"message":"bad"}}`))
	if err != nil {
		t.Fatalf("parse error event: %v", err)
	}
	if msg, ok := se.(ServerError); !ok || msg.Error.Message != "bad" {
		t.Fatalf("error event parsed as %#v", se)
	}
}

func TestParseServerEventUnhandled(t *testing.T) {
	_, err := ParseServerEvent([]byte(`{"type":"rate_limits.updated"}`))
	if !errors.Is(err, ErrUnhandledType) {
		t.Fatalf("error = %v, want ErrUnhandledType", err)
	}
}

func TestParseServerEventInvalidEnvelope(t *testing.T) {
	if _, err := ParseServerEvent([]byte(`{`)); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestSessionUpdateWireShape(t *testing.T) {
	upd := SessionUpdate{
		EventID: "evt_1",
		Type:    TypeSessionUpdate,
		Session: SessionConfig{
			Modalities:              []string{"audio", "text"},
			Instructions:            "speak",
			Voice:                   "alloy",
			InputAudioTranscription: &TranscriptionConfig{Model: "whisper-1"},
			TurnDetection: &TurnDetectionConfig{
				Type:              "server_vad",
				Threshold:         0.9,
				PrefixPaddingMS:   200,
				SilenceDurationMS: 900,
				CreateResponse:    true,
				InterruptResponse: true,
			},
		},
	}
	raw, err := json.Marshal(upd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "session.update" {
		t.Fatalf("type = %v", decoded["type"])
	}
	sess, _ := decoded["session"].(map[string]any)
	if sess == nil {
		t.Fatalf("missing session object: %v", decoded)
	}
	td, _ := sess["turn_detection"].(map[string]any)
	if td == nil || td["type"] != "server_vad" || td["silence_duration_ms"] != float64(900) {
		t.Fatalf("turn_detection = %v", td)
	}
	ia, _ := sess["input_audio_transcription"].(map[string]any)
	if ia == nil || ia["model"] != "whisper-1" {
		t.Fatalf("input_audio_transcription = %v", ia)
	}
}

func TestNewEventIDUnique(t *testing.T) {
	a, b := newEventID(), newEventID()
	if a == b || a == "" {
		t.Fatalf("event ids not unique: %q %q", a, b)
	}
}
