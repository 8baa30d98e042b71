package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EventType identifies provider realtime wire events. Only the variants
// this client acts on are modeled; everything else is skipped.
type EventType string

const (
	// Client-sent.
	TypeSessionUpdate  EventType = "session.update"
	TypeResponseCancel EventType = "response.cancel"

	// Server-sent.
	TypeResponseCreated         EventType = "response.created"
	TypeResponseDone            EventType = "response.done"
	TypeAudioTranscriptDelta    EventType = "response.audio_transcript.delta"
	TypeInputTranscriptComplete EventType = "conversation.item.input_audio_transcription.completed"
	TypeServerError             EventType = "error"
)

// ErrUnhandledType marks server events this client does not act on.
var ErrUnhandledType = errors.New("unhandled event type")

type envelope struct {
	Type EventType `json:"type"`
}

// SessionUpdate reconfigures the live session right after the control
// channel opens: persona instructions, voice, transcription model, and the
// server-VAD turn policy.
type SessionUpdate struct {
	EventID string        `json:"event_id,omitempty"`
	Type    EventType     `json:"type"`
	Session SessionConfig `json:"session"`
}

type SessionConfig struct {
	Modalities              []string             `json:"modalities,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetectionConfig `json:"turn_detection,omitempty"`
}

type TranscriptionConfig struct {
	Model string `json:"model"`
}

type TurnDetectionConfig struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int64   `json:"prefix_padding_ms"`
	SilenceDurationMS int64   `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

// ResponseCancel actively cancels a provider response that the dedup gate
// refused to admit.
type ResponseCancel struct {
	EventID    string    `json:"event_id,omitempty"`
	Type       EventType `json:"type"`
	ResponseID string    `json:"response_id"`
}

type ResponseCreated struct {
	Type     EventType `json:"type"`
	Response struct {
		ID string `json:"id"`
	} `json:"response"`
}

type ResponseDone struct {
	Type     EventType `json:"type"`
	Response struct {
		ID string `json:"id"`
	} `json:"response"`
}

type AudioTranscriptDelta struct {
	Type  EventType `json:"type"`
	Delta string    `json:"delta"`
}

type InputTranscriptComplete struct {
	Type       EventType `json:"type"`
	Transcript string    `json:"transcript"`
}

type ServerError struct {
	Type  EventType `json:"type"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ParseServerEvent decodes one raw control-channel payload into its typed
// variant, or ErrUnhandledType for event types this client ignores.
func ParseServerEvent(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeResponseCreated:
		var msg ResponseCreated
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeResponseDone:
		var msg ResponseDone
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAudioTranscriptDelta:
		var msg AudioTranscriptDelta
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeInputTranscriptComplete:
		var msg InputTranscriptComplete
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeServerError:
		var msg ServerError
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnhandledType
	}
}

func newEventID() string {
	return "evt_" + uuid.NewString()
}
