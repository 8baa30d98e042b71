// Package realtime drives a live voice session against the provider's
// realtime API: credential acquisition, transport setup (WebRTC or
// WebSocket), the control-event loop with response de-duplication, and
// idempotent teardown. One Client owns at most one live session.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/brendalabs/brenda/internal/persona"
)

// Status is the connection state visible to the UI layer.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusSpeaking     Status = "speaking"
	StatusError        Status = "error"
)

// Event is the closed set of notifications delivered to the sink: status
// transitions, transcript fragments, input levels, and errors. One
// dispatch surface instead of independent callback slots.
type Event interface {
	realtimeEvent()
}

// StatusChanged reports a connection state transition.
type StatusChanged struct {
	Status Status
}

// Transcript carries speech-to-text output: a completed user utterance
// (Final) or an incremental assistant fragment.
type Transcript struct {
	Role  string
	Text  string
	Final bool
}

// AudioLevel reports the local input level in [0,1]. Emitted only when
// the audio source implements LevelMeter.
type AudioLevel struct {
	Level float64
}

// SessionError surfaces a failure. Fatal connect failures are followed by
// teardown; provider-reported errors leave the session up.
type SessionError struct {
	Err error
}

func (StatusChanged) realtimeEvent() {}
func (Transcript) realtimeEvent()    {}
func (AudioLevel) realtimeEvent()    {}
func (SessionError) realtimeEvent()  {}

// Sink receives all session events. Calls are serialized by the client.
type Sink func(Event)

// TransportKind selects how the realtime session is carried.
type TransportKind string

const (
	// TransportWebRTC is the browser-equivalent path: peer connection,
	// local audio track, "oai-events" data channel, SDP over HTTP.
	TransportWebRTC TransportKind = "webrtc"

	// TransportWebSocket carries the same control events over the
	// provider's websocket endpoint. No audio track is attached; callers
	// without microphone capture (servers, tests) use this.
	TransportWebSocket TransportKind = "websocket"
)

// SDPExchanger posts a local offer and returns the provider's answer.
// Satisfied by *openai.Client.
type SDPExchanger interface {
	ExchangeSDP(ctx context.Context, ephemeralKey, model, offerSDP string) (string, error)
}

// Config holds per-client session settings. Zero durations fall back to
// production defaults.
type Config struct {
	Model         string
	Voice         string
	LocaleVariant string
	UserID        string

	// PreferredLanguages are the caller's language tags, most preferred
	// first. When LocaleVariant is empty the persona variant is detected
	// from them.
	PreferredLanguages []string

	Transport TransportKind

	// Audio supplies the local audio track in WebRTC mode. A failure to
	// acquire it (the mic-permission-denied analog) is fatal to connect.
	Audio AudioSource

	// OnRemoteTrack, when set, receives the provider's inbound audio
	// track. Rendering it is the environment's job.
	OnRemoteTrack func(*webrtc.TrackRemote)

	ICEServers []webrtc.ICEServer

	ProviderBaseURL string

	ResponseCooldown   time.Duration
	ICEGatherTimeout   time.Duration
	VADThreshold       float64
	VADPrefixPadding   time.Duration
	VADSilenceDuration time.Duration
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportWebRTC
	}
	if c.LocaleVariant == "" {
		c.LocaleVariant = string(persona.Detect(c.PreferredLanguages))
	}
	if c.ResponseCooldown == 0 {
		c.ResponseCooldown = 1200 * time.Millisecond
	}
	if c.ICEGatherTimeout <= 0 {
		c.ICEGatherTimeout = 1500 * time.Millisecond
	}
	if c.VADThreshold == 0 {
		c.VADThreshold = 0.9
	}
	if c.VADPrefixPadding == 0 {
		c.VADPrefixPadding = 200 * time.Millisecond
	}
	if c.VADSilenceDuration == 0 {
		c.VADSilenceDuration = 900 * time.Millisecond
	}
	if len(c.ICEServers) == 0 {
		c.ICEServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
}

// transport is the live control channel, regardless of carrier.
type transport interface {
	send(v any) error
	events() <-chan []byte
	done() <-chan struct{}
	close() error
}

// Client is the realtime session state machine. Connect and Disconnect
// are the only mutators; everything else observes.
type Client struct {
	cfg    Config
	broker KeyBroker
	sdp    SDPExchanger
	sink   Sink
	gate   *responseGate

	mu     sync.Mutex
	status Status
	tr     transport
}

// NewClient builds a disconnected client. sink must not be nil; sdp may
// be nil for websocket-only use.
func NewClient(cfg Config, broker KeyBroker, sdp SDPExchanger, sink Sink) *Client {
	cfg.applyDefaults()
	if sink == nil {
		sink = func(Event) {}
	}
	return &Client{
		cfg:    cfg,
		broker: broker,
		sdp:    sdp,
		sink:   sink,
		gate:   newResponseGate(cfg.ResponseCooldown),
		status: StatusDisconnected,
	}
}

// Status reports the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect establishes the realtime session. It is a no-op when a session
// is already live or mid-connection. Any failure triggers full teardown
// before the error is surfaced; no partial state survives a failed
// attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusConnecting || c.status == StatusConnected || c.status == StatusSpeaking {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusConnecting
	c.mu.Unlock()
	c.sink(StatusChanged{Status: StatusConnecting})

	tr, err := c.establish(ctx)
	if err != nil {
		c.sink(SessionError{Err: err})
		c.sink(StatusChanged{Status: StatusError})
		c.Disconnect()
		return err
	}

	c.mu.Lock()
	if c.status != StatusConnecting {
		// Disconnect won the race while the transport was being
		// established; the session must stay down.
		c.mu.Unlock()
		_ = tr.close()
		c.stopAudio()
		return errors.New("connect aborted: disconnected during establishment")
	}
	c.tr = tr
	c.status = StatusConnected
	c.mu.Unlock()
	c.sink(StatusChanged{Status: StatusConnected})

	go c.readLoop(tr)
	if meter, ok := c.cfg.Audio.(LevelMeter); ok {
		go c.forwardLevels(tr, meter.Levels())
	}
	return nil
}

func (c *Client) forwardLevels(tr transport, levels <-chan float64) {
	for {
		select {
		case <-tr.done():
			return
		case lv, ok := <-levels:
			if !ok {
				return
			}
			c.sink(AudioLevel{Level: lv})
		}
	}
}

func (c *Client) establish(ctx context.Context) (transport, error) {
	var track webrtc.TrackLocal
	if c.cfg.Transport == TransportWebRTC {
		if c.cfg.Audio == nil {
			return nil, errors.New("webrtc transport requires an audio source")
		}
		t, err := c.cfg.Audio.Track(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire local audio: %w", err)
		}
		track = t
	}

	instructions := c.voiceInstructions()
	creds, err := c.broker.MintEphemeralKey(ctx, c.cfg.UserID, c.cfg.Model, c.cfg.Voice, instructions)
	if err != nil {
		c.stopAudio()
		return nil, fmt.Errorf("mint ephemeral key: %w", err)
	}

	var tr transport
	switch c.cfg.Transport {
	case TransportWebRTC:
		tr, err = dialWebRTC(ctx, c.cfg, c.sdp, creds.EphemeralKey, track)
	case TransportWebSocket:
		tr, err = dialWebSocket(ctx, c.cfg.ProviderBaseURL, c.cfg.Model, creds.EphemeralKey)
	default:
		err = fmt.Errorf("unknown transport %q", c.cfg.Transport)
	}
	if err != nil {
		c.stopAudio()
		return nil, err
	}

	if err := tr.send(c.sessionUpdate(instructions)); err != nil {
		_ = tr.close()
		c.stopAudio()
		return nil, fmt.Errorf("send session.update: %w", err)
	}
	return tr, nil
}

func (c *Client) sessionUpdate(instructions string) SessionUpdate {
	return SessionUpdate{
		EventID: newEventID(),
		Type:    TypeSessionUpdate,
		Session: SessionConfig{
			Modalities:              []string{"audio", "text"},
			Instructions:            instructions,
			Voice:                   c.cfg.Voice,
			InputAudioTranscription: &TranscriptionConfig{Model: "whisper-1"},
			TurnDetection: &TurnDetectionConfig{
				Type:              "server_vad",
				Threshold:         c.cfg.VADThreshold,
				PrefixPaddingMS:   c.cfg.VADPrefixPadding.Milliseconds(),
				SilenceDurationMS: c.cfg.VADSilenceDuration.Milliseconds(),
				CreateResponse:    true,
				InterruptResponse: true,
			},
		},
	}
}

func (c *Client) readLoop(tr transport) {
	for {
		select {
		case <-tr.done():
			c.handleTransportDrop(tr)
			return
		case raw := <-tr.events():
			c.handleServerEvent(tr, raw)
		}
	}
}

// handleTransportDrop tears the session down after the carrier failed
// underneath us (remote close, peer connection failure). A drop of a
// transport that is no longer current means Disconnect already ran; the
// teardown then belongs to it, not to us.
func (c *Client) handleTransportDrop(tr transport) {
	c.mu.Lock()
	if c.tr != tr {
		c.mu.Unlock()
		return
	}
	c.tr = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	_ = tr.close()
	c.stopAudio()
	c.gate.reset()
	c.sink(SessionError{Err: errors.New("realtime transport closed")})
	c.sink(StatusChanged{Status: StatusDisconnected})
}

func (c *Client) handleServerEvent(tr transport, raw []byte) {
	parsed, err := ParseServerEvent(raw)
	if err != nil {
		// Unknown or malformed events are skipped; the stream carries
		// many types this client has no use for.
		return
	}

	switch msg := parsed.(type) {
	case InputTranscriptComplete:
		if msg.Transcript != "" {
			c.sink(Transcript{Role: "user", Text: msg.Transcript, Final: true})
		}
	case ResponseCreated:
		id := msg.Response.ID
		if id == "" {
			return
		}
		if !c.gate.admit(id) {
			_ = tr.send(ResponseCancel{
				EventID:    newEventID(),
				Type:       TypeResponseCancel,
				ResponseID: id,
			})
			return
		}
		c.setStatus(StatusSpeaking)
	case AudioTranscriptDelta:
		if msg.Delta != "" {
			c.sink(Transcript{Role: "assistant", Text: msg.Delta})
		}
	case ResponseDone:
		if c.gate.complete(msg.Response.ID) {
			c.setStatus(StatusConnected)
		}
	case ServerError:
		message := msg.Error.Message
		if message == "" {
			message = "realtime error"
		}
		// Provider-reported errors are non-fatal: the session stays up
		// and a later response returns the status to connected.
		c.sink(SessionError{Err: errors.New(message)})
		c.setStatus(StatusError)
	}
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s || c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()
	c.sink(StatusChanged{Status: s})
}

func (c *Client) stopAudio() {
	if c.cfg.Audio != nil {
		_ = c.cfg.Audio.Stop()
	}
}

// Disconnect tears the session down completely: control channel, carrier,
// local audio, and dedup state. Idempotent; always leaves the client
// disconnected, including when called before any Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if tr != nil {
		_ = tr.close()
	}
	c.stopAudio()
	c.gate.reset()
	c.sink(StatusChanged{Status: StatusDisconnected})
}

func (c *Client) voiceInstructions() string {
	return persona.Resolve(c.cfg.LocaleVariant).Voice
}
