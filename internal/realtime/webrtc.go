package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// controlChannelLabel is the data channel the provider exchanges realtime
// control events on.
const controlChannelLabel = "oai-events"

type webrtcTransport struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	eventsCh  chan []byte
	doneCh    chan struct{}
	closeOnce sync.Once
}

// dialWebRTC runs the browser-equivalent connect sequence: peer
// connection with the local audio track, control data channel created
// before the offer, bounded ICE gathering, SDP exchange with the
// ephemeral key, and a wait for the channel to open. On any failure the
// peer connection is closed before returning; nothing leaks across a
// failed attempt.
func dialWebRTC(ctx context.Context, cfg Config, sdp SDPExchanger, ephemeralKey string, track webrtc.TrackLocal) (*webrtcTransport, error) {
	if sdp == nil {
		return nil, errors.New("webrtc transport requires an SDP exchanger")
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &webrtcTransport{
		pc:       pc,
		eventsCh: make(chan []byte, 256),
		doneCh:   make(chan struct{}),
	}

	fail := func(err error) (*webrtcTransport, error) {
		_ = pc.Close()
		return nil, err
	}

	if cfg.OnRemoteTrack != nil {
		pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			cfg.OnRemoteTrack(remote)
		})
	}

	if _, err := pc.AddTrack(track); err != nil {
		return fail(fmt.Errorf("attach local audio track: %w", err))
	}

	dc, err := pc.CreateDataChannel(controlChannelLabel, nil)
	if err != nil {
		return fail(fmt.Errorf("create control channel: %w", err))
	}
	t.dc = dc

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })
	dc.OnClose(func() { t.signalDone() })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case t.eventsCh <- msg.Data:
		case <-t.doneCh:
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			t.signalDone()
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(fmt.Errorf("create SDP offer: %w", err))
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail(fmt.Errorf("set local description: %w", err))
	}

	// Gathering is best-effort: after the timeout we proceed with
	// whatever candidates made it into the SDP.
	select {
	case <-gatherComplete:
	case <-time.After(cfg.ICEGatherTimeout):
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	local := pc.LocalDescription()
	if local == nil || local.SDP == "" {
		return fail(errors.New("missing local SDP offer"))
	}

	answerSDP, err := sdp.ExchangeSDP(ctx, ephemeralKey, cfg.Model, local.SDP)
	if err != nil {
		return fail(fmt.Errorf("SDP exchange: %w", err))
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fail(fmt.Errorf("set remote description: %w", err))
	}

	select {
	case <-opened:
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	return t, nil
}

func (t *webrtcTransport) signalDone() {
	t.closeOnce.Do(func() { close(t.doneCh) })
}

func (t *webrtcTransport) send(v any) error {
	if t.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("control channel not open")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return t.dc.SendText(string(payload))
}

func (t *webrtcTransport) events() <-chan []byte {
	return t.eventsCh
}

func (t *webrtcTransport) done() <-chan struct{} {
	return t.doneCh
}

func (t *webrtcTransport) close() error {
	t.signalDone()
	_ = t.dc.Close()
	return t.pc.Close()
}
