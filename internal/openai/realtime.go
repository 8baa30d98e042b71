package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TurnDetection is the server-VAD policy sent when minting a realtime
// session. The defaults used by this service bias toward fewer, more
// deliberate turns: a high threshold and a long silence window cost some
// latency but avoid false-trigger interruptions.
type TurnDetection struct {
	Threshold       float64
	PrefixPadding   time.Duration
	SilenceDuration time.Duration
}

// RealtimeSessionRequest configures a provider realtime session.
type RealtimeSessionRequest struct {
	Model         string
	Voice         string
	Instructions  string
	TurnDetection TurnDetection
}

// RealtimeSession is the subset of the provider's session object the
// service forwards to the browser: the single-use client secret, the
// session id, and the secret's expiry (epoch seconds).
type RealtimeSession struct {
	ClientSecret string
	SessionID    string
	ExpiresAt    int64
}

type turnDetectionBody struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int64   `json:"prefix_padding_ms"`
	SilenceDurationMS int64   `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

type realtimeSessionBody struct {
	Model             string            `json:"model"`
	Modalities        []string          `json:"modalities"`
	Voice             string            `json:"voice"`
	InputAudioFormat  string            `json:"input_audio_format"`
	OutputAudioFormat string            `json:"output_audio_format"`
	Instructions      string            `json:"instructions"`
	TurnDetection     turnDetectionBody `json:"turn_detection"`
}

type realtimeSessionResult struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// CreateRealtimeSession asks the provider for a new realtime session and
// returns its single-use client secret. Audio format and auto-response
// behavior are fixed policy, not caller-configurable.
func (c *Client) CreateRealtimeSession(ctx context.Context, req RealtimeSessionRequest) (RealtimeSession, error) {
	body := realtimeSessionBody{
		Model:             req.Model,
		Modalities:        []string{"audio", "text"},
		Voice:             req.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Instructions:      req.Instructions,
		TurnDetection: turnDetectionBody{
			Type:              "server_vad",
			Threshold:         req.TurnDetection.Threshold,
			PrefixPaddingMS:   req.TurnDetection.PrefixPadding.Milliseconds(),
			SilenceDurationMS: req.TurnDetection.SilenceDuration.Milliseconds(),
			CreateResponse:    true,
			InterruptResponse: true,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return RealtimeSession{}, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/v1/realtime/sessions"), bytes.NewReader(payload))
	if err != nil {
		return RealtimeSession{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("OpenAI-Beta", betaHeader)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return RealtimeSession{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return RealtimeSession{}, upstreamFromResponse(res)
	}

	var result realtimeSessionResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return RealtimeSession{}, fmt.Errorf("decode session response: %w", err)
	}
	if result.ClientSecret.Value == "" {
		return RealtimeSession{}, &UpstreamError{Status: res.StatusCode, Detail: "no client_secret in session response"}
	}

	return RealtimeSession{
		ClientSecret: result.ClientSecret.Value,
		SessionID:    result.ID,
		ExpiresAt:    result.ClientSecret.ExpiresAt,
	}, nil
}

// ExchangeSDP posts a local SDP offer to the realtime endpoint using the
// ephemeral key as bearer credential and returns the provider's answer.
// This is the one provider call made with a derived key rather than the
// service credential.
func (c *Client) ExchangeSDP(ctx context.Context, ephemeralKey, model, offerSDP string) (string, error) {
	u := c.url("/v1/realtime") + "?model=" + url.QueryEscape(model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader([]byte(offerSDP)))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+ephemeralKey)
	httpReq.Header.Set("Content-Type", "application/sdp")
	httpReq.Header.Set("OpenAI-Beta", betaHeader)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", upstreamFromResponse(res)
	}

	answer, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return string(answer), nil
}
