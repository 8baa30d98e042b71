package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brendalabs/brenda/internal/auth"
	"github.com/brendalabs/brenda/internal/token"
)

// KeyBroker acquires the ephemeral realtime key for a connect attempt:
// mint a session token, then exchange it.
type KeyBroker interface {
	MintEphemeralKey(ctx context.Context, userID, model, voice, instructions string) (auth.ExchangeResult, error)
}

// LocalBroker runs the mint and exchange in-process. Used when the client
// lives in the same binary as the services (tests, tooling).
type LocalBroker struct {
	Minter    *token.Minter
	Exchanger *auth.Exchanger
}

func (b *LocalBroker) MintEphemeralKey(ctx context.Context, userID, model, voice, instructions string) (auth.ExchangeResult, error) {
	sessionToken, err := b.Minter.Mint(userID)
	if err != nil {
		return auth.ExchangeResult{}, fmt.Errorf("mint session token: %w", err)
	}
	return b.Exchanger.Exchange(ctx, auth.ExchangeRequest{
		SessionToken: sessionToken,
		Model:        model,
		Voice:        voice,
		Instructions: instructions,
	})
}

// HTTPBroker performs the two-step handshake against a remote Brenda
// backend: POST /v1/voice/session for the signed token, then
// POST /v1/voice/realtime-key to trade it for the ephemeral key.
type HTTPBroker struct {
	BaseURL string
	Client  *http.Client
}

type mintSessionResponse struct {
	SessionToken string `json:"sessionToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type realtimeKeyResponse struct {
	EphemeralKey string `json:"ephemeralKey"`
	SessionID    string `json:"sessionId"`
	ExpiresAt    int64  `json:"expiresAt"`
	UserID       string `json:"userId"`
}

func (b *HTTPBroker) httpClient() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (b *HTTPBroker) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(b.BaseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("%s status %d: %s", path, res.StatusCode, string(detail))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (b *HTTPBroker) MintEphemeralKey(ctx context.Context, userID, model, voice, instructions string) (auth.ExchangeResult, error) {
	var session mintSessionResponse
	if err := b.postJSON(ctx, "/v1/voice/session", map[string]string{"userId": userID}, &session); err != nil {
		return auth.ExchangeResult{}, err
	}
	if session.SessionToken == "" {
		return auth.ExchangeResult{}, fmt.Errorf("voice session did not return sessionToken")
	}

	var key realtimeKeyResponse
	err := b.postJSON(ctx, "/v1/voice/realtime-key", map[string]string{
		"sessionToken": session.SessionToken,
		"model":        model,
		"voice":        voice,
		"instructions": instructions,
	}, &key)
	if err != nil {
		return auth.ExchangeResult{}, err
	}
	if key.EphemeralKey == "" {
		return auth.ExchangeResult{}, fmt.Errorf("no ephemeralKey returned")
	}
	return auth.ExchangeResult{
		EphemeralKey: key.EphemeralKey,
		SessionID:    key.SessionID,
		ExpiresAt:    key.ExpiresAt,
		UserID:       key.UserID,
	}, nil
}
