// Package auth implements the ephemeral-key exchange: a minted session
// token is verified and, only if valid, traded for a provider-scoped
// single-use realtime key. The service's own provider credential never
// reaches the caller.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/brendalabs/brenda/internal/openai"
	"github.com/brendalabs/brenda/internal/token"
)

var (
	// ErrMissingToken is a validation failure: the request carried no
	// session token at all.
	ErrMissingToken = errors.New("sessionToken is required")

	// ErrAccessDenied wraps any token verification failure. The wrapped
	// reason is one of the token package's tagged errors.
	ErrAccessDenied = errors.New("access denied")
)

// RealtimeProvider mints provider realtime sessions. Satisfied by
// *openai.Client.
type RealtimeProvider interface {
	CreateRealtimeSession(ctx context.Context, req openai.RealtimeSessionRequest) (openai.RealtimeSession, error)
}

// Defaults are applied when the exchange request leaves a field empty.
type Defaults struct {
	Model         string
	Voice         string
	Instructions  string
	TurnDetection openai.TurnDetection
}

// ExchangeRequest carries the minted token plus optional overrides.
type ExchangeRequest struct {
	SessionToken string
	Model        string
	Voice        string
	Instructions string
}

// ExchangeResult is what the browser gets back: the derived single-use
// key and its expiry, never the long-lived credential.
type ExchangeResult struct {
	EphemeralKey string
	SessionID    string
	ExpiresAt    int64
	UserID       string
}

type Exchanger struct {
	codec    *token.Codec
	provider RealtimeProvider
	defaults Defaults
}

func NewExchanger(codec *token.Codec, provider RealtimeProvider, defaults Defaults) *Exchanger {
	return &Exchanger{codec: codec, provider: provider, defaults: defaults}
}

// Exchange verifies the session token and requests an ephemeral key from
// the provider on the caller's behalf. Verification failures are reported
// before any provider traffic happens.
func (e *Exchanger) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	if req.SessionToken == "" {
		return ExchangeResult{}, ErrMissingToken
	}

	claims, err := e.codec.Verify(req.SessionToken)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}

	model := req.Model
	if model == "" {
		model = e.defaults.Model
	}
	voice := req.Voice
	if voice == "" {
		voice = e.defaults.Voice
	}
	instructions := req.Instructions
	if instructions == "" {
		instructions = e.defaults.Instructions
	}

	sess, err := e.provider.CreateRealtimeSession(ctx, openai.RealtimeSessionRequest{
		Model:         model,
		Voice:         voice,
		Instructions:  instructions,
		TurnDetection: e.defaults.TurnDetection,
	})
	if err != nil {
		return ExchangeResult{}, err
	}

	return ExchangeResult{
		EphemeralKey: sess.ClientSecret,
		SessionID:    sess.SessionID,
		ExpiresAt:    sess.ExpiresAt,
		UserID:       claims.UserID,
	}, nil
}
