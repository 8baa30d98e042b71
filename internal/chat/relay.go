// Package chat relays text conversations to the provider's generation
// endpoint with the locale persona prepended as the system instruction.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brendalabs/brenda/internal/openai"
	"github.com/brendalabs/brenda/internal/persona"
)

var (
	ErrNoTurns = errors.New("messages[] required")
	ErrBadTurn = errors.New("invalid message")
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one conversation turn. History is kept client-side and sent in
// full with every request; the relay truncates it before forwarding.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextGenerator is satisfied by *openai.Client.
type TextGenerator interface {
	GenerateText(ctx context.Context, model string, input []openai.Message, maxOutputTokens int) (string, error)
}

type Relay struct {
	provider        TextGenerator
	model           string
	maxOutputTokens int
	historyLimit    int
	timeout         time.Duration
}

func NewRelay(provider TextGenerator, model string, maxOutputTokens, historyLimit int, timeout time.Duration) *Relay {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Relay{
		provider:        provider,
		model:           model,
		maxOutputTokens: maxOutputTokens,
		historyLimit:    historyLimit,
		timeout:         timeout,
	}
}

// Reply validates the turn list, prepends the locale persona, and forwards
// to the provider. Validation failures never reach the provider. There are
// no retries; a provider or network failure is returned as-is for the
// caller to classify.
func (r *Relay) Reply(ctx context.Context, localeVariant string, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", ErrNoTurns
	}
	for i, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return "", fmt.Errorf("%w: message %d has role %q", ErrBadTurn, i, t.Role)
		}
		if t.Content == "" {
			return "", fmt.Errorf("%w: message %d has empty content", ErrBadTurn, i)
		}
	}

	if len(turns) > r.historyLimit {
		turns = turns[len(turns)-r.historyLimit:]
	}

	input := make([]openai.Message, 0, len(turns)+1)
	input = append(input, openai.Message{
		Role:    "system",
		Content: persona.Resolve(localeVariant).Chat,
	})
	for _, t := range turns {
		input = append(input, openai.Message{Role: t.Role, Content: t.Content})
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reply, err := r.provider.GenerateText(ctx, r.model, input, r.maxOutputTokens)
	if err != nil {
		return "", fmt.Errorf("chat relay: %w", err)
	}
	return reply, nil
}
