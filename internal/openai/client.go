// Package openai is a thin HTTP client for the provider endpoints this
// service touches: realtime session minting, SDP exchange, and text
// generation. It is deliberately not a full SDK; only the fields we read
// are modeled.
package openai

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const betaHeader = "realtime=v1"

// maxErrorDetail caps how much of an upstream error body is carried in an
// UpstreamError. Provider error pages can be large; callers only need
// enough to diagnose.
const maxErrorDetail = 1500

// UpstreamError reports a non-2xx provider response. It is never retried
// automatically; the status and truncated body travel up to the caller.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Status, e.Detail)
}

// AsUpstream unwraps err to an UpstreamError if one is in the chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// Client talks to one provider deployment with one long-lived API key.
// The key never leaves this process; browsers only ever see the derived
// ephemeral keys minted through CreateRealtimeSession.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) url(path string) string {
	base := c.baseURL
	if base == "" {
		base = "https://api.openai.com"
	}
	return base + path
}

func upstreamFromResponse(res *http.Response) *UpstreamError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorDetail))
	return &UpstreamError{Status: res.StatusCode, Detail: string(body)}
}
