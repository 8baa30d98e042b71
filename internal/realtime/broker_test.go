package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brendalabs/brenda/internal/auth"
	"github.com/brendalabs/brenda/internal/config"
	"github.com/brendalabs/brenda/internal/httpapi"
	"github.com/brendalabs/brenda/internal/observability"
	"github.com/brendalabs/brenda/internal/openai"
	"github.com/brendalabs/brenda/internal/token"
)

func TestHTTPBrokerHandshake(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/realtime/sessions" {
			t.Errorf("provider got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "sess_broker",
			"client_secret": map[string]any{
				"value":      "ek_broker",
				"expires_at": 1700000600,
			},
		})
	}))
	defer provider.Close()

	cfg := config.Config{
		OpenAIAPIKey:    "sk-test",
		OpenAIBaseURL:   provider.URL,
		SessionSecret:   "broker-secret",
		SessionTokenTTL: 600 * time.Second,
	}
	client := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	codec := token.NewCodec(cfg.SessionSecret)
	minter := token.NewMinter(codec, cfg.SessionTokenTTL)
	exchanger := auth.NewExchanger(codec, client, auth.Defaults{Model: "m", Voice: "alloy"})
	srv := httpapi.New(cfg, minter, exchanger, nil, observability.NewMetrics("test_realtime_broker"))

	backend := httptest.NewServer(srv.Router())
	defer backend.Close()

	broker := &HTTPBroker{BaseURL: backend.URL}
	result, err := broker.MintEphemeralKey(context.Background(), "user-9", "m", "alloy", "speak")
	if err != nil {
		t.Fatalf("MintEphemeralKey() error = %v", err)
	}
	if result.EphemeralKey != "ek_broker" || result.SessionID != "sess_broker" {
		t.Fatalf("result = %+v", result)
	}
	if result.UserID != "user-9" {
		t.Fatalf("UserID = %q, want claims round-tripped through the token", result.UserID)
	}
}

func TestHTTPBrokerBackendError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusInternalServerError)
	}))
	defer backend.Close()

	broker := &HTTPBroker{BaseURL: backend.URL}
	if _, err := broker.MintEphemeralKey(context.Background(), "", "m", "v", "i"); err == nil {
		t.Fatalf("expected error from failing backend")
	}
}

func TestLocalBrokerHandshake(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "sess_local",
			"client_secret": map[string]any{
				"value":      "ek_local",
				"expires_at": 1700000600,
			},
		})
	}))
	defer provider.Close()

	codec := token.NewCodec("local-secret")
	broker := &LocalBroker{
		Minter:    token.NewMinter(codec, 600*time.Second),
		Exchanger: auth.NewExchanger(codec, openai.NewClient("sk-test", provider.URL), auth.Defaults{Model: "m"}),
	}
	result, err := broker.MintEphemeralKey(context.Background(), "", "m", "alloy", "speak")
	if err != nil {
		t.Fatalf("MintEphemeralKey() error = %v", err)
	}
	if result.EphemeralKey != "ek_local" {
		t.Fatalf("result = %+v", result)
	}
	if result.UserID != token.AnonymousUser {
		t.Fatalf("UserID = %q, want anon default", result.UserID)
	}
}
