package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brendalabs/brenda/internal/auth"
	"github.com/brendalabs/brenda/internal/chat"
	"github.com/brendalabs/brenda/internal/config"
	"github.com/brendalabs/brenda/internal/observability"
	"github.com/brendalabs/brenda/internal/openai"
	"github.com/brendalabs/brenda/internal/persona"
	"github.com/brendalabs/brenda/internal/token"
)

type testBackend struct {
	server   *Server
	provider *httptest.Server
	codec    *token.Codec
}

// newTestBackend wires the full stack against a stub provider handler.
func newTestBackend(t *testing.T, metricsNS string, providerHandler http.HandlerFunc) *testBackend {
	t.Helper()
	provider := httptest.NewServer(providerHandler)
	t.Cleanup(provider.Close)

	cfg := config.Config{
		OpenAIAPIKey:       "sk-test",
		OpenAIBaseURL:      provider.URL,
		SessionSecret:      "test-secret",
		RealtimeModel:      "test-realtime",
		ChatModel:          "test-chat",
		Voice:              "alloy",
		SessionTokenTTL:    600 * time.Second,
		ChatTimeout:        5 * time.Second,
		MaxOutputTokens:    400,
		HistoryLimit:       20,
		VADThreshold:       0.9,
		VADPrefixPadding:   200 * time.Millisecond,
		VADSilenceDuration: 900 * time.Millisecond,
	}

	client := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	codec := token.NewCodec(cfg.SessionSecret)
	minter := token.NewMinter(codec, cfg.SessionTokenTTL)
	exchanger := auth.NewExchanger(codec, client, auth.Defaults{
		Model:        cfg.RealtimeModel,
		Voice:        cfg.Voice,
		Instructions: "test instructions",
		TurnDetection: openai.TurnDetection{
			Threshold:       cfg.VADThreshold,
			PrefixPadding:   cfg.VADPrefixPadding,
			SilenceDuration: cfg.VADSilenceDuration,
		},
	})
	relay := chat.NewRelay(client, cfg.ChatModel, cfg.MaxOutputTokens, cfg.HistoryLimit, cfg.ChatTimeout)
	metrics := observability.NewMetrics(metricsNS)

	return &testBackend{
		server:   New(cfg, minter, exchanger, relay, metrics),
		provider: provider,
		codec:    codec,
	}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer res.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res, decoded
}

func stubRealtimeSessions(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/realtime/sessions" {
			t.Errorf("provider got %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "sess_1",
			"client_secret": map[string]any{
				"value":      "ek_issued",
				"expires_at": 1700000600,
			},
		})
	}
}

func TestMintSession(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_mint", stubRealtimeSessions(t))
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	res, body := postJSON(t, ts.URL+"/v1/voice/session", map[string]string{"userId": "user-3"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if body["expiresIn"] != float64(600) {
		t.Fatalf("expiresIn = %v, want 600", body["expiresIn"])
	}
	signed, _ := body["sessionToken"].(string)
	claims, err := b.codec.Verify(signed)
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.UserID != "user-3" {
		t.Fatalf("token uid = %q, want user-3", claims.UserID)
	}
}

func TestMintSessionAnonymousAndEmptyBody(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_mint_anon", stubRealtimeSessions(t))
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/v1/voice/session", "application/json", nil)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(res.Body).Decode(&body)
	claims, err := b.codec.Verify(body["sessionToken"].(string))
	if err != nil {
		t.Fatalf("token verify: %v", err)
	}
	if claims.UserID != token.AnonymousUser {
		t.Fatalf("uid = %q, want anon", claims.UserID)
	}
}

func TestMintSessionMissingSecret(t *testing.T) {
	cfg := config.Config{}
	srv := New(cfg, nil, nil, nil, observability.NewMetrics("test_httpapi_mint_nosecret"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, body := postJSON(t, ts.URL+"/v1/voice/session", map[string]string{})
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	if !strings.Contains(body["error"].(string), "VOICE_SESSION_SECRET") {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestRealtimeKeyFlow(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_exchange", stubRealtimeSessions(t))
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	_, mintBody := postJSON(t, ts.URL+"/v1/voice/session", map[string]string{"userId": "user-5"})
	sessionToken, _ := mintBody["sessionToken"].(string)
	if sessionToken == "" {
		t.Fatalf("no sessionToken minted")
	}

	res, body := postJSON(t, ts.URL+"/v1/voice/realtime-key", map[string]string{"sessionToken": sessionToken})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %v)", res.StatusCode, body)
	}
	if body["ephemeralKey"] != "ek_issued" || body["sessionId"] != "sess_1" {
		t.Fatalf("body = %v", body)
	}
	if body["userId"] != "user-5" {
		t.Fatalf("userId = %v, want user-5 (from token claims)", body["userId"])
	}
	if body["expiresAt"] != float64(1700000600) {
		t.Fatalf("expiresAt = %v", body["expiresAt"])
	}
}

func TestRealtimeKeyMissingToken(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_exchange_missing", stubRealtimeSessions(t))
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	res, _ := postJSON(t, ts.URL+"/v1/voice/realtime-key", map[string]string{})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestRealtimeKeyInvalidToken(t *testing.T) {
	provider := stubRealtimeSessions(t)
	b := newTestBackend(t, "test_httpapi_exchange_invalid", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("provider must not be called for an invalid token")
		provider(w, r)
	})
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	res, _ := postJSON(t, ts.URL+"/v1/voice/realtime-key", map[string]string{"sessionToken": "not.a.token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestRealtimeKeyExpiredToken(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_exchange_expired", stubRealtimeSessions(t))
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	issued := time.Now().Add(-time.Hour)
	expired, err := token.NewMinter(b.codec, 600*time.Second).
		WithClock(func() time.Time { return issued }).
		Mint("user-5")
	if err != nil {
		t.Fatalf("mint expired token: %v", err)
	}

	res, body := postJSON(t, ts.URL+"/v1/voice/realtime-key", map[string]string{"sessionToken": expired})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
	if body["error"] != "expired token" {
		t.Fatalf("error = %v, want short expired reason", body["error"])
	}
}

func TestRealtimeKeyUpstreamFailure(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_exchange_upstream", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "provider down", http.StatusInternalServerError)
	})
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	_, mintBody := postJSON(t, ts.URL+"/v1/voice/session", map[string]string{})
	res, body := postJSON(t, ts.URL+"/v1/voice/realtime-key", map[string]string{
		"sessionToken": mintBody["sessionToken"].(string),
	})
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", res.StatusCode)
	}
	if body["status"] != float64(http.StatusInternalServerError) {
		t.Fatalf("upstream status = %v", body["status"])
	}
	if !strings.Contains(body["detail"].(string), "provider down") {
		t.Fatalf("detail = %v", body["detail"])
	}
}

func TestRealtimeKeyMissingProviderKey(t *testing.T) {
	cfg := config.Config{SessionSecret: "s"}
	srv := New(cfg, nil, nil, nil, observability.NewMetrics("test_httpapi_exchange_nokey"))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, body := postJSON(t, ts.URL+"/v1/voice/realtime-key", map[string]string{"sessionToken": "x"})
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	if !strings.Contains(body["error"].(string), "OPENAI_API_KEY") {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestChat(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_chat", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("provider got %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		input, _ := body["input"].([]any)
		if len(input) != 2 {
			t.Errorf("input length = %d, want system + 1 turn", len(input))
		}
		first, _ := input[0].(map[string]any)
		if first["role"] != "system" {
			t.Errorf("first input role = %v", first["role"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"output_text": "hi, I'm Brenda"})
	})
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	res, body := postJSON(t, ts.URL+"/v1/chat", map[string]any{
		"localeVariant": "en-GB",
		"messages":      []map[string]string{{"role": "user", "content": "hello"}},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %v)", res.StatusCode, body)
	}
	if body["reply"] != "hi, I'm Brenda" {
		t.Fatalf("reply = %v", body["reply"])
	}
}

func TestChatDetectsLocaleFromAcceptLanguage(t *testing.T) {
	var system string
	b := newTestBackend(t, "test_httpapi_chat_locale", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		input, _ := body["input"].([]any)
		if len(input) > 0 {
			first, _ := input[0].(map[string]any)
			system, _ = first["content"].(string)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"output_text": "hola"})
	})
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	payload, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if want := persona.Resolve("es-ES").Chat; system != want {
		t.Fatalf("system prompt = %q, want the es-ES persona", system)
	}
}

func TestLanguageTags(t *testing.T) {
	got := languageTags("es-ES,es;q=0.9, en;q=0.8")
	want := []string{"es-ES", "es", "en"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tags = %v, want %v", got, want)
		}
	}
	if tags := languageTags(""); len(tags) != 0 {
		t.Fatalf("empty header tags = %v", tags)
	}
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_chat_empty", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("provider must not be called for empty messages")
	})
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	res, _ := postJSON(t, ts.URL+"/v1/chat", map[string]any{"messages": []any{}})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestChatWrongMethod(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_chat_method", stubRealtimeSessions(t))
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/chat")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", res.StatusCode)
	}
}

func TestChatRelayFailure(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_chat_upstream", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model melted", http.StatusBadGateway)
	})
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	res, body := postJSON(t, ts.URL+"/v1/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hello"}},
	})
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	if !strings.Contains(body["error"].(string), "model melted") {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	b := newTestBackend(t, "test_httpapi_health", stubRealtimeSessions(t))
	ts := httptest.NewServer(b.server.Router())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, res.StatusCode)
		}
	}
}
