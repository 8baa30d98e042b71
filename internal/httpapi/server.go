package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brendalabs/brenda/internal/auth"
	"github.com/brendalabs/brenda/internal/chat"
	"github.com/brendalabs/brenda/internal/config"
	"github.com/brendalabs/brenda/internal/observability"
	"github.com/brendalabs/brenda/internal/openai"
	"github.com/brendalabs/brenda/internal/persona"
	"github.com/brendalabs/brenda/internal/token"
)

// Server exposes the three service routes: token minting, ephemeral key
// exchange, and the chat relay. All state lives in the request; nothing
// survives between calls.
type Server struct {
	cfg       config.Config
	minter    *token.Minter
	exchanger *auth.Exchanger
	relay     *chat.Relay
	metrics   *observability.Metrics
}

// New builds the server. minter and exchanger may be nil when the signing
// secret or provider key is not configured; the affected routes then
// report a configuration error instead of serving.
func New(cfg config.Config, minter *token.Minter, exchanger *auth.Exchanger, relay *chat.Relay, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		minter:    minter,
		exchanger: exchanger,
		relay:     relay,
		metrics:   metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/voice/session", s.handleMintSession)
	r.Post("/v1/voice/realtime-key", s.handleRealtimeKey)
	r.Post("/v1/chat", s.handleChat)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"provider_key_set":   s.cfg.OpenAIAPIKey != "",
		"signing_secret_set": s.cfg.SessionSecret != "",
	})
}

type mintSessionRequest struct {
	UserID string `json:"userId"`
}

type mintSessionResponse struct {
	SessionToken string `json:"sessionToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (s *Server) handleMintSession(w http.ResponseWriter, r *http.Request) {
	if s.minter == nil {
		respondError(w, http.StatusInternalServerError, "missing_configuration", "VOICE_SESSION_SECRET not set")
		return
	}

	var req mintSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sessionToken, err := s.minter.Mint(strings.TrimSpace(req.UserID))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "mint_failed", err.Error())
		return
	}
	s.metrics.TokensMinted.Inc()

	respondJSON(w, http.StatusOK, mintSessionResponse{
		SessionToken: sessionToken,
		ExpiresIn:    int64(s.minter.TTL().Seconds()),
	})
}

type realtimeKeyRequest struct {
	SessionToken string `json:"sessionToken"`
	Model        string `json:"model"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions"`
}

type realtimeKeyResponse struct {
	EphemeralKey string `json:"ephemeralKey"`
	SessionID    string `json:"sessionId"`
	ExpiresAt    int64  `json:"expiresAt"`
	UserID       string `json:"userId"`
}

func (s *Server) handleRealtimeKey(w http.ResponseWriter, r *http.Request) {
	if s.cfg.OpenAIAPIKey == "" {
		respondError(w, http.StatusInternalServerError, "missing_configuration", "OPENAI_API_KEY not set")
		return
	}
	if s.exchanger == nil || s.cfg.SessionSecret == "" {
		respondError(w, http.StatusInternalServerError, "missing_configuration", "VOICE_SESSION_SECRET not set")
		return
	}

	var req realtimeKeyRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.exchanger.Exchange(r.Context(), auth.ExchangeRequest{
		SessionToken: req.SessionToken,
		Model:        req.Model,
		Voice:        req.Voice,
		Instructions: req.Instructions,
	})
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}

	s.metrics.KeyExchanges.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, realtimeKeyResponse{
		EphemeralKey: result.EphemeralKey,
		SessionID:    result.SessionID,
		ExpiresAt:    result.ExpiresAt,
		UserID:       result.UserID,
	})
}

func (s *Server) respondExchangeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		s.metrics.KeyExchanges.WithLabelValues("missing_token").Inc()
		respondError(w, http.StatusBadRequest, "missing_token", auth.ErrMissingToken.Error())
	case errors.Is(err, auth.ErrAccessDenied):
		s.metrics.KeyExchanges.WithLabelValues("denied").Inc()
		respondError(w, http.StatusUnauthorized, "access_denied", deniedReason(err))
	default:
		s.metrics.KeyExchanges.WithLabelValues("upstream_error").Inc()
		if ue, ok := openai.AsUpstream(err); ok {
			s.metrics.UpstreamErrors.WithLabelValues("realtime_sessions", strconv.Itoa(ue.Status)).Inc()
			respondJSON(w, http.StatusBadGateway, map[string]any{
				"error":  "provider error",
				"code":   "upstream_error",
				"status": ue.Status,
				"detail": ue.Detail,
			})
			return
		}
		s.metrics.UpstreamErrors.WithLabelValues("realtime_sessions", "transport").Inc()
		respondError(w, http.StatusBadGateway, "upstream_error", err.Error())
	}
}

// deniedReason reports which verification check failed, and nothing more.
func deniedReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired token"
	case errors.Is(err, token.ErrBadSignature):
		return "bad signature"
	default:
		return "bad token"
	}
}

type chatRequest struct {
	LocaleVariant string      `json:"localeVariant"`
	Messages      []chat.Turn `json:"messages"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.OpenAIAPIKey == "" {
		respondError(w, http.StatusInternalServerError, "missing_configuration", "OPENAI_API_KEY not set")
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.metrics.ChatRequests.WithLabelValues("invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	locale := req.LocaleVariant
	if locale == "" {
		locale = string(persona.Detect(languageTags(r.Header.Get("Accept-Language"))))
	}

	start := time.Now()
	reply, err := s.relay.Reply(r.Context(), locale, req.Messages)
	if err != nil {
		if errors.Is(err, chat.ErrNoTurns) || errors.Is(err, chat.ErrBadTurn) {
			s.metrics.ChatRequests.WithLabelValues("invalid").Inc()
			respondError(w, http.StatusBadRequest, "invalid_messages", err.Error())
			return
		}
		s.metrics.ChatRequests.WithLabelValues("relay_error").Inc()
		if ue, ok := openai.AsUpstream(err); ok {
			s.metrics.UpstreamErrors.WithLabelValues("responses", strconv.Itoa(ue.Status)).Inc()
		} else {
			s.metrics.UpstreamErrors.WithLabelValues("responses", "transport").Inc()
		}
		respondError(w, http.StatusInternalServerError, "chat_failed", err.Error())
		return
	}

	s.metrics.ChatRequests.WithLabelValues("ok").Inc()
	s.metrics.ObserveChatRelayLatency(time.Since(start))
	respondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// languageTags splits an Accept-Language header into bare tags in header
// order, dropping quality weights. Header order is preference order in
// practice; full q-value sorting is not worth carrying here.
func languageTags(header string) []string {
	var tags []string
	for _, part := range strings.Split(header, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
