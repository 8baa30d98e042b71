package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/brendalabs/brenda/internal/auth"
	"github.com/brendalabs/brenda/internal/chat"
	"github.com/brendalabs/brenda/internal/config"
	"github.com/brendalabs/brenda/internal/httpapi"
	"github.com/brendalabs/brenda/internal/observability"
	"github.com/brendalabs/brenda/internal/openai"
	"github.com/brendalabs/brenda/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	provider := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)

	// Missing secrets do not prevent startup: the affected routes answer
	// with configuration errors while health and metrics stay reachable.
	var (
		minter    *token.Minter
		exchanger *auth.Exchanger
	)
	if cfg.SessionSecret != "" {
		codec := token.NewCodec(cfg.SessionSecret)
		minter = token.NewMinter(codec, cfg.SessionTokenTTL)
		exchanger = auth.NewExchanger(codec, provider, auth.Defaults{
			Model:        cfg.RealtimeModel,
			Voice:        cfg.Voice,
			Instructions: cfg.RealtimeInstructions,
			TurnDetection: openai.TurnDetection{
				Threshold:       cfg.VADThreshold,
				PrefixPadding:   cfg.VADPrefixPadding,
				SilenceDuration: cfg.VADSilenceDuration,
			},
		})
	} else {
		log.Printf("VOICE_SESSION_SECRET not set; voice routes will report a configuration error")
	}
	if cfg.OpenAIAPIKey == "" {
		log.Printf("OPENAI_API_KEY not set; provider routes will report a configuration error")
	}

	relay := chat.NewRelay(provider, cfg.ChatModel, cfg.MaxOutputTokens, cfg.HistoryLimit, cfg.ChatTimeout)

	api := httpapi.New(cfg, minter, exchanger, relay, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
