package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the Brenda voice front-end.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// Provider credentials. Both are required for the key-exchange and
	// chat routes; missing values surface as configuration errors at
	// request time rather than refusing to boot, so the health and
	// metrics endpoints stay reachable on a misconfigured box.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	SessionSecret string

	RealtimeModel        string
	ChatModel            string
	Voice                string
	RealtimeInstructions string

	SessionTokenTTL time.Duration
	ChatTimeout     time.Duration
	MaxOutputTokens int
	HistoryLimit    int

	// Realtime tuning. The cooldown and VAD values are policy knobs with
	// no derived "correct" setting; defaults match production tuning.
	ResponseCooldown   time.Duration
	ICEGatherTimeout   time.Duration
	VADThreshold       float64
	VADPrefixPadding   time.Duration
	VADSilenceDuration time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "brenda"),
		OpenAIAPIKey:     trimmedEnv("OPENAI_API_KEY"),
		OpenAIBaseURL:    envOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		SessionSecret:    trimmedEnv("VOICE_SESSION_SECRET"),
		RealtimeModel:    envOrDefault("OPENAI_REALTIME_MODEL", "gpt-4o-mini-realtime-preview"),
		ChatModel:        envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		Voice:            envOrDefault("OPENAI_VOICE", "alloy"),
		RealtimeInstructions: envOrDefault("OPENAI_REALTIME_INSTRUCTIONS",
			"You are a helpful voice assistant. Be conversational, friendly, and concise."),
		ShutdownTimeout:    15 * time.Second,
		SessionTokenTTL:    10 * time.Minute,
		ChatTimeout:        25 * time.Second,
		MaxOutputTokens:    400,
		HistoryLimit:       20,
		ResponseCooldown:   1200 * time.Millisecond,
		ICEGatherTimeout:   1500 * time.Millisecond,
		VADThreshold:       0.9,
		VADPrefixPadding:   200 * time.Millisecond,
		VADSilenceDuration: 900 * time.Millisecond,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTokenTTL, err = durationFromEnv("VOICE_SESSION_TTL", cfg.SessionTokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatTimeout, err = durationFromEnv("APP_CHAT_TIMEOUT", cfg.ChatTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxOutputTokens, err = intFromEnv("OPENAI_MAX_OUTPUT_TOKENS", cfg.MaxOutputTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("APP_CHAT_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ResponseCooldown, err = durationFromEnv("BRENDA_RESPONSE_COOLDOWN", cfg.ResponseCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.ICEGatherTimeout, err = durationFromEnv("BRENDA_ICE_GATHER_TIMEOUT", cfg.ICEGatherTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VADThreshold, err = floatFromEnv("BRENDA_VAD_THRESHOLD", cfg.VADThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.VADPrefixPadding, err = durationFromEnv("BRENDA_VAD_PREFIX_PADDING", cfg.VADPrefixPadding)
	if err != nil {
		return Config{}, err
	}
	cfg.VADSilenceDuration, err = durationFromEnv("BRENDA_VAD_SILENCE_DURATION", cfg.VADSilenceDuration)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionTokenTTL < time.Minute {
		return Config{}, fmt.Errorf("VOICE_SESSION_TTL must be at least 1m")
	}
	if cfg.ChatTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_CHAT_TIMEOUT must be positive")
	}
	if cfg.MaxOutputTokens <= 0 {
		return Config{}, fmt.Errorf("OPENAI_MAX_OUTPUT_TOKENS must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("APP_CHAT_HISTORY_LIMIT must be positive")
	}
	if cfg.ResponseCooldown < 0 {
		return Config{}, fmt.Errorf("BRENDA_RESPONSE_COOLDOWN must be >= 0")
	}
	if cfg.ICEGatherTimeout <= 0 {
		return Config{}, fmt.Errorf("BRENDA_ICE_GATHER_TIMEOUT must be positive")
	}
	if cfg.VADThreshold < 0 || cfg.VADThreshold > 1 {
		return Config{}, fmt.Errorf("BRENDA_VAD_THRESHOLD must be in [0,1]")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
