// Package config centralizes environment-driven configuration for the
// bridge process. Every knob has a default so a bare environment still
// yields a runnable (if unauthenticated) process; tests override via
// t.Setenv.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr   = ":5050"
	defaultRealtimeURL  = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-12-17"
	defaultVoice        = "alloy"
	defaultTemperature  = 0.8
	defaultSettleDelay  = 100 * time.Millisecond
	defaultTranscriber  = "whisper-1"
	defaultAudioFormat  = "g711_ulaw"
	defaultInstructions = "You are a warm, patient, and friendly virtual assistant conducting a short welcome interview over the phone. Greet the caller, explain the purpose of the call, ask your questions one at a time, acknowledge answers briefly, and close the call warmly."
)

// Config holds everything the bridge needs at startup.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds.
	ListenAddr string

	// OpenAIAPIKey authenticates the realtime model connection.
	OpenAIAPIKey string

	// RealtimeURL is the hosted speech model websocket endpoint,
	// including the model query parameter.
	RealtimeURL string

	// Voice selects the synthesized voice.
	Voice string

	// Instructions is the opaque prompt handed to the model verbatim.
	Instructions string

	// Temperature for response generation.
	Temperature float64

	// TranscriptionModel transcribes the caller's audio.
	TranscriptionModel string

	// AudioFormat is the codec identifier for both audio directions.
	// Frames pass through the bridge unmodified, so input and output
	// must agree with what the telephony provider sends.
	AudioFormat string

	// SettleDelay is how long to wait after the model socket opens
	// before seeding the first conversation item.
	SettleDelay time.Duration

	// NotifyURL, when set, receives call-started and call-complete
	// notifications. Empty disables notification delivery.
	NotifyURL string
}

// FromEnv builds a Config from the process environment, falling back to
// defaults for anything unset or unparseable.
func FromEnv() Config {
	cfg := Config{
		ListenAddr:         envOr("BRIDGE_LISTEN_ADDR", defaultListenAddr),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		RealtimeURL:        envOr("OPENAI_REALTIME_URL", defaultRealtimeURL),
		Voice:              envOr("BRIDGE_VOICE", defaultVoice),
		Instructions:       envOr("BRIDGE_INSTRUCTIONS", defaultInstructions),
		Temperature:        defaultTemperature,
		TranscriptionModel: envOr("BRIDGE_TRANSCRIPTION_MODEL", defaultTranscriber),
		AudioFormat:        envOr("BRIDGE_AUDIO_FORMAT", defaultAudioFormat),
		SettleDelay:        defaultSettleDelay,
		NotifyURL:          os.Getenv("BRIDGE_NOTIFY_URL"),
	}

	// PORT wins over the default but not over an explicit listen addr,
	// matching common PaaS conventions.
	if os.Getenv("BRIDGE_LISTEN_ADDR") == "" {
		if p := os.Getenv("PORT"); p != "" {
			if _, err := strconv.Atoi(p); err == nil {
				cfg.ListenAddr = ":" + p
			}
		}
	}

	if v := os.Getenv("BRIDGE_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = f
		}
	}
	if v := os.Getenv("BRIDGE_SETTLE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.SettleDelay = time.Duration(n) * time.Millisecond
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
