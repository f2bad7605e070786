// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport mode values accepted by WIDGET_TRANSPORT.
const (
	TransportSocket = "socket"
	TransportHTTP   = "http"
)

// Config holds all application configuration.
type Config struct {
	Widget     WidgetConfig
	Transcript TranscriptConfig
	Simulator  SimulatorConfig
}

// WidgetConfig controls the embedded widget runtime.
type WidgetConfig struct {
	Transport          string // "socket" for streaming, "http" for request/response
	SocketURL          string
	APIURL             string
	Bot                string
	UserID             string
	Position           string // "bottom-right" or "bottom-left"
	Theme              string // "light" or "dark"
	AccentColor        string
	BotIconURL         string
	SuggestedQuestions []string
	RenderInterval     time.Duration
	RequestTimeout     time.Duration
	ReconnectDelay     time.Duration
}

// TranscriptConfig controls NDJSON transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// SimulatorConfig controls the local assistant simulator.
type SimulatorConfig struct {
	Port        string
	FrontendURL string
	TypingSpeed time.Duration
	JitterMax   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Widget: WidgetConfig{
			Transport:          strings.ToLower(getEnv("WIDGET_TRANSPORT", TransportSocket)),
			SocketURL:          getEnv("WIDGET_SOCKET_URL", "ws://localhost:8080/ws"),
			APIURL:             getEnv("WIDGET_API_URL", "http://localhost:8080/send_message"),
			Bot:                getEnv("WIDGET_BOT", "copilot"),
			UserID:             getEnv("WIDGET_USER_ID", ""),
			Position:           getEnv("WIDGET_POSITION", "bottom-right"),
			Theme:              getEnv("WIDGET_THEME", "light"),
			AccentColor:        getEnv("WIDGET_ACCENT_COLOR", "#2563eb"),
			BotIconURL:         getEnv("WIDGET_BOT_ICON_URL", ""),
			SuggestedQuestions: splitList(getEnv("WIDGET_SUGGESTED_QUESTIONS", "")),
			RenderInterval:     getEnvDuration("WIDGET_RENDER_INTERVAL", 50*time.Millisecond),
			RequestTimeout:     getEnvDuration("WIDGET_REQUEST_TIMEOUT", 30*time.Second),
			ReconnectDelay:     getEnvDuration("WIDGET_RECONNECT_DELAY", 3*time.Second),
		},
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", false),
			Dir:       getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			QueueSize: queueSize,
		},
		Simulator: SimulatorConfig{
			Port:        getEnv("PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", ""),
			TypingSpeed: getEnvDuration("SIMULATOR_TYPING_SPEED", 30*time.Millisecond),
			JitterMax:   getEnvDuration("SIMULATOR_JITTER_MAX", 20*time.Millisecond),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	switch c.Widget.Transport {
	case TransportSocket:
		if c.Widget.SocketURL == "" {
			return fmt.Errorf("WIDGET_SOCKET_URL cannot be empty in socket mode")
		}
	case TransportHTTP:
		if c.Widget.APIURL == "" {
			return fmt.Errorf("WIDGET_API_URL cannot be empty in http mode")
		}
	default:
		return fmt.Errorf("WIDGET_TRANSPORT must be %q or %q", TransportSocket, TransportHTTP)
	}
	switch c.Widget.Position {
	case "bottom-right", "bottom-left":
	default:
		return fmt.Errorf("WIDGET_POSITION must be bottom-right or bottom-left")
	}
	switch c.Widget.Theme {
	case "light", "dark":
	default:
		return fmt.Errorf("WIDGET_THEME must be light or dark")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty when transcripts are enabled")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	if c.Simulator.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Simulator.FrontendURL == "" ||
		strings.Contains(c.Simulator.FrontendURL, "localhost") ||
		strings.Contains(c.Simulator.FrontendURL, "127.0.0.1")
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
