// Package config provides configuration for the interview client.
// Values come from the environment, with an optional .env file loaded first.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the interview client.
const (
	DefaultBackendURL    = "http://localhost:8000"
	DefaultChannelPath   = "/ws/interview_control"
	DefaultSampleRate    = 16000
	DefaultFrameDuration = 20 * time.Millisecond
	DefaultUIPort        = 8090
)

// Config holds all client configuration.
type Config struct {
	// BackendURL is the base URL of the interview backend.
	BackendURL string

	// ChannelPath is the websocket path of the interview control channel.
	ChannelPath string

	// SampleRate is the capture sample rate in Hz.
	SampleRate int

	// FrameDuration is the duration of one audio frame.
	FrameDuration time.Duration

	// UIPort is the local web UI port. 0 disables the UI server.
	UIPort int

	// RecordDir is where session self-recordings are written.
	// Empty disables self-recording.
	RecordDir string

	// LogLevel is the logging level: debug, info, warn, error.
	LogLevel string
}

// Load reads configuration from the environment.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BackendURL:    envStr("INTERVIEW_BACKEND_URL", DefaultBackendURL),
		ChannelPath:   envStr("INTERVIEW_CHANNEL_PATH", DefaultChannelPath),
		SampleRate:    envInt("INTERVIEW_SAMPLE_RATE", DefaultSampleRate),
		FrameDuration: envDuration("INTERVIEW_FRAME_MS", DefaultFrameDuration),
		UIPort:        envInt("INTERVIEW_UI_PORT", DefaultUIPort),
		RecordDir:     os.Getenv("INTERVIEW_RECORD_DIR"),
		LogLevel:      envStr("INTERVIEW_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid backend URL %q", c.BackendURL)
	}
	if !strings.HasPrefix(c.ChannelPath, "/") {
		return fmt.Errorf("config: channel path must start with /, got %q", c.ChannelPath)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("config: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("config: frame duration must be positive, got %v", c.FrameDuration)
	}
	// A frame must hold a whole number of samples.
	if (c.SampleRate*int(c.FrameDuration.Milliseconds()))%1000 != 0 {
		return fmt.Errorf("config: %v frames at %d Hz do not align to whole samples",
			c.FrameDuration, c.SampleRate)
	}
	return nil
}

// ChannelURL returns the full websocket URL of the control channel.
func (c *Config) ChannelURL() string {
	u, _ := url.Parse(c.BackendURL)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.ChannelPath
	return u.String()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
