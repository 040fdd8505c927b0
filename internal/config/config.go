package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
)

// Config aggregates the gateway settings.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Chat      ChatConfig
	Geo       GeoConfig
	Speech    SpeechConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := serverAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	Addr           string   `env:"-"`
}

// BackendConfig points at the municipal backend.
type BackendConfig struct {
	IntakeURL     string        `env:"INTAKE_URL" envDefault:"http://localhost:5000/api/complaints/process"`
	IntakeTimeout time.Duration `env:"INTAKE_TIMEOUT" envDefault:"20s"`
	SlowNotice    time.Duration `env:"INTAKE_SLOW_NOTICE" envDefault:"8s"`
}

// ChatConfig tunes the widget sessions.
type ChatConfig struct {
	EnterDelay    time.Duration `env:"CHAT_ENTER_DELAY" envDefault:"300ms"`
	ExitDelay     time.Duration `env:"CHAT_EXIT_DELAY" envDefault:"300ms"`
	ImageAckDelay time.Duration `env:"CHAT_IMAGE_ACK_DELAY" envDefault:"1s"`
	MaxImageBytes int64         `env:"CHAT_MAX_IMAGE_BYTES" envDefault:"5242880"`
	// CredentialCookies are forwarded from the browser to the backend.
	CredentialCookies []string `env:"CHAT_CREDENTIAL_COOKIES" envSeparator:"," envDefault:"token,session"`
}

// GeoConfig controls location acquisition.
type GeoConfig struct {
	Timeout       time.Duration `env:"GEO_TIMEOUT" envDefault:"15s"`
	MaximumAge    time.Duration `env:"GEO_MAXIMUM_AGE" envDefault:"5m"`
	StaticEnabled bool          `env:"GEO_STATIC_ENABLED" envDefault:"false"`
	StaticLat     float64       `env:"GEO_STATIC_LAT"`
	StaticLng     float64       `env:"GEO_STATIC_LNG"`
	StaticAcc     float64       `env:"GEO_STATIC_ACCURACY" envDefault:"50"`
}

// SpeechConfig describes transcription and synthesis.
type SpeechConfig struct {
	TranscribeURL      string        `env:"STT_URL" envDefault:"http://localhost:5000/api/speech-to-text"`
	TranscribeTimeout  time.Duration `env:"STT_TIMEOUT" envDefault:"30s"`
	TranscribeAttempts int           `env:"STT_ATTEMPTS" envDefault:"2"`

	AppID       string `env:"SPEECH_APP_ID"`
	AccessToken string `env:"SPEECH_ACCESS_TOKEN"`
	TTSURL      string `env:"SPEECH_TTS_URL" envDefault:"wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"`
	TTSResource string `env:"SPEECH_TTS_RESOURCE" envDefault:"seed-tts-2.0"`

	VoicesFile   string        `env:"SPEECH_VOICES_FILE"`
	DefaultVoice string        `env:"SPEECH_TTS_VOICE"`
	PollInterval time.Duration `env:"SPEECH_VOICE_POLL_INTERVAL" envDefault:"100ms"`
}

// SynthesisEnabled reports whether TTS credentials were supplied.
func (c SpeechConfig) SynthesisEnabled() bool {
	return strings.TrimSpace(c.AppID) != "" && strings.TrimSpace(c.AccessToken) != ""
}

// Model converts the settings into the speech service configuration.
func (c SpeechConfig) Model() *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		TranscribeURL:      c.TranscribeURL,
		TranscribeTimeout:  c.TranscribeTimeout,
		TranscribeAttempts: c.TranscribeAttempts,
		AppID:              strings.TrimSpace(c.AppID),
		AccessToken:        strings.TrimSpace(c.AccessToken),
		TTSURL:             c.TTSURL,
		TTSResource:        c.TTSResource,
		VoicesFile:         c.VoicesFile,
		DefaultVoice:       c.DefaultVoice,
		PollInterval:       c.PollInterval,
	}
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// TelemetryConfig enables trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `env:"OTEL_EXPORTER_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"jansunwai-gateway"`
}

func (c *Config) validate() error {
	var errs []error
	for key, raw := range map[string]string{
		"INTAKE_URL": c.Backend.IntakeURL,
		"STT_URL":    c.Speech.TranscribeURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid %s value %q", key, raw))
		}
	}
	if c.Backend.IntakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("INTAKE_TIMEOUT must be positive"))
	}
	if c.Geo.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("GEO_TIMEOUT must be positive"))
	}
	if c.Chat.MaxImageBytes <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_MAX_IMAGE_BYTES must be positive"))
	}
	if c.Speech.TranscribeAttempts < 1 {
		c.Speech.TranscribeAttempts = 1
	}
	return errors.Join(errs...)
}

// serverAddr turns PORT into a listen address.
func serverAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// accept ":8080" or "127.0.0.1:8080"
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}
