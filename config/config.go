// Package config resolves server configuration from an optional YAML
// file overridden by FIELDVOICE_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to upper-cased key names for environment
// variable lookup, e.g. key "deepgram_api_key" maps to
// FIELDVOICE_DEEPGRAM_API_KEY.
const EnvPrefix = "FIELDVOICE_"

// Config holds everything the server needs at startup.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// StoreDSN is the record store database path/DSN.
	StoreDSN string `yaml:"store_dsn"`

	// DeepgramAPIKey authenticates against the speech API. Required.
	DeepgramAPIKey string `yaml:"deepgram_api_key"`

	// TelegramBotToken is the chat bot secret, also used to validate
	// the webhook path. Required.
	TelegramBotToken string `yaml:"telegram_bot_token"`

	// STTModel is the transcription model name.
	STTModel string `yaml:"stt_model"`

	// TranscribeTimeout bounds each transcription gateway call.
	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`

	// GoogleSpeech enables the Google Cloud Speech provider for the
	// live endpoint. Credentials come from the standard
	// GOOGLE_APPLICATION_CREDENTIALS mechanism.
	GoogleSpeech bool `yaml:"google_speech"`
}

func defaults() Config {
	return Config{
		Addr:              ":8081",
		StoreDSN:          "fieldvoice.db",
		STTModel:          "nova-2",
		TranscribeTimeout: 30 * time.Second,
	}
}

// Load reads the config file at path (skipped if path is empty or the
// file does not exist), applies environment overrides and validates
// required secrets. Missing required secrets are a fatal startup error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := getenv("addr"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("store_dsn"); v != "" {
		cfg.StoreDSN = v
	}
	if v := getenv("deepgram_api_key"); v != "" {
		cfg.DeepgramAPIKey = v
	}
	if v := getenv("telegram_bot_token"); v != "" {
		cfg.TelegramBotToken = v
	}
	if v := getenv("stt_model"); v != "" {
		cfg.STTModel = v
	}
	if v := getenv("transcribe_timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sTRANSCRIBE_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.TranscribeTimeout = d
	}
	if v := getenv("google_speech"); v != "" {
		cfg.GoogleSpeech = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + strings.ToUpper(key))
}

func (c *Config) validate() error {
	var missing []string
	if c.DeepgramAPIKey == "" {
		missing = append(missing, EnvPrefix+"DEEPGRAM_API_KEY")
	}
	if c.TelegramBotToken == "" {
		missing = append(missing, EnvPrefix+"TELEGRAM_BOT_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
