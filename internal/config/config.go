// Package config handles Libula configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/libula/config.yaml, /etc/libula/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "libula", "config.yaml"))
	}

	paths = append(paths, "/etc/libula/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Libula configuration.
type Config struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Assistant AssistantConfig `yaml:"assistant"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Storage   StorageConfig   `yaml:"storage"`
	Audio     AudioConfig     `yaml:"audio"`
	Credits   CreditsConfig   `yaml:"credits"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Tracing   TracingConfig   `yaml:"tracing"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text (default) or json
}

// OpenAIConfig defines the completion and speech service account.
type OpenAIConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"` // empty uses the SDK default
	AssistantID string `yaml:"assistant_id"`
	// ModelTag is stored on every generated story as ai_model.
	ModelTag string `yaml:"model_tag"`
}

// AssistantConfig bounds the run polling loop.
type AssistantConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	MaxPolls     int           `yaml:"max_polls"`
}

// SupabaseConfig defines the PostgREST and storage endpoint.
type SupabaseConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
	// ServiceToken is the bearer token used when a request carries no
	// end-user token of its own.
	ServiceToken string        `yaml:"service_token"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StorageConfig defines where narration audio is uploaded.
type StorageConfig struct {
	Bucket       string        `yaml:"bucket"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
}

// AudioConfig defines speech synthesis settings.
type AudioConfig struct {
	Model        string `yaml:"model"`
	DefaultVoice string `yaml:"default_voice"`
	// SplitSize is the largest text, in characters, sent in a single
	// synthesis request.
	SplitSize     int  `yaml:"split_size"`
	StripMarkdown bool `yaml:"strip_markdown"`
}

// CreditsConfig defines per-workflow charges.
type CreditsConfig struct {
	StoryCost   int64 `yaml:"story_cost"`
	AudioCost   int64 `yaml:"audio_cost"`
	MaxAttempts int   `yaml:"max_attempts"`
}

// LedgerConfig defines the local workflow ledger database.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// TracingConfig defines OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	PublicKey   string `yaml:"public_key"`
	SecretKey   string `yaml:"secret_key"`
	Environment string `yaml:"environment"`
}

// MQTTConfig defines the optional broker that receives workflow events.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Configured reports whether a broker is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file. Values not present in the
// file keep the defaults from [Default].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			ModelTag: "openAI",
		},
		Assistant: AssistantConfig{
			PollInterval: 3 * time.Second,
			PollTimeout:  5 * time.Minute,
			MaxPolls:     200,
		},
		Supabase: SupabaseConfig{
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Bucket:       "audio",
			SignedURLTTL: 10 * SecondsPerYear * time.Second,
		},
		Audio: AudioConfig{
			Model:        "tts-1",
			DefaultVoice: "nova",
			SplitSize:    4000,
		},
		Credits: CreditsConfig{
			StoryCost:   1,
			AudioCost:   1,
			MaxAttempts: 5,
		},
		Ledger: LedgerConfig{
			Path: "libula.db",
		},
		MQTT: MQTTConfig{
			ClientID:    "libula",
			TopicPrefix: "libula",
		},
		LogFormat: "text",
	}
}

// SecondsPerYear is the mean Gregorian year used for signed URL lifetimes.
const SecondsPerYear = 31556952

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("openai.api_key is required"))
	}
	if c.OpenAI.AssistantID == "" {
		errs = append(errs, errors.New("openai.assistant_id is required"))
	}
	if c.Supabase.URL == "" {
		errs = append(errs, errors.New("supabase.url is required"))
	}
	if c.Supabase.AnonKey == "" {
		errs = append(errs, errors.New("supabase.anon_key is required"))
	}
	if c.Assistant.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("assistant.poll_interval must be positive, got %s", c.Assistant.PollInterval))
	}
	if c.Assistant.MaxPolls < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_polls must not be negative, got %d", c.Assistant.MaxPolls))
	}
	if c.Audio.SplitSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.split_size must be positive, got %d", c.Audio.SplitSize))
	}
	if c.Credits.StoryCost < 0 || c.Credits.AudioCost < 0 {
		errs = append(errs, errors.New("credits costs must not be negative"))
	}
	if c.Credits.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("credits.max_attempts must be at least 1, got %d", c.Credits.MaxAttempts))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
