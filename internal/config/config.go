package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned when the Telegram token or the inference
// API key is absent. The bot must not start without both.
var ErrMissingCredentials = errors.New("telegram token or inference API key not set")

// Environment variables that override file settings.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvAPIKey        = "GROQ_API_KEY"
	EnvPort          = "PORT"
)

// Config is the root configuration for voicepolish.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Telegram  TelegramConfig  `json:"telegram"`
	Inference InferenceConfig `json:"inference"`
	KeepAlive KeepAliveConfig `json:"keepAlive"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	TempDir  string `json:"tempDir,omitempty"` // where voice clips are staged; empty = os.TempDir()
}

type TelegramConfig struct {
	Token       string         `json:"token"`
	AllowFrom   FlexStringList `json:"allowFrom"`
	PollTimeout int            `json:"pollTimeoutSeconds"` // long-poll timeout for getUpdates
}

// InferenceConfig holds the OpenAI-compatible endpoint used for both
// speech recognition and text restyling.
type InferenceConfig struct {
	APIBase            string  `json:"apiBase"`
	APIKey             string  `json:"apiKey"`
	TranscriptionModel string  `json:"transcriptionModel"`
	Language           string  `json:"language"` // ISO-639-1 hint for the speech model
	ChatModel          string  `json:"chatModel"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"maxTokens"`
	TimeoutSeconds     int     `json:"timeoutSeconds"`
}

// KeepAliveConfig configures the HTTP responder polled by uptime monitors.
type KeepAliveConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigPath is the file picked up when --config is not given.
func DefaultConfigPath() string {
	return "voicepolish.json"
}

// Load builds the effective configuration: defaults, then the file at path
// (skipped when path is empty), then environment overrides. The result is
// validated before it is returned.
func Load(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadUnvalidated is Load without Validate, for commands that only display
// the configuration.
func LoadUnvalidated(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))

		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.General.TempDir = ExpandPath(cfg.General.TempDir)
	return cfg, nil
}

// decode parses JSON, or YAML for .yaml/.yml files. YAML is routed through
// JSON so both formats share the json tags and FlexStringList handling.
func decode(path string, data []byte, cfg *Config) error {
	if !isYAML(path) {
		return json.Unmarshal(data, cfg)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ApplyEnv overlays the process environment on cfg.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvTelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Inference.APIKey = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.KeepAlive.Port = port
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg to path, as YAML when the extension asks for it.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if isYAML(path) {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if data, err = yaml.Marshal(raw); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string
	missing := false

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, "telegram.token is required (or set "+EnvTelegramToken+")")
		missing = true
	}
	if strings.TrimSpace(cfg.Inference.APIKey) == "" {
		errs = append(errs, "inference.apiKey is required (or set "+EnvAPIKey+")")
		missing = true
	}

	if cfg.Telegram.PollTimeout < 0 || cfg.Telegram.PollTimeout > 60 {
		errs = append(errs, "telegram.pollTimeoutSeconds must be between 0 and 60")
	}
	if cfg.Inference.APIBase == "" {
		errs = append(errs, "inference.apiBase is required")
	}
	if cfg.Inference.TranscriptionModel == "" || cfg.Inference.ChatModel == "" {
		errs = append(errs, "inference.transcriptionModel and inference.chatModel are required")
	}
	if cfg.Inference.Temperature < 0 || cfg.Inference.Temperature > 2 {
		errs = append(errs, "inference.temperature must be between 0 and 2")
	}
	if cfg.Inference.MaxTokens < 1 {
		errs = append(errs, "inference.maxTokens must be >= 1")
	}
	if cfg.Inference.TimeoutSeconds < 1 {
		errs = append(errs, "inference.timeoutSeconds must be >= 1")
	}
	if cfg.KeepAlive.Port < 0 || cfg.KeepAlive.Port > 65535 {
		errs = append(errs, "keepAlive.port must be between 0 and 65535")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if len(errs) == 0 {
		return nil
	}
	err := fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	if missing {
		return errors.Join(ErrMissingCredentials, err)
	}
	return err
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
