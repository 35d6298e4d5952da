package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. BOTGATEWAY_META_APP_SECRET.
const EnvPrefix = "BOTGATEWAY_"

// Config is the root configuration for the gateway.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general" envPrefix:"GENERAL_"`
	Server   ServerConfig   `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Meta     MetaConfig     `json:"meta" yaml:"meta" envPrefix:"META_"`
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp" envPrefix:"WHATSAPP_"`
	Discord  DiscordConfig  `json:"discord" yaml:"discord" envPrefix:"DISCORD_"`
	HTTP     HTTPConfig     `json:"http" yaml:"http" envPrefix:"HTTP_"`
	Store    StoreConfig    `json:"store" yaml:"store" envPrefix:"STORE_"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat string `json:"logFormat" yaml:"logFormat" env:"LOG_FORMAT"` // "text" | "json"
	LogFile   string `json:"logFile,omitempty" yaml:"logFile,omitempty" env:"LOG_FILE"`
}

type ServerConfig struct {
	Host               string `json:"host" yaml:"host" env:"HOST"`
	Port               int    `json:"port" yaml:"port" env:"PORT"`
	ReadTimeoutSeconds int    `json:"readTimeoutSeconds" yaml:"readTimeoutSeconds" env:"READ_TIMEOUT_SECONDS"`
	MaxBodyBytes       int64  `json:"maxBodyBytes" yaml:"maxBodyBytes" env:"MAX_BODY_BYTES"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadTimeout bounds how long the server waits for a request.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// MetaConfig holds the Meta app shared by Facebook and Instagram.
type MetaConfig struct {
	APIVersion        string  `json:"apiVersion" yaml:"apiVersion" env:"API_VERSION"`
	GraphBaseURL      string  `json:"graphBaseURL" yaml:"graphBaseURL" env:"GRAPH_BASE_URL"`
	AppSecret         string  `json:"appSecret,omitempty" yaml:"appSecret,omitempty" env:"APP_SECRET"`
	VerifyToken       string  `json:"verifyToken,omitempty" yaml:"verifyToken,omitempty" env:"VERIFY_TOKEN"`
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond" env:"REQUESTS_PER_SECOND"` // 0 = unpaced
}

// WhatsAppConfig falls back to the Meta app secrets when left empty.
type WhatsAppConfig struct {
	AppSecret   string `json:"appSecret,omitempty" yaml:"appSecret,omitempty" env:"APP_SECRET"`
	VerifyToken string `json:"verifyToken,omitempty" yaml:"verifyToken,omitempty" env:"VERIFY_TOKEN"`
}

type DiscordConfig struct {
	PublicKey         string `json:"publicKey,omitempty" yaml:"publicKey,omitempty" env:"PUBLIC_KEY"`
	MessagesPerSecond int    `json:"messagesPerSecond" yaml:"messagesPerSecond" env:"MESSAGES_PER_SECOND"`
	MessagesPerMinute int    `json:"messagesPerMinute" yaml:"messagesPerMinute" env:"MESSAGES_PER_MINUTE"`
}

type HTTPConfig struct {
	TimeoutSeconds      int `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"TIMEOUT_SECONDS"`
	MediaTimeoutSeconds int `json:"mediaTimeoutSeconds" yaml:"mediaTimeoutSeconds" env:"MEDIA_TIMEOUT_SECONDS"`
	MaxRetries          int `json:"maxRetries" yaml:"maxRetries" env:"MAX_RETRIES"`
}

func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

func (h HTTPConfig) MediaTimeout() time.Duration {
	return time.Duration(h.MediaTimeoutSeconds) * time.Second
}

type StoreConfig struct {
	DBPath string `json:"dbPath" yaml:"dbPath" env:"DB_PATH"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
}

// DefaultConfigDir returns the default config directory (~/.botgateway).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".botgateway"
	}
	return filepath.Join(home, ".botgateway")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads the config file at path, expands ${VAR} references, applies
// BOTGATEWAY_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays BOTGATEWAY_* environment variables onto cfg. Unset
// variables leave the current value untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match // keep unresolved references visible
		}
		return val
	})
}

// Save writes cfg to path as YAML or JSON depending on the extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.ReadTimeoutSeconds < 1 {
		errs = append(errs, "server.readTimeoutSeconds must be >= 1")
	}
	if cfg.Server.MaxBodyBytes < 1024 {
		errs = append(errs, "server.maxBodyBytes must be >= 1024")
	}

	if cfg.Meta.APIVersion != "" && !strings.HasPrefix(cfg.Meta.APIVersion, "v") {
		errs = append(errs, "meta.apiVersion must look like v18.0")
	}
	if cfg.Meta.RequestsPerSecond < 0 {
		errs = append(errs, "meta.requestsPerSecond must be >= 0")
	}

	if cfg.Discord.MessagesPerSecond < 1 {
		errs = append(errs, "discord.messagesPerSecond must be >= 1")
	}
	if cfg.Discord.MessagesPerMinute < cfg.Discord.MessagesPerSecond {
		errs = append(errs, "discord.messagesPerMinute must be >= discord.messagesPerSecond")
	}
	if cfg.Discord.PublicKey != "" && len(cfg.Discord.PublicKey) != 64 {
		errs = append(errs, "discord.publicKey must be 64 hex characters")
	}

	if cfg.HTTP.TimeoutSeconds < 1 {
		errs = append(errs, "http.timeoutSeconds must be >= 1")
	}
	if cfg.HTTP.MediaTimeoutSeconds < cfg.HTTP.TimeoutSeconds {
		errs = append(errs, "http.mediaTimeoutSeconds must be >= http.timeoutSeconds")
	}
	if cfg.HTTP.MaxRetries < 0 || cfg.HTTP.MaxRetries > 10 {
		errs = append(errs, "http.maxRetries must be between 0 and 10")
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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
