// Package config loads the single configuration struct every command builds
// its components from. Nothing reads the environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvPrefix prefixes every environment override, e.g. INPUTRIGHT_API_BASE_URL.
const EnvPrefix = "INPUTRIGHT"

// Config is the root configuration.
type Config struct {
	LiveKit LiveKitConfig `mapstructure:"livekit"`
	API     APIConfig     `mapstructure:"api"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Profile ProfileConfig `mapstructure:"profile"`
	Session SessionConfig `mapstructure:"session"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Turn    TurnConfig    `mapstructure:"turn"`
	Backend BackendConfig `mapstructure:"backend"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LiveKitConfig holds the room server credentials.
type LiveKitConfig struct {
	URL           string `mapstructure:"url"`
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	AgentIdentity string `mapstructure:"agent_identity"`
}

// APIConfig points at the backend that stores tenants and leads.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WebhookConfig is the alternate lead sink.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProfileConfig selects where tenant profiles come from.
type ProfileConfig struct {
	Source        string        `mapstructure:"source"` // "api" or "template"
	BusinessName  string        `mapstructure:"business_name"`
	KnowledgeBase string        `mapstructure:"knowledge_base"`
	TemplateFile  string        `mapstructure:"template_file"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// SessionConfig holds the coordinator's timeouts.
type SessionConfig struct {
	GreetingTimeout time.Duration `mapstructure:"greeting_timeout"`
	AwayTimeout     time.Duration `mapstructure:"away_timeout"`
	RPCTimeout      time.Duration `mapstructure:"rpc_timeout"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
}

// EngineConfig names the provider plugins and their settings.
type EngineConfig struct {
	LLM      string `mapstructure:"llm"`
	STT      string `mapstructure:"stt"`
	TTS      string `mapstructure:"tts"`
	VAD      string `mapstructure:"vad"`
	Model    string `mapstructure:"model"`
	Voice    string `mapstructure:"voice"`
	Language string `mapstructure:"language"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`

	// LLMBaseURL and LLMAPIKey send chat to a different OpenAI-compatible
	// endpoint (Groq) while speech stays on BaseURL.
	LLMBaseURL string `mapstructure:"llm_base_url"`
	LLMAPIKey  string `mapstructure:"llm_api_key"`
}

// TurnConfig configures end-of-turn detection.
type TurnConfig struct {
	RemoteURL string  `mapstructure:"remote_url"`
	Threshold float64 `mapstructure:"threshold"`
}

// BackendConfig configures the REST backend.
type BackendConfig struct {
	Listen      string   `mapstructure:"listen"`
	Driver      string   `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN         string   `mapstructure:"dsn"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// WorkerConfig configures the job dispatch client.
type WorkerConfig struct {
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	MaxJobs int    `mapstructure:"max_jobs"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// legacyEnv maps keys onto the variable names older deployments use.
var legacyEnv = map[string]string{
	"livekit.url":            "LIVEKIT_URL",
	"livekit.api_key":        "LIVEKIT_API_KEY",
	"livekit.api_secret":     "LIVEKIT_API_SECRET",
	"api.base_url":           "INTERNAL_API_URL",
	"api.secret":             "INTERNAL_API_KEY",
	"webhook.url":            "WEBHOOK_URL",
	"engine.api_key":         "OPENAI_API_KEY",
	"engine.llm_api_key":     "GROQ_API_KEY",
	"profile.business_name":  "BUSINESS_NAME",
	"profile.knowledge_base": "KNOWLEDGE_BASE",
	"backend.dsn":            "DATABASE_URL",
}

// SetDefaults registers every key with its default so environment
// variables can override keys absent from the file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("livekit.url", "")
	v.SetDefault("livekit.api_key", "")
	v.SetDefault("livekit.api_secret", "")
	v.SetDefault("livekit.agent_identity", "contractor-leads-bot-agent")
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.secret", "")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("profile.source", "api")
	v.SetDefault("profile.business_name", "")
	v.SetDefault("profile.knowledge_base", "")
	v.SetDefault("profile.template_file", "")
	v.SetDefault("profile.cache_ttl", 5*time.Minute)
	v.SetDefault("session.greeting_timeout", 20*time.Second)
	v.SetDefault("session.away_timeout", 15*time.Second)
	v.SetDefault("session.rpc_timeout", 5*time.Second)
	v.SetDefault("session.submit_timeout", 30*time.Second)
	v.SetDefault("engine.llm", "openai")
	v.SetDefault("engine.stt", "openai")
	v.SetDefault("engine.tts", "openai")
	v.SetDefault("engine.vad", "energy")
	v.SetDefault("engine.model", "gpt-4o-mini")
	v.SetDefault("engine.voice", "alloy")
	v.SetDefault("engine.language", "en")
	v.SetDefault("engine.base_url", "")
	v.SetDefault("engine.api_key", "")
	v.SetDefault("engine.llm_base_url", "")
	v.SetDefault("engine.llm_api_key", "")
	v.SetDefault("turn.remote_url", "")
	v.SetDefault("turn.threshold", 0.5)
	v.SetDefault("backend.listen", ":8000")
	v.SetDefault("backend.driver", "sqlite")
	v.SetDefault("backend.dsn", "inputright.db")
	v.SetDefault("backend.cors_origins", []string{"*"})
	v.SetDefault("worker.url", "")
	v.SetDefault("worker.token", "")
	v.SetDefault("worker.max_jobs", 4)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
}

// Load reads the configuration from defaults, an optional file and the
// environment. A .env file in the working directory is loaded first if
// present. If configFile is empty the search order is ./inputright.yaml,
// ./configs/inputright.yaml, /etc/inputright/inputright.yaml.
func Load(configFile string) (*Config, error) {
	return LoadWith(viper.New(), configFile)
}

// LoadWith is Load on a caller-supplied viper, so CLI flags bound to it
// take precedence.
func LoadWith(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("inputright")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/inputright")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Debug("No config file found, using defaults and environment variables")
	} else {
		slog.Debug("Loaded config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	for _, s := range []*string{
		&cfg.LiveKit.APIKey,
		&cfg.LiveKit.APISecret,
		&cfg.API.Secret,
		&cfg.Engine.APIKey,
		&cfg.Engine.LLMAPIKey,
		&cfg.Worker.Token,
		&cfg.Backend.DSN,
	} {
		*s = resolveEnvRef(*s)
	}

	if cfg.Engine.LLMAPIKey != "" && cfg.Engine.LLMBaseURL == "" && cfg.Engine.LLMAPIKey != cfg.Engine.APIKey {
		// a Groq key without an explicit endpoint means Groq
		cfg.Engine.LLMBaseURL = GroqBaseURL
	}

	return &cfg, nil
}

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// resolveEnvRef replaces "${VAR_NAME}" with the variable's value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		if envVal := os.Getenv(val[2 : len(val)-1]); envVal != "" {
			return envVal
		}
	}
	return val
}

// ValidateAgent checks what an agent session needs to join a room.
func (c *Config) ValidateAgent() error {
	var missing []string
	if c.LiveKit.URL == "" {
		missing = append(missing, "livekit.url")
	}
	if c.LiveKit.APIKey == "" {
		missing = append(missing, "livekit.api_key")
	}
	if c.LiveKit.APISecret == "" {
		missing = append(missing, "livekit.api_secret")
	}
	if c.Profile.Source == "api" && c.API.BaseURL == "" {
		missing = append(missing, "api.base_url (or profile.source=template)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LLMPluginConfig is the settings map handed to the LLM plugin factory.
func (e EngineConfig) LLMPluginConfig() map[string]any {
	key, base := e.APIKey, e.BaseURL
	if e.LLMAPIKey != "" {
		key, base = e.LLMAPIKey, e.LLMBaseURL
	}
	return map[string]any{"api_key": key, "base_url": base, "model": e.Model}
}

// SpeechPluginConfig is the settings map handed to the STT and TTS plugin
// factories.
func (e EngineConfig) SpeechPluginConfig() map[string]any {
	return map[string]any{
		"api_key":  e.APIKey,
		"base_url": e.BaseURL,
		"voice":    e.Voice,
		"language": e.Language,
	}
}

// SetupLogging configures the global slog logger. The returned closer
// flushes the log file, if any.
func SetupLogging(cfg LoggingConfig) io.Closer {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closer = rotator
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
