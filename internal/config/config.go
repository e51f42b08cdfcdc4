package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Record sources.
const (
	SourceCSV      = "csv"
	SourceXLSX     = "xlsx"
	SourcePostgres = "postgres"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	AuthMode    string `mapstructure:"AUTH_MODE"`
	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`

	// Record store
	DataDir      string `mapstructure:"DATA_DIR"`
	DataWorkbook string `mapstructure:"DATA_WORKBOOK"`
	RecordSource string `mapstructure:"RECORD_SOURCE"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DBMaxConns   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns   int32  `mapstructure:"DB_MIN_CONNS"`

	// Generative model
	LLMProvider     string        `mapstructure:"LLM_PROVIDER"`
	LLMModel        string        `mapstructure:"LLM_MODEL"`
	LLMTemperature  float64       `mapstructure:"LLM_TEMPERATURE"`
	LLMTimeout      time.Duration `mapstructure:"LLM_TIMEOUT"`
	OpenAIAPIKey    string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `mapstructure:"OPENAI_BASE_URL"`
	AnthropicAPIKey string        `mapstructure:"ANTHROPIC_API_KEY"`
	OllamaHost      string        `mapstructure:"OLLAMA_HOST"`

	// Fact extraction
	NoteHighlights   int    `mapstructure:"NOTE_HIGHLIGHTS"`
	NoteSnippetChars int    `mapstructure:"NOTE_SNIPPET_CHARS"`
	VitalRangesFile  string `mapstructure:"VITAL_RANGES_FILE"`

	// HTTP
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// Auth
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE", "TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"DATA_DIR", "DATA_WORKBOOK", "RECORD_SOURCE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"LLM_PROVIDER", "LLM_MODEL", "LLM_TEMPERATURE", "LLM_TIMEOUT",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "OLLAMA_HOST",
	"NOTE_HIGHLIGHTS", "NOTE_SNIPPET_CHARS", "VITAL_RANGES_FILE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("RECORD_SOURCE", "") // auto-detect from DATABASE_URL / DATA_WORKBOOK
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TEMPERATURE", 0.2)
	v.SetDefault("LLM_TIMEOUT", 60*time.Second)
	v.SetDefault("OLLAMA_HOST", "http://localhost:11434")
	v.SetDefault("NOTE_HIGHLIGHTS", 3)
	v.SetDefault("NOTE_SNIPPET_CHARS", 300)
	v.SetDefault("CORS_ORIGINS", "http://localhost:8501")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", 120*time.Second)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.RecordSource = cfg.ResolvedRecordSource()

	if cfg.IsDev() && cfg.ResolvedAuthMode() == "development" {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: Set ENV=production and AUTH_SIGNING_KEY or AUTH_JWKS_URL before exposing this server.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development yields "development" (no
// auth, all requests get admin) and anything else yields "jwt".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// ResolvedRecordSource returns RECORD_SOURCE when set. Otherwise a database
// URL selects postgres, a workbook path selects xlsx, and the CSV directory
// is the default.
func (c *Config) ResolvedRecordSource() string {
	switch {
	case c.RecordSource != "":
		return c.RecordSource
	case c.DatabaseURL != "":
		return SourcePostgres
	case c.DataWorkbook != "":
		return SourceXLSX
	}
	return SourceCSV
}

// Validate checks that the configuration is complete and safe to run.
func (c *Config) Validate() error {
	switch c.ResolvedRecordSource() {
	case SourceCSV:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required when RECORD_SOURCE is %q", SourceCSV)
		}
	case SourceXLSX:
		if c.DataWorkbook == "" {
			return fmt.Errorf("DATA_WORKBOOK is required when RECORD_SOURCE is %q", SourceXLSX)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when RECORD_SOURCE is %q", SourcePostgres)
		}
	default:
		return fmt.Errorf("RECORD_SOURCE must be \"csv\", \"xlsx\", or \"postgres\", got %q", c.RecordSource)
	}

	switch c.LLMProvider {
	case "openai", "ollama", "anthropic", "none":
	default:
		return fmt.Errorf("LLM_PROVIDER must be \"openai\", \"ollama\", \"anthropic\", or \"none\", got %q", c.LLMProvider)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLMTimeout)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %g", c.LLMTemperature)
	}

	if c.NoteHighlights < 1 || c.NoteHighlights > 10 {
		return fmt.Errorf("NOTE_HIGHLIGHTS must be between 1 and 10, got %d", c.NoteHighlights)
	}
	if c.NoteSnippetChars < 1 {
		return fmt.Errorf("NOTE_SNIPPET_CHARS must be positive, got %d", c.NoteSnippetChars)
	}

	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when AUTH_MODE is \"jwt\" (current ENV=%q)", c.Env)
	}
	if c.IsProduction() && mode == "development" {
		return fmt.Errorf("AUTH_MODE=development is not allowed in production")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
