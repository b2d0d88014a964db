// Package config loads server settings from the environment.
//
// A .env file in the working directory is read first when it exists;
// variables already set in the process environment win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const EnvDevelopment = "development"

// DefaultModels is the model used per provider when AI_MODEL is unset.
var DefaultModels = map[string]string{
	ProviderGemini: "gemini-2.5-flash",
	ProviderOpenAI: "gpt-4o-mini",
	ProviderOllama: "llama3.2",
}

// Config holds every setting the server reads at startup.
type Config struct {
	Port int    `envconfig:"PORT" default:"5000"`
	Env  string `envconfig:"ENV" default:"development"`

	// DatabaseURL selects the store. Empty means in-memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	JWTSecret   string `envconfig:"JWT_SECRET"`

	AIProvider string        `envconfig:"AI_PROVIDER" default:"gemini"`
	AIAPIKey   string        `envconfig:"AI_API_KEY"`
	GeminiKey  string        `envconfig:"GEMINI_API_KEY"`
	AIBaseURL  string        `envconfig:"AI_BASE_URL"`
	AIModel    string        `envconfig:"AI_MODEL"`
	AITimeout  time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`

	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:5173"`

	RateLimitWindowMS    int `envconfig:"RATE_LIMIT_WINDOW_MS" default:"900000"`
	RateLimitMaxRequests int `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"100"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogFile   string `envconfig:"LOG_FILE"`

	GitHubClientID     string `envconfig:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `envconfig:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `envconfig:"GITHUB_CALLBACK_URL"`
}

// Load reads envFile (if present) and then the environment. An empty
// envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing env vars: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.AIProvider = strings.ToLower(strings.TrimSpace(c.AIProvider))
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	if c.AIModel == "" {
		c.AIModel = DefaultModels[c.AIProvider]
	}
	if c.AIAPIKey == "" {
		c.AIAPIKey = c.GeminiKey
	}
	if c.JWTSecret == "" && c.IsDevelopment() {
		c.JWTSecret = "codemind-development-secret"
	}
	if c.GitHubCallbackURL == "" {
		c.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/api/auth/github/callback", c.Port)
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	switch c.AIProvider {
	case ProviderGemini, ProviderOpenAI, ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER must be gemini, openai or ollama, got %q", c.AIProvider))
	}
	if c.AITimeout <= 0 {
		errs = append(errs, errors.New("AI_TIMEOUT must be positive"))
	}
	if c.RateLimitWindowMS <= 0 || c.RateLimitMaxRequests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW_MS and RATE_LIMIT_MAX_REQUESTS must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// RateLimitWindow is RATE_LIMIT_WINDOW_MS as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// GitHubEnabled reports whether both OAuth credentials are set.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// SQLitePath returns the database file named by DATABASE_URL, or "" for the
// in-memory store. "sqlite://", "sqlite:" and "file:" prefixes are stripped
// along with any query string; pragmas are always set by the store itself.
func (c *Config) SQLitePath() string {
	u := strings.TrimSpace(c.DatabaseURL)
	for _, prefix := range []string{"sqlite://", "sqlite:", "file:"} {
		if strings.HasPrefix(u, prefix) {
			u = strings.TrimPrefix(u, prefix)
			break
		}
	}
	path, _, _ := strings.Cut(u, "?")
	return path
}
