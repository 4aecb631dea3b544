/*
Package config reads settings from the environment.

SOURCES (later wins):
  1. Defaults below
  2. A .env file in the working directory, when present (godotenv)
  3. Process environment
  4. Command-line flags, applied by the commands themselves

SERVER:
  PENSAO_PORT             8080
  PENSAO_DB               pensao.db
  PENSAO_ALLOWED_ORIGINS  comma-separated CORS origins
  PENSAO_FRONTEND_URL     base of the password reset link
  PENSAO_SESSION_TTL      24h
  PENSAO_COOKIE_SECURE    false
  PENSAO_LOG_LEVEL        info
  PENSAO_LOG_FORMAT       text

CLIENT:
  PENSAO_API_URL          http://localhost:8080
  PENSAO_EMAIL / PENSAO_PASSWORD
  PENSAO_TIMEOUT          15s
  PENSAO_LOCALE           pt-BR
  PENSAO_CONCURRENCY      4
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/alimony-tracker/logging"
)

// LoadDotEnv loads the given files (".env" when none) into the environment
// without overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// =============================================================================
// SERVER
// =============================================================================

type Server struct {
	Port           string
	DBPath         string
	AllowedOrigins []string
	FrontendURL    string
	SessionTTL     time.Duration
	CookieSecure   bool
	LogLevel       string
	LogFormat      string
}

func LoadServer() *Server {
	return &Server{
		Port:           getEnv("PENSAO_PORT", "8080"),
		DBPath:         getEnv("PENSAO_DB", "pensao.db"),
		AllowedOrigins: getEnvList("PENSAO_ALLOWED_ORIGINS", []string{"http://localhost:5500", "http://127.0.0.1:5500", "http://localhost:8080"}),
		FrontendURL:    getEnv("PENSAO_FRONTEND_URL", "http://127.0.0.1:5500"),
		SessionTTL:     getEnvDuration("PENSAO_SESSION_TTL", 24*time.Hour),
		CookieSecure:   getEnvBool("PENSAO_COOKIE_SECURE", false),
		LogLevel:       getEnv("PENSAO_LOG_LEVEL", "info"),
		LogFormat:      getEnv("PENSAO_LOG_FORMAT", logging.FormatText),
	}
}

// Validate returns every problem at once.
func (c *Server) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.DBPath == "" {
		problems = append(problems, "database path cannot be empty")
	}
	if c.SessionTTL < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid session ttl %v: must be at least 1 minute", c.SessionTTL))
	}
	if _, err := url.ParseRequestURI(c.FrontendURL); err != nil {
		problems = append(problems, fmt.Sprintf("invalid frontend url '%s': %v", c.FrontendURL, err))
	}
	problems = append(problems, validateLogging(c.LogLevel, c.LogFormat)...)

	return combine(problems)
}

// =============================================================================
// CLIENT
// =============================================================================

type Client struct {
	APIURL      string
	Email       string
	Password    string
	Timeout     time.Duration
	Locale      string
	Concurrency int
	LogLevel    string
	LogFormat   string
}

func LoadClient() *Client {
	return &Client{
		APIURL:      getEnv("PENSAO_API_URL", "http://localhost:8080"),
		Email:       getEnv("PENSAO_EMAIL", ""),
		Password:    getEnv("PENSAO_PASSWORD", ""),
		Timeout:     getEnvDuration("PENSAO_TIMEOUT", 15*time.Second),
		Locale:      getEnv("PENSAO_LOCALE", "pt-BR"),
		Concurrency: getEnvInt("PENSAO_CONCURRENCY", 4),
		LogLevel:    getEnv("PENSAO_LOG_LEVEL", "warn"),
		LogFormat:   getEnv("PENSAO_LOG_FORMAT", logging.FormatText),
	}
}

func (c *Client) Validate() error {
	var problems []string

	if u, err := url.Parse(c.APIURL); err != nil {
		problems = append(problems, fmt.Sprintf("invalid api url '%s': %v", c.APIURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		problems = append(problems, fmt.Sprintf("invalid api url scheme '%s': must be 'http' or 'https'", u.Scheme))
	}
	if c.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid timeout %v: must be positive", c.Timeout))
	}
	if c.Concurrency < 1 || c.Concurrency > 64 {
		problems = append(problems, fmt.Sprintf("invalid concurrency %d: must be between 1 and 64", c.Concurrency))
	}
	problems = append(problems, validateLogging(c.LogLevel, c.LogFormat)...)

	return combine(problems)
}

// RequireCredentials is checked only by commands that log in.
func (c *Client) RequireCredentials() error {
	var problems []string
	if c.Email == "" {
		problems = append(problems, "PENSAO_EMAIL is required")
	}
	if c.Password == "" {
		problems = append(problems, "PENSAO_PASSWORD is required")
	}
	return combine(problems)
}

// =============================================================================
// HELPERS
// =============================================================================

func validateLogging(level, format string) []string {
	var problems []string
	if _, err := logging.ParseLevel(level); err != nil {
		problems = append(problems, err.Error())
	}
	if f := strings.ToLower(format); f != logging.FormatText && f != logging.FormatJSON {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be text or json", format))
	}
	return problems
}

func combine(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
