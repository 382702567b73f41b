// ABOUTME: Configuration loading and parsing for mailroom
// ABOUTME: YAML or TOML files with ${VAR} expansion, .env loading and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted in mailbox.provider
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// Config represents the complete mailroom configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Mailbox MailboxConfig `yaml:"mailbox" toml:"mailbox"`
	Agent   AgentConfig   `yaml:"agent" toml:"agent"`
	Poll    PollConfig    `yaml:"poll" toml:"poll"`
	Threads ThreadsConfig `yaml:"threads" toml:"threads"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the operator API listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// AuthConfig holds operator API authentication.
// An empty secret leaves the operator endpoints open.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// MailboxConfig selects and configures the mail provider
type MailboxConfig struct {
	Provider string      `yaml:"provider" toml:"provider"`
	Cc       []string    `yaml:"cc" toml:"cc"`
	Bcc      []string    `yaml:"bcc" toml:"bcc"`
	Gmail    GmailConfig `yaml:"gmail" toml:"gmail"`
	IMAP     IMAPConfig  `yaml:"imap" toml:"imap"`
}

// GmailConfig holds Gmail API OAuth settings
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file"`
	TokenFile       string `yaml:"token_file" toml:"token_file"`
	UserID          string `yaml:"user_id" toml:"user_id"`
}

// IMAPConfig holds IMAP/SMTP settings for app-password access
type IMAPConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	SMTPAddr string `yaml:"smtp_addr" toml:"smtp_addr"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	Mailbox  string `yaml:"mailbox" toml:"mailbox"`
	AllMail  string `yaml:"all_mail" toml:"all_mail"`
}

// AgentConfig holds the reply generator settings
type AgentConfig struct {
	APIKey           string  `yaml:"api_key" toml:"api_key"`
	BaseURL          string  `yaml:"base_url" toml:"base_url"`
	Model            string  `yaml:"model" toml:"model"`
	Temperature      float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens" toml:"max_tokens"`
	MaxRetries       int     `yaml:"max_retries" toml:"max_retries"`
	Instructions     string  `yaml:"instructions" toml:"instructions"`
	InstructionsFile string  `yaml:"instructions_file" toml:"instructions_file"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// PollConfig holds scheduler settings
type PollConfig struct {
	// Schedule is a cron expression that overrides Interval when set.
	Schedule string `yaml:"schedule" toml:"schedule"`

	Interval        time.Duration `yaml:"-" toml:"-"`
	ProviderTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IntervalRaw        string `yaml:"interval" toml:"interval"`
	ProviderTimeoutRaw string `yaml:"provider_timeout" toml:"provider_timeout"`
}

// ThreadsConfig holds thread store behaviour
type ThreadsConfig struct {
	DedupeMessages bool `yaml:"dedupe_messages" toml:"dedupe_messages"`

	ReplyGuardTTL    time.Duration `yaml:"-" toml:"-"`
	ReplyGuardTTLRaw string        `yaml:"reply_guard_ttl" toml:"reply_guard_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every optional field filled in
func Default() Config {
	return Config{
		Server:  ServerConfig{HTTPAddr: "127.0.0.1:8000"},
		Mailbox: MailboxConfig{Provider: ProviderGmail, Gmail: GmailConfig{UserID: "me"}},
		Agent: AgentConfig{
			Model:      "gpt-4o-mini",
			MaxTokens:  2048,
			MaxRetries: 2,
			TimeoutRaw: "60s",
		},
		Poll: PollConfig{
			IntervalRaw:        "15s",
			ProviderTimeoutRaw: "30s",
		},
		Threads: ThreadsConfig{ReplyGuardTTLRaw: "10m"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config (or in the working directory) is loaded first,
// then ${VAR_NAME} patterns are expanded. Files ending in .toml are parsed as TOML,
// everything else as YAML.
func Load(path string) (*Config, error) {
	loadDotEnv(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	base := filepath.Dir(path)
	cfg.Mailbox.Gmail.CredentialsFile = resolvePath(base, cfg.Mailbox.Gmail.CredentialsFile)
	cfg.Mailbox.Gmail.TokenFile = resolvePath(base, cfg.Mailbox.Gmail.TokenFile)
	cfg.Agent.InstructionsFile = resolvePath(base, cfg.Agent.InstructionsFile)

	if cfg.Agent.InstructionsFile != "" {
		text, err := os.ReadFile(cfg.Agent.InstructionsFile)
		if err != nil {
			return nil, fmt.Errorf("reading agent.instructions_file: %w", err)
		}
		cfg.Agent.Instructions = string(text)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns where the config file is looked up when no path is given:
// $MAILROOM_CONFIG, then $XDG_CONFIG_HOME/mailroom/mailroom.yaml, then
// ~/.config/mailroom/mailroom.yaml.
func DefaultPath() string {
	if p := os.Getenv("MAILROOM_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mailroom", "mailroom.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "mailroom.yaml"
	}
	return filepath.Join(home, ".config", "mailroom", "mailroom.yaml")
}

// loadDotEnv loads .env files without overriding variables already set
func loadDotEnv(dir string) {
	for _, p := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// resolvePath expands a leading ~ and makes relative paths relative to base
func resolvePath(base, p string) string {
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return p
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters")
	}

	switch c.Mailbox.Provider {
	case ProviderGmail:
		if c.Mailbox.Gmail.CredentialsFile == "" {
			return errors.New("mailbox.gmail.credentials_file is required")
		}
		if c.Mailbox.Gmail.TokenFile == "" {
			return errors.New("mailbox.gmail.token_file is required")
		}
	case ProviderIMAP:
		if c.Mailbox.IMAP.Username == "" {
			return errors.New("mailbox.imap.username is required")
		}
		if c.Mailbox.IMAP.Password == "" {
			return errors.New("mailbox.imap.password is required")
		}
	default:
		return fmt.Errorf("mailbox.provider must be %q or %q, got %q", ProviderGmail, ProviderIMAP, c.Mailbox.Provider)
	}

	if c.Agent.APIKey == "" && c.Agent.BaseURL == "" {
		return errors.New("agent.api_key is required (or set agent.base_url for a keyless endpoint)")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("agent.temperature must be between 0 and 2, got %v", c.Agent.Temperature)
	}

	if c.Poll.Schedule == "" && c.Poll.Interval <= 0 {
		return errors.New("poll.interval must be positive when poll.schedule is empty")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"agent.timeout", cfg.Agent.TimeoutRaw, &cfg.Agent.Timeout},
		{"poll.interval", cfg.Poll.IntervalRaw, &cfg.Poll.Interval},
		{"poll.provider_timeout", cfg.Poll.ProviderTimeoutRaw, &cfg.Poll.ProviderTimeout},
		{"threads.reply_guard_ttl", cfg.Threads.ReplyGuardTTLRaw, &cfg.Threads.ReplyGuardTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %q", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
