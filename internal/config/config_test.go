// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_MAILROOM_KEY", "sk-test")

	path := writeConfig(t, "mailroom.yaml", `
server:
  http_addr: "0.0.0.0:9000"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
mailbox:
  provider: gmail
  bcc: ["audit@example.com"]
  gmail:
    credentials_file: credentials.json
    token_file: /var/lib/mailroom/token.json
agent:
  api_key: "${TEST_MAILROOM_KEY}"
  model: gpt-4o
  temperature: 0.2
  timeout: 45s
poll:
  interval: 1m
  provider_timeout: 10s
threads:
  dedupe_messages: true
  reply_guard_ttl: 0s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "sk-test", cfg.Agent.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	assert.InDelta(t, 0.2, cfg.Agent.Temperature, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, time.Minute, cfg.Poll.Interval)
	assert.Equal(t, 10*time.Second, cfg.Poll.ProviderTimeout)
	assert.True(t, cfg.Threads.DedupeMessages)
	assert.Equal(t, time.Duration(0), cfg.Threads.ReplyGuardTTL)
	assert.Equal(t, []string{"audit@example.com"}, cfg.Mailbox.Bcc)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "credentials.json"), cfg.Mailbox.Gmail.CredentialsFile)
	assert.Equal(t, "/var/lib/mailroom/token.json", cfg.Mailbox.Gmail.TokenFile)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "mailroom.yaml", `
mailbox:
  gmail:
    credentials_file: c.json
    token_file: t.json
agent:
  api_key: sk
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.HTTPAddr)
	assert.Equal(t, ProviderGmail, cfg.Mailbox.Provider)
	assert.Equal(t, "me", cfg.Mailbox.Gmail.UserID)
	assert.Equal(t, "gpt-4o-mini", cfg.Agent.Model)
	assert.Equal(t, 15*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 30*time.Second, cfg.Poll.ProviderTimeout)
	assert.Equal(t, 60*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Threads.ReplyGuardTTL)
	assert.False(t, cfg.Threads.DedupeMessages)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "mailroom.toml", `
[mailbox]
provider = "imap"
cc = ["team@example.com"]

[mailbox.imap]
username = "support@example.com"
password = "abcd efgh ijkl mnop"

[agent]
api_key = "sk"
instructions = "Be brief."

[poll]
schedule = "*/2 * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderIMAP, cfg.Mailbox.Provider)
	assert.Equal(t, "support@example.com", cfg.Mailbox.IMAP.Username)
	assert.Equal(t, []string{"team@example.com"}, cfg.Mailbox.Cc)
	assert.Equal(t, "Be brief.", cfg.Agent.Instructions)
	assert.Equal(t, "*/2 * * * *", cfg.Poll.Schedule)
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MAILROOM_TEST_DOTENV_KEY=from-dotenv\n"), 0o600))
	path := filepath.Join(dir, "mailroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mailbox:
  gmail: {credentials_file: c.json, token_file: t.json}
agent:
  api_key: "${MAILROOM_TEST_DOTENV_KEY}"
`), 0o600))
	t.Cleanup(func() { os.Unsetenv("MAILROOM_TEST_DOTENV_KEY") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Agent.APIKey)
}

func TestLoad_InstructionsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.md"), []byte("Answer in French."), 0o600))
	path := filepath.Join(dir, "mailroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mailbox:
  gmail: {credentials_file: c.json, token_file: t.json}
agent:
  api_key: sk
  instructions: ignored
  instructions_file: prompt.md
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Answer in French.", cfg.Agent.Instructions)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad yaml",
			content: "server: [",
			wantErr: "parsing config file",
		},
		{
			name: "bad duration",
			content: `
mailbox: {gmail: {credentials_file: c, token_file: t}}
agent: {api_key: sk}
poll: {interval: soon}`,
			wantErr: "poll.interval",
		},
		{
			name: "negative duration",
			content: `
mailbox: {gmail: {credentials_file: c, token_file: t}}
agent: {api_key: sk}
threads: {reply_guard_ttl: -1m}`,
			wantErr: "must not be negative",
		},
		{
			name: "unknown provider",
			content: `
mailbox: {provider: exchange}
agent: {api_key: sk}`,
			wantErr: "mailbox.provider",
		},
		{
			name: "imap without password",
			content: `
mailbox: {provider: imap, imap: {username: a@example.com}}
agent: {api_key: sk}`,
			wantErr: "mailbox.imap.password",
		},
		{
			name: "missing api key",
			content: `
mailbox: {gmail: {credentials_file: c, token_file: t}}`,
			wantErr: "agent.api_key",
		},
		{
			name: "short jwt secret",
			content: `
auth: {jwt_secret: short}
mailbox: {gmail: {credentials_file: c, token_file: t}}
agent: {api_key: sk}`,
			wantErr: "auth.jwt_secret",
		},
		{
			name: "bad log level",
			content: `
mailbox: {gmail: {credentials_file: c, token_file: t}}
agent: {api_key: sk}
logging: {level: loud}`,
			wantErr: "logging.level",
		},
		{
			name: "zero interval without schedule",
			content: `
mailbox: {gmail: {credentials_file: c, token_file: t}}
agent: {api_key: sk}
poll: {interval: 0s}`,
			wantErr: "poll.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "mailroom.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MAILROOM_A", "alpha")
	assert.Equal(t, "x alpha y ", expandEnvVars("x ${MAILROOM_A} y ${MAILROOM_UNSET_VAR}"))
	assert.Equal(t, "$MAILROOM_A", expandEnvVars("$MAILROOM_A"))
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("MAILROOM_CONFIG", "/etc/mailroom.toml")
	assert.Equal(t, "/etc/mailroom.toml", DefaultPath())

	t.Setenv("MAILROOM_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/mailroom/mailroom.yaml", DefaultPath())
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "", resolvePath("/base", ""))
	assert.Equal(t, "/abs/file", resolvePath("/base", "/abs/file"))
	assert.Equal(t, "/base/rel/file", resolvePath("/base", "rel/file"))
}
