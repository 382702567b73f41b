// ABOUTME: Interactive config file generation for mailroom init
// ABOUTME: Writes a YAML config with a random JWT secret and 0600 permissions

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/mailroom/internal/config"
)

// initAnswers are the values collected by runInit
type initAnswers struct {
	HTTPAddr        string
	JWTSecret       string
	Provider        string
	CredentialsFile string
	TokenFile       string
	IMAPUsername    string
	Bcc             string
	Model           string
	Interval        string
	LogLevel        string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("mailroom configuration setup")
	fmt.Println("============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Operator API ---")
	a.HTTPAddr = prompt(reader, "HTTP address", "127.0.0.1:8000")
	if yes(prompt(reader, "Require bearer tokens?", "yes")) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		a.JWTSecret = secret
	}

	fmt.Println("\n--- Mailbox ---")
	a.Provider = prompt(reader, "Provider (gmail/imap)", config.ProviderGmail)
	switch a.Provider {
	case config.ProviderGmail:
		a.CredentialsFile = prompt(reader, "OAuth client credentials file", "credentials.json")
		a.TokenFile = prompt(reader, "Token file", "token.json")
	case config.ProviderIMAP:
		a.IMAPUsername = prompt(reader, "Gmail address", "")
	default:
		return fmt.Errorf("unknown provider %q", a.Provider)
	}
	a.Bcc = prompt(reader, "Bcc every reply to (comma separated, empty for none)", "")

	fmt.Println("\n--- Agent ---")
	a.Model = prompt(reader, "Model", "gpt-4o-mini")
	a.Interval = prompt(reader, "Poll interval", "15s")

	fmt.Println("\n--- Logging ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	green.Printf("  ✓ Config written to %s\n", outputFile)
	fmt.Println()
	yellow.Println("  Next steps:")
	fmt.Println("    export OPENAI_API_KEY=...     # or put it in a .env next to the config")
	if a.Provider == config.ProviderIMAP {
		fmt.Println("    export MAILROOM_IMAP_PASSWORD=...  # Gmail app password")
	} else {
		fmt.Println("    mailroom authorize            # create the Gmail token file")
	}
	if a.JWTSecret != "" {
		fmt.Println("    mailroom token --name you     # mint an operator token")
	}
	fmt.Println("    mailroom serve")
	fmt.Println()

	return nil
}

// renderConfig produces the YAML written by runInit
func renderConfig(a initAnswers) string {
	var b strings.Builder

	b.WriteString("# mailroom configuration\n")
	b.WriteString("# Generated by mailroom init\n\n")

	b.WriteString("server:\n")
	fmt.Fprintf(&b, "  http_addr: %q\n\n", a.HTTPAddr)

	b.WriteString("auth:\n")
	b.WriteString("  # Leave empty to serve the operator API without authentication.\n")
	fmt.Fprintf(&b, "  jwt_secret: %q\n\n", a.JWTSecret)

	b.WriteString("mailbox:\n")
	fmt.Fprintf(&b, "  provider: %q\n", a.Provider)
	b.WriteString("  cc: []\n")
	b.WriteString("  bcc: [")
	for i, addr := range splitList(a.Bcc) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", addr)
	}
	b.WriteString("]\n")
	if a.Provider == config.ProviderIMAP {
		b.WriteString("  imap:\n")
		fmt.Fprintf(&b, "    username: %q\n", a.IMAPUsername)
		b.WriteString("    password: \"${MAILROOM_IMAP_PASSWORD}\"\n\n")
	} else {
		b.WriteString("  gmail:\n")
		fmt.Fprintf(&b, "    credentials_file: %q\n", a.CredentialsFile)
		fmt.Fprintf(&b, "    token_file: %q\n\n", a.TokenFile)
	}

	b.WriteString("agent:\n")
	b.WriteString("  api_key: \"${OPENAI_API_KEY}\"\n")
	fmt.Fprintf(&b, "  model: %q\n", a.Model)
	b.WriteString("  temperature: 0\n")
	b.WriteString("  timeout: \"60s\"\n")
	b.WriteString("  # instructions_file: \"instructions.md\"\n\n")

	b.WriteString("poll:\n")
	fmt.Fprintf(&b, "  interval: %q\n", a.Interval)
	b.WriteString("  # schedule: \"*/5 8-18 * * 1-5\"  # cron expression, overrides interval\n")
	b.WriteString("  provider_timeout: \"30s\"\n\n")

	b.WriteString("threads:\n")
	b.WriteString("  dedupe_messages: false\n")
	b.WriteString("  reply_guard_ttl: \"10m\"\n\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	b.WriteString("  format: \"text\"\n")

	return b.String()
}

// generateSecret returns a random base64 JWT secret
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	return promptTo(os.Stdout, reader, question, defaultVal)
}

func promptTo(w io.Writer, reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(w, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(w)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
