// ABOUTME: Mints operator API tokens signed with the configured JWT secret
// ABOUTME: The token is printed and saved next to the config for mailroom-admin

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/mailroom/internal/auth"
	"github.com/2389/mailroom/internal/config"
)

// tokenArgs are the parsed flags of `mailroom token`
type tokenArgs struct {
	name string
	ttl  time.Duration
}

// parseTokenArgs supports both "--flag value" and "--flag=value" forms.
func parseTokenArgs(args []string) (tokenArgs, error) {
	out := tokenArgs{ttl: 30 * 24 * time.Hour}

	value := func(i *int, flag string) (string, error) {
		arg := args[*i]
		if v, ok := strings.CutPrefix(arg, flag+"="); ok {
			return v, nil
		}
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || strings.HasPrefix(arg, "--name="):
			v, err := value(&i, "--name")
			if err != nil {
				return out, err
			}
			out.name = strings.TrimSpace(v)
		case arg == "--ttl" || strings.HasPrefix(arg, "--ttl="):
			v, err := value(&i, "--ttl")
			if err != nil {
				return out, err
			}
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return out, fmt.Errorf("invalid --ttl %q", v)
			}
			out.ttl = d
		case strings.HasPrefix(arg, "-"):
			return out, fmt.Errorf("unknown flag: %s", arg)
		default:
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if out.name == "" {
		return out, errors.New("--name flag is required")
	}
	if len(out.name) > 100 {
		return out, errors.New("name exceeds maximum length of 100 characters")
	}
	return out, nil
}

func runToken(args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	token, err := verifier.Generate(parsed.name, parsed.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Saved token: %s (expires %s)\n", tokenPath, time.Now().Add(parsed.ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println(token)
	return nil
}
