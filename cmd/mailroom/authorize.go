// ABOUTME: One-time Gmail OAuth authorization for the installed-app flow
// ABOUTME: Prints the consent URL, reads the code from stdin and saves the token file

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/mailroom/internal/config"
	"github.com/2389/mailroom/internal/inbox/gmail"
)

func runAuthorize(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Mailbox.Provider != config.ProviderGmail {
		return fmt.Errorf("authorize only applies to mailbox.provider %q", config.ProviderGmail)
	}

	oauthCfg, err := gmail.LoadOAuthConfig(cfg.Mailbox.Gmail.CredentialsFile)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Println("Open this URL in a browser and grant access:")
	fmt.Println()
	cyan.Println("  " + gmail.AuthCodeURL(oauthCfg))
	fmt.Println()

	code := strings.TrimSpace(promptTo(os.Stdout, bufio.NewReader(os.Stdin), "Authorization code", ""))
	if code == "" {
		return errors.New("no authorization code entered")
	}

	if _, err := gmail.Exchange(ctx, oauthCfg, code, cfg.Mailbox.Gmail.TokenFile); err != nil {
		return err
	}

	green.Printf("  ✓ Saved token: %s\n", cfg.Mailbox.Gmail.TokenFile)
	return nil
}
