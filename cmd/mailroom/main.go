// ABOUTME: Entry point for the mailroom email agent
// ABOUTME: Dispatches serve, init, authorize, token, health and ready subcommands

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/mailroom/internal/config"
	"github.com/2389/mailroom/internal/gateway"
)

// version is overridden with -ldflags at build time.
var version = "dev"

const banner = `
                 _ _
 _ __ ___   __ _(_) |_ __ ___   ___  _ __ ___
| '_ ' _ \ / _' | | | '__/ _ \ / _ \| '_ ' _ \
| | | | | | (_| | | | | | (_) | (_) | | | | | |
|_| |_| |_|\__,_|_|_|_|  \___/ \___/|_| |_| |_|
`

func usage() {
	fmt.Println("Usage: mailroom <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                    Poll the mailbox and serve the operator API")
	fmt.Println("  init                     Create a new config file interactively")
	fmt.Println("  authorize                Run the Gmail OAuth flow and save the token file")
	fmt.Println("  token --name NAME        Mint an operator API token")
	fmt.Println("  health                   Check that the server is up")
	fmt.Println("  ready                    Check that the mailbox has been polled")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "authorize":
		err = runAuthorize(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = probe(ctx, "/health")
	case "ready":
		err = probe(ctx, "/health/ready")
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Mailbox:   %s\n", cfg.Mailbox.Provider)
	green.Print("    ▶ ")
	fmt.Printf("Model:     %s\n", cfg.Agent.Model)
	green.Print("    ▶ ")
	if cfg.Poll.Schedule != "" {
		fmt.Printf("Schedule:  %s\n", cfg.Poll.Schedule)
	} else {
		fmt.Printf("Interval:  %s\n", cfg.Poll.Interval)
	}
	if cfg.Auth.JWTSecret == "" {
		green.Print("    ▶ ")
		yellow.Println("Auth:      disabled")
	}
	fmt.Println()

	logger.Info("starting mailroom",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"provider", cfg.Mailbox.Provider,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// probe requests a health endpoint on the configured address
func probe(ctx context.Context, path string) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
	return nil
}
