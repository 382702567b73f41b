// ABOUTME: Operator CLI for a running mailroom server
// ABOUTME: Lists threads, prints history and sends manual replies over the HTTP API

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/mailroom/internal/config"
	"github.com/2389/mailroom/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := newAPIClient(baseURL(), getToken())
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "threads":
		err = cmdThreads(ctx, os.Stdout, client)
	case "chats":
		err = cmdChats(ctx, os.Stdout, client)
	case "history":
		err = cmdHistory(ctx, os.Stdout, client, args)
	case "reply":
		err = cmdReply(ctx, os.Stdout, client, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: mailroom-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  threads                          List thread ids in first-seen order")
	fmt.Println("  chats                            Summarize every thread")
	fmt.Println("  history <thread-id>              Print a thread's message log")
	fmt.Println("  reply <thread-id> --message TEXT [--to ADDR] [--subject TEXT]")
	fmt.Println("                                   Send a manual reply into a thread")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  MAILROOM_URL      Server URL (default: http://127.0.0.1:8000)")
	fmt.Println("  MAILROOM_TOKEN    Bearer token (default: token file next to the config)")
	fmt.Println()
}

func baseURL() string {
	if u := os.Getenv("MAILROOM_URL"); u != "" {
		return u
	}
	return "http://127.0.0.1:8000"
}

// getToken reads MAILROOM_TOKEN, falling back to the file written by `mailroom token`
func getToken() string {
	if token := os.Getenv("MAILROOM_TOKEN"); token != "" {
		return token
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(config.DefaultPath()), "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func cmdThreads(ctx context.Context, w io.Writer, c *apiClient) error {
	ids, err := c.ThreadIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No threads yet.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func cmdChats(ctx context.Context, w io.Writer, c *apiClient) error {
	chats, err := c.Chats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(w, "No threads yet.")
		return nil
	}

	ids := make([]string, 0, len(chats))
	for id := range chats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tMESSAGES\tLAST ROLE\tATTENTION")
	for _, id := range ids {
		msgs := chats[id]
		last := "-"
		if len(msgs) > 0 {
			last = string(msgs[len(msgs)-1].Role)
		}
		attention := ""
		if needsAttention(msgs) {
			attention = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", id, len(msgs), last, attention)
	}
	return tw.Flush()
}

func cmdHistory(ctx context.Context, w io.Writer, c *apiClient, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mailroom-admin history <thread-id>")
	}

	msgs, err := c.History(ctx, args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	for _, m := range msgs {
		header := fmt.Sprintf("[%s] %s", m.Role, m.ID)
		if m.From != "" {
			header += " from " + m.From
		}
		cyan.Fprintln(w, header)
		if m.RequiresHumanAttention {
			yellow.Fprintln(w, "  needs human attention")
		}
		for _, line := range strings.Split(strings.TrimSpace(m.Body), "\n") {
			fmt.Fprintln(w, "  "+line)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func cmdReply(ctx context.Context, w io.Writer, c *apiClient, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: mailroom-admin reply <thread-id> --message TEXT [--to ADDR] [--subject TEXT]")
	}
	threadID := args[0]

	var req replyRequest
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		flag := rest[i]
		if i+1 >= len(rest) {
			return fmt.Errorf("%s requires a value", flag)
		}
		val := rest[i+1]
		i++
		switch flag {
		case "--message", "-m":
			req.Message = val
		case "--to":
			req.To = val
		case "--subject":
			req.Subject = val
		default:
			return fmt.Errorf("unknown flag: %s", flag)
		}
	}
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("--message is required")
	}

	resp, err := c.Reply(ctx, threadID, req)
	if err != nil {
		return err
	}
	if resp.Status != "success" {
		return errors.New(resp.Message)
	}

	color.New(color.FgGreen).Fprintf(w, "  ✓ %s\n", resp.Message)
	return nil
}

func needsAttention(msgs []store.Message) bool {
	for _, m := range msgs {
		if m.RequiresHumanAttention {
			return true
		}
	}
	return false
}
