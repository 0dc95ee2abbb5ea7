// Package main provides a terminal client for the admin operator plane. It
// drives mutations through the coordinator, prompting for step-up credentials
// or a break-glass justification when the server asks for them.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/louisbranch/noticeboard/internal/platform/config"
	"github.com/louisbranch/noticeboard/internal/services/admin/client"
)

func main() {
	var serverURL string
	var sessionToken string
	var method string
	var body string

	flag.StringVar(&serverURL, "server", envOr("NOTICEBOARD_ADMIN_URL", "http://localhost:8084"), "admin server base URL")
	flag.StringVar(&sessionToken, "session", os.Getenv("NOTICEBOARD_SESSION_TOKEN"), "session token (nb_token cookie value)")
	flag.StringVar(&method, "method", "POST", "HTTP method for the mutation")
	flag.StringVar(&body, "body", "", "JSON request body")
	flag.Parse()

	path := flag.Arg(0)
	if path == "" {
		config.Exitf("usage: adminctl [flags] <path>\nexample: adminctl -session $TOKEN /announcements/ann-1/publish")
	}
	if sessionToken == "" {
		config.Exitf("a session token is required (-session or NOTICEBOARD_SESSION_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator, err := client.New(serverURL, nil, &terminalPrompter{input: bufio.NewReader(os.Stdin)})
	if err != nil {
		config.Exitf("build client: %v", err)
	}
	coordinator.Login(sessionToken)

	var payload []byte
	if body != "" {
		payload = []byte(body)
	}
	outcome, err := coordinator.Mutate(ctx, strings.ToUpper(method), path, payload)
	if err != nil {
		config.Exitf("mutation failed: %v", err)
	}

	if outcome.RequiresApproval {
		log.Printf("mutation queued for approval; approval id: %s", outcome.ApprovalID)
		log.Printf("re-run the same command after a second operator approves")
		return
	}
	if outcome.Replayed {
		log.Printf("server replayed a previously completed outcome")
	}
	fmt.Println(string(outcome.Body))
}

// terminalPrompter collects interactive inputs from stdin.
type terminalPrompter struct {
	input *bufio.Reader
}

func (p *terminalPrompter) StepUpCredentials(_ context.Context) (string, string, error) {
	password, err := p.read("password: ")
	if err != nil {
		return "", "", err
	}
	otp, err := p.read("otp (blank if not enrolled): ")
	if err != nil {
		return "", "", err
	}
	return password, otp, nil
}

func (p *terminalPrompter) BreakGlassReason(_ context.Context, minLength int) (string, error) {
	fmt.Fprintf(os.Stderr, "mutation requires a second approver; break-glass is available\n")
	reason, err := p.read(fmt.Sprintf("break-glass reason (min %d chars, blank to wait for approval): ", minLength))
	if err != nil {
		return "", err
	}
	if reason == "" {
		return "", client.ErrDeclined
	}
	return reason, nil
}

func (p *terminalPrompter) read(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := p.input.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
