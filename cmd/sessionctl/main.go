package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mobile-session/internal/config"
	"mobile-session/internal/container"
	"mobile-session/internal/idp"
	"mobile-session/internal/session"
	"mobile-session/pkg/errors"
	"mobile-session/pkg/logger"
)

const usage = `Usage: sessionctl <command> [args]

Commands:
  status                                   restore the stored session and print the user
  login <email> <password>                 sign in with email and password
  signup <email> <first> <last> <password> create an account and sign in
  social [google|apple]                    sign in through the hosted login page
  refresh                                  exchange the refresh token for a new access token
  logout                                   clear the stored session`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	c, err := container.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}
	defer c.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, c.Metrics.Handler()); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("Metrics listener stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errors.As(err).Message)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, c *container.Container, command string, args []string) error {
	m := c.Session

	switch command {
	case "status":
		printStorage(c.StorageStatus(ctx))
		if err := m.Bootstrap(ctx); err != nil {
			return err
		}
		printStatus(m)

	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: sessionctl login <email> <password>")
		}
		if err := m.LoginWithEmail(ctx, args[0], args[1]); err != nil {
			return err
		}
		printStatus(m)

	case "signup":
		if len(args) != 4 {
			return fmt.Errorf("usage: sessionctl signup <email> <first> <last> <password>")
		}
		if err := m.Signup(ctx, args[0], args[1], args[2], args[3]); err != nil {
			return err
		}
		printStatus(m)

	case "social":
		connection := ""
		if len(args) > 0 {
			switch args[0] {
			case "google":
				connection = idp.ConnectionGoogle
			case "apple":
				connection = idp.ConnectionApple
			default:
				return fmt.Errorf("unknown provider %q", args[0])
			}
		}
		outcome, err := m.LoginWithIdentityProvider(ctx, c.Authenticator(stdinPrompt, connection))
		if err != nil {
			return err
		}
		if outcome == session.OutcomeCancelled {
			fmt.Println("Login cancelled")
			return nil
		}
		printStatus(m)

	case "refresh":
		if _, err := m.RefreshTokens(ctx); err != nil {
			return err
		}
		fmt.Println("✅ Access token refreshed")

	case "logout":
		if err := m.SignOut(ctx); err != nil {
			return err
		}
		fmt.Println("✅ Signed out")

	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
	return nil
}

func printStatus(m *session.Manager) {
	fmt.Printf("State: %s\n", m.State())
	if u := m.CurrentUser(); u != nil {
		fmt.Printf("User:  %s <%s> (%s)\n", u.DisplayName(), u.Email, u.ID)
	}
}

func printStorage(s container.StorageStatus) {
	switch {
	case !s.Reachable:
		fmt.Printf("Storage: %s (unreachable: %v)\n", s.Backend, s.Error)
	case s.Fields != nil:
		fmt.Printf("Storage: %s (%d slots: %s)\n", s.Backend, len(s.Fields), strings.Join(s.Fields, ", "))
	default:
		fmt.Printf("Storage: %s\n", s.Backend)
	}
}

// stdinPrompt prints the login URL and reads back the URL the browser was redirected to.
// An empty line cancels.
func stdinPrompt(ctx context.Context, authURL string) (string, error) {
	fmt.Println("Open this URL in a browser and sign in:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Print("Paste the redirect URL (empty to cancel): ")

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		lines <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-lines:
		if line == "" {
			return "", idp.ErrUserCancelled
		}
		return line, nil
	}
}
