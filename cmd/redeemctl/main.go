// cmd/redeemctl/main.go

// redeemctl submits a single code through one freshly bootstrapped worker
// and prints the outcome. Useful for checking a code by hand and for
// exercising the login flow before starting the daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/redeemly/redeemd/internal/redeem"
	"github.com/redeemly/redeemd/internal/redeem/webdriver"
	"github.com/redeemly/redeemd/pkg/schema"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <code>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	code, err := parseCode(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad code: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profileDir := filepath.Join(getenv("PROFILE_DIR", "./data/profiles"), "redeemctl")
	drv, err := webdriver.NewSession(ctx, getenv("WEBDRIVER_URL", "http://127.0.0.1:9515"), webdriver.Options{
		Headless:   getenv("HEADLESS", "true") == "true",
		ProfileDir: profileDir,
	})
	if err != nil {
		fatal(logger, "open browser session", err)
	}

	cfg := redeem.WorkerConfig{
		RedeemURL:      getenv("REDEEM_URL_TEMPLATE", "https://play.google.com/redeem?code=%s"),
		ConfirmTimeout: 30 * time.Second,
		SettleDelay:    3 * time.Second,
		DryRun:         getenv("DRY_RUN", "") == "true",
	}
	auth := &redeem.ConsoleAuthorizer{In: os.Stdin, Out: os.Stderr}

	worker, err := redeem.NewWorker(ctx, 1, drv, redeem.NewSessionStore(profileDir), auth, cfg, logger)
	if err != nil {
		_ = drv.Close(ctx)
		fatal(logger, "bootstrap worker", err)
	}

	start := time.Now()
	outcome := worker.Submit(ctx, code)
	fmt.Printf("%s | %s | %.3fs\n", code, outcome, time.Since(start).Seconds())

	if err := worker.Close(context.Background()); err != nil {
		logger.Warn("close worker", "err", err)
	}
	if outcome != schema.OutcomeSuccess && outcome != schema.OutcomeSuccessDryRun {
		os.Exit(1)
	}
}

func parseCode(arg string) (schema.Code, error) {
	raw := strings.ToUpper(strings.ReplaceAll(arg, "-", ""))
	if len(raw) != schema.CodeLength {
		return "", fmt.Errorf("want %d alphanumeric characters, got %d", schema.CodeLength, len(raw))
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", fmt.Errorf("invalid character %q", c)
		}
	}
	return schema.FormatCode(raw), nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
