// cmd/redeemd/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/redeemly/redeemd/internal/bus"
	"github.com/redeemly/redeemd/internal/metrics"
	"github.com/redeemly/redeemd/internal/ocr"
	"github.com/redeemly/redeemd/internal/pipeline"
	"github.com/redeemly/redeemd/internal/recorder"
	"github.com/redeemly/redeemd/internal/redeem"
	"github.com/redeemly/redeemd/internal/redeem/webdriver"
	"github.com/redeemly/redeemd/internal/source"
	"github.com/redeemly/redeemd/pkg/schema"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("redeemd starting",
		"source_kind", cfg.SourceKind,
		"pool_size", cfg.PoolSize,
		"dry_run", cfg.DryRun,
		"webdriver_url", cfg.WebDriverURL,
		"outcome_log", cfg.OutcomeLog,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := metrics.Serve(cfg.OpsAddr, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", "addr", cfg.OpsAddr, "err", err)
		}
	}()

	adapter, err := ocr.NewAdapter(ocr.NewTesseractEngine(), cfg.Crop, logger)
	if err != nil {
		fatal(logger, "build recognition adapter", err)
	}

	var nc *bus.Client
	if cfg.SourceKind == "nats" || cfg.ResultSubject != "" {
		nc, err = bus.Connect(cfg.NATSURL)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
		defer nc.Close()
	}

	auth := &redeem.ConsoleAuthorizer{In: os.Stdin, Out: os.Stdout}
	workerCfg := redeem.WorkerConfig{
		RedeemURL:      cfg.RedeemURL,
		ConfirmTimeout: cfg.ConfirmTimeout,
		SettleDelay:    cfg.SettleDelay,
		DryRun:         cfg.DryRun,
	}
	factory := func(ctx context.Context, id int, profileDir string) (*redeem.Worker, error) {
		drv, err := webdriver.NewSession(ctx, cfg.WebDriverURL, webdriver.Options{
			Headless:   cfg.Headless,
			ProfileDir: profileDir,
		})
		if err != nil {
			return nil, fmt.Errorf("open browser session: %w", err)
		}
		w, err := redeem.NewWorker(ctx, id, drv, redeem.NewSessionStore(profileDir), auth, workerCfg, logger)
		if err != nil {
			_ = drv.Close(ctx)
			return nil, err
		}
		return w, nil
	}

	pool, err := redeem.NewPool(ctx, cfg.PoolSize, cfg.ProfileDir, factory, logger)
	if err != nil {
		fatal(logger, "initialize worker pool", err)
	}

	rec, err := recorder.NewFileRecorder(cfg.OutcomeLog, logger)
	if err != nil {
		fatal(logger, "open outcome log", err, "path", cfg.OutcomeLog)
	}

	var publish func(schema.RedemptionDone)
	if nc != nil && cfg.ResultSubject != "" {
		publish = func(evt schema.RedemptionDone) {
			if err := nc.PublishJSON(cfg.ResultSubject, evt); err != nil {
				logger.Warn("publish result failed", "subject", cfg.ResultSubject, "code", evt.Code, "err", err)
			}
		}
	}

	pipe := pipeline.New(adapter, pool, rec, publish, logger)

	var src source.Source
	switch cfg.SourceKind {
	case "kafka":
		src = source.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
	default:
		src = source.NewNATS(nc, cfg.SourceSubject, logger)
	}
	go func() {
		if err := src.Run(ctx, pipe.Enqueue); err != nil {
			// Losing the image source is systemic: take the process down.
			logger.Error("image source failed", "err", err)
			stop()
		}
	}()

	logger.Info("pipeline online")
	pipe.Run(ctx)

	logger.Info("shutting down")
	pipe.Shutdown()

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool.Close(closeCtx)

	if err := rec.Close(); err != nil {
		logger.Warn("close outcome log", "err", err)
	}
	logger.Info("bye")
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
