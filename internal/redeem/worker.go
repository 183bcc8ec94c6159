// internal/redeem/worker.go
package redeem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redeemly/redeemd/pkg/schema"
)

// Page selectors and phrases for the redemption flow. The confirm button is
// the authoritative signal that a code is structurally valid; the phrase
// table is the fallback when it never appears.
const (
	confirmButtonSelector = `//button[contains(text(), 'Confirm')]`
	invalidMarkerSelector = `//*[contains(text(), "That code didn't work")]`
)

// Fallback phrases, checked against lower-cased page text in precedence
// order: first match wins.
var (
	alreadyUsedPhrases = []string{"already redeemed", "already been used"}
	successPhrases     = []string{"successfully redeemed", "added to your account"}
	invalidPhrases     = []string{"code didn't work", "invalid code"}
	loginPhrases       = []string{"verify it's you", "you must sign in"}
)

// WorkerConfig carries the per-submission tunables. RedeemURL is a template
// with a single %s verb for the query-escaped code.
type WorkerConfig struct {
	RedeemURL      string
	ConfirmTimeout time.Duration
	SettleDelay    time.Duration
	DryRun         bool
}

// Worker owns one browser session and submits one code at a time. Instances
// are not safe for concurrent use; the pool enforces exclusivity.
type Worker struct {
	ID     int
	driver Driver
	cfg    WorkerConfig
	logger *slog.Logger
}

// NewWorker warms up a worker: the driver's session is restored from the
// store, or established through the authorizer and then persisted. A worker
// that cannot end up with a usable session is a construction error.
func NewWorker(ctx context.Context, id int, driver Driver, store *SessionStore, auth Authorizer, cfg WorkerConfig, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		ID:     id,
		driver: driver,
		cfg:    cfg,
		logger: logger.With("worker_id", id),
	}
	if err := w.bootstrap(ctx, store, auth); err != nil {
		return nil, fmt.Errorf("worker %d: session bootstrap: %w", id, err)
	}
	w.logger.Info("worker ready")
	return w, nil
}

func (w *Worker) bootstrap(ctx context.Context, store *SessionStore, auth Authorizer) error {
	sm, ok := w.driver.(SessionManager)
	if !ok {
		// Driver persists its own profile on disk; nothing to restore here.
		return nil
	}

	if state, err := store.Load(); err == nil {
		if err := sm.RestoreSession(ctx, state); err == nil {
			w.logger.Info("session restored")
			return nil
		} else {
			w.logger.Warn("saved session rejected, falling back to authorization", "err", err)
		}
	}

	if auth == nil {
		return errors.New("no saved session and no authorizer configured")
	}

	// Land on the sign-in page so the human has something to log in to.
	if err := w.driver.Navigate(ctx, w.loginURL()); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := auth.Authorize(ctx, w.ID); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	state, err := sm.DumpSession(ctx)
	if err != nil {
		return fmt.Errorf("dump session: %w", err)
	}
	if err := store.Save(state); err != nil {
		return err
	}
	w.logger.Info("session authorized and saved")
	return nil
}

func (w *Worker) loginURL() string {
	if i := strings.Index(w.cfg.RedeemURL, "?"); i >= 0 {
		return w.cfg.RedeemURL[:i]
	}
	return w.cfg.RedeemURL
}

// Submit runs the code-submission state machine and always produces a
// terminal outcome; it never returns an error. Blocking for the full browser
// round-trip is expected, so callers run it off the cooperative stages.
func (w *Worker) Submit(ctx context.Context, code schema.Code) schema.Outcome {
	w.logger.Info("submitting code", "code", code)

	target := fmt.Sprintf(w.cfg.RedeemURL, url.QueryEscape(code.String()))
	if err := w.driver.Navigate(ctx, target); err != nil {
		// The page may already show an outcome banner; classify what's there.
		w.logger.Debug("navigation failed, observing current page state", "err", err)
	}

	el, err := w.driver.WaitClickable(ctx, confirmButtonSelector, w.cfg.ConfirmTimeout)
	if err == nil {
		if w.cfg.DryRun {
			w.logger.Info("dry run, skipping confirm click", "code", code)
			return schema.OutcomeSuccessDryRun
		}
		if err := w.driver.Click(ctx, el); err != nil {
			w.logger.Warn("confirm click failed", "err", err)
			return schema.OutcomeTransport
		}
		w.settle(ctx)
		return schema.OutcomeSuccess
	}
	if !errors.Is(err, ErrWaitTimeout) {
		w.logger.Warn("wait for confirm failed", "err", err)
		return schema.OutcomeTransport
	}

	// Confirm never appeared: an explicit invalid marker beats text scanning.
	if els, err := w.driver.FindElements(ctx, invalidMarkerSelector); err == nil && len(els) > 0 {
		return schema.OutcomeInvalid
	}

	return w.classifyPage(ctx)
}

func (w *Worker) classifyPage(ctx context.Context) schema.Outcome {
	text, err := w.driver.PageText(ctx)
	if err != nil {
		w.logger.Warn("read page text failed", "err", err)
		return schema.OutcomeTransport
	}
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, alreadyUsedPhrases):
		return schema.OutcomeAlreadyUsed
	case containsAny(lower, successPhrases):
		return schema.OutcomeSuccess
	case containsAny(lower, invalidPhrases):
		return schema.OutcomeInvalid
	case containsAny(lower, loginPhrases):
		return schema.OutcomeLoginRequired
	default:
		return schema.OutcomeUnknownError
	}
}

func (w *Worker) settle(ctx context.Context) {
	if w.cfg.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(w.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Close tears the browser session down. Called only at pool shutdown.
func (w *Worker) Close(ctx context.Context) error {
	return w.driver.Close(ctx)
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
