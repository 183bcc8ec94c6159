// internal/redeem/driver.go
package redeem

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by WaitClickable when the element never became
// clickable within the given timeout. Any other error is a transport failure.
var ErrWaitTimeout = errors.New("timed out waiting for clickable element")

// Element is an opaque handle to a page element, meaningful only to the
// Driver that produced it.
type Element string

// Driver is the browser-level session driver a worker submits codes through.
// Implementations own one long-lived browser session; workers never share a
// driver. The surface is deliberately narrow: navigation, element waits,
// element queries, page text, clicks.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitClickable(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	FindElements(ctx context.Context, selector string) ([]Element, error)
	PageText(ctx context.Context) (string, error)
	Click(ctx context.Context, el Element) error
	Close(ctx context.Context) error
}

// SessionManager is implemented by drivers that can export and re-import
// session state (cookies). Drivers backed by a persistent on-disk profile may
// omit it; bootstrap then relies on the profile directory alone.
type SessionManager interface {
	DumpSession(ctx context.Context) ([]byte, error)
	RestoreSession(ctx context.Context, state []byte) error
}

// Authorizer resolves the one-time interactive login a fresh session needs.
// It blocks until authorization is complete (a human finishing the sign-in
// flow in the worker's browser window) or fails.
type Authorizer interface {
	Authorize(ctx context.Context, workerID int) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, workerID int) error

func (f AuthorizerFunc) Authorize(ctx context.Context, workerID int) error {
	return f(ctx, workerID)
}
