// internal/redeem/authorizer.go
package redeem

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// ConsoleAuthorizer blocks on the console until a human confirms the login
// flow finished in the worker's browser window. One line of input resolves
// the authorization.
type ConsoleAuthorizer struct {
	In  io.Reader
	Out io.Writer
}

func (a *ConsoleAuthorizer) Authorize(ctx context.Context, workerID int) error {
	fmt.Fprintf(a.Out, "\n=== MANUAL LOGIN REQUIRED (worker %d) ===\n", workerID)
	fmt.Fprintf(a.Out, "Sign in inside the worker's browser window, then press ENTER here to continue...\n")

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(a.In).ReadString('\n')
		if err != nil && err != io.EOF {
			done <- fmt.Errorf("read confirmation: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
