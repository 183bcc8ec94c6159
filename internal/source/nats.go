// internal/source/nats.go
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redeemly/redeemd/internal/bus"
	"github.com/redeemly/redeemd/pkg/schema"
)

// NATS consumes ImageReceived events from a subject. Reconnection is the
// bus client's job; a lost broker pauses delivery rather than failing Run.
type NATS struct {
	client  *bus.Client
	subject string
	logger  *slog.Logger
}

func NewNATS(client *bus.Client, subject string, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{client: client, subject: subject, logger: logger}
}

func (s *NATS) Run(ctx context.Context, enqueue Enqueue) error {
	sub, err := s.client.Subscribe(s.subject, func(data []byte) {
		var evt schema.ImageReceived
		if err := json.Unmarshal(data, &evt); err != nil {
			s.logger.Warn("drop malformed image event", "subject", s.subject, "err", err)
			return
		}
		if len(evt.Payload) == 0 {
			s.logger.Warn("drop image event without payload", "id", evt.ID, "origin", evt.Origin)
			return
		}
		task := taskFromEvent(evt)
		s.logger.Info("image queued", "task_id", task.ID, "origin", task.Origin, "bytes", len(task.Payload))
		enqueue(task)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.logger.Info("listening for images", "subject", s.subject)
	<-ctx.Done()
	return nil
}
