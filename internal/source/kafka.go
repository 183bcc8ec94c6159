// internal/source/kafka.go
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	kgo "github.com/segmentio/kafka-go"

	"github.com/redeemly/redeemd/pkg/schema"
)

// Kafka consumes ImageReceived events from a topic with manual commits:
// a message is committed once its task is on the image queue, and malformed
// messages are committed immediately so the group never wedges on them.
type Kafka struct {
	reader *kgo.Reader
	logger *slog.Logger
}

func NewKafka(brokers []string, topic, groupID string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})
	return &Kafka{reader: r, logger: logger}
}

func (s *Kafka) Run(ctx context.Context, enqueue Enqueue) error {
	defer func() { _ = s.reader.Close() }()

	s.logger.Info("listening for images", "topic", s.reader.Config().Topic, "group", s.reader.Config().GroupID)
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var evt schema.ImageReceived
		if err := json.Unmarshal(m.Value, &evt); err != nil || len(evt.Payload) == 0 {
			// Commit bad messages so the group doesn't re-read them forever.
			s.logger.Warn("drop malformed image message", "offset", m.Offset, "err", err)
			_ = s.reader.CommitMessages(ctx, m)
			continue
		}

		task := taskFromEvent(evt)
		s.logger.Info("image queued", "task_id", task.ID, "origin", task.Origin, "bytes", len(task.Payload))
		enqueue(task)

		if err := s.reader.CommitMessages(ctx, m); err != nil {
			s.logger.Warn("commit failed", "offset", m.Offset, "err", err)
		}
	}
}
