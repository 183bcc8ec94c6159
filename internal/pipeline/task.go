// internal/pipeline/task.go
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// ImageTask is one candidate image delivered by the source. Immutable once
// enqueued; dropped after recognition regardless of outcome.
type ImageTask struct {
	ID        uuid.UUID
	Payload   []byte
	Origin    string
	ArrivedAt time.Time
}

func NewImageTask(payload []byte, origin string, arrivedAt time.Time) ImageTask {
	return ImageTask{
		ID:        uuid.New(),
		Payload:   payload,
		Origin:    origin,
		ArrivedAt: arrivedAt,
	}
}
