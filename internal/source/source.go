// internal/source/source.go

// Package source delivers candidate images into the pipeline. The core makes
// no assumption about where images come from beyond "decodable raster bytes
// with an origin label"; each transport lives in its own implementation.
package source

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redeemly/redeemd/internal/pipeline"
	"github.com/redeemly/redeemd/pkg/schema"
)

// Enqueue hands one image task to the pipeline's image queue.
type Enqueue func(task pipeline.ImageTask)

// Source feeds image tasks until ctx ends. Run returns nil on orderly
// shutdown; any other return is a systemic failure the caller surfaces.
type Source interface {
	Run(ctx context.Context, enqueue Enqueue) error
}

// taskFromEvent converts a wire event into an immutable image task,
// preserving the bridge-assigned id and arrival timestamp when present.
func taskFromEvent(evt schema.ImageReceived) pipeline.ImageTask {
	arrived := time.Now()
	if evt.HappenedAt > 0 {
		arrived = time.Unix(evt.HappenedAt, 0)
	}
	task := pipeline.NewImageTask(evt.Payload, evt.Origin, arrived)
	if id, err := uuid.Parse(evt.ID); err == nil {
		task.ID = id
	}
	return task
}
