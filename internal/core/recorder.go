package core

import (
	"context"

	"github.com/google/uuid"
)

// Recorder persists the progress of a batch. Recording errors are logged and
// never fail a run.
type Recorder interface {
	BatchStarted(ctx context.Context, batchId uuid.UUID, regions []string, derived bool) error
	RunStarted(ctx context.Context, batchId, runId uuid.UUID, position int, region string, derived bool) error
	StateChanged(ctx context.Context, runId uuid.UUID, state RunState) error
	RunFinished(ctx context.Context, outcome Outcome) error
	BatchFinished(ctx context.Context, batchId uuid.UUID, outcomes []Outcome) error
}

type noopRecorder struct{}

func (noopRecorder) BatchStarted(context.Context, uuid.UUID, []string, bool) error { return nil }

func (noopRecorder) RunStarted(context.Context, uuid.UUID, uuid.UUID, int, string, bool) error {
	return nil
}

func (noopRecorder) StateChanged(context.Context, uuid.UUID, RunState) error { return nil }

func (noopRecorder) RunFinished(context.Context, Outcome) error { return nil }

func (noopRecorder) BatchFinished(context.Context, uuid.UUID, []Outcome) error { return nil }
