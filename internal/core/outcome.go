package core

import (
	"fmt"
	"nowcast-pipeline/internal/core/engine"
	"nowcast-pipeline/internal/core/types"
	"time"

	"github.com/google/uuid"
)

type RunState string

const (
	Resolving   RunState = "RESOLVING"
	Fetching    RunState = "FETCHING"
	Normalizing RunState = "NORMALIZING"
	Extracting  RunState = "EXTRACTING"
	Invoking    RunState = "INVOKING"
	Succeeded   RunState = "SUCCEEDED"
	Failed      RunState = "FAILED"
)

func (s RunState) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Outcome is the terminal result of one region run.
type Outcome struct {
	RunId   uuid.UUID
	BatchId uuid.UUID
	Region  string
	Derived bool

	State RunState

	// Set when State is Failed.
	FailedStage RunState
	ErrorKind   types.ErrorKind
	Err         error

	TargetFolder string
	Result       engine.Result

	StartTime      time.Time
	CompletionTime time.Time
}

func (o Outcome) Succeeded() bool {
	return o.State == Succeeded
}

func (o Outcome) String() string {
	if o.Succeeded() {
		return fmt.Sprintf("%s: %s -> %s (%d outputs, %s)", o.Region, o.State, o.TargetFolder, len(o.Result.Outputs), o.CompletionTime.Sub(o.StartTime).Round(time.Millisecond))
	}
	return fmt.Sprintf("%s: %s during %s [%s] %v", o.Region, o.State, o.FailedStage, o.ErrorKind, o.Err)
}
