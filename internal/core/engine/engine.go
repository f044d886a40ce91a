package engine

import (
	"context"
	"errors"
	"fmt"
	"nowcast-pipeline/internal/core/table"
	"nowcast-pipeline/internal/core/types"
	"time"
)

type Request struct {
	Region       string
	Cases        table.EngineTable
	Delays       types.DelayParameters
	TargetFolder string
}

type Result struct {
	Region       string
	TargetFolder string
	// Files written to the target folder, relative to it.
	Outputs  []string
	Duration time.Duration
}

// Engine runs the estimation for one region and writes its results to the
// request's target folder. Implementations must not retry.
type Engine interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

func engineError(region string, err error) error {
	if errors.Is(err, types.ErrEngine) {
		return err
	}
	return fmt.Errorf("%w: region '%s': %w", types.ErrEngine, region, err)
}
