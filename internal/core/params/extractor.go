package params

import (
	"context"
	"fmt"
	"nowcast-pipeline/internal/core/types"
	"nowcast-pipeline/internal/registry"
)

type GenerationTimeSource interface {
	Get(ctx context.Context, ref string) (types.Delay, error)
}

// Extractor builds the delay parameters an engine run needs from a descriptor.
type Extractor struct {
	generationTimes GenerationTimeSource
}

func NewExtractor(generationTimes GenerationTimeSource) *Extractor {
	return &Extractor{generationTimes: generationTimes}
}

func (e *Extractor) Extract(ctx context.Context, desc registry.Descriptor) (types.DelayParameters, error) {
	generationTime, err := e.generationTimes.Get(ctx, desc.GenerationTimeRef)
	if err != nil {
		return types.DelayParameters{}, fmt.Errorf("error extracting parameters for '%s': %w", desc.Name, err)
	}

	return types.DelayParameters{
		IncubationPeriod: desc.IncubationPeriod,
		ReportingDelay:   desc.ReportingDelay,
		GenerationTime:   generationTime,
		EngineOptions:    desc.EngineOptions,
		TargetFolder:     desc.TargetFolder,
	}, nil
}
