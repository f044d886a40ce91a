package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"nowcast-pipeline/internal/acquisition"
	"nowcast-pipeline/internal/core/engine"
	"nowcast-pipeline/internal/core/table"
	"nowcast-pipeline/internal/core/types"
	"nowcast-pipeline/internal/core/utils"
	"nowcast-pipeline/internal/registry"
	"time"

	"github.com/google/uuid"
)

const maxTargetFolders = 4096

type Resolver interface {
	Resolve(name string) (registry.Descriptor, error)
	ResolveDerivative(name string) (registry.Descriptor, error)
}

type ParameterExtractor interface {
	Extract(ctx context.Context, desc registry.Descriptor) (types.DelayParameters, error)
}

type Options struct {
	// Number of regions processed concurrently, at least 1.
	Workers int

	// Zero disables the timeout.
	FetchTimeout  time.Duration
	EngineTimeout time.Duration

	// Resolve regions against the derivative namespace instead of datasets.
	Derivatives bool

	Recorder Recorder

	// Called once per region as soon as its run terminates, possibly from
	// several goroutines at once.
	OnOutcome func(Outcome)
}

// Orchestrator drives every requested region through resolve, fetch,
// normalize, extract and invoke. A failing region never affects the others.
type Orchestrator struct {
	resolver  Resolver
	source    acquisition.Source
	extractor ParameterExtractor
	engine    engine.Engine
	opts      Options

	// Regions sharing a target folder must not run the engine concurrently.
	folders *utils.MutexMap
}

func NewOrchestrator(resolver Resolver, source acquisition.Source, extractor ParameterExtractor, eng engine.Engine, opts Options) (*Orchestrator, error) {
	if resolver == nil || source == nil || extractor == nil || eng == nil {
		return nil, fmt.Errorf("%w: orchestrator requires a registry, source, extractor and engine", types.ErrConfiguration)
	}
	if opts.Workers < 1 {
		return nil, fmt.Errorf("%w: workers must be at least 1, got %d", types.ErrConfiguration, opts.Workers)
	}
	if opts.FetchTimeout < 0 || opts.EngineTimeout < 0 {
		return nil, fmt.Errorf("%w: timeouts must not be negative", types.ErrConfiguration)
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}

	return &Orchestrator{
		resolver:  resolver,
		source:    source,
		extractor: extractor,
		engine:    eng,
		opts:      opts,
		folders:   utils.NewMutexMap(maxTargetFolders),
	}, nil
}

type runInput struct {
	position int
	region   string
}

// Run processes every region and returns one outcome per region in request
// order. The only error it returns is ErrConfiguration for an empty request,
// per-region failures are reported in the outcomes.
func (o *Orchestrator) Run(ctx context.Context, regions []string) ([]Outcome, error) {
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: no regions requested", types.ErrConfiguration)
	}

	batchId := uuid.New()
	slog.Info("starting batch", "batch_id", batchId, "regions", regions, "derivatives", o.opts.Derivatives, "workers", o.opts.Workers)

	if err := o.opts.Recorder.BatchStarted(ctx, batchId, regions, o.opts.Derivatives); err != nil {
		slog.Error("error recording batch start", "batch_id", batchId, "error", err)
	}

	inputs := make([]runInput, len(regions))
	for i, region := range regions {
		inputs[i] = runInput{position: i, region: region}
	}

	worker := func(ctx context.Context, in runInput) (Outcome, error) {
		outcome := o.runRegion(ctx, batchId, in.position, in.region)
		if o.opts.OnOutcome != nil {
			o.opts.OnOutcome(outcome)
		}
		return outcome, nil
	}

	completed := utils.Collect(ctx, inputs, worker, o.opts.Workers)

	outcomes := make([]Outcome, len(completed))
	succeeded := 0
	for i, task := range completed {
		outcomes[i] = task.Result
		if task.Result.Succeeded() {
			succeeded++
		}
	}

	// Recorded even when the batch was canceled.
	if err := o.opts.Recorder.BatchFinished(context.WithoutCancel(ctx), batchId, outcomes); err != nil {
		slog.Error("error recording batch completion", "batch_id", batchId, "error", err)
	}

	slog.Info("batch completed", "batch_id", batchId, "succeeded", succeeded, "failed", len(outcomes)-succeeded)

	return outcomes, nil
}

func (o *Orchestrator) runRegion(ctx context.Context, batchId uuid.UUID, position int, region string) Outcome {
	outcome := Outcome{
		RunId:     uuid.New(),
		BatchId:   batchId,
		Region:    region,
		Derived:   o.opts.Derivatives,
		StartTime: time.Now().UTC(),
	}

	slog.Info("starting run", "region", region, "run_id", outcome.RunId)
	if err := o.opts.Recorder.RunStarted(ctx, batchId, outcome.RunId, position, region, o.opts.Derivatives); err != nil {
		slog.Error("error recording run start", "region", region, "run_id", outcome.RunId, "error", err)
	}

	state := Resolving
	res, target, err := o.execute(ctx, region, func(next RunState) {
		state = next
		if err := o.opts.Recorder.StateChanged(ctx, outcome.RunId, next); err != nil {
			slog.Error("error recording run state", "region", region, "run_id", outcome.RunId, "state", next, "error", err)
		}
	})

	outcome.TargetFolder = target
	outcome.CompletionTime = time.Now().UTC()

	if err != nil {
		outcome.State = Failed
		outcome.FailedStage = state
		outcome.ErrorKind = types.KindOf(err)
		outcome.Err = err
		slog.Error("run failed", "region", region, "run_id", outcome.RunId, "stage", state, "kind", outcome.ErrorKind, "error", err)
	} else {
		outcome.State = Succeeded
		outcome.Result = res
		slog.Info("run succeeded", "region", region, "run_id", outcome.RunId, "target_folder", target, "outputs", len(res.Outputs))
	}

	if err := o.opts.Recorder.RunFinished(context.WithoutCancel(ctx), outcome); err != nil {
		slog.Error("error recording run completion", "region", region, "run_id", outcome.RunId, "error", err)
	}

	return outcome
}

func (o *Orchestrator) execute(ctx context.Context, region string, enter func(RunState)) (engine.Result, string, error) {
	enter(Resolving)
	if err := ctx.Err(); err != nil {
		return engine.Result{}, "", fmt.Errorf("run for '%s' not started: %w", region, err)
	}

	desc, err := o.resolve(region)
	if err != nil {
		return engine.Result{}, "", err
	}

	enter(Fetching)
	raw, err := o.fetch(ctx, desc.Country)
	if err != nil {
		return engine.Result{}, desc.TargetFolder, err
	}

	enter(Normalizing)
	canonical, err := table.Normalize(raw, desc.CasesSubregionSource)
	if err != nil {
		return engine.Result{}, desc.TargetFolder, err
	}
	slog.Info("normalized case table", "region", region, "rows", canonical.NumRows(), "subregions", len(canonical.Regions()))

	enter(Extracting)
	delays, err := o.extractor.Extract(ctx, desc)
	if err != nil {
		return engine.Result{}, desc.TargetFolder, err
	}

	enter(Invoking)
	cases, err := table.ToEngineFormat(canonical)
	if err != nil {
		return engine.Result{}, desc.TargetFolder, fmt.Errorf("%w: %w", types.ErrSchemaMismatch, err)
	}

	res, err := o.invoke(ctx, engine.Request{
		Region:       desc.Name,
		Cases:        cases,
		Delays:       delays,
		TargetFolder: delays.TargetFolder,
	})
	if err != nil {
		return engine.Result{}, desc.TargetFolder, err
	}

	return res, desc.TargetFolder, nil
}

func (o *Orchestrator) resolve(region string) (registry.Descriptor, error) {
	if o.opts.Derivatives {
		return o.resolver.ResolveDerivative(region)
	}
	return o.resolver.Resolve(region)
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (o *Orchestrator) fetch(ctx context.Context, country string) (table.RawTable, error) {
	fetchCtx, cancel := withOptionalTimeout(ctx, o.opts.FetchTimeout)
	defer cancel()

	raw, err := o.source.Fetch(fetchCtx, country)
	if err != nil {
		if ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, types.ErrTimeout) {
			return table.RawTable{}, fmt.Errorf("%w: fetch exceeded %s: %w", types.ErrTimeout, o.opts.FetchTimeout, err)
		}
		if !errors.Is(err, types.ErrAcquisition) && !errors.Is(err, types.ErrTimeout) && !errors.Is(err, context.Canceled) {
			return table.RawTable{}, fmt.Errorf("%w: %w", types.ErrAcquisition, err)
		}
		return table.RawTable{}, err
	}
	return raw, nil
}

type invokeReply struct {
	res engine.Result
	err error
}

// invoke waits for the engine at most EngineTimeout. An engine call that has
// started is not canceled, a timed out run simply stops waiting for it. A run
// that times out or is canceled while queued for its target folder never
// starts the engine.
func (o *Orchestrator) invoke(ctx context.Context, req engine.Request) (engine.Result, error) {
	waitCtx, cancel := withOptionalTimeout(ctx, o.opts.EngineTimeout)
	defer cancel()

	done := make(chan invokeReply, 1)

	go func() {
		var reply invokeReply
		err := o.folders.WithLock(req.TargetFolder, func() error {
			if err := waitCtx.Err(); err != nil {
				return err
			}
			reply.res, reply.err = o.engine.Invoke(context.WithoutCancel(ctx), req)
			return nil
		})
		if err != nil {
			reply.err = err
		}
		done <- reply
	}()

	select {
	case reply := <-done:
		if reply.err != nil {
			if errors.Is(reply.err, types.ErrEngine) {
				return engine.Result{}, reply.err
			}
			return engine.Result{}, fmt.Errorf("%w: region '%s': %w", types.ErrEngine, req.Region, reply.err)
		}
		return reply.res, nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return engine.Result{}, fmt.Errorf("stopped waiting for engine for '%s': %w", req.Region, err)
		}
		return engine.Result{}, fmt.Errorf("%w: engine did not finish for '%s' within %s", types.ErrTimeout, req.Region, o.opts.EngineTimeout)
	}
}
