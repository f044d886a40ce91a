package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"nowcast-pipeline/cmd"
	"nowcast-pipeline/internal/acquisition"
	"nowcast-pipeline/internal/config"
	"nowcast-pipeline/internal/core"
	"nowcast-pipeline/internal/core/engine"
	"nowcast-pipeline/internal/core/params"
	"nowcast-pipeline/internal/core/types"
	"nowcast-pipeline/internal/database"
	"nowcast-pipeline/internal/registry"
	"nowcast-pipeline/internal/storage"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-plugin"
	"github.com/schollz/progressbar/v3"
)

const (
	exitOK        = 0
	exitRunFailed = 1
	exitConfig    = 2

	historyLimit = 10
)

type flags struct {
	envFile    string
	registry   string
	derivative bool
	workers    int
	list       bool
	history    string
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.envFile, "env", "", "path to load env from")
	flag.StringVar(&f.registry, "registry", "", "registry file, overrides REGISTRY_PATH")
	flag.BoolVar(&f.derivative, "derivative", false, "resolve regions against the derivative datasets")
	flag.IntVar(&f.workers, "workers", 0, "regions processed concurrently, overrides WORKERS")
	flag.BoolVar(&f.list, "list", false, "list datasets and derivatives and exit")
	flag.StringVar(&f.history, "history", "", "print the latest runs of a region and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] REGION [REGION...]\n\nRegions may also be given comma separated.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	return f
}

func splitRegions(args []string) []string {
	var regions []string
	for _, arg := range args {
		for _, region := range strings.Split(arg, ",") {
			if region = strings.TrimSpace(region); region != "" {
				regions = append(regions, region)
			}
		}
	}
	return regions
}

func newProvider(cfg config.Config) (storage.Provider, error) {
	if cfg.StorageBackend == config.S3Storage {
		return storage.NewS3Provider(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	}
	return storage.NewLocalProvider(cfg.StorageDir)
}

func newSource(ctx context.Context, cfg config.Config, provider storage.Provider) (acquisition.Source, error) {
	if cfg.AcquisitionBucket != "" {
		slog.Info("reading case tables from object store", "bucket", cfg.AcquisitionBucket)
		return acquisition.NewObjectStoreSource(provider, cfg.AcquisitionBucket), nil
	}

	source := acquisition.NewHTTPSource(cfg.AcquisitionURL)
	if cfg.SnapshotBucket != "" {
		if err := provider.CreateBucket(ctx, cfg.SnapshotBucket); err != nil {
			return nil, fmt.Errorf("error creating snapshot bucket: %w", err)
		}
		source = source.WithSnapshots(provider, cfg.SnapshotBucket)
	}
	return source, nil
}

func listRegistry(reg *registry.Registry) {
	fmt.Println("datasets:")
	for _, d := range reg.Datasets() {
		fmt.Printf("  %-24s %-10s %s\n", d.Name, d.RegionScale, d.TargetFolder)
	}
	fmt.Println("derivatives:")
	for _, d := range reg.Derivatives() {
		fmt.Printf("  %-24s %-10s %s (sources: %s)\n", d.Name, d.RegionScale, d.TargetFolder, strings.Join(d.Sources, ", "))
	}
}

func printHistory(ctx context.Context, cfg config.Config, region string) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is not set, no run history available", types.ErrConfiguration)
	}
	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	runs, err := database.ListRuns(ctx, db, region, historyLimit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %s  %-9s", run.StartTime.Format("2006-01-02 15:04:05"), run.Id, run.State)
		if run.ErrorKind.Valid {
			line += fmt.Sprintf("  %s during %s: %s", run.ErrorKind.String, run.FailedStage.String, run.Error.String)
		}
		fmt.Println(line)
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	f := parseFlags()
	cmd.LoadEnvFile(f.envFile)

	cfg, err := config.Parse()
	if err != nil {
		log.Printf("error parsing config: %v", err)
		return exitConfig
	}
	if f.registry != "" {
		cfg.RegistryPath = f.registry
	}
	if f.workers != 0 {
		cfg.Workers = f.workers
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		log.Printf("error parsing config: %v", err)
		return exitConfig
	}
	cmd.InitLogging(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.history != "" {
		if err := printHistory(ctx, cfg, f.history); err != nil {
			log.Printf("error reading run history: %v", err)
			return exitConfig
		}
		return exitOK
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		log.Printf("error loading registry: %v", err)
		return exitConfig
	}

	if f.list {
		listRegistry(reg)
		return exitOK
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("invalid config: %v", err)
		return exitConfig
	}

	provider, err := newProvider(cfg)
	if err != nil {
		log.Printf("error creating storage provider: %v", err)
		return exitConfig
	}

	source, err := newSource(ctx, cfg, provider)
	if err != nil {
		log.Printf("error creating acquisition source: %v", err)
		return exitConfig
	}

	var recorder core.Recorder
	if cfg.DatabaseURL != "" {
		db, err := database.NewDatabase(cfg.DatabaseURL)
		if err != nil {
			log.Printf("error opening run history: %v", err)
			return exitConfig
		}
		recorder = database.NewRunRecorder(db)
	}

	eng := engine.NewPluginEngine(cfg.EnginePlugin)
	eng.LogLevel = cfg.LogLevel
	defer plugin.CleanupClients()

	regions := splitRegions(flag.Args())

	bar := progressbar.NewOptions(len(regions),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("nowcasting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	orchestrator, err := core.NewOrchestrator(
		reg,
		source,
		params.NewExtractor(params.NewGenerationTimeStore(provider, cfg.ResourceBucket, cfg.DefaultGenerationTime).WithLoadTimeout(cfg.FetchTimeout)),
		eng,
		core.Options{
			Workers:       cfg.Workers,
			FetchTimeout:  cfg.FetchTimeout,
			EngineTimeout: cfg.EngineTimeout,
			Derivatives:   f.derivative,
			Recorder:      recorder,
			OnOutcome:     func(core.Outcome) { _ = bar.Add(1) },
		},
	)
	if err != nil {
		log.Printf("error creating pipeline: %v", err)
		return exitConfig
	}

	outcomes, err := orchestrator.Run(ctx, regions)
	if err != nil {
		if errors.Is(err, types.ErrConfiguration) {
			flag.Usage()
		}
		log.Printf("error running pipeline: %v", err)
		return exitConfig
	}
	_ = bar.Finish()

	failed := 0
	for _, outcome := range outcomes {
		fmt.Println(outcome.String())
		if !outcome.Succeeded() {
			failed++
		}
	}

	if failed > 0 {
		slog.Warn("some regions failed", "failed", failed, "total", len(outcomes))
		return exitRunFailed
	}
	return exitOK
}
