package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"nowcast-pipeline/internal/core/table"
	"nowcast-pipeline/internal/core/types"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"
)

const (
	CasesFile  = "cases.csv"
	DelaysFile = "delays.json"

	maxStderrTail = 2048
)

// RscriptEngine hands the case table and delays to an R script through files
// in the target folder and waits for it to exit.
type RscriptEngine struct {
	Executable string
	Script     string
}

var _ Engine = (*RscriptEngine)(nil)

func NewRscriptEngine(script string) *RscriptEngine {
	return &RscriptEngine{Executable: "Rscript", Script: script}
}

type delaysFile struct {
	Region           string            `json:"region"`
	IncubationPeriod types.Delay       `json:"incubation_period"`
	ReportingDelay   types.Delay       `json:"reporting_delay"`
	GenerationTime   types.Delay       `json:"generation_time"`
	EngineOptions    map[string]any    `json:"engine_options"`
	ColClasses       map[string]string `json:"col_classes"`
	NAString         string            `json:"na_string"`
}

func (e *RscriptEngine) Invoke(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if req.TargetFolder == "" {
		return Result{}, engineError(req.Region, fmt.Errorf("no target folder"))
	}
	if err := os.MkdirAll(req.TargetFolder, os.ModePerm); err != nil {
		return Result{}, engineError(req.Region, fmt.Errorf("error creating target folder: %w", err))
	}

	casesPath := filepath.Join(req.TargetFolder, CasesFile)
	if err := writeCases(casesPath, req.Cases); err != nil {
		return Result{}, engineError(req.Region, err)
	}

	delaysPath := filepath.Join(req.TargetFolder, DelaysFile)
	delays := delaysFile{
		Region:           req.Region,
		IncubationPeriod: req.Delays.IncubationPeriod,
		ReportingDelay:   req.Delays.ReportingDelay,
		GenerationTime:   req.Delays.GenerationTime,
		EngineOptions:    req.Delays.EngineOptions,
		ColClasses:       req.Cases.ColClasses(),
		NAString:         req.Cases.MissingMarker(),
	}
	data, err := json.MarshalIndent(delays, "", "  ")
	if err != nil {
		return Result{}, engineError(req.Region, fmt.Errorf("error encoding delays: %w", err))
	}
	if err := os.WriteFile(delaysPath, data, 0o644); err != nil {
		return Result{}, engineError(req.Region, fmt.Errorf("error writing delays: %w", err))
	}

	cmd := exec.CommandContext(ctx, e.Executable, e.Script,
		"--cases", casesPath,
		"--delays", delaysPath,
		"--target", req.TargetFolder,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Info("starting engine script", "region", req.Region, "script", e.Script, "target_folder", req.TargetFolder)

	if err := cmd.Run(); err != nil {
		return Result{}, engineError(req.Region, fmt.Errorf("%s %s failed: %w: %s", e.Executable, e.Script, err, tail(stderr.Bytes(), maxStderrTail)))
	}

	outputs, err := listOutputs(req.TargetFolder)
	if err != nil {
		return Result{}, engineError(req.Region, err)
	}

	return Result{
		Region:       req.Region,
		TargetFolder: req.TargetFolder,
		Outputs:      outputs,
		Duration:     time.Since(start),
	}, nil
}

func writeCases(path string, cases table.EngineTable) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating cases file: %w", err)
	}
	defer file.Close()

	if err := table.WriteEngineCSV(file, cases); err != nil {
		return fmt.Errorf("error writing cases file: %w", err)
	}
	return file.Close()
}

func listOutputs(dir string) ([]string, error) {
	var outputs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == CasesFile || rel == DelaysFile {
			return nil
		}
		outputs = append(outputs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing outputs in %s: %w", dir, err)
	}
	sort.Strings(outputs)
	return outputs, nil
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
