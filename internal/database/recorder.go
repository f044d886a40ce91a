package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"nowcast-pipeline/internal/core"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunRecorder stores batch and region run history.
type RunRecorder struct {
	db *gorm.DB
}

var _ core.Recorder = (*RunRecorder)(nil)

func NewRunRecorder(db *gorm.DB) *RunRecorder {
	return &RunRecorder{db: db}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *RunRecorder) BatchStarted(ctx context.Context, batchId uuid.UUID, regions []string, derived bool) error {
	data, err := json.Marshal(regions)
	if err != nil {
		return fmt.Errorf("error encoding regions: %w", err)
	}

	batch := Batch{
		Id:        batchId,
		Regions:   datatypes.JSON(data),
		Derived:   derived,
		Status:    BatchRunning,
		StartTime: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&batch).Error; err != nil {
		slog.Error("error creating batch", "batch_id", batchId, "error", err)
		return fmt.Errorf("error creating batch: %w", err)
	}
	return nil
}

func (r *RunRecorder) RunStarted(ctx context.Context, batchId, runId uuid.UUID, position int, region string, derived bool) error {
	run := RegionRun{
		Id:        runId,
		BatchId:   batchId,
		Position:  position,
		Region:    region,
		Derived:   derived,
		State:     string(core.Resolving),
		StartTime: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		slog.Error("error creating region run", "run_id", runId, "region", region, "error", err)
		return fmt.Errorf("error creating region run: %w", err)
	}
	return nil
}

func (r *RunRecorder) StateChanged(ctx context.Context, runId uuid.UUID, state core.RunState) error {
	if err := r.db.WithContext(ctx).Model(&RegionRun{Id: runId}).Update("state", string(state)).Error; err != nil {
		slog.Error("error updating run state", "run_id", runId, "state", state, "error", err)
		return fmt.Errorf("error updating run state: %w", err)
	}
	return nil
}

func (r *RunRecorder) RunFinished(ctx context.Context, outcome core.Outcome) error {
	if !outcome.State.Terminal() {
		return fmt.Errorf("run %s finished in non-terminal state %s", outcome.RunId, outcome.State)
	}

	updates := map[string]any{
		"state":           string(outcome.State),
		"target_folder":   nullString(outcome.TargetFolder),
		"completion_time": outcome.CompletionTime,
	}

	if outcome.Succeeded() {
		outputs, err := json.Marshal(outcome.Result.Outputs)
		if err != nil {
			return fmt.Errorf("error encoding outputs: %w", err)
		}
		updates["outputs"] = datatypes.JSON(outputs)
	} else {
		updates["failed_stage"] = nullString(string(outcome.FailedStage))
		updates["error_kind"] = nullString(string(outcome.ErrorKind))
		if outcome.Err != nil {
			updates["error"] = nullString(outcome.Err.Error())
		}
	}

	if err := r.db.WithContext(ctx).Model(&RegionRun{Id: outcome.RunId}).Updates(updates).Error; err != nil {
		slog.Error("error updating region run", "run_id", outcome.RunId, "region", outcome.Region, "error", err)
		return fmt.Errorf("error updating region run: %w", err)
	}
	return nil
}

func (r *RunRecorder) BatchFinished(ctx context.Context, batchId uuid.UUID, outcomes []core.Outcome) error {
	succeeded, failed := 0, 0
	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}

	updates := map[string]any{
		"status":          BatchCompleted,
		"succeeded_count": succeeded,
		"failed_count":    failed,
		"completion_time": time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Model(&Batch{Id: batchId}).Updates(updates).Error; err != nil {
		slog.Error("error updating batch", "batch_id", batchId, "error", err)
		return fmt.Errorf("error updating batch: %w", err)
	}
	return nil
}

// ListRuns returns the latest runs for region, newest first.
func ListRuns(ctx context.Context, db *gorm.DB, region string, limit int) ([]RegionRun, error) {
	var runs []RegionRun
	if err := db.WithContext(ctx).Where("region = ?", region).Order("start_time DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing runs for '%s': %w", region, err)
	}
	return runs, nil
}

func GetBatch(ctx context.Context, db *gorm.DB, batchId uuid.UUID) (Batch, error) {
	var batch Batch
	if err := db.WithContext(ctx).Preload("Runs", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).First(&batch, "id = ?", batchId).Error; err != nil {
		return Batch{}, fmt.Errorf("error getting batch %s: %w", batchId, err)
	}
	return batch, nil
}
