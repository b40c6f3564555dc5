package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/livinlefevreloca/listingsync/internal/db"
	"github.com/livinlefevreloca/listingsync/internal/listing"
	"github.com/livinlefevreloca/listingsync/internal/reso"
)

// Trigger sources
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// State is the lifecycle position of a run
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Config holds pipeline settings
type Config struct {
	BatchSize int `toml:"batch_size"`
}

// DefaultConfig returns pipeline defaults
func DefaultConfig() Config {
	return Config{BatchSize: 100}
}

// Extractor fetches one page of upstream records
type Extractor interface {
	FetchBatch(ctx context.Context, limit, offset int, watermark *time.Time) reso.BatchResult
}

// Transformer maps a page of upstream records, failing the whole page on the first bad record
type Transformer interface {
	MapBatch(records []reso.Record) ([]listing.Listing, error)
}

// Loader persists a page of listings and reports how many were stored
type Loader interface {
	UpsertBatch(ctx context.Context, records []listing.Listing) (int, error)
}

// WatermarkSource reports the newest last_updated in the store, nil when empty
type WatermarkSource interface {
	LatestUpdate(ctx context.Context) (*time.Time, error)
}

// RunRecorder keeps run history
type RunRecorder interface {
	CreateSyncRun(ctx context.Context, run *db.SyncRun) error
	CompleteSyncRun(ctx context.Context, runID string, status string, processed, saved, errors int, completedAt time.Time) error
}

// Cursor tracks progress through one run's pages
type Cursor struct {
	Offset    int
	Watermark *time.Time
}

// Advance moves the cursor past n consumed records
func (c *Cursor) Advance(n int) {
	c.Offset += n
}

// RunResult aggregates one execution of the pipeline
type RunResult struct {
	RunID      string
	Trigger    string
	State      State
	Processed  int
	Saved      int
	Errors     int
	Success    bool
	StartedAt  time.Time
	FinishedAt time.Time
	Watermark  *time.Time
	// LastError describes the most recent failure, empty on success
	LastError string
}

// Runner executes the extract, transform and load loop
type Runner struct {
	extractor   Extractor
	transformer Transformer
	loader      Loader
	watermarks  WatermarkSource
	recorder    RunRecorder
	batchSize   int
	now         func() time.Time
	logger      *slog.Logger
}

// Option customizes a Runner
type Option func(*Runner)

// WithRecorder stores run history through rec
func WithRecorder(rec RunRecorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner wires the pipeline stages together
func NewRunner(cfg Config, extractor Extractor, transformer Transformer, loader Loader, watermarks WatermarkSource, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}

	r := &Runner{
		extractor:   extractor,
		transformer: transformer,
		loader:      loader,
		watermarks:  watermarks,
		batchSize:   cfg.BatchSize,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the pipeline once and always returns a result.
// An extraction failure aborts the run; a failed transform or load only skips its batch.
func (r *Runner) Run(ctx context.Context, trigger string) RunResult {
	res := RunResult{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		State:     StateRunning,
		StartedAt: r.now().UTC(),
	}
	logger := r.logger.With("run_id", res.RunID, "trigger", trigger)

	watermark, err := r.watermarks.LatestUpdate(ctx)
	if err != nil {
		logger.Error("failed to read watermark", "error", err)
		res.Errors++
		res.LastError = fmt.Sprintf("read watermark: %v", err)
		r.recordStart(ctx, logger, res)
		return r.finish(ctx, logger, res, StateAborted)
	}
	res.Watermark = watermark

	logger.Info("listing sync started",
		"watermark", watermark,
		"batch_size", r.batchSize)
	r.recordStart(ctx, logger, res)

	cursor := Cursor{Watermark: watermark}
	for {
		batch := r.extractor.FetchBatch(ctx, r.batchSize, cursor.Offset, cursor.Watermark)
		if !batch.OK() {
			res.Errors++
			res.LastError = batch.Err.Error()
			logger.Error("extraction failed, aborting run",
				"offset", cursor.Offset,
				"error", batch.Err)
			return r.finish(ctx, logger, res, StateAborted)
		}

		count := batch.Count()
		if count == 0 {
			break
		}

		res.Processed += count
		saved, err := r.processBatch(ctx, batch.Records)
		res.Saved += saved
		if err != nil {
			res.Errors++
			res.LastError = err.Error()
			logger.Warn("batch failed, skipping",
				"offset", cursor.Offset,
				"count", count,
				"saved", saved,
				"error", err)
		} else {
			logger.Debug("batch loaded",
				"offset", cursor.Offset,
				"count", count,
				"saved", saved)
		}

		cursor.Advance(count)

		// A short page ends the data even when a next link is present
		if !batch.HasNext() || count < r.batchSize {
			break
		}
	}

	return r.finish(ctx, logger, res, StateCompleted)
}

func (r *Runner) processBatch(ctx context.Context, records []reso.Record) (int, error) {
	listings, err := r.transformer.MapBatch(records)
	if err != nil {
		return 0, fmt.Errorf("transform: %w", err)
	}

	saved, err := r.loader.UpsertBatch(ctx, listings)
	if err != nil {
		return saved, fmt.Errorf("load: %w", err)
	}
	return saved, nil
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, res RunResult, state State) RunResult {
	res.State = state
	res.Success = res.Errors == 0
	res.FinishedAt = r.now().UTC()

	logger.Info("listing sync finished",
		"state", state,
		"processed", res.Processed,
		"saved", res.Saved,
		"errors", res.Errors,
		"duration", res.FinishedAt.Sub(res.StartedAt))

	r.recordFinish(ctx, logger, res)
	return res
}

func (r *Runner) recordStart(ctx context.Context, logger *slog.Logger, res RunResult) {
	if r.recorder == nil {
		return
	}
	err := r.recorder.CreateSyncRun(ctx, &db.SyncRun{
		RunID:     res.RunID,
		Trigger:   res.Trigger,
		StartedAt: res.StartedAt,
		Status:    db.SyncRunRunning,
		Watermark: res.Watermark,
	})
	if err != nil {
		logger.Warn("failed to record run start", "error", err)
	}
}

func (r *Runner) recordFinish(ctx context.Context, logger *slog.Logger, res RunResult) {
	if r.recorder == nil {
		return
	}

	status := db.SyncRunCompleted
	if res.State == StateAborted {
		status = db.SyncRunAborted
	}

	err := r.recorder.CompleteSyncRun(ctx, res.RunID, status, res.Processed, res.Saved, res.Errors, res.FinishedAt)
	if err != nil {
		logger.Warn("failed to record run completion", "error", err)
	}
}

// ResultFromSyncRun rebuilds the result of a finished run from its history row
func ResultFromSyncRun(run *db.SyncRun) RunResult {
	res := RunResult{
		RunID:     run.RunID,
		Trigger:   run.Trigger,
		State:     StateCompleted,
		Processed: run.Processed,
		Saved:     run.Saved,
		Errors:    run.Errors,
		Success:   run.Errors == 0 && run.Status == db.SyncRunCompleted,
		StartedAt: run.StartedAt,
		Watermark: run.Watermark,
	}
	switch run.Status {
	case db.SyncRunAborted:
		res.State = StateAborted
	case db.SyncRunRunning:
		res.State = StateRunning
	}
	if run.CompletedAt != nil {
		res.FinishedAt = *run.CompletedAt
	}
	return res
}
