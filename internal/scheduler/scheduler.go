package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/etl"
	"github.com/robfig/cron/v3"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrStopped is returned when Start is called after Stop
	ErrStopped = errors.New("scheduler stopped")
)

// Job is one execution of the sync pipeline
type Job interface {
	Run(ctx context.Context, trigger string) etl.RunResult
}

// flight is a run in progress. result is valid once done is closed.
type flight struct {
	trigger string
	done    chan struct{}
	result  etl.RunResult
}

// Scheduler fires the job on a cron schedule and on demand.
// Both paths share one single-flight guard: at most one run is active at a time.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	location *time.Location
	job      Job
	logger   *slog.Logger

	mu       sync.Mutex
	entry    cron.EntryID
	started  bool
	stopped  bool
	inflight *flight
	last     *etl.RunResult
	hooks    []func(etl.RunResult)
}

// New creates a scheduler for job. Nothing fires until Start.
func New(config Config, job Job, logger *slog.Logger) (*Scheduler, error) {
	schedule, location, err := validateConfig(config)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithLogger(cronLogger{logger: logger}),
		),
		schedule: schedule,
		location: location,
		job:      job,
		logger:   logger,
	}, nil
}

// OnComplete registers fn to be called with every finished run, before waiters are released
func (s *Scheduler) OnComplete(fn func(etl.RunResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Start registers the recurring trigger and starts the cron timer
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}

	s.entry = s.cron.Schedule(s.schedule, cron.FuncJob(s.scheduledTick))
	s.cron.Start()
	s.started = true

	s.logger.Info("scheduler started",
		"next_run", s.schedule.Next(time.Now().In(s.location)))
	return nil
}

// Stop cancels future scheduled triggers. An in-flight run is not interrupted; use Wait for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true

	if s.started {
		s.cron.Remove(s.entry)
		s.cron.Stop()
	}
	s.logger.Info("scheduler stopped")
}

// Wait blocks until no run is in flight or ctx is done
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		f := s.inflight
		s.mu.Unlock()

		if f == nil {
			return nil
		}

		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Trigger starts a manual run, or joins the one already in flight, and returns its result.
// Giving up through ctx abandons the wait but never cancels the run.
func (s *Scheduler) Trigger(ctx context.Context) (etl.RunResult, error) {
	f, started := s.begin(ctx, etl.TriggerManual)
	if !started {
		s.logger.Info("manual trigger joined in-flight run", "trigger", f.trigger)
	}

	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return etl.RunResult{}, ctx.Err()
	}
}

// scheduledTick runs on the cron goroutine. A tick during a run is dropped.
func (s *Scheduler) scheduledTick() {
	f, started := s.begin(context.Background(), etl.TriggerScheduled)
	if !started {
		s.logger.Info("scheduled trigger dropped, run in flight", "trigger", f.trigger)
	}
}

// begin returns the in-flight run, starting a new one when none is active
func (s *Scheduler) begin(ctx context.Context, trigger string) (*flight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight != nil {
		return s.inflight, false
	}

	f := &flight{trigger: trigger, done: make(chan struct{})}
	s.inflight = f

	go s.execute(context.WithoutCancel(ctx), f)
	return f, true
}

func (s *Scheduler) execute(ctx context.Context, f *flight) {
	result := s.runJob(ctx, f.trigger)

	s.mu.Lock()
	hooks := make([]func(etl.RunResult), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(result)
	}

	f.result = result

	s.mu.Lock()
	s.last = &result
	s.inflight = nil
	s.mu.Unlock()

	close(f.done)
}

// runJob turns a panicking run into an aborted result so waiters are still released
func (s *Scheduler) runJob(ctx context.Context, trigger string) (result etl.RunResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync run panicked", "trigger", trigger, "panic", r, "stack", string(debug.Stack()))
			result = etl.RunResult{
				Trigger:    trigger,
				State:      etl.StateAborted,
				Errors:     1,
				FinishedAt: time.Now(),
				LastError:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return s.job.Run(ctx, trigger)
}

// Running reports whether a run is in flight
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// LastResult returns the most recently finished run
func (s *Scheduler) LastResult() (etl.RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return etl.RunResult{}, false
	}
	return *s.last, true
}

// NextRun returns when the schedule fires next, nil when not started or stopped
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return nil
	}
	next := s.schedule.Next(time.Now().In(s.location))
	return &next
}

// cronLogger forwards cron's own log lines to slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
