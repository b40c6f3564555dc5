package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/etl"
	"github.com/livinlefevreloca/listingsync/internal/listing"
)

// Service states reported to the dashboard
const (
	StateActive  = "active"
	StateSyncing = "syncing"
)

// Config holds long-poll and status settings
type Config struct {
	// Timeout bounds one long-poll request
	Timeout time.Duration `toml:"timeout"`

	// PollInterval is how often a waiting request re-checks the store
	PollInterval time.Duration `toml:"poll_interval"`

	// RecentLimit is how many recently updated listings a snapshot carries
	RecentLimit int `toml:"recent_limit"`
}

// DefaultConfig returns the dashboard defaults
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		PollInterval: time.Second,
		RecentLimit:  10,
	}
}

// Validate checks the wait bounds
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.Timeout < c.PollInterval {
		return fmt.Errorf("timeout (%v) must not be shorter than poll_interval (%v)", c.Timeout, c.PollInterval)
	}
	if c.RecentLimit <= 0 {
		return fmt.Errorf("recent_limit must be positive, got %d", c.RecentLimit)
	}
	return nil
}

// Store is the read side of the listing store
type Store interface {
	CountListings(ctx context.Context) (int, error)
	LatestUpdate(ctx context.Context) (*time.Time, error)
	RecentListings(ctx context.Context, limit int) ([]listing.Listing, error)
}

// Notifier signals store writes. The returned channel is closed on the next change.
type Notifier interface {
	Changed() <-chan struct{}
}

// Schedule describes the trigger side
type Schedule interface {
	Running() bool
	NextRun() *time.Time
}

// Data is the store summary sent to dashboards
type Data struct {
	Status          string            `json:"status"`
	TotalProperties int               `json:"totalProperties"`
	LastUpdated     *time.Time        `json:"lastUpdated"`
	Properties      []listing.Summary `json:"properties"`
}

// Snapshot is Data plus run bookkeeping
type Snapshot struct {
	Data
	LastRun *etl.RunResult
	// LastSync is when the last successful run finished, or process start
	LastSync time.Time
	NextRun  *time.Time
	Running  bool
}

// Update is the outcome of one long-poll. Data is nil when nothing changed before the timeout.
type Update struct {
	Timestamp time.Time
	Data      *Data
}

// Publisher answers status and long-poll requests
type Publisher struct {
	store    Store
	notifier Notifier
	schedule Schedule
	config   Config
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.RWMutex
	lastRun  *etl.RunResult
	lastSync time.Time
}

// Option customizes a Publisher
type Option func(*Publisher)

// WithNotifier wakes waiting requests on store writes
func WithNotifier(n Notifier) Option {
	return func(p *Publisher) {
		p.notifier = n
	}
}

// WithSchedule reports in-flight and next run information
func WithSchedule(s Schedule) Option {
	return func(p *Publisher) {
		p.schedule = s
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a publisher. The last-sync mark starts at construction time.
func NewPublisher(store Store, config Config, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		config: config,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lastSync = p.now().UTC()
	return p
}

// Config returns the publisher's settings
func (p *Publisher) Config() Config {
	return p.config
}

// MarkRun records a finished run. The last-sync mark only moves on success.
func (p *Publisher) MarkRun(result etl.RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastRun = &result
	if result.Success && result.FinishedAt.After(p.lastSync) {
		p.lastSync = result.FinishedAt.UTC()
	}
}

// LastRun returns the most recently marked run
func (p *Publisher) LastRun() *etl.RunResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastRun == nil {
		return nil
	}
	run := *p.lastRun
	return &run
}

// LastSync returns the last-sync mark
func (p *Publisher) LastSync() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

// Snapshot reads the current store summary
func (p *Publisher) Snapshot(ctx context.Context) (*Snapshot, error) {
	data, err := p.collect(ctx, p.config.RecentLimit)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Data:     *data,
		LastRun:  p.LastRun(),
		LastSync: p.LastSync(),
	}
	if p.schedule != nil {
		snap.NextRun = p.schedule.NextRun()
		snap.Running = p.schedule.Running()
	}
	return snap, nil
}

// AwaitUpdate resolves with fresh data once the store has changed since the given time,
// or with nil data once timeout elapses. A zero since resolves immediately.
// Cancelling ctx returns ctx.Err().
func (p *Publisher) AwaitUpdate(ctx context.Context, since time.Time, timeout, pollInterval time.Duration) (Update, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	checks := 0
	for {
		// Subscribe before checking so a write between the two is not missed
		var changed <-chan struct{}
		if p.notifier != nil {
			changed = p.notifier.Changed()
		}

		timestamp := p.now().UTC()
		due, err := p.changedSince(ctx, since)
		checks++
		if err != nil {
			return Update{}, err
		}
		if due {
			data, err := p.collect(ctx, p.config.RecentLimit)
			if err != nil {
				return Update{}, err
			}
			p.logger.Debug("long-poll resolved",
				"since", since,
				"checks", checks)
			return Update{Timestamp: timestamp, Data: data}, nil
		}

		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-deadline.C:
			return Update{Timestamp: p.now().UTC()}, nil
		case <-ticker.C:
		case <-changed:
		}
	}
}

// changedSince reports whether anything a dashboard shows moved after since
func (p *Publisher) changedSince(ctx context.Context, since time.Time) (bool, error) {
	if since.IsZero() {
		return true, nil
	}
	if p.LastSync().After(since) {
		return true, nil
	}

	latest, err := p.store.LatestUpdate(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read latest update: %w", err)
	}
	return latest != nil && latest.After(since), nil
}

func (p *Publisher) collect(ctx context.Context, limit int) (*Data, error) {
	total, err := p.store.CountListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	latest, err := p.store.LatestUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest update: %w", err)
	}

	summaries, err := p.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}

	state := StateActive
	if p.schedule != nil && p.schedule.Running() {
		state = StateSyncing
	}

	return &Data{
		Status:          state,
		TotalProperties: total,
		LastUpdated:     latest,
		Properties:      summaries,
	}, nil
}

// Recent returns up to limit summaries of the most recently updated listings
func (p *Publisher) Recent(ctx context.Context, limit int) ([]listing.Summary, error) {
	recent, err := p.store.RecentListings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent listings: %w", err)
	}

	summaries := make([]listing.Summary, 0, len(recent))
	for i := range recent {
		summaries = append(summaries, recent[i].Summarize())
	}
	return summaries, nil
}
