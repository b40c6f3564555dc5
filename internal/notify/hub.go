package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/inbox"
)

// Event announces that listings were written to the store
type Event struct {
	Saved  int       `json:"saved"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin,omitempty"`
}

// Publisher accepts change events. Implementations must not block longer than
// their own configured timeout.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Config holds notification settings
type Config struct {
	BufferSize  int           `toml:"buffer_size"`
	SendTimeout time.Duration `toml:"send_timeout"`
	// RedisURL enables cross-process fan-out when set
	RedisURL string `toml:"redis_url"`
	Channel  string `toml:"channel"`
}

// DefaultConfig returns notification defaults
func DefaultConfig() Config {
	return Config{
		BufferSize:  64,
		SendTimeout: 100 * time.Millisecond,
		Channel:     "listingsync:changes",
	}
}

// Hub turns published events into a broadcast that any number of waiters can select on.
// Each event closes the current Changed channel and installs a fresh one.
type Hub struct {
	intake *inbox.Inbox[Event]
	logger *slog.Logger

	mu      sync.Mutex
	changed chan struct{}
	last    Event
	seen    bool
}

// NewHub creates a hub; Run must be started for events to be delivered
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	return &Hub{
		intake:  inbox.New[Event](cfg.BufferSize, cfg.SendTimeout, logger),
		logger:  logger,
		changed: make(chan struct{}),
	}
}

// Publish queues ev for broadcast. A full intake drops the event; waiters
// still observe the change on their next periodic check.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if !h.intake.Send(ctx, ev) {
		h.logger.Warn("change event dropped",
			"saved", ev.Saved,
			"origin", ev.Origin)
	}
}

// Changed returns a channel that is closed on the next broadcast
func (h *Hub) Changed() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.changed
}

// Last returns the most recent broadcast event
func (h *Hub) Last() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.seen
}

// Run delivers queued events until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Debug("notify hub started")
	for {
		ev, ok := h.intake.Receive(ctx)
		if !ok {
			h.logger.Debug("notify hub stopped",
				"stats", h.intake.Stats())
			return ctx.Err()
		}
		h.broadcast(ev)
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = ev
	h.seen = true
	close(h.changed)
	h.changed = make(chan struct{})
}

// Fanout publishes every event to each of its publishers in order
type Fanout []Publisher

// Publish implements Publisher
func (f Fanout) Publish(ctx context.Context, ev Event) {
	for _, p := range f {
		p.Publish(ctx, ev)
	}
}
