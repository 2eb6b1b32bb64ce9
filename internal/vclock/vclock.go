package vclock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeoutError is the cancellation cause handed to a registration whose
// virtual deadline elapsed. Subject names the dependency or consumer the
// timeout belonged to.
type TimeoutError struct {
	Subject string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s (virtual) waiting for %s", e.After, e.Subject)
}

// CleanupError is the cancellation cause handed to registrations torn down
// by Cleanup.
type CleanupError struct {
	Subject string
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("timeout coordinator cleaned up while waiting for %s", e.Subject)
}

// Coordinator is the single source of truth for time-based cancellation.
// It keeps a virtual timeline that advances only when the host calls Tick,
// scaled by a configurable factor, so a paused host freezes every pending
// timeout instead of firing it late.
type Coordinator struct {
	mu      sync.Mutex
	logger  *slog.Logger
	scale   float64
	virtual time.Duration
	ticks   uint64
	live    bool
	pending map[uuid.UUID]*Timeout
	settle  chan struct{}
}

// Timeout is a single pending registration. Dispose removes it without
// firing; disposing after completion is a no-op.
type Timeout struct {
	id       uuid.UUID
	subject  string
	duration time.Duration
	deadline time.Duration
	scaled   bool
	cancel   func(error)
	coord    *Coordinator
}

func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		logger:  logger,
		scale:   1,
		live:    true,
		pending: make(map[uuid.UUID]*Timeout),
		settle:  make(chan struct{}),
	}
}

// RegisterTimeout schedules cancel to be invoked with a *TimeoutError once
// d of virtual time has elapsed. subject appears in the error so expiry
// diagnostics name what was being waited on.
func (c *Coordinator) RegisterTimeout(d time.Duration, subject string, cancel func(error)) *Timeout {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &Timeout{
		id:       uuid.New(),
		subject:  subject,
		duration: d,
		deadline: c.virtual + d,
		scaled:   true,
		cancel:   cancel,
		coord:    c,
	}
	c.pending[t.id] = t

	c.logger.Debug("timeout registered",
		"id", t.id, "subject", subject, "duration", d, "virtual", c.virtual)
	return t
}

func (t *Timeout) ID() uuid.UUID { return t.id }

func (t *Timeout) Dispose() {
	c := t.coord
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, t.id)
}

// Tick advances the virtual timeline by delta scaled with the current time
// scale, releases the settle barrier, and fires every expired registration.
// Cancellation callbacks run outside the lock.
func (c *Coordinator) Tick(delta time.Duration) {
	c.mu.Lock()

	c.virtual += time.Duration(float64(delta) * c.scale)
	c.ticks++

	close(c.settle)
	c.settle = make(chan struct{})

	var expired []*Timeout
	for id, t := range c.pending {
		if t.deadline <= c.virtual {
			expired = append(expired, t)
			delete(c.pending, id)
		}
	}
	virtual := c.virtual
	c.mu.Unlock()

	for _, t := range expired {
		c.logger.Debug("timeout fired", "id", t.id, "subject", t.subject, "virtual", virtual)
		t.cancel(&TimeoutError{Subject: t.subject, After: t.duration})
	}
}

// SettleBarrier returns a channel closed on the next Tick. Each call during
// the same tick interval observes the same barrier.
func (c *Coordinator) SettleBarrier() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settle
}

func (c *Coordinator) SetTimeScale(scale float64) {
	if scale < 0 {
		scale = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scale = scale
}

func (c *Coordinator) TimeScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// SetLive records whether the host is still running. Resolution code
// consults Live to decide if a cancellation is a real abort or merely the
// host tearing down.
func (c *Coordinator) SetLive(live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = live
}

func (c *Coordinator) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *Coordinator) VirtualNow() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.virtual
}

func (c *Coordinator) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Cleanup cancels every pending registration with a *CleanupError and
// resets the coordinator to an empty, reusable state: fresh timeline, fresh
// settle barrier, live again.
func (c *Coordinator) Cleanup() {
	c.mu.Lock()
	cancelled := make([]*Timeout, 0, len(c.pending))
	for _, t := range c.pending {
		cancelled = append(cancelled, t)
	}

	c.pending = make(map[uuid.UUID]*Timeout)
	c.virtual = 0
	c.ticks = 0
	c.live = true

	close(c.settle)
	c.settle = make(chan struct{})
	c.mu.Unlock()

	for _, t := range cancelled {
		t.cancel(&CleanupError{Subject: t.subject})
	}
}
