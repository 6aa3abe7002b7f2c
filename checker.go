package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultExecuteTimeout = time.Hour
	DefaultEnqueueTTL     = 30 * time.Minute
	DefaultResultTTL      = 24 * time.Hour
)

// DueSchedule is one row of the checker's due query: the schedule plus
// whether its owning job is currently active.
type DueSchedule struct {
	Schedule
	JobActive bool
}

type checkerStore interface {
	FindDue(ctx context.Context, from, to time.Time) ([]DueSchedule, error)
	CreateTracker(ctx context.Context, tracker *Tracker) error
	UpdateNextRun(ctx context.Context, schedule *Schedule) error
}

// ExecutionRequest is what the checker hands to the work queue. The
// tracker id doubles as the queue's idempotency key.
type ExecutionRequest struct {
	TrackerID      uuid.UUID
	JobID          uuid.UUID
	ExecuteTimeout time.Duration
	EnqueueTTL     time.Duration
	ResultTTL      time.Duration
}

type workQueue interface {
	// Enqueue admits the request at most once per tracker id and
	// reports whether this call was the one that admitted it.
	Enqueue(ctx context.Context, req ExecutionRequest) (bool, error)
}

type CheckerConfig struct {
	Interval       time.Duration
	ExecuteTimeout time.Duration
	EnqueueTTL     time.Duration
	ResultTTL      time.Duration

	// HoldOnEnqueueFailure leaves next_run untouched when the queue
	// rejects an execution, so the firing is retried next poll. Off by
	// default: a broken queue then loses firings instead of flooding
	// duplicates once it recovers.
	HoldOnEnqueueFailure bool
}

func (c CheckerConfig) withDefaults() CheckerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ExecuteTimeout <= 0 {
		c.ExecuteTimeout = DefaultExecuteTimeout
	}
	if c.EnqueueTTL <= 0 {
		c.EnqueueTTL = DefaultEnqueueTTL
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = DefaultResultTTL
	}

	return c
}

// Checker is the single sequential loop that finds due schedules, queues
// one execution per firing and advances each schedule past the current
// poll window.
type Checker struct {
	store checkerStore
	queue workQueue
	clock Clock
	cfg   CheckerConfig
	log   zerolog.Logger
}

func NewChecker(store checkerStore, queue workQueue, clock Clock, cfg CheckerConfig) *Checker {
	return &Checker{
		store: store,
		queue: queue,
		clock: clock,
		cfg:   cfg.withDefaults(),
		log:   log.With().Str("pkg", "checker").Logger(),
	}
}

// Run polls until ctx is cancelled. A store failure aborts the current
// tick and is retried on the next one; cancellation between mutations is
// clean because each schedule's tracker+advance is committed before the
// loop moves on.
func (c *Checker) Run(ctx context.Context) error {
	c.log.Info().Dur("interval", c.cfg.Interval).Msg("checker started")

	for {
		started := c.clock.Now()

		if err := c.alignTick(ctx); err != nil {
			return c.stopped(err)
		}

		if err := c.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return c.stopped(ctx.Err())
			}

			c.log.Err(err).Msg("tick aborted, retrying next interval")
		}

		elapsed := c.clock.Now().Sub(started)
		if err := sleepCtx(ctx, c.cfg.Interval-elapsed); err != nil {
			return c.stopped(err)
		}
	}
}

// alignTick starts the poll just after the minute boundary so schedules
// firing exactly on :00 cannot race the window edge.
func (c *Checker) alignTick(ctx context.Context) error {
	if sec := c.clock.Now().Second(); sec < 2 {
		return sleepCtx(ctx, time.Duration(2-sec)*time.Second)
	}

	return nil
}

// Tick runs one poll: select everything due in [now, now+interval) and
// fire each schedule, isolating per-schedule failures so one bad
// schedule cannot starve the rest of the batch.
func (c *Checker) Tick(ctx context.Context) error {
	now := c.clock.Now()

	due, err := c.store.FindDue(ctx, now, now.Add(c.cfg.Interval))
	if err != nil {
		return fmt.Errorf("find due schedules: %w", err)
	}

	c.log.Debug().Time("at", now).Int("due", len(due)).Msg("checking schedules")

	for i := range due {
		if err := c.fire(ctx, &due[i]); err != nil {
			if ctx.Err() != nil {
				return err
			}

			c.log.Err(err).Stringer("schedule", &due[i].Schedule).Msg("schedule failed, continuing batch")
		}
	}

	return nil
}

// fire queues one execution for a due schedule and advances it. An
// inactive job suppresses the execution but never the advancement, so a
// temporarily disabled job does not pile up stale firings.
func (c *Checker) fire(ctx context.Context, due *DueSchedule) error {
	sch := &due.Schedule

	if due.JobActive {
		tracker := NewTracker(c.clock, sch.JobID, uuid.NullUUID{UUID: sch.ID, Valid: true})
		if err := c.store.CreateTracker(ctx, tracker); err != nil {
			return fmt.Errorf("create tracker: %w", err)
		}

		admitted, err := c.queue.Enqueue(ctx, ExecutionRequest{
			TrackerID:      tracker.ID,
			JobID:          sch.JobID,
			ExecuteTimeout: c.cfg.ExecuteTimeout,
			EnqueueTTL:     c.cfg.EnqueueTTL,
			ResultTTL:      c.cfg.ResultTTL,
		})
		switch {
		case err != nil && c.cfg.HoldOnEnqueueFailure:
			return fmt.Errorf("enqueue tracker %s: %w", tracker.ID, err)
		case err != nil:
			c.log.Err(err).Stringer("tracker", tracker).Msg("enqueue failed, advancing anyway")
		case !admitted:
			c.log.Warn().Stringer("tracker", tracker).Msg("duplicate enqueue suppressed")
		}
	}

	if err := sch.Advance(c.clock, true, c.cfg.Interval); err != nil {
		return fmt.Errorf("advance: %w", err)
	}

	if err := c.store.UpdateNextRun(ctx, sch); err != nil {
		return fmt.Errorf("persist next run: %w", err)
	}

	return nil
}

func (c *Checker) stopped(err error) error {
	c.log.Info().Msg("checker stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Never sleep negative; an overlong tick rolls straight into
		// the next poll.
		if err := ctx.Err(); err != nil {
			return err
		}

		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
