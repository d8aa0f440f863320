// Package outbox drains the transactional outbox to the event bus.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/bus"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

// Source is the claim surface the dispatcher drains. The store implements
// it; tests use fakes. Each ForEach call claims rows under row locks,
// invokes fn once per row and persists whatever state fn left behind; fn
// returning false ends the batch early.
type Source interface {
	ForEachClaimedPending(ctx context.Context, limit int, fn func(ctx context.Context, e *model.OutboxEntry) bool) (int, error)
	ForEachClaimedRetryable(ctx context.Context, now time.Time, limit int, fn func(ctx context.Context, e *model.OutboxEntry) bool) (int, error)
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config tunes the dispatcher loops. Zero values fall back to the
// defaults the platform has always run with.
type Config struct {
	PollInterval  time.Duration
	BatchSize     int
	Retention     time.Duration
	SweepInterval time.Duration

	// DeletedRetention is how long soft-deleted objects linger before the
	// sweeper hard-deletes them.
	DeletedRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	if c.DeletedRetention <= 0 {
		c.DeletedRetention = 90 * 24 * time.Hour
	}
	return c
}

// Dispatcher publishes claimed outbox rows to the bus and records the
// outcome on each row.
type Dispatcher struct {
	source Source
	bus    bus.Client
	cfg    Config
}

// New wires a Dispatcher.
func New(source Source, client bus.Client, cfg Config) *Dispatcher {
	return &Dispatcher{source: source, bus: client, cfg: cfg.withDefaults()}
}

// Run drives the three loops until ctx is cancelled: pending rows, retryable
// failed rows and the retention sweeper.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.loop(ctx, d.cfg.PollInterval, d.dispatchPending) })
	g.Go(func() error { return d.loop(ctx, d.cfg.PollInterval, d.dispatchRetryable) })
	g.Go(func() error { return d.loop(ctx, d.cfg.SweepInterval, d.sweep) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Dispatcher) loop(ctx context.Context, every time.Duration, tick func(ctx context.Context) error) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if err := tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Ctx(ctx).Error().Err(err).Msg("outbox cycle failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (d *Dispatcher) dispatchPending(ctx context.Context) error {
	n, err := d.source.ForEachClaimedPending(ctx, d.cfg.BatchSize, d.publish)
	if n > 0 {
		log.Ctx(ctx).Debug().Int("claimed", n).Msg("dispatched pending outbox rows")
	}
	return err
}

func (d *Dispatcher) dispatchRetryable(ctx context.Context) error {
	n, err := d.source.ForEachClaimedRetryable(ctx, time.Now().UTC(), d.cfg.BatchSize, d.publish)
	if n > 0 {
		log.Ctx(ctx).Debug().Int("claimed", n).Msg("retried failed outbox rows")
	}
	return err
}

func (d *Dispatcher) sweep(ctx context.Context) error {
	now := time.Now().UTC()

	n, err := d.source.DeletePublishedBefore(ctx, now.Add(-d.cfg.Retention))
	if err != nil {
		return err
	}
	if n > 0 {
		log.Ctx(ctx).Info().Int64("swept", n).Msg("removed published outbox rows past retention")
	}

	purged, err := d.source.PurgeDeletedBefore(ctx, now.Add(-d.cfg.DeletedRetention))
	if err != nil {
		return err
	}
	if purged > 0 {
		log.Ctx(ctx).Info().Int64("purged", purged).Msg("hard-deleted objects past soft-delete retention")
	}
	return nil
}

// publish sends one claimed row to the bus and mutates the row to reflect
// the outcome. The row is persisted by the claiming transaction after this
// returns, so a crash between publish and persist at worst re-sends an
// event whose idempotency key lets consumers drop the duplicate. A false
// return ends the batch: when the breaker opens, only the row that hit it
// is marked FAILED and the rest of the claim keeps its state and retry
// budget for the next cycle.
func (d *Dispatcher) publish(ctx context.Context, e *model.OutboxEntry) bool {
	if !e.Dispatchable() {
		return true
	}
	now := time.Now().UTC()

	topic, err := bus.TopicFor(e.EventType)
	if err != nil {
		e.MarkFailed(err.Error(), now)
		log.Ctx(ctx).Error().Err(err).Stringer("outbox_id", e.ID).Msg("outbox row has unknown event type")
		return true
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		e.MarkFailed(err.Error(), now)
		log.Ctx(ctx).Error().Err(err).Stringer("outbox_id", e.ID).Msg("outbox payload does not encode")
		return true
	}

	res, err := d.bus.Publish(ctx, topic, e.AggregateID.String(), payload)
	if err != nil {
		msg := err.Error()
		breakerOpen := errors.Is(err, bus.ErrBreakerOpen)
		if breakerOpen {
			msg = "breaker_open"
		}
		e.MarkFailed(msg, now)
		ev := log.Ctx(ctx).Warn().Err(err).
			Stringer("outbox_id", e.ID).
			Int("retry_count", e.RetryCount)
		if !e.CanRetry() {
			ev = log.Ctx(ctx).Error().Err(err).
				Stringer("outbox_id", e.ID).
				Int("retry_count", e.RetryCount)
		}
		ev.Msg("outbox publish failed")
		return !breakerOpen
	}

	e.MarkPublished(res.Topic, res.Partition, res.Offset, now)
	log.Ctx(ctx).Debug().
		Stringer("outbox_id", e.ID).
		Str("topic", res.Topic).
		Int("partition", res.Partition).
		Int64("offset", res.Offset).
		Msg("event published")
	return true
}
