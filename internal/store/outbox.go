package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

const outboxColumns = `id, aggregate_id, aggregate_type, event_type, payload, status,
	retry_count, max_retries, COALESCE(error_message, ''), published_at,
	COALESCE(topic, ''), partition, record_offset, next_retry_at, idempotency_key, created_at`

func scanOutbox(r rowScanner) (*model.OutboxEntry, error) {
	var e model.OutboxEntry
	err := r.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload, &e.Status,
		&e.RetryCount, &e.MaxRetries, &e.ErrorMessage, &e.PublishedAt,
		&e.Topic, &e.Partition, &e.Offset, &e.NextRetryAt, &e.IdempotencyKey, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// forEachClaimed runs one claim-publish-persist cycle. The inner DISTINCT ON
// picks each aggregate's oldest undelivered row (PENDING or FAILED with
// budget left); filter then decides whether that head row belongs to this
// worker. An aggregate whose head is still backing off therefore yields
// nothing to either worker, so its later rows can never overtake it. Claimed
// rows are locked FOR UPDATE SKIP LOCKED so concurrent dispatchers never
// double-claim. Each row goes to fn, and whatever state fn left behind is
// persisted before commit; fn returning false stops the batch, leaving the
// remaining claimed rows untouched.
func (s *Store) forEachClaimed(ctx context.Context, filter string, limit int, args []any, fn func(ctx context.Context, e *model.OutboxEntry) bool) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, mapErr("begin outbox claim", err)
	}
	defer tx.Rollback(ctx)

	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE id IN (
			SELECT id FROM (
				SELECT DISTINCT ON (aggregate_id) id, status, next_retry_at FROM %s
				WHERE status = 'PENDING' OR (status = 'FAILED' AND retry_count < max_retries)
				ORDER BY aggregate_id, created_at
			) oldest
			WHERE %s
		)
		ORDER BY created_at
		LIMIT %d
		FOR UPDATE SKIP LOCKED`, outboxColumns, s.t.outbox, s.t.outbox, filter, limit)

	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return 0, mapErr("claim outbox entries", err)
	}
	var entries []*model.OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			rows.Close()
			return 0, mapErr("scan outbox entry", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, mapErr("claim outbox entries", err)
	}

	processed := 0
	for _, e := range entries {
		cont := fn(ctx, e)
		if err := s.persistOutbox(ctx, tx, e); err != nil {
			return 0, err
		}
		processed++
		if !cont {
			break
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, mapErr("commit outbox claim", err)
	}
	return processed, nil
}

// persistOutbox writes back the post-dispatch state of a claimed row and,
// for published rows, appends the event archive record.
func (s *Store) persistOutbox(ctx context.Context, c dbconn, e *model.OutboxEntry) error {
	q := fmt.Sprintf(`UPDATE %s SET
		status = $2, retry_count = $3, error_message = $4, published_at = $5,
		topic = $6, partition = $7, record_offset = $8, next_retry_at = $9
		WHERE id = $1`, s.t.outbox)
	_, err := c.Exec(ctx, q,
		e.ID, e.Status, e.RetryCount, nilIfEmpty(e.ErrorMessage), e.PublishedAt,
		nilIfEmpty(e.Topic), e.Partition, e.Offset, e.NextRetryAt)
	if err != nil {
		return mapErr("persist outbox entry", err)
	}
	if e.Status != model.OutboxPublished {
		return nil
	}
	aq := fmt.Sprintf(`INSERT INTO %s
		(id, outbox_id, aggregate_id, event_type, topic, partition, record_offset, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.t.events)
	_, err = c.Exec(ctx, aq,
		uuid.New(), e.ID, e.AggregateID, e.EventType, e.Topic, *e.Partition, *e.Offset, *e.PublishedAt)
	if err != nil {
		return mapErr("archive published event", err)
	}
	return nil
}

// ForEachClaimedPending claims and processes up to limit aggregates whose
// oldest undelivered row is PENDING.
func (s *Store) ForEachClaimedPending(ctx context.Context, limit int, fn func(ctx context.Context, e *model.OutboxEntry) bool) (int, error) {
	return s.forEachClaimed(ctx, "status = 'PENDING'", limit, nil, fn)
}

// ForEachClaimedRetryable claims and processes up to limit aggregates whose
// oldest undelivered row is FAILED with an elapsed (or never set) backoff
// window.
func (s *Store) ForEachClaimedRetryable(ctx context.Context, now time.Time, limit int, fn func(ctx context.Context, e *model.OutboxEntry) bool) (int, error) {
	return s.forEachClaimed(ctx,
		"status = 'FAILED' AND (next_retry_at <= $1 OR next_retry_at IS NULL)",
		limit, []any{now}, fn)
}

// DeletePublishedBefore removes PUBLISHED rows older than cutoff. The
// archive table keeps the durable record.
func (s *Store) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE status = 'PUBLISHED' AND published_at < $1`, s.t.outbox)
	tag, err := s.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, mapErr("sweep published outbox entries", err)
	}
	return tag.RowsAffected(), nil
}

// DeadLetters pages terminal FAILED rows for operator inspection.
func (s *Store) DeadLetters(ctx context.Context, page model.PageRequest) (*model.PageResult[*model.OutboxEntry], error) {
	page = page.Normalize(maxPageSize)
	filter := "status = 'FAILED' AND retry_count >= max_retries"
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s
		ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		outboxColumns, s.t.outbox, filter, page.Size, page.Offset())
	cq := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.t.outbox, filter)

	var out *model.PageResult[*model.OutboxEntry]
	err := withRetry(ctx, func() error {
		total, err := count(ctx, s.pool, cq)
		if err != nil {
			return err
		}
		rows, err := s.pool.Query(ctx, q)
		if err != nil {
			return mapErr("list dead letters", err)
		}
		defer rows.Close()
		items := make([]*model.OutboxEntry, 0, page.Size)
		for rows.Next() {
			e, err := scanOutbox(rows)
			if err != nil {
				return mapErr("scan outbox entry", err)
			}
			items = append(items, e)
		}
		if err := rows.Err(); err != nil {
			return mapErr("list dead letters", err)
		}
		out = &model.PageResult[*model.OutboxEntry]{Items: items, Total: total, Page: page.Page, Size: page.Size}
		return nil
	})
	return out, err
}
