package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Outbox row statuses. The only legal transitions are
// PENDING -> PUBLISHED, PENDING -> FAILED, FAILED -> PUBLISHED and
// FAILED -> FAILED (retry_count incremented). A FAILED row with
// retry_count >= max_retries is terminal.
const (
	OutboxPending   = "PENDING"
	OutboxPublished = "PUBLISHED"
	OutboxFailed    = "FAILED"
)

// DefaultMaxRetries bounds bus publish attempts per outbox row.
const DefaultMaxRetries = 5

// Aggregate types carried on outbox rows.
const (
	AggregateObject       = "KernelObject"
	AggregateRelationship = "ObjectRelationship"
)

// OutboxEntry is a transactional outbox row. It is inserted in the same
// transaction as the state change it describes and drained by the
// dispatcher.
type OutboxEntry struct {
	ID             uuid.UUID      `json:"id"`
	AggregateID    uuid.UUID      `json:"aggregateId"`
	AggregateType  string         `json:"aggregateType"`
	EventType      string         `json:"eventType"`
	Payload        map[string]any `json:"payload"`
	Status         string         `json:"status"`
	RetryCount     int            `json:"retryCount"`
	MaxRetries     int            `json:"maxRetries"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	PublishedAt    *time.Time     `json:"publishedAt,omitempty"`
	Topic          string         `json:"topic,omitempty"`
	Partition      *int           `json:"partition,omitempty"`
	Offset         *int64         `json:"offset,omitempty"`
	NextRetryAt    *time.Time     `json:"nextRetryAt,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// NewOutboxEntry builds a pending row for the given aggregate and event.
// CreatedAt is stamped by the store on insert; the idempotency key is
// derived there once the timestamp is known.
func NewOutboxEntry(aggregateID uuid.UUID, aggregateType, eventType string, payload map[string]any) *OutboxEntry {
	return &OutboxEntry{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		Status:        OutboxPending,
		MaxRetries:    DefaultMaxRetries,
	}
}

// ComputeIdempotencyKey derives the stable consumer-side dedup key.
func (e *OutboxEntry) ComputeIdempotencyKey(createdAt time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s",
		e.AggregateType, e.AggregateID, e.EventType, createdAt.UTC().Format(time.RFC3339Nano))
}

// MarkPublished records a successful bus publish.
func (e *OutboxEntry) MarkPublished(topic string, partition int, offset int64, at time.Time) {
	e.Status = OutboxPublished
	e.Topic = topic
	e.Partition = &partition
	e.Offset = &offset
	e.PublishedAt = &at
}

// MarkFailed records a failed publish attempt and schedules the next retry
// with exponential backoff (2^retry_count minutes). Once the retry budget
// is exhausted the row stays FAILED with no retry scheduled.
func (e *OutboxEntry) MarkFailed(msg string, now time.Time) {
	e.Status = OutboxFailed
	e.ErrorMessage = msg
	e.RetryCount++
	if e.CanRetry() {
		next := now.Add(time.Duration(math.Pow(2, float64(e.RetryCount))) * time.Minute)
		e.NextRetryAt = &next
	} else {
		e.NextRetryAt = nil
	}
}

// CanRetry reports whether the retry budget allows another attempt.
func (e *OutboxEntry) CanRetry() bool { return e.RetryCount < e.MaxRetries }

// Dispatchable reports whether the dispatcher may publish this row at all.
// Replaying a PUBLISHED row is a no-op by this predicate.
func (e *OutboxEntry) Dispatchable() bool {
	return e.Status == OutboxPending || (e.Status == OutboxFailed && e.CanRetry())
}
