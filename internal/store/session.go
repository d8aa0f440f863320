package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

// Session is an explicit transaction handle for the mutation pipeline. The
// object row lock taken by GetObjectForUpdate serializes concurrent writers
// per object, which is what keeps version numbers gap-free.
type Session struct {
	tx pgx.Tx
	s  *Store
}

// Begin opens a mutation transaction.
func (s *Store) Begin(ctx context.Context) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapErr("begin transaction", err)
	}
	return &Session{tx: tx, s: s}, nil
}

// Commit commits the transaction.
func (se *Session) Commit(ctx context.Context) error {
	if err := se.tx.Commit(ctx); err != nil {
		return mapErr("commit transaction", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (se *Session) Rollback(ctx context.Context) {
	_ = se.tx.Rollback(ctx)
}

// GetObjectForUpdate reads an object row with FOR UPDATE, deleted rows
// included so restore can find its target.
func (se *Session) GetObjectForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*model.Object, error) {
	return se.s.getObject(ctx, se.tx, tenantID, id, true)
}

// InsertObject writes a new object row. A duplicate (tenant, type, code)
// among live rows surfaces as a Conflict.
func (se *Session) InsertObject(ctx context.Context, o *model.Object) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(id, tenant_id, object_type_code, object_code, object_name, data,
		 status, version, is_deleted, created_at, created_by, modified_at, modified_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $10, $11, $12, $13)`, se.s.t.objects)
	_, err := se.tx.Exec(ctx, q,
		o.ID, o.TenantID, o.TypeCode, o.Code, o.Name, o.Data,
		o.Status, o.Version, o.CreatedAt, o.CreatedBy, o.ModifiedAt, o.ModifiedBy, o.Metadata)
	if err != nil {
		return mapErr("insert object", err)
	}
	return nil
}

// UpdateObject persists every mutable field of a locked object row.
func (se *Session) UpdateObject(ctx context.Context, o *model.Object) error {
	q := fmt.Sprintf(`UPDATE %s SET
		object_name = $3, data = $4, status = $5, version = $6,
		is_deleted = $7, deleted_at = $8, deleted_by = $9,
		modified_at = $10, modified_by = $11, metadata = $12
		WHERE tenant_id = $1 AND id = $2`, se.s.t.objects)
	tag, err := se.tx.Exec(ctx, q,
		o.TenantID, o.ID, o.Name, o.Data, o.Status, o.Version,
		o.Deleted, o.DeletedAt, o.DeletedBy, o.ModifiedAt, o.ModifiedBy, o.Metadata)
	if err != nil {
		return mapErr("update object", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound("object vanished during update")
	}
	return nil
}

// InsertVersion appends a version row for the mutation in flight.
func (se *Session) InsertVersion(ctx context.Context, v *model.ObjectVersion) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(id, object_id, version_number, change_type, previous_data, current_data, diff,
		 changed_by, ip_address, user_agent, change_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, se.s.t.versions)
	_, err := se.tx.Exec(ctx, q,
		v.ID, v.ObjectID, v.VersionNumber, v.ChangeType,
		v.PreviousData, v.CurrentData, v.Diff,
		v.ChangedBy, nilIfEmpty(v.IP), nilIfEmpty(v.UserAgent), nilIfEmpty(v.ChangeReason), v.CreatedAt)
	if err != nil {
		return mapErr("insert version", err)
	}
	return nil
}

// InsertOutbox writes a pending outbox row. The created_at stamp is taken
// here so the idempotency key and the row agree to the nanosecond.
func (se *Session) InsertOutbox(ctx context.Context, e *model.OutboxEntry) error {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.IdempotencyKey = e.ComputeIdempotencyKey(now)
	q := fmt.Sprintf(`INSERT INTO %s
		(id, aggregate_id, aggregate_type, event_type, payload, status,
		 retry_count, max_retries, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, se.s.t.outbox)
	_, err := se.tx.Exec(ctx, q,
		e.ID, e.AggregateID, e.AggregateType, e.EventType, e.Payload, e.Status,
		e.RetryCount, e.MaxRetries, e.IdempotencyKey, e.CreatedAt)
	if err != nil {
		return mapErr("insert outbox entry", err)
	}
	return nil
}

// InsertRelationship writes a relationship edge. A duplicate
// (source, target, type) surfaces as a Conflict; a missing endpoint as an
// Integrity error.
func (se *Session) InsertRelationship(ctx context.Context, r *model.Relationship) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(id, source_object_id, target_object_id, relationship_type, cardinality,
		 is_bidirectional, inverse_relationship_type, strength, display_order, metadata,
		 is_active, created_at, created_by, modified_at, modified_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`, se.s.t.relationships)
	_, err := se.tx.Exec(ctx, q,
		r.ID, r.SourceID, r.TargetID, r.RelType, r.Cardinality,
		r.Bidirectional, nilIfEmpty(r.InverseType), r.Strength, r.DisplayOrder, r.Metadata,
		r.Active, r.CreatedAt, r.CreatedBy, r.ModifiedAt, r.ModifiedBy)
	if err != nil {
		return mapErr("insert relationship", err)
	}
	return nil
}

// GetRelationshipForUpdate locks one relationship row.
func (se *Session) GetRelationshipForUpdate(ctx context.Context, id uuid.UUID) (*model.Relationship, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, relationshipColumns, se.s.t.relationships)
	r, err := scanRelationship(se.tx.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapErr("get relationship", err)
	}
	return r, nil
}

// DeleteRelationship removes a relationship edge.
func (se *Session) DeleteRelationship(ctx context.Context, id uuid.UUID) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, se.s.t.relationships)
	tag, err := se.tx.Exec(ctx, q, id)
	if err != nil {
		return mapErr("delete relationship", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound("relationship not found")
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
