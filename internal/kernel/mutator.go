package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/bus"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/cache"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/store"
)

// Mutator runs the write pipeline. Every mutation commits the object row,
// its version row and its outbox row in one transaction, then touches the
// cache after the commit. The cache step is advisory; the transaction is
// the source of truth.
type Mutator struct {
	store    *store.Store
	cache    *cache.ObjectCache
	registry *TypeRegistry
}

// NewMutator wires a Mutator.
func NewMutator(st *store.Store, c *cache.ObjectCache, reg *TypeRegistry) *Mutator {
	return &Mutator{store: st, cache: c, registry: reg}
}

// CreateRequest carries the client-supplied fields of a new object.
type CreateRequest struct {
	TypeCode string         `json:"objectTypeCode"`
	Code     string         `json:"objectCode"`
	Name     string         `json:"objectName"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpdateRequest replaces the mutable fields of an object. Data is a full
// document replacement, not a patch.
type UpdateRequest struct {
	Name     *string        `json:"objectName,omitempty"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Reason   string         `json:"changeReason,omitempty"`
}

func checkActor(actor model.ActorContext) error {
	if actor.User == "" {
		return model.ErrInvalidArgument("actor user is required")
	}
	return nil
}

// Create inserts a new object at version 1.
func (m *Mutator) Create(ctx context.Context, tenantID uuid.UUID, actor model.ActorContext, req CreateRequest) (*model.Object, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if req.TypeCode == "" || req.Code == "" {
		return nil, model.ErrInvalidArgument("objectTypeCode and objectCode are required")
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	if err := m.registry.Validate(ctx, req.TypeCode, req.Data); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &model.Object{
		ID:         uuid.New(),
		TenantID:   tenantID,
		TypeCode:   req.TypeCode,
		Code:       req.Code,
		Name:       req.Name,
		Data:       req.Data,
		Status:     model.StatusActive,
		Version:    1,
		CreatedAt:  now,
		CreatedBy:  actor.User,
		ModifiedAt: now,
		ModifiedBy: actor.User,
		Metadata:   req.Metadata,
	}

	se, err := m.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer se.Rollback(ctx)

	if err := se.InsertObject(ctx, o); err != nil {
		if model.IsConflict(err) {
			return nil, model.ErrConflict(fmt.Sprintf("object %s/%s already exists", req.TypeCode, req.Code))
		}
		return nil, err
	}
	if err := se.InsertVersion(ctx, newVersion(o, model.ChangeCreate, nil, actor, "", now)); err != nil {
		return nil, err
	}
	entry := model.NewOutboxEntry(o.ID, model.AggregateObject, bus.EventObjectCreated, objectEventPayload(bus.EventObjectCreated, o, now))
	if err := se.InsertOutbox(ctx, entry); err != nil {
		return nil, err
	}
	if err := se.Commit(ctx); err != nil {
		return nil, err
	}

	m.cache.Put(ctx, o)
	log.Ctx(ctx).Info().
		Stringer("object_id", o.ID).
		Str("type", o.TypeCode).
		Str("code", o.Code).
		Msg("object created")
	return o, nil
}

// Update replaces the data document of a live object and bumps its version.
func (m *Mutator) Update(ctx context.Context, tenantID, id uuid.UUID, actor model.ActorContext, req UpdateRequest) (*model.Object, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if req.Data == nil {
		return nil, model.ErrInvalidArgument("data is required")
	}

	o, err := m.mutate(ctx, tenantID, id, func(o *model.Object, now time.Time) (string, string, string, error) {
		if o.Deleted {
			return "", "", "", model.ErrNotFound("object is deleted")
		}
		if o.Status == model.StatusArchived {
			return "", "", "", model.ErrInvalidState("archived objects cannot be updated")
		}
		if err := m.registry.Validate(ctx, o.TypeCode, req.Data); err != nil {
			return "", "", "", err
		}
		if req.Name != nil {
			o.Name = *req.Name
		}
		o.Data = req.Data
		if req.Metadata != nil {
			o.Metadata = req.Metadata
		}
		return model.ChangeUpdate, bus.EventObjectUpdated, req.Reason, nil
	}, actor)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Stringer("object_id", o.ID).Int("version", o.Version).Msg("object updated")
	return o, nil
}

// SoftDelete tombstones a live object. The code becomes reusable by a new
// object immediately.
func (m *Mutator) SoftDelete(ctx context.Context, tenantID, id uuid.UUID, actor model.ActorContext, reason string) error {
	if err := checkActor(actor); err != nil {
		return err
	}
	o, err := m.mutate(ctx, tenantID, id, func(o *model.Object, now time.Time) (string, string, string, error) {
		if o.Deleted {
			return "", "", "", model.ErrNotFound("object is deleted")
		}
		o.MarkDeleted(actor.User, now)
		return model.ChangeDelete, bus.EventObjectDeleted, reason, nil
	}, actor)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().Stringer("object_id", o.ID).Msg("object soft deleted")
	return nil
}

// Restore brings a soft-deleted object back as ACTIVE. If the code was
// reused while the object was deleted, the restore fails with a Conflict.
func (m *Mutator) Restore(ctx context.Context, tenantID, id uuid.UUID, actor model.ActorContext) (*model.Object, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	o, err := m.mutate(ctx, tenantID, id, func(o *model.Object, now time.Time) (string, string, string, error) {
		if !o.Deleted {
			return "", "", "", model.ErrInvalidState("object is not deleted")
		}
		o.Restore()
		return model.ChangeRestore, bus.EventObjectRestored, "", nil
	}, actor)
	if err != nil {
		if model.IsConflict(err) {
			return nil, model.ErrConflict("object code was reused while deleted")
		}
		return nil, err
	}
	log.Ctx(ctx).Info().Stringer("object_id", o.ID).Msg("object restored")
	return o, nil
}

// ChangeStatus moves a live object along the allowed status graph.
func (m *Mutator) ChangeStatus(ctx context.Context, tenantID, id uuid.UUID, actor model.ActorContext, status, reason string) (*model.Object, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if !model.ValidStatus(status) {
		return nil, model.ErrInvalidArgument(fmt.Sprintf("invalid status %q", status))
	}
	o, err := m.mutate(ctx, tenantID, id, func(o *model.Object, now time.Time) (string, string, string, error) {
		if o.Deleted {
			return "", "", "", model.ErrNotFound("object is deleted")
		}
		if o.Status == status {
			return "", "", "", model.ErrInvalidState(fmt.Sprintf("object is already %s", status))
		}
		if !model.CanTransition(o.Status, status) {
			return "", "", "", model.ErrInvalidState(fmt.Sprintf("cannot transition from %s to %s", o.Status, status))
		}
		if reason == "" {
			reason = fmt.Sprintf("%s -> %s", o.Status, status)
		}
		o.Status = status
		return model.ChangeStatusChange, bus.EventObjectStatusChanged, reason, nil
	}, actor)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Stringer("object_id", o.ID).Str("status", o.Status).Msg("object status changed")
	return o, nil
}

// mutate is the shared write protocol: lock the row, apply the change,
// bump the version, append the version row and the outbox row, commit, then
// fix the cache. apply returns the change type, event type and reason, or
// an error to abort.
func (m *Mutator) mutate(ctx context.Context, tenantID, id uuid.UUID,
	apply func(o *model.Object, now time.Time) (changeType, eventType, reason string, err error),
	actor model.ActorContext) (*model.Object, error) {

	se, err := m.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer se.Rollback(ctx)

	o, err := se.GetObjectForUpdate(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	prev := o.Data
	prevCached := *o

	now := time.Now().UTC()
	changeType, eventType, reason, err := apply(o, now)
	if err != nil {
		return nil, err
	}

	o.Version++
	o.ModifiedAt = now
	o.ModifiedBy = actor.User

	if err := se.UpdateObject(ctx, o); err != nil {
		return nil, err
	}
	if err := se.InsertVersion(ctx, newVersion(o, changeType, prev, actor, reason, now)); err != nil {
		return nil, err
	}
	entry := model.NewOutboxEntry(o.ID, model.AggregateObject, eventType, objectEventPayload(eventType, o, now))
	if err := se.InsertOutbox(ctx, entry); err != nil {
		return nil, err
	}
	if err := se.Commit(ctx); err != nil {
		return nil, err
	}

	// Drop the pre-mutation keys first in case type or code level lookups
	// are cached, then cache the fresh state unless it is a tombstone.
	m.cache.Invalidate(ctx, &prevCached)
	if !o.Deleted {
		m.cache.Put(ctx, o)
	}
	return o, nil
}
