package kernel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/bus"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/store"
)

// Relationships manages typed edges between objects. Like object mutations,
// edge changes write their outbox row in the same transaction.
type Relationships struct {
	store *store.Store
}

// NewRelationships wires a Relationships service.
func NewRelationships(st *store.Store) *Relationships {
	return &Relationships{store: st}
}

// RelateRequest describes a new edge.
type RelateRequest struct {
	SourceID      uuid.UUID      `json:"sourceObjectId"`
	TargetID      uuid.UUID      `json:"targetObjectId"`
	RelType       string         `json:"relationshipType"`
	Cardinality   string         `json:"cardinality,omitempty"`
	Bidirectional bool           `json:"isBidirectional"`
	InverseType   string         `json:"inverseRelationshipType,omitempty"`
	Strength      *float64       `json:"strength,omitempty"`
	DisplayOrder  *int           `json:"displayOrder,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func validCardinality(c string) bool {
	switch c {
	case model.CardinalityOneToOne, model.CardinalityOneToMany, model.CardinalityManyToMany:
		return true
	}
	return false
}

// Relate creates an edge between two live objects of the same tenant. A
// bidirectional edge is stored once; navigation treats it as symmetric.
func (r *Relationships) Relate(ctx context.Context, tenantID uuid.UUID, actor model.ActorContext, req RelateRequest) (*model.Relationship, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if req.RelType == "" {
		return nil, model.ErrInvalidArgument("relationshipType is required")
	}
	if req.SourceID == req.TargetID {
		return nil, model.ErrInvalidArgument("an object cannot relate to itself")
	}
	if req.Cardinality == "" {
		req.Cardinality = model.CardinalityManyToMany
	}
	if !validCardinality(req.Cardinality) {
		return nil, model.ErrInvalidArgument("invalid cardinality")
	}
	if req.Strength != nil && (*req.Strength < 0 || *req.Strength > 1) {
		return nil, model.ErrInvalidArgument("strength must be between 0 and 1")
	}

	// Both endpoints must be live objects of this tenant. The FK keeps the
	// edge honest if one vanishes between here and the insert.
	if _, err := r.store.GetByID(ctx, tenantID, req.SourceID); err != nil {
		return nil, err
	}
	if _, err := r.store.GetByID(ctx, tenantID, req.TargetID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rel := &model.Relationship{
		ID:            uuid.New(),
		SourceID:      req.SourceID,
		TargetID:      req.TargetID,
		RelType:       req.RelType,
		Cardinality:   req.Cardinality,
		Bidirectional: req.Bidirectional,
		InverseType:   req.InverseType,
		Strength:      req.Strength,
		DisplayOrder:  req.DisplayOrder,
		Metadata:      req.Metadata,
		Active:        true,
		CreatedAt:     now,
		CreatedBy:     actor.User,
		ModifiedAt:    now,
		ModifiedBy:    actor.User,
	}

	se, err := r.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer se.Rollback(ctx)

	if err := se.InsertRelationship(ctx, rel); err != nil {
		if model.IsConflict(err) {
			return nil, model.ErrConflict("relationship already exists")
		}
		return nil, err
	}
	entry := model.NewOutboxEntry(rel.ID, model.AggregateRelationship, bus.EventRelationshipCreated,
		relationshipEventPayload(bus.EventRelationshipCreated, tenantID, rel, now))
	if err := se.InsertOutbox(ctx, entry); err != nil {
		return nil, err
	}
	if err := se.Commit(ctx); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Stringer("relationship_id", rel.ID).
		Str("type", rel.RelType).
		Msg("relationship created")
	return rel, nil
}

// Unrelate removes an edge. The source object anchors the tenant check.
func (r *Relationships) Unrelate(ctx context.Context, tenantID, relationshipID uuid.UUID, actor model.ActorContext) error {
	if err := checkActor(actor); err != nil {
		return err
	}

	se, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer se.Rollback(ctx)

	rel, err := se.GetRelationshipForUpdate(ctx, relationshipID)
	if err != nil {
		return err
	}
	if _, err := se.GetObjectForUpdate(ctx, tenantID, rel.SourceID); err != nil {
		if model.IsNotFound(err) {
			return model.ErrNotFound("relationship not found")
		}
		return err
	}
	if err := se.DeleteRelationship(ctx, relationshipID); err != nil {
		return err
	}
	now := time.Now().UTC()
	entry := model.NewOutboxEntry(rel.ID, model.AggregateRelationship, bus.EventRelationshipDeleted,
		relationshipEventPayload(bus.EventRelationshipDeleted, tenantID, rel, now))
	if err := se.InsertOutbox(ctx, entry); err != nil {
		return err
	}
	if err := se.Commit(ctx); err != nil {
		return err
	}

	log.Ctx(ctx).Info().Stringer("relationship_id", relationshipID).Msg("relationship deleted")
	return nil
}

// ListRelated returns the active edges touching an object, symmetric for
// bidirectional edges. relType narrows the result when non-empty.
func (r *Relationships) ListRelated(ctx context.Context, tenantID, objectID uuid.UUID, relType string) ([]*model.Relationship, error) {
	if err := r.store.ObjectExists(ctx, tenantID, objectID); err != nil {
		return nil, err
	}
	return r.store.ListRelated(ctx, objectID, relType)
}
