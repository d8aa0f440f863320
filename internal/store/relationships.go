package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

const relationshipColumns = `id, source_object_id, target_object_id, relationship_type, cardinality,
	is_bidirectional, COALESCE(inverse_relationship_type, ''), strength, display_order, metadata,
	is_active, created_at, created_by, modified_at, modified_by`

func scanRelationship(r rowScanner) (*model.Relationship, error) {
	var rel model.Relationship
	err := r.Scan(&rel.ID, &rel.SourceID, &rel.TargetID, &rel.RelType, &rel.Cardinality,
		&rel.Bidirectional, &rel.InverseType, &rel.Strength, &rel.DisplayOrder, &rel.Metadata,
		&rel.Active, &rel.CreatedAt, &rel.CreatedBy, &rel.ModifiedAt, &rel.ModifiedBy)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// GetRelationship returns one relationship edge by id.
func (s *Store) GetRelationship(ctx context.Context, id uuid.UUID) (*model.Relationship, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, relationshipColumns, s.t.relationships)
	var rel *model.Relationship
	err := withRetry(ctx, func() error {
		got, err := scanRelationship(s.pool.QueryRow(ctx, q, id))
		if err != nil {
			return mapErr("get relationship", err)
		}
		rel = got
		return nil
	})
	return rel, err
}

// ListRelated returns the active edges touching objectID. Directed edges
// match on source only; bidirectional edges match from either end. An empty
// relType matches every type.
func (s *Store) ListRelated(ctx context.Context, objectID uuid.UUID, relType string) ([]*model.Relationship, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE is_active = TRUE
		  AND (source_object_id = $1 OR (is_bidirectional AND target_object_id = $1))
		  AND ($2 = '' OR relationship_type = $2)
		ORDER BY COALESCE(display_order, 2147483647), created_at`, relationshipColumns, s.t.relationships)
	var out []*model.Relationship
	err := withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx, q, objectID, relType)
		if err != nil {
			return mapErr("list relationships", err)
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			rel, err := scanRelationship(rows)
			if err != nil {
				return mapErr("scan relationship", err)
			}
			out = append(out, rel)
		}
		return mapErr("list relationships", rows.Err())
	})
	return out, err
}
