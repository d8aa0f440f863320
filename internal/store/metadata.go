package store

import (
	"context"
	"fmt"
	"time"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

const metadataColumns = `id, object_type_code, object_type_name, metadata, attribute_definitions,
	validation_rules, synced_at, is_stale, ttl_minutes, usage_count, last_accessed_at`

func scanMetadata(r rowScanner) (*model.MetadataCache, error) {
	var m model.MetadataCache
	err := r.Scan(&m.ID, &m.TypeCode, &m.TypeName, &m.Descriptor, &m.AttributeDefs,
		&m.ValidationRule, &m.SyncedAt, &m.Stale, &m.TTLMinutes, &m.UsageCount, &m.LastAccessedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMetadata returns the mirrored type descriptor and bumps its usage
// counters in the same statement.
func (s *Store) GetMetadata(ctx context.Context, typeCode string) (*model.MetadataCache, error) {
	q := fmt.Sprintf(`UPDATE %s
		SET usage_count = usage_count + 1, last_accessed_at = now()
		WHERE object_type_code = $1
		RETURNING %s`, s.t.metadata, metadataColumns)
	var m *model.MetadataCache
	err := withRetry(ctx, func() error {
		got, err := scanMetadata(s.pool.QueryRow(ctx, q, typeCode))
		if err != nil {
			return mapErr("get type metadata", err)
		}
		m = got
		return nil
	})
	return m, err
}

// UpsertMetadata installs or refreshes a type descriptor, clearing any
// stale flag.
func (s *Store) UpsertMetadata(ctx context.Context, m *model.MetadataCache) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(id, object_type_code, object_type_name, metadata, attribute_definitions,
		 validation_rules, synced_at, is_stale, ttl_minutes, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, now(), now())
		ON CONFLICT (object_type_code) DO UPDATE SET
			object_type_name = EXCLUDED.object_type_name,
			metadata = EXCLUDED.metadata,
			attribute_definitions = EXCLUDED.attribute_definitions,
			validation_rules = EXCLUDED.validation_rules,
			synced_at = EXCLUDED.synced_at,
			is_stale = FALSE,
			ttl_minutes = EXCLUDED.ttl_minutes,
			modified_at = now()`, s.t.metadata)
	ttl := m.TTLMinutes
	if ttl <= 0 {
		ttl = 60
	}
	_, err := s.pool.Exec(ctx, q,
		m.ID, m.TypeCode, m.TypeName, m.Descriptor, m.AttributeDefs,
		m.ValidationRule, m.SyncedAt, ttl)
	if err != nil {
		return mapErr("upsert type metadata", err)
	}
	return nil
}

// MarkMetadataStale flags a descriptor so validation stops trusting it
// until the next sync.
func (s *Store) MarkMetadataStale(ctx context.Context, typeCode string) error {
	q := fmt.Sprintf(`UPDATE %s SET is_stale = TRUE, modified_at = now()
		WHERE object_type_code = $1`, s.t.metadata)
	tag, err := s.pool.Exec(ctx, q, typeCode)
	if err != nil {
		return mapErr("mark type metadata stale", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound("type metadata not found")
	}
	return nil
}

// StaleMetadata lists descriptors that are flagged stale or past their TTL
// as of now, for the refresh loop.
func (s *Store) StaleMetadata(ctx context.Context, now time.Time) ([]*model.MetadataCache, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE is_stale = TRUE OR synced_at + (ttl_minutes * interval '1 minute') <= $1
		ORDER BY synced_at`, metadataColumns, s.t.metadata)
	var out []*model.MetadataCache
	err := withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx, q, now)
		if err != nil {
			return mapErr("list stale metadata", err)
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			m, err := scanMetadata(rows)
			if err != nil {
				return mapErr("scan type metadata", err)
			}
			out = append(out, m)
		}
		return mapErr("list stale metadata", rows.Err())
	})
	return out, err
}
