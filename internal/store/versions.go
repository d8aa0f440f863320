package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

const versionColumns = `id, object_id, version_number, change_type, previous_data, current_data, diff,
	changed_by, COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(change_reason, ''), created_at`

func scanVersion(r rowScanner) (*model.ObjectVersion, error) {
	var v model.ObjectVersion
	err := r.Scan(&v.ID, &v.ObjectID, &v.VersionNumber, &v.ChangeType,
		&v.PreviousData, &v.CurrentData, &v.Diff,
		&v.ChangedBy, &v.IP, &v.UserAgent, &v.ChangeReason, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// VersionHistory pages an object's version rows, newest first.
func (s *Store) VersionHistory(ctx context.Context, objectID uuid.UUID, page model.PageRequest) (*model.PageResult[*model.ObjectVersion], error) {
	page = page.Normalize(maxPageSize)
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE object_id = $1
		ORDER BY version_number DESC LIMIT %d OFFSET %d`,
		versionColumns, s.t.versions, page.Size, page.Offset())
	cq := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE object_id = $1`, s.t.versions)

	var out *model.PageResult[*model.ObjectVersion]
	err := withRetry(ctx, func() error {
		total, err := count(ctx, s.pool, cq, objectID)
		if err != nil {
			return err
		}
		rows, err := s.pool.Query(ctx, q, objectID)
		if err != nil {
			return mapErr("list versions", err)
		}
		defer rows.Close()
		items := make([]*model.ObjectVersion, 0, page.Size)
		for rows.Next() {
			v, err := scanVersion(rows)
			if err != nil {
				return mapErr("scan version", err)
			}
			items = append(items, v)
		}
		if err := rows.Err(); err != nil {
			return mapErr("list versions", err)
		}
		out = &model.PageResult[*model.ObjectVersion]{Items: items, Total: total, Page: page.Page, Size: page.Size}
		return nil
	})
	return out, err
}

// VersionAt returns one specific version row.
func (s *Store) VersionAt(ctx context.Context, objectID uuid.UUID, number int) (*model.ObjectVersion, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE object_id = $1 AND version_number = $2`,
		versionColumns, s.t.versions)
	var v *model.ObjectVersion
	err := withRetry(ctx, func() error {
		got, err := scanVersion(s.pool.QueryRow(ctx, q, objectID, number))
		if err != nil {
			return mapErr("get version", err)
		}
		v = got
		return nil
	})
	return v, err
}

// LatestVersion returns the highest-numbered version row.
func (s *Store) LatestVersion(ctx context.Context, objectID uuid.UUID) (*model.ObjectVersion, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE object_id = $1
		ORDER BY version_number DESC LIMIT 1`, versionColumns, s.t.versions)
	var v *model.ObjectVersion
	err := withRetry(ctx, func() error {
		got, err := scanVersion(s.pool.QueryRow(ctx, q, objectID))
		if err != nil {
			return mapErr("get latest version", err)
		}
		v = got
		return nil
	})
	return v, err
}

// VersionAtTime returns the version that was current at the given instant,
// i.e. the newest row created at or before it.
func (s *Store) VersionAtTime(ctx context.Context, objectID uuid.UUID, at time.Time) (*model.ObjectVersion, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE object_id = $1 AND created_at <= $2
		ORDER BY version_number DESC LIMIT 1`, versionColumns, s.t.versions)
	var v *model.ObjectVersion
	err := withRetry(ctx, func() error {
		got, err := scanVersion(s.pool.QueryRow(ctx, q, objectID, at))
		if err != nil {
			return mapErr("get version at time", err)
		}
		v = got
		return nil
	})
	return v, err
}
