package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

const objectColumns = `id, tenant_id, object_type_code, object_code, object_name, data,
	status, version, is_deleted, deleted_at, deleted_by,
	created_at, created_by, modified_at, modified_by, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(r rowScanner) (*model.Object, error) {
	var o model.Object
	err := r.Scan(&o.ID, &o.TenantID, &o.TypeCode, &o.Code, &o.Name, &o.Data,
		&o.Status, &o.Version, &o.Deleted, &o.DeletedAt, &o.DeletedBy,
		&o.CreatedAt, &o.CreatedBy, &o.ModifiedAt, &o.ModifiedBy, &o.Metadata)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) getObject(ctx context.Context, c dbconn, tenantID, id uuid.UUID, forUpdate bool) (*model.Object, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND id = $2`, objectColumns, s.t.objects)
	if forUpdate {
		q += " FOR UPDATE"
	}
	o, err := scanObject(c.QueryRow(ctx, q, tenantID, id))
	if err != nil {
		return nil, mapErr("get object", err)
	}
	return o, nil
}

// GetByID returns the live object, excluding soft-deleted rows.
func (s *Store) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Object, error) {
	var o *model.Object
	err := withRetry(ctx, func() error {
		got, err := s.getObject(ctx, s.pool, tenantID, id, false)
		if err != nil {
			return err
		}
		if got.Deleted {
			return model.ErrNotFound("object is deleted")
		}
		o = got
		return nil
	})
	return o, err
}

// GetByCode resolves a (type, code) pair to the live object.
func (s *Store) GetByCode(ctx context.Context, tenantID uuid.UUID, typeCode, code string) (*model.Object, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE tenant_id = $1 AND object_type_code = $2 AND object_code = $3 AND is_deleted = FALSE`,
		objectColumns, s.t.objects)
	var o *model.Object
	err := withRetry(ctx, func() error {
		got, err := scanObject(s.pool.QueryRow(ctx, q, tenantID, typeCode, code))
		if err != nil {
			return mapErr("get object by code", err)
		}
		o = got
		return nil
	})
	return o, err
}

// listPage runs a filtered, ordered page plus its total count. where must
// reference $1..$n matching args; ordering is newest-modified first.
func (s *Store) listPage(ctx context.Context, where, order string, page model.PageRequest, args ...any) (*model.PageResult[*model.Object], error) {
	page = page.Normalize(maxPageSize)
	if order == "" {
		order = "modified_at DESC"
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		objectColumns, s.t.objects, where, order, page.Size, page.Offset())
	cq := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.t.objects, where)

	var out *model.PageResult[*model.Object]
	err := withRetry(ctx, func() error {
		total, err := count(ctx, s.pool, cq, args...)
		if err != nil {
			return err
		}
		rows, err := s.pool.Query(ctx, q, args...)
		if err != nil {
			return mapErr("list objects", err)
		}
		defer rows.Close()
		items := make([]*model.Object, 0, page.Size)
		for rows.Next() {
			o, err := scanObject(rows)
			if err != nil {
				return mapErr("scan object", err)
			}
			items = append(items, o)
		}
		if err := rows.Err(); err != nil {
			return mapErr("list objects", err)
		}
		out = &model.PageResult[*model.Object]{Items: items, Total: total, Page: page.Page, Size: page.Size}
		return nil
	})
	return out, err
}

// ListByType pages the live objects of one type.
func (s *Store) ListByType(ctx context.Context, tenantID uuid.UUID, typeCode, status string, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	return s.listPage(ctx,
		"tenant_id = $1 AND object_type_code = $2 AND ($3 = '' OR status = $3) AND is_deleted = FALSE", "",
		page, tenantID, typeCode, status)
}

// ListByStatus pages live objects in one status. ARCHIVED objects are
// reachable here even though they reject mutations.
func (s *Store) ListByStatus(ctx context.Context, tenantID uuid.UUID, status string, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	return s.listPage(ctx,
		"tenant_id = $1 AND status = $2 AND is_deleted = FALSE", "",
		page, tenantID, status)
}

// SearchByName does a case-insensitive substring match on object_name
// within one type.
func (s *Store) SearchByName(ctx context.Context, tenantID uuid.UUID, typeCode, query string, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	return s.listPage(ctx,
		"tenant_id = $1 AND object_type_code = $2 AND is_deleted = FALSE AND object_name ILIKE $3",
		"object_name ASC",
		page, tenantID, typeCode, "%"+query+"%")
}

// QueryByAttribute matches objects whose data document contains the given
// top-level key/value, via jsonb containment so the GIN index applies.
func (s *Store) QueryByAttribute(ctx context.Context, tenantID uuid.UUID, typeCode, key string, value any, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	probe, err := json.Marshal(map[string]any{key: value})
	if err != nil {
		return nil, model.WrapError(model.KindInvalidArgument, "encode attribute probe", err)
	}
	return s.listPage(ctx,
		"tenant_id = $1 AND object_type_code = $2 AND is_deleted = FALSE AND data @> $3::jsonb", "",
		page, tenantID, typeCode, string(probe))
}

// BulkGet returns the live objects for the given ids, in no guaranteed
// order. Missing and deleted ids are silently absent from the result.
func (s *Store) BulkGet(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*model.Object, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE tenant_id = $1 AND id = ANY($2) AND is_deleted = FALSE`, objectColumns, s.t.objects)
	var items []*model.Object
	err := withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx, q, tenantID, ids)
		if err != nil {
			return mapErr("bulk get objects", err)
		}
		defer rows.Close()
		items = items[:0]
		for rows.Next() {
			o, err := scanObject(rows)
			if err != nil {
				return mapErr("scan object", err)
			}
			items = append(items, o)
		}
		return mapErr("bulk get objects", rows.Err())
	})
	return items, err
}

// CountByType returns live object counts per type code for one tenant.
func (s *Store) CountByType(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	q := fmt.Sprintf(`SELECT object_type_code, COUNT(*) FROM %s
		WHERE tenant_id = $1 AND is_deleted = FALSE
		GROUP BY object_type_code`, s.t.objects)
	out := map[string]int64{}
	err := withRetry(ctx, func() error {
		rows, err := s.pool.Query(ctx, q, tenantID)
		if err != nil {
			return mapErr("count by type", err)
		}
		defer rows.Close()
		for rows.Next() {
			var code string
			var n int64
			if err := rows.Scan(&code, &n); err != nil {
				return mapErr("scan count", err)
			}
			out[code] = n
		}
		return mapErr("count by type", rows.Err())
	})
	return out, err
}

// RecentlyModified pages live objects modified at or after since.
func (s *Store) RecentlyModified(ctx context.Context, tenantID uuid.UUID, since time.Time, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	return s.listPage(ctx,
		"tenant_id = $1 AND is_deleted = FALSE AND modified_at >= $2", "",
		page, tenantID, since)
}

// ObjectExists reports whether the object exists for this tenant, soft
// deleted or not.
func (s *Store) ObjectExists(ctx context.Context, tenantID, id uuid.UUID) error {
	q := fmt.Sprintf(`SELECT 1 FROM %s WHERE tenant_id = $1 AND id = $2`, s.t.objects)
	return withRetry(ctx, func() error {
		var one int
		if err := s.pool.QueryRow(ctx, q, tenantID, id).Scan(&one); err != nil {
			return mapErr("check object", err)
		}
		return nil
	})
}

// PurgeDeletedBefore hard-deletes soft-deleted objects whose deletion is
// older than cutoff. Version rows are kept; relationships cascade.
func (s *Store) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE is_deleted = TRUE AND deleted_at < $1`, s.t.objects)
	tag, err := s.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, mapErr("purge deleted objects", err)
	}
	return tag.RowsAffected(), nil
}
