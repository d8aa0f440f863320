package kernel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/cache"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/store"
)

// Reader serves the read paths. Point lookups go through the look-aside
// cache; list and search queries always hit Postgres.
type Reader struct {
	store *store.Store
	cache *cache.ObjectCache
}

// NewReader wires a Reader.
func NewReader(st *store.Store, c *cache.ObjectCache) *Reader {
	return &Reader{store: st, cache: c}
}

// Get returns one live object, cache first.
func (r *Reader) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Object, error) {
	if o := r.cache.GetByID(ctx, id); o != nil {
		// The cache is keyed by id alone; the tenant check happens here.
		if o.TenantID == tenantID {
			return o, nil
		}
	}
	o, err := r.store.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	r.cache.Put(ctx, o)
	return o, nil
}

// GetByCode resolves (type, code) to the live object, using the cached id
// mapping when present.
func (r *Reader) GetByCode(ctx context.Context, tenantID uuid.UUID, typeCode, code string) (*model.Object, error) {
	if id := r.cache.GetIDByCode(ctx, tenantID, typeCode, code); id != uuid.Nil {
		if o, err := r.Get(ctx, tenantID, id); err == nil {
			return o, nil
		}
		log.Ctx(ctx).Debug().Str("type", typeCode).Str("code", code).Msg("stale code mapping, falling through")
	}
	o, err := r.store.GetByCode(ctx, tenantID, typeCode, code)
	if err != nil {
		return nil, err
	}
	r.cache.Put(ctx, o)
	return o, nil
}

// ListByType pages one type's live objects, optionally narrowed to one
// status.
func (r *Reader) ListByType(ctx context.Context, tenantID uuid.UUID, typeCode, status string, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	if status != "" && !model.ValidStatus(status) {
		return nil, model.ErrInvalidArgument("invalid status")
	}
	return r.store.ListByType(ctx, tenantID, typeCode, status, page)
}

// ListByStatus pages live objects in one status.
func (r *Reader) ListByStatus(ctx context.Context, tenantID uuid.UUID, status string, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	if !model.ValidStatus(status) && status != model.StatusDeleted {
		return nil, model.ErrInvalidArgument("invalid status")
	}
	return r.store.ListByStatus(ctx, tenantID, status, page)
}

// SearchByName pages case-insensitive name matches within a type.
func (r *Reader) SearchByName(ctx context.Context, tenantID uuid.UUID, typeCode, query string, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	if query == "" {
		return nil, model.ErrInvalidArgument("query is required")
	}
	return r.store.SearchByName(ctx, tenantID, typeCode, query, page)
}

// QueryByAttribute pages objects whose data document has the given
// top-level key/value.
func (r *Reader) QueryByAttribute(ctx context.Context, tenantID uuid.UUID, typeCode, key string, value any, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	if key == "" {
		return nil, model.ErrInvalidArgument("attribute key is required")
	}
	return r.store.QueryByAttribute(ctx, tenantID, typeCode, key, value, page)
}

// BulkGet returns the live objects for ids. An empty request returns empty
// without touching the store.
func (r *Reader) BulkGet(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*model.Object, error) {
	if len(ids) == 0 {
		return []*model.Object{}, nil
	}
	return r.store.BulkGet(ctx, tenantID, ids)
}

// CountByType returns live object counts per type.
func (r *Reader) CountByType(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	return r.store.CountByType(ctx, tenantID)
}

// RecentlyModified pages objects modified at or after since.
func (r *Reader) RecentlyModified(ctx context.Context, tenantID uuid.UUID, since time.Time, page model.PageRequest) (*model.PageResult[*model.Object], error) {
	return r.store.RecentlyModified(ctx, tenantID, since, page)
}

// requireObjectAnyState checks the object exists for this tenant, deleted
// or not, so version history stays readable after a soft delete.
func (r *Reader) requireObjectAnyState(ctx context.Context, tenantID, objectID uuid.UUID) error {
	return r.store.ObjectExists(ctx, tenantID, objectID)
}

// VersionHistory pages an object's version rows, newest first.
func (r *Reader) VersionHistory(ctx context.Context, tenantID, objectID uuid.UUID, page model.PageRequest) (*model.PageResult[*model.ObjectVersion], error) {
	if err := r.requireObjectAnyState(ctx, tenantID, objectID); err != nil {
		return nil, err
	}
	return r.store.VersionHistory(ctx, objectID, page)
}

// VersionAt returns one specific version of an object.
func (r *Reader) VersionAt(ctx context.Context, tenantID, objectID uuid.UUID, number int) (*model.ObjectVersion, error) {
	if number < 1 {
		return nil, model.ErrInvalidArgument("version number must be positive")
	}
	if err := r.requireObjectAnyState(ctx, tenantID, objectID); err != nil {
		return nil, err
	}
	return r.store.VersionAt(ctx, objectID, number)
}

// VersionAtTime returns the version that was current at the given instant.
func (r *Reader) VersionAtTime(ctx context.Context, tenantID, objectID uuid.UUID, at time.Time) (*model.ObjectVersion, error) {
	if err := r.requireObjectAnyState(ctx, tenantID, objectID); err != nil {
		return nil, err
	}
	return r.store.VersionAtTime(ctx, objectID, at)
}
