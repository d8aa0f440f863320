// Package cache is the look-aside Redis layer in front of the object store.
// Every operation here is advisory: a Redis failure is logged and swallowed,
// and callers fall through to Postgres. Correctness never depends on it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

// DefaultTTL matches the object TTL the platform has always used.
const DefaultTTL = time.Hour

// ObjectCache caches objects by id and (tenant, type, code) lookups by
// resolved id. A per-type tag set tracks which keys belong to a type so the
// whole type can be dropped at once.
type ObjectCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds an ObjectCache. A non-positive ttl falls back to DefaultTTL.
func New(rdb *redis.Client, ttl time.Duration) *ObjectCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ObjectCache{rdb: rdb, ttl: ttl}
}

func objectKey(id uuid.UUID) string {
	return "obj:" + id.String()
}

func codeKey(tenantID uuid.UUID, typeCode, code string) string {
	return fmt.Sprintf("code:%s:%s:%s", tenantID, typeCode, code)
}

func typeTagKey(tenantID uuid.UUID, typeCode string) string {
	return fmt.Sprintf("type:%s:%s", tenantID, typeCode)
}

// GetByID returns the cached object, or nil on miss or any Redis error.
func (c *ObjectCache) GetByID(ctx context.Context, id uuid.UUID) *model.Object {
	raw, err := c.rdb.Get(ctx, objectKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", objectKey(id)).Msg("cache read failed")
		}
		return nil
	}
	var o model.Object
	if err := json.Unmarshal(raw, &o); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", objectKey(id)).Msg("cache entry corrupt, dropping")
		c.rdb.Del(ctx, objectKey(id))
		return nil
	}
	return &o
}

// GetIDByCode resolves a cached (tenant, type, code) lookup to an object id.
// Returns uuid.Nil on miss.
func (c *ObjectCache) GetIDByCode(ctx context.Context, tenantID uuid.UUID, typeCode, code string) uuid.UUID {
	key := codeKey(tenantID, typeCode, code)
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache entry corrupt, dropping")
		c.rdb.Del(ctx, key)
		return uuid.Nil
	}
	return id
}

// Put caches an object under both its id key and its code key, and records
// both keys in the type tag set.
func (c *ObjectCache) Put(ctx context.Context, o *model.Object) {
	raw, err := json.Marshal(o)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Stringer("object_id", o.ID).Msg("cache encode failed")
		return
	}
	ok := objectKey(o.ID)
	ck := codeKey(o.TenantID, o.TypeCode, o.Code)
	tag := typeTagKey(o.TenantID, o.TypeCode)

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, ok, raw, c.ttl)
	pipe.Set(ctx, ck, o.ID.String(), c.ttl)
	pipe.SAdd(ctx, tag, ok, ck)
	// Tag set outlives the entries slightly so invalidation still finds
	// stragglers.
	pipe.Expire(ctx, tag, c.ttl+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Stringer("object_id", o.ID).Msg("cache write failed")
	}
}

// Invalidate drops the id and code keys of one object.
func (c *ObjectCache) Invalidate(ctx context.Context, o *model.Object) {
	keys := []string{objectKey(o.ID), codeKey(o.TenantID, o.TypeCode, o.Code)}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Stringer("object_id", o.ID).Msg("cache invalidate failed")
	}
}

// InvalidateByCode resolves a code key to its object id and drops both
// entries. Useful when the caller only knows the business code.
func (c *ObjectCache) InvalidateByCode(ctx context.Context, tenantID uuid.UUID, typeCode, code string) {
	keys := []string{codeKey(tenantID, typeCode, code)}
	if id := c.GetIDByCode(ctx, tenantID, typeCode, code); id != uuid.Nil {
		keys = append(keys, objectKey(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", keys[0]).Msg("cache invalidate failed")
	}
}

// InvalidateByType drops every cached entry of one type via its tag set.
// Best effort: a concurrent Put can re-add a key after the sweep.
func (c *ObjectCache) InvalidateByType(ctx context.Context, tenantID uuid.UUID, typeCode string) {
	tag := typeTagKey(tenantID, typeCode)
	keys, err := c.rdb.SMembers(ctx, tag).Result()
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", tag).Msg("cache type invalidate failed")
		return
	}
	keys = append(keys, tag)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", tag).Msg("cache type invalidate failed")
	}
}
