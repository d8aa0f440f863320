package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

func testCache(t *testing.T) (*ObjectCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, time.Hour), mr
}

func testObject() *model.Object {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Object{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		TypeCode:   "PRODUCT",
		Code:       "SKU-001",
		Name:       "Widget",
		Data:       map[string]any{"color": "red"},
		Status:     model.StatusActive,
		Version:    1,
		CreatedAt:  now,
		CreatedBy:  "alice",
		ModifiedAt: now,
		ModifiedBy: "alice",
	}
}

func TestPutAndGetByID(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	o := testObject()

	c.Put(ctx, o)

	got := c.GetByID(ctx, o.ID)
	require.NotNil(t, got)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.TenantID, got.TenantID)
	assert.Equal(t, "red", got.Data["color"])
}

func TestGetByIDMiss(t *testing.T) {
	c, _ := testCache(t)
	assert.Nil(t, c.GetByID(context.Background(), uuid.New()))
}

func TestCodeMapping(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	o := testObject()

	assert.Equal(t, uuid.Nil, c.GetIDByCode(ctx, o.TenantID, o.TypeCode, o.Code))

	c.Put(ctx, o)
	assert.Equal(t, o.ID, c.GetIDByCode(ctx, o.TenantID, o.TypeCode, o.Code))

	// Same code under a different tenant stays a miss.
	assert.Equal(t, uuid.Nil, c.GetIDByCode(ctx, uuid.New(), o.TypeCode, o.Code))
}

func TestInvalidateDropsBothKeys(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	o := testObject()

	c.Put(ctx, o)
	c.Invalidate(ctx, o)

	assert.Nil(t, c.GetByID(ctx, o.ID))
	assert.Equal(t, uuid.Nil, c.GetIDByCode(ctx, o.TenantID, o.TypeCode, o.Code))
}

func TestInvalidateByCode(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()
	o := testObject()

	c.Put(ctx, o)
	c.InvalidateByCode(ctx, o.TenantID, o.TypeCode, o.Code)

	assert.Nil(t, c.GetByID(ctx, o.ID))
	assert.Equal(t, uuid.Nil, c.GetIDByCode(ctx, o.TenantID, o.TypeCode, o.Code))
}

func TestInvalidateByType(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	a := testObject()
	b := testObject()
	b.TenantID = a.TenantID
	b.Code = "SKU-002"
	other := testObject()
	other.TenantID = a.TenantID
	other.TypeCode = "ORDER"

	c.Put(ctx, a)
	c.Put(ctx, b)
	c.Put(ctx, other)

	c.InvalidateByType(ctx, a.TenantID, "PRODUCT")

	assert.Nil(t, c.GetByID(ctx, a.ID))
	assert.Nil(t, c.GetByID(ctx, b.ID))
	require.NotNil(t, c.GetByID(ctx, other.ID), "other types stay cached")
}

func TestCorruptEntryIsDropped(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()
	id := uuid.New()

	mr.Set("obj:"+id.String(), "{not json")
	assert.Nil(t, c.GetByID(ctx, id))
	assert.False(t, mr.Exists("obj:"+id.String()))
}

func TestEntriesExpire(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()
	o := testObject()

	c.Put(ctx, o)
	mr.FastForward(2 * time.Hour)

	assert.Nil(t, c.GetByID(ctx, o.ID))
}

func TestRedisDownIsAdvisory(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()
	o := testObject()
	mr.Close()

	// None of these may panic or error out to the caller.
	c.Put(ctx, o)
	assert.Nil(t, c.GetByID(ctx, o.ID))
	assert.Equal(t, uuid.Nil, c.GetIDByCode(ctx, o.TenantID, o.TypeCode, o.Code))
	c.Invalidate(ctx, o)
	c.InvalidateByCode(ctx, o.TenantID, o.TypeCode, o.Code)
	c.InvalidateByType(ctx, o.TenantID, o.TypeCode)
}
