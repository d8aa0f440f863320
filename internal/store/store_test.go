package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/db"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

// testStore opens a Store against TEST_DATABASE_URL with a unique table
// prefix per run, so parallel CI jobs never collide.
func testStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	prefix := fmt.Sprintf("t%d", time.Now().UnixNano())
	require.NoError(t, db.Migrate(ctx, pool, prefix))
	return NewStore(pool, prefix)
}

func insertTestObject(t *testing.T, s *Store, tenantID uuid.UUID, typeCode, code string, data map[string]any) *model.Object {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	o := &model.Object{
		ID:         uuid.New(),
		TenantID:   tenantID,
		TypeCode:   typeCode,
		Code:       code,
		Name:       code,
		Data:       data,
		Status:     model.StatusActive,
		Version:    1,
		CreatedAt:  now,
		CreatedBy:  "tester",
		ModifiedAt: now,
		ModifiedBy: "tester",
	}

	se, err := s.Begin(ctx)
	require.NoError(t, err)
	defer se.Rollback(ctx)
	require.NoError(t, se.InsertObject(ctx, o))
	require.NoError(t, se.Commit(ctx))
	return o
}

func TestObjectRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()

	o := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{"color": "red", "stock": float64(10)})

	got, err := s.GetByID(ctx, tenant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, "red", got.Data["color"])
	assert.Equal(t, 1, got.Version)

	byCode, err := s.GetByCode(ctx, tenant, "PRODUCT", "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byCode.ID)

	// Another tenant cannot see the row.
	_, err = s.GetByID(ctx, uuid.New(), o.ID)
	assert.True(t, model.IsNotFound(err))
}

func TestDuplicateCodeConflicts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()

	insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{})

	se, err := s.Begin(ctx)
	require.NoError(t, err)
	defer se.Rollback(ctx)
	dup := &model.Object{
		ID: uuid.New(), TenantID: tenant, TypeCode: "PRODUCT", Code: "SKU-1",
		Data: map[string]any{}, Status: model.StatusActive, Version: 1,
		CreatedAt: time.Now().UTC(), CreatedBy: "tester",
		ModifiedAt: time.Now().UTC(), ModifiedBy: "tester",
	}
	err = se.InsertObject(ctx, dup)
	assert.True(t, model.IsConflict(err))
}

func TestSoftDeleteFreesCodeForReuse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()

	o := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{})

	se, err := s.Begin(ctx)
	require.NoError(t, err)
	locked, err := se.GetObjectForUpdate(ctx, tenant, o.ID)
	require.NoError(t, err)
	locked.MarkDeleted("tester", time.Now().UTC())
	locked.Version++
	require.NoError(t, se.UpdateObject(ctx, locked))
	require.NoError(t, se.Commit(ctx))

	_, err = s.GetByID(ctx, tenant, o.ID)
	assert.True(t, model.IsNotFound(err), "soft-deleted objects are invisible to reads")

	// The code is free again.
	reuse := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{"generation": float64(2)})
	got, err := s.GetByCode(ctx, tenant, "PRODUCT", "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, reuse.ID, got.ID)
}

func TestVersionRowsAreGapFree(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{"n": float64(0)})

	for i := 0; i < 3; i++ {
		se, err := s.Begin(ctx)
		require.NoError(t, err)
		locked, err := se.GetObjectForUpdate(ctx, tenant, o.ID)
		require.NoError(t, err)
		locked.Data = map[string]any{"n": float64(i + 1)}
		locked.Version++
		require.NoError(t, se.UpdateObject(ctx, locked))
		require.NoError(t, se.InsertVersion(ctx, &model.ObjectVersion{
			ID: uuid.New(), ObjectID: o.ID, VersionNumber: locked.Version,
			ChangeType: model.ChangeUpdate, CurrentData: locked.Data,
			ChangedBy: "tester", CreatedAt: time.Now().UTC(),
		}))
		require.NoError(t, se.Commit(ctx))
	}

	page, err := s.VersionHistory(ctx, o.ID, model.PageRequest{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, 4, page.Items[0].VersionNumber, "newest first")
	assert.Equal(t, 2, page.Items[2].VersionNumber)

	latest, err := s.LatestVersion(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, latest.VersionNumber)
}

func TestQueryByAttribute(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()

	insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{"color": "red"})
	insertTestObject(t, s, tenant, "PRODUCT", "SKU-2", map[string]any{"color": "blue"})
	insertTestObject(t, s, tenant, "PRODUCT", "SKU-3", map[string]any{"color": "red"})

	page, err := s.QueryByAttribute(ctx, tenant, "PRODUCT", "color", "red", model.PageRequest{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	for _, o := range page.Items {
		assert.Equal(t, "red", o.Data["color"])
	}
}

func TestOutboxClaimCycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{})

	se, err := s.Begin(ctx)
	require.NoError(t, err)
	entry := model.NewOutboxEntry(o.ID, model.AggregateObject, "object.created", map[string]any{"k": "v"})
	require.NoError(t, se.InsertOutbox(ctx, entry))
	require.NoError(t, se.Commit(ctx))

	n, err := s.ForEachClaimedPending(ctx, 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		assert.Equal(t, entry.ID, e.ID)
		assert.Equal(t, "v", e.Payload["k"])
		e.MarkPublished("platform.kernel.object.created", 2, 99, time.Now().UTC())
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Nothing pending remains.
	n, err = s.ForEachClaimedPending(ctx, 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		t.Fatalf("unexpected pending row %s", e.ID)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Published rows fall to the sweeper once past retention.
	swept, err := s.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)
}

func TestOutboxFailedRetryCycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{})

	se, err := s.Begin(ctx)
	require.NoError(t, err)
	entry := model.NewOutboxEntry(o.ID, model.AggregateObject, "object.created", map[string]any{})
	require.NoError(t, se.InsertOutbox(ctx, entry))
	require.NoError(t, se.Commit(ctx))

	// First attempt fails.
	_, err = s.ForEachClaimedPending(ctx, 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		e.MarkFailed("broker down", time.Now().UTC().Add(-time.Hour))
		return true
	})
	require.NoError(t, err)

	// The backoff window has already elapsed, so the retry loop finds it.
	n, err := s.ForEachClaimedRetryable(ctx, time.Now().UTC(), 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		assert.Equal(t, 1, e.RetryCount)
		e.MarkPublished("platform.kernel.object.created", 0, 1, time.Now().UTC())
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutboxOnePerAggregatePerCycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{})

	for i := 0; i < 3; i++ {
		se, err := s.Begin(ctx)
		require.NoError(t, err)
		entry := model.NewOutboxEntry(o.ID, model.AggregateObject, "object.updated", map[string]any{"i": float64(i)})
		require.NoError(t, se.InsertOutbox(ctx, entry))
		require.NoError(t, se.Commit(ctx))
		time.Sleep(2 * time.Millisecond)
	}

	var seen []float64
	for cycle := 0; cycle < 3; cycle++ {
		n, err := s.ForEachClaimedPending(ctx, 10, func(ctx context.Context, e *model.OutboxEntry) bool {
			seen = append(seen, e.Payload["i"].(float64))
			e.MarkPublished("platform.kernel.object.updated", 0, int64(cycle), time.Now().UTC())
			return true
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n, "one in-flight row per aggregate per cycle")
	}
	assert.Equal(t, []float64{0, 1, 2}, seen, "events drain oldest first")
}

func TestOutboxFailedHeadBlocksLaterRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{})

	for i := 0; i < 2; i++ {
		se, err := s.Begin(ctx)
		require.NoError(t, err)
		entry := model.NewOutboxEntry(o.ID, model.AggregateObject, "object.updated", map[string]any{"i": float64(i)})
		require.NoError(t, se.InsertOutbox(ctx, entry))
		require.NoError(t, se.Commit(ctx))
		time.Sleep(2 * time.Millisecond)
	}

	// The first row fails and backs off into the future.
	var failedID uuid.UUID
	n, err := s.ForEachClaimedPending(ctx, 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		assert.Equal(t, float64(0), e.Payload["i"])
		failedID = e.ID
		e.MarkFailed("broker down", time.Now().UTC())
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// While that row is backing off, its aggregate yields nothing: the
	// second row must not overtake the first.
	n, err = s.ForEachClaimedPending(ctx, 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		t.Fatalf("row %v dispatched ahead of its failed predecessor", e.Payload["i"])
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = s.ForEachClaimedRetryable(ctx, time.Now().UTC(), 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		t.Fatalf("row %s retried before its backoff elapsed", e.ID)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Once the backoff elapses the retry worker resumes with the failed
	// row, still ahead of the pending one.
	n, err = s.ForEachClaimedRetryable(ctx, time.Now().UTC().Add(5*time.Minute), 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		assert.Equal(t, failedID, e.ID)
		e.MarkPublished("platform.kernel.object.updated", 0, 1, time.Now().UTC())
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.ForEachClaimedPending(ctx, 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		assert.Equal(t, float64(1), e.Payload["i"])
		e.MarkPublished("platform.kernel.object.updated", 0, 2, time.Now().UTC())
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutboxNullNextRetryIsDue(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := insertTestObject(t, s, tenant, "PRODUCT", "SKU-1", map[string]any{})

	se, err := s.Begin(ctx)
	require.NoError(t, err)
	entry := model.NewOutboxEntry(o.ID, model.AggregateObject, "object.created", map[string]any{})
	require.NoError(t, se.InsertOutbox(ctx, entry))
	require.NoError(t, se.Commit(ctx))

	// A FAILED row with no scheduled retry, as another producer might
	// leave it, is immediately due rather than starved.
	q := fmt.Sprintf(`UPDATE %s SET status = 'FAILED', retry_count = 1, next_retry_at = NULL WHERE id = $1`, s.t.outbox)
	_, err = s.pool.Exec(ctx, q, entry.ID)
	require.NoError(t, err)

	n, err := s.ForEachClaimedRetryable(ctx, time.Now().UTC(), 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		assert.Equal(t, entry.ID, e.ID)
		assert.Nil(t, e.NextRetryAt)
		e.MarkPublished("platform.kernel.object.created", 0, 1, time.Now().UTC())
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelationshipsSymmetricNavigation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant := uuid.New()

	a := insertTestObject(t, s, tenant, "PRODUCT", "SKU-A", map[string]any{})
	b := insertTestObject(t, s, tenant, "PRODUCT", "SKU-B", map[string]any{})
	c := insertTestObject(t, s, tenant, "PRODUCT", "SKU-C", map[string]any{})

	se, err := s.Begin(ctx)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, se.InsertRelationship(ctx, &model.Relationship{
		ID: uuid.New(), SourceID: a.ID, TargetID: b.ID, RelType: "BUNDLED_WITH",
		Cardinality: model.CardinalityManyToMany, Bidirectional: true, Active: true,
		CreatedAt: now, CreatedBy: "tester", ModifiedAt: now, ModifiedBy: "tester",
	}))
	require.NoError(t, se.InsertRelationship(ctx, &model.Relationship{
		ID: uuid.New(), SourceID: a.ID, TargetID: c.ID, RelType: "REPLACES",
		Cardinality: model.CardinalityOneToOne, Active: true,
		CreatedAt: now, CreatedBy: "tester", ModifiedAt: now, ModifiedBy: "tester",
	}))
	require.NoError(t, se.Commit(ctx))

	// b sees the bidirectional edge from the target side.
	rels, err := s.ListRelated(ctx, b.ID, "")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "BUNDLED_WITH", rels[0].RelType)

	// c does not: REPLACES is directed.
	rels, err = s.ListRelated(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Empty(t, rels)

	// Type filter narrows a's edges.
	rels, err = s.ListRelated(ctx, a.ID, "REPLACES")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, c.ID, rels[0].TargetID)
}
