package kernel

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/cache"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/db"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/store"
)

// testCore wires a full Core against TEST_DATABASE_URL and an in-process
// Redis, with a unique table prefix per run.
func testCore(t *testing.T) (*Core, *store.Store) {
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

	prefix := fmt.Sprintf("k%d", time.Now().UnixNano())
	require.NoError(t, db.Migrate(ctx, pool, prefix))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := store.NewStore(pool, prefix)
	return NewCore(st, cache.New(rdb, time.Hour)), st
}

var actor = model.ActorContext{User: "alice", IP: "10.0.0.1", UserAgent: "kernel-test"}

func createProduct(t *testing.T, core *Core, tenant uuid.UUID, code string) *model.Object {
	t.Helper()
	o, err := core.Mutator.Create(context.Background(), tenant, actor, CreateRequest{
		TypeCode: "PRODUCT",
		Code:     code,
		Name:     "Widget " + code,
		Data:     map[string]any{"color": "red"},
	})
	require.NoError(t, err)
	return o
}

func TestCreateWritesObjectVersionAndOutbox(t *testing.T) {
	core, st := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()

	o := createProduct(t, core, tenant, "SKU-1")
	assert.Equal(t, 1, o.Version)
	assert.Equal(t, model.StatusActive, o.Status)

	v, err := st.LatestVersion(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, model.ChangeCreate, v.ChangeType)
	assert.Nil(t, v.PreviousData)

	n, err := st.ForEachClaimedPending(ctx, 10, func(ctx context.Context, e *model.OutboxEntry) bool {
		assert.Equal(t, o.ID, e.AggregateID)
		assert.Equal(t, "object.created", e.EventType)
		assert.Equal(t, "kernel", e.Payload["source"])
		e.MarkPublished("platform.kernel.object.created", 0, 1, time.Now().UTC())
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	core, _ := testCore(t)
	tenant := uuid.New()

	createProduct(t, core, tenant, "SKU-1")
	_, err := core.Mutator.Create(context.Background(), tenant, actor, CreateRequest{
		TypeCode: "PRODUCT", Code: "SKU-1", Data: map[string]any{},
	})
	assert.True(t, model.IsConflict(err))
}

func TestCreateRequiresActor(t *testing.T) {
	core, _ := testCore(t)
	_, err := core.Mutator.Create(context.Background(), uuid.New(), model.ActorContext{}, CreateRequest{
		TypeCode: "PRODUCT", Code: "SKU-1",
	})
	assert.Equal(t, model.KindInvalidArgument, model.KindOf(err))
}

func TestUpdateBumpsVersionAndDiffs(t *testing.T) {
	core, st := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := createProduct(t, core, tenant, "SKU-1")

	updated, err := core.Mutator.Update(ctx, tenant, o.ID, actor, UpdateRequest{
		Data:   map[string]any{"color": "blue", "stock": 5},
		Reason: "restock",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	v, err := st.LatestVersion(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeUpdate, v.ChangeType)
	require.NotNil(t, v.Diff)
	modified := v.Diff["modified"].(map[string]any)
	colorChange := modified["color"].(map[string]any)
	assert.Equal(t, "red", colorChange["old"])
	assert.Equal(t, "blue", colorChange["new"])
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	core, st := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := createProduct(t, core, tenant, "SKU-1")

	// Two racing updates must serialize on the row lock: both commit,
	// neither overwrites the other's version number.
	payloads := []map[string]any{{"a": float64(1)}, {"b": float64(2)}}
	errs := make(chan error, len(payloads))
	for _, data := range payloads {
		go func(data map[string]any) {
			_, err := core.Mutator.Update(ctx, tenant, o.ID, actor, UpdateRequest{Data: data})
			errs <- err
		}(data)
	}
	for range payloads {
		require.NoError(t, <-errs)
	}

	// Read through the store: the racing cache puts may land in either
	// order, and the row is the source of truth.
	got, err := st.GetByID(ctx, tenant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)

	page, err := st.VersionHistory(ctx, o.ID, model.PageRequest{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, 3, page.Items[0].VersionNumber)
	assert.Equal(t, 2, page.Items[1].VersionNumber)
	assert.NotEqual(t, page.Items[0].CurrentData, page.Items[1].CurrentData,
		"each update keeps its own snapshot")
}

func TestSoftDeleteRestoreCycle(t *testing.T) {
	core, _ := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := createProduct(t, core, tenant, "SKU-1")

	require.NoError(t, core.Mutator.SoftDelete(ctx, tenant, o.ID, actor, "cleanup"))

	_, err := core.Reader.Get(ctx, tenant, o.ID)
	assert.True(t, model.IsNotFound(err))

	// Deleting again reports not found.
	err = core.Mutator.SoftDelete(ctx, tenant, o.ID, actor, "")
	assert.True(t, model.IsNotFound(err))

	restored, err := core.Mutator.Restore(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, restored.Status)
	assert.Equal(t, 3, restored.Version)

	got, err := core.Reader.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestRestoreConflictsWhenCodeReused(t *testing.T) {
	core, _ := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := createProduct(t, core, tenant, "SKU-1")

	require.NoError(t, core.Mutator.SoftDelete(ctx, tenant, o.ID, actor, ""))
	createProduct(t, core, tenant, "SKU-1")

	_, err := core.Mutator.Restore(ctx, tenant, o.ID, actor)
	assert.True(t, model.IsConflict(err))
}

func TestStatusTransitionRules(t *testing.T) {
	core, _ := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := createProduct(t, core, tenant, "SKU-1")

	inactive, err := core.Mutator.ChangeStatus(ctx, tenant, o.ID, actor, model.StatusInactive, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, inactive.Status)

	// INACTIVE cannot jump to ARCHIVED.
	_, err = core.Mutator.ChangeStatus(ctx, tenant, o.ID, actor, model.StatusArchived, "")
	assert.Equal(t, model.KindInvalidState, model.KindOf(err))

	active, err := core.Mutator.ChangeStatus(ctx, tenant, o.ID, actor, model.StatusActive, "")
	require.NoError(t, err)

	archived, err := core.Mutator.ChangeStatus(ctx, tenant, active.ID, actor, model.StatusArchived, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, archived.Status)

	// Archived objects reject updates but stay readable.
	_, err = core.Mutator.Update(ctx, tenant, o.ID, actor, UpdateRequest{Data: map[string]any{}})
	assert.Equal(t, model.KindInvalidState, model.KindOf(err))

	got, err := core.Reader.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, got.Status)
}

func TestReaderServesFromCacheAfterMiss(t *testing.T) {
	core, _ := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := createProduct(t, core, tenant, "SKU-1")

	byCode, err := core.Reader.GetByCode(ctx, tenant, "PRODUCT", "SKU-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byCode.ID)

	// A foreign tenant never sees the cached row.
	_, err = core.Reader.Get(ctx, uuid.New(), o.ID)
	assert.True(t, model.IsNotFound(err))
}

func TestBulkGetEmptyShortCircuits(t *testing.T) {
	core, _ := testCore(t)
	items, err := core.Reader.BulkGet(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRelationshipLifecycle(t *testing.T) {
	core, st := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()
	a := createProduct(t, core, tenant, "SKU-A")
	b := createProduct(t, core, tenant, "SKU-B")

	rel, err := core.Relationships.Relate(ctx, tenant, actor, RelateRequest{
		SourceID: a.ID, TargetID: b.ID, RelType: "BUNDLED_WITH", Bidirectional: true,
	})
	require.NoError(t, err)

	rels, err := core.Relationships.ListRelated(ctx, tenant, b.ID, "")
	require.NoError(t, err)
	require.Len(t, rels, 1)

	// Duplicate edge conflicts.
	_, err = core.Relationships.Relate(ctx, tenant, actor, RelateRequest{
		SourceID: a.ID, TargetID: b.ID, RelType: "BUNDLED_WITH",
	})
	assert.True(t, model.IsConflict(err))

	require.NoError(t, core.Relationships.Unrelate(ctx, tenant, rel.ID, actor))

	rels, err = core.Relationships.ListRelated(ctx, tenant, a.ID, "")
	require.NoError(t, err)
	assert.Empty(t, rels)

	// Both edge events reached the outbox. They share an aggregate, so
	// draining them takes one claim cycle each.
	var events []string
	for {
		n, err := st.ForEachClaimedPending(ctx, 100, func(ctx context.Context, e *model.OutboxEntry) bool {
			if e.AggregateType == model.AggregateRelationship {
				events = append(events, e.EventType)
			}
			e.MarkPublished("platform.kernel."+e.EventType, 0, 0, time.Now().UTC())
			return true
		})
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	assert.Equal(t, []string{"relationship.created", "relationship.deleted"}, events)
}

func TestRequiredAttributeValidation(t *testing.T) {
	core, _ := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()

	require.NoError(t, core.Registry.Sync(ctx, &model.MetadataCache{
		ID:       uuid.New(),
		TypeCode: "CUSTOMER",
		TypeName: "Customer",
		Descriptor: map[string]any{
			"description": "customer master data",
		},
		AttributeDefs: map[string]any{
			"email": map[string]any{"required": true},
			"phone": map[string]any{"required": false},
		},
		SyncedAt:   time.Now().UTC(),
		TTLMinutes: 60,
	}))

	_, err := core.Mutator.Create(ctx, tenant, actor, CreateRequest{
		TypeCode: "CUSTOMER", Code: "C-1", Data: map[string]any{"phone": "555"},
	})
	assert.Equal(t, model.KindInvalidArgument, model.KindOf(err))

	_, err = core.Mutator.Create(ctx, tenant, actor, CreateRequest{
		TypeCode: "CUSTOMER", Code: "C-1", Data: map[string]any{"email": "a@b.c"},
	})
	assert.NoError(t, err)

	// Stale descriptors stop enforcing.
	require.NoError(t, core.Registry.MarkStale(ctx, "CUSTOMER"))
	_, err = core.Mutator.Create(ctx, tenant, actor, CreateRequest{
		TypeCode: "CUSTOMER", Code: "C-2", Data: map[string]any{},
	})
	assert.NoError(t, err)
}

func TestVersionAtTimeTravel(t *testing.T) {
	core, _ := testCore(t)
	ctx := context.Background()
	tenant := uuid.New()
	o := createProduct(t, core, tenant, "SKU-1")

	afterCreate := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)

	_, err := core.Mutator.Update(ctx, tenant, o.ID, actor, UpdateRequest{Data: map[string]any{"color": "blue"}})
	require.NoError(t, err)

	v, err := core.Reader.VersionAtTime(ctx, tenant, o.ID, afterCreate)
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)

	v, err = core.Reader.VersionAtTime(ctx, tenant, o.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, v.VersionNumber)
}
