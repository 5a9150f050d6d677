package task_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrpc/corerpc/errs"
	"github.com/agentrpc/corerpc/storage"
	"github.com/agentrpc/corerpc/storage/memstore"
	"github.com/agentrpc/corerpc/task"
)

func anonStore(opts ...task.Option) task.Store {
	full := append([]task.Option{task.WithSecurity(task.SecurityConfig{AllowAnonymous: true, MaxTasksPerOwner: 100})}, opts...)
	return task.NewStore(memstore.New(), full...)
}

func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }
func intp(v int) *int       { return &v }

func TestCreateReturnsWorkingTask(t *testing.T) {
	store := anonStore()
	record, err := store.Create(context.Background(), "owner-1", "tools/call", nil)
	require.NoError(t, err)
	assert.Equal(t, task.StatusWorking, record.Status)
	assert.Equal(t, "owner-1", record.OwnerID)
	assert.Equal(t, "tools/call", record.RequestMethod)
	require.NotNil(t, record.PollIntervalMS)
	assert.EqualValues(t, 500, *record.PollIntervalMS)
	assert.Greater(t, record.Version, int64(0))
}

func TestCreateAppliesDefaultTTL(t *testing.T) {
	store := anonStore()
	record, err := store.Create(context.Background(), "owner-1", "tools/call", nil)
	require.NoError(t, err)
	require.NotNil(t, record.TTLMillis)
	assert.EqualValues(t, time.Hour.Milliseconds(), *record.TTLMillis)
	assert.NotNil(t, record.ExpiresAt)
}

func TestCreateUsesExplicitTTL(t *testing.T) {
	store := anonStore()
	record, err := store.Create(context.Background(), "owner-1", "tools/call", int64p(30_000))
	require.NoError(t, err)
	assert.EqualValues(t, 30_000, *record.TTLMillis)
}

func TestCreateRejectsTTLAboveMax(t *testing.T) {
	store := anonStore()
	_, err := store.Create(context.Background(), "owner-1", "tools/call", int64p(100_000_000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TTL")
}

func TestCreateRejectsAnonymousWhenDisabled(t *testing.T) {
	store := task.NewStore(memstore.New()) // AllowAnonymous defaults to false
	_, err := store.Create(context.Background(), "local", "tools/call", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anonymous access")
}

func TestCreateEnforcesMaxTasksPerOwner(t *testing.T) {
	store := anonStore(task.WithSecurity(task.SecurityConfig{AllowAnonymous: true, MaxTasksPerOwner: 3}))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, "owner-1", "tools/call-x", nil)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, "owner-1", "tools/call-extra", nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeResourceExhausted, errs.CodeOf(err))
}

func TestGetReturnsCreatedTask(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)
	fetched, err := store.Get(ctx, created.TaskID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, created.TaskID, fetched.TaskID)
	assert.Equal(t, "owner-1", fetched.OwnerID)
}

func TestOwnerIsolationGetReturnsNotFound(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-a", "tools/call", nil)
	require.NoError(t, err)
	_, err = store.Get(ctx, created.TaskID, "owner-b")
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestGetReturnsNotFoundForMissingTask(t *testing.T) {
	store := anonStore()
	_, err := store.Get(context.Background(), "nonexistent", "owner-1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestUpdateStatusValidTransition(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)
	updated, err := store.UpdateStatus(ctx, created.TaskID, "owner-1", task.StatusCompleted, strp("Done"))
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, updated.Status)
	require.NotNil(t, updated.StatusMessage)
	assert.Equal(t, "Done", *updated.StatusMessage)
}

func TestStateMachineCompletedToWorkingFails(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, created.TaskID, "owner-1", task.StatusCompleted, nil)
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, created.TaskID, "owner-1", task.StatusWorking, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
}

func TestSetVariablesUpsertAndNullDeletion(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	updated, err := store.SetVariables(ctx, created.TaskID, "owner-1", map[string]any{
		"key1": "value1",
		"key2": float64(42),
	})
	require.NoError(t, err)
	assert.Equal(t, "value1", updated.Variables["key1"])
	assert.Equal(t, float64(42), updated.Variables["key2"])

	updated2, err := store.SetVariables(ctx, created.TaskID, "owner-1", map[string]any{
		"key1": nil,
		"key3": "new",
	})
	require.NoError(t, err)
	_, hasKey1 := updated2.Variables["key1"]
	assert.False(t, hasKey1)
	assert.Equal(t, float64(42), updated2.Variables["key2"])
	assert.Equal(t, "new", updated2.Variables["key3"])
}

func TestSetVariablesSizeExceeded(t *testing.T) {
	cfg := task.DefaultStoreConfig()
	cfg.MaxVariableSizeBytes = 100
	store := anonStore(task.WithConfig(cfg))
	ctx := context.Background()

	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	_, err = store.SetVariables(ctx, created.TaskID, "owner-1", map[string]any{
		"big": strings.Repeat("x", 200),
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeVariableSizeExceeded, errs.CodeOf(err))
}

func TestSetVariablesDepthBombRejected(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	var value any = float64(1)
	for i := 0; i < 11; i++ {
		value = map[string]any{"nested": value}
	}

	_, err = store.SetVariables(ctx, created.TaskID, "owner-1", map[string]any{"bomb": value})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}

func TestSetVariablesLongStringRejected(t *testing.T) {
	cfg := task.DefaultStoreConfig()
	cfg.MaxStringLength = 100
	store := anonStore(task.WithConfig(cfg))
	ctx := context.Background()

	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	_, err = store.SetVariables(ctx, created.TaskID, "owner-1", map[string]any{
		"long": strings.Repeat("x", 200),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestTTLRejectionNotClamping(t *testing.T) {
	cfg := task.DefaultStoreConfig()
	cfg.MaxTTLMillis = int64p(60_000)
	store := anonStore(task.WithConfig(cfg))

	_, err := store.Create(context.Background(), "owner-1", "tools/call", int64p(120_000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TTL")
}

func TestTTLBoundaryValuesAccepted(t *testing.T) {
	cfg := task.DefaultStoreConfig()
	cfg.MaxTTLMillis = int64p(60_000)
	store := anonStore(task.WithConfig(cfg))
	ctx := context.Background()

	_, err := store.Create(ctx, "owner-1", "tools/call", int64p(0))
	require.NoError(t, err)
	_, err = store.Create(ctx, "owner-1", "tools/call", int64p(60_000))
	require.NoError(t, err)
	_, err = store.Create(ctx, "owner-1", "tools/call", int64p(60_001))
	require.Error(t, err)
}

// casConflictBackend always reports ConcurrentModification from
// PutIfVersion, reproducing generic.rs's CasConflictBackend test harness.
type casConflictBackend struct {
	storage.Backend
}

func (b casConflictBackend) PutIfVersion(ctx context.Context, key string, data []byte, expectedVersion int64, expiresAt *time.Time) (int64, error) {
	return 0, errs.ConcurrentModification(key, expectedVersion, expectedVersion+1)
}

func TestCasConflictReturnsConcurrentModification(t *testing.T) {
	backend := casConflictBackend{Backend: memstore.New()}
	store := task.NewStore(backend, task.WithSecurity(task.SecurityConfig{AllowAnonymous: true, MaxTasksPerOwner: 100}))
	ctx := context.Background()

	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	_, err = store.UpdateStatus(ctx, created.TaskID, "owner-1", task.StatusCompleted, nil)
	require.Error(t, err)
	assert.Equal(t, errs.CodeConcurrentModification, errs.CodeOf(err))
}

func TestCompleteWithResultAtomic(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	completed, err := store.CompleteWithResult(ctx, created.TaskID, "owner-1", task.StatusCompleted, strp("All done"), map[string]any{"data": true})
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, completed.Status)
	require.NotNil(t, completed.StatusMessage)
	assert.Equal(t, "All done", *completed.StatusMessage)
	assert.Equal(t, map[string]any{"data": true}, completed.Result)
}

func TestCompleteWithResultRejectsInvalidTransition(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	_, err = store.CompleteWithResult(ctx, created.TaskID, "owner-1", task.StatusCompleted, nil, "first")
	require.NoError(t, err)

	_, err = store.CompleteWithResult(ctx, created.TaskID, "owner-1", task.StatusFailed, nil, "second")
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
}

func TestGetResultNotReadyBeforeTerminal(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	_, err = store.GetResult(ctx, created.TaskID, "owner-1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotReady, errs.CodeOf(err))

	_, err = store.CompleteWithResult(ctx, created.TaskID, "owner-1", task.StatusCompleted, nil, "value")
	require.NoError(t, err)

	result, err := store.GetResult(ctx, created.TaskID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "value", result)
}

func TestCancelDelegatesToUpdateStatus(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	cancelled, err := store.Cancel(ctx, created.TaskID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCancelled, cancelled.Status)
}

func TestListPagination(t *testing.T) {
	store := anonStore(task.WithSecurity(task.SecurityConfig{AllowAnonymous: true, MaxTasksPerOwner: 1000}))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx, "owner-1", "tools/call", nil)
		require.NoError(t, err)
		time.Sleep(time.Millisecond) // ensure distinct created_at ordering
	}

	page, err := store.List(ctx, task.ListOptions{OwnerID: "owner-1", Limit: intp(2)})
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 2)
	require.NotEmpty(t, page.NextCursor)

	page2, err := store.List(ctx, task.ListOptions{OwnerID: "owner-1", Cursor: page.NextCursor, Limit: intp(2)})
	require.NoError(t, err)
	assert.Len(t, page2.Tasks, 2)
	assert.NotEqual(t, page.Tasks[0].TaskID, page2.Tasks[0].TaskID)
}

func TestListWithExplicitZeroLimitReturnsEmptyPageWithCursor(t *testing.T) {
	store := anonStore(task.WithSecurity(task.SecurityConfig{AllowAnonymous: true, MaxTasksPerOwner: 1000}))
	ctx := context.Background()

	_, err := store.Create(ctx, "owner-1", "tools/call", nil)
	require.NoError(t, err)

	page, err := store.List(ctx, task.ListOptions{OwnerID: "owner-1", Limit: intp(0)})
	require.NoError(t, err)
	assert.Empty(t, page.Tasks)
	assert.Equal(t, "", page.NextCursor, "first page with no prior cursor resumes from the start")

	page2, err := store.List(ctx, task.ListOptions{OwnerID: "owner-1", Cursor: "some-cursor", Limit: intp(0)})
	require.NoError(t, err)
	assert.Empty(t, page2.Tasks)
	assert.Equal(t, "some-cursor", page2.NextCursor, "an explicit limit of 0 is distinct from an omitted limit and consumes nothing")

	pageDefault, err := store.List(ctx, task.ListOptions{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Len(t, pageDefault.Tasks, 1, "an omitted (nil) limit still defaults to 50")
}

func TestCleanupExpiredRemovesElapsedTasks(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	_, err := store.Create(ctx, "owner-1", "tools/call", int64p(1))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSerializationRoundTripPreservesFields(t *testing.T) {
	store := anonStore()
	ctx := context.Background()
	created, err := store.Create(ctx, "owner-1", "tools/call", int64p(5_000))
	require.NoError(t, err)

	fetched, err := store.Get(ctx, created.TaskID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, created.TaskID, fetched.TaskID)
	assert.Equal(t, created.OwnerID, fetched.OwnerID)
	assert.Equal(t, created.RequestMethod, fetched.RequestMethod)
	assert.Empty(t, fetched.Variables)
	assert.Equal(t, task.StatusWorking, fetched.Status)
	require.NotNil(t, fetched.ExpiresAt)
	assert.WithinDuration(t, *created.ExpiresAt, *fetched.ExpiresAt, time.Millisecond)
}

// interfaceConformanceStore exercises task.Store purely through the
// interface, mirroring the original's Arc<dyn TaskStore> conformance test.
func interfaceConformanceStore(s task.Store) task.Store { return s }

func TestStoreSatisfiesInterfaceThroughIndirection(t *testing.T) {
	var s task.Store = interfaceConformanceStore(anonStore())
	_, err := s.Create(context.Background(), "owner-1", "tools/call", nil)
	require.NoError(t, err)
}
