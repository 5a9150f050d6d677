package taskrouter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrpc/corerpc/protocol"
	"github.com/agentrpc/corerpc/storage/memstore"
	"github.com/agentrpc/corerpc/task"
	"github.com/agentrpc/corerpc/taskrouter"
)

func anonStore() task.Store {
	return task.NewStore(memstore.New(), task.WithSecurity(task.SecurityConfig{AllowAnonymous: true, MaxTasksPerOwner: 100}))
}

func TestResolveOwnerPrefersSessionID(t *testing.T) {
	router := taskrouter.New(anonStore())
	owner, err := router.ResolveOwner(context.Background(), protocol.Extra{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", owner)
}

func TestResolveOwnerFallsBackToAnonymousPrincipal(t *testing.T) {
	router := taskrouter.New(anonStore())
	owner, err := router.ResolveOwner(context.Background(), protocol.Extra{})
	require.NoError(t, err)
	assert.Equal(t, task.AnonymousPrincipal, owner)
}

func TestCreateWorkflowTaskStampsGoal(t *testing.T) {
	store := anonStore()
	router := taskrouter.New(store)

	taskID, err := router.CreateWorkflowTask(context.Background(), "owner-1", "Research bees")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	rec, err := store.Get(context.Background(), taskID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "Research bees", rec.Variables["_workflow.goal"])
	assert.Equal(t, task.StatusWorking, rec.Status)
}

func TestSetTaskVariablesMergesIntoRecord(t *testing.T) {
	store := anonStore()
	router := taskrouter.New(store)

	taskID, err := router.CreateWorkflowTask(context.Background(), "owner-1", "Research bees")
	require.NoError(t, err)

	err = router.SetTaskVariables(context.Background(), taskID, "owner-1", map[string]any{"_workflow.result.step-1": "done"})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), taskID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "done", rec.Variables["_workflow.result.step-1"])
	assert.Equal(t, "Research bees", rec.Variables["_workflow.goal"], "merge must not drop earlier variables")
}

func TestCompleteWorkflowTaskTransitionsToCompleted(t *testing.T) {
	store := anonStore()
	router := taskrouter.New(store)

	taskID, err := router.CreateWorkflowTask(context.Background(), "owner-1", "Research bees")
	require.NoError(t, err)

	err = router.CompleteWorkflowTask(context.Background(), taskID, "owner-1", map[string]any{"completed": true})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), taskID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, rec.Status)

	result, err := store.GetResult(context.Background(), taskID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"completed": true}, result)
}

func TestCapabilitiesAdvertiseCancelAndList(t *testing.T) {
	router := taskrouter.New(anonStore())
	caps := router.Capabilities()
	assert.True(t, caps.SupportsCancel)
	assert.True(t, caps.SupportsList)
}
