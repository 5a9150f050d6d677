// Package taskrouter adapts a task.Store into the protocol.TaskRouter
// interface the workflow engine's Task-Aware Wrapper depends on, keeping
// package workflow/taskworkflow's only dependency on task tracking behind
// an interface it never imports directly (spec.md §9 "cyclic interfaces").
package taskrouter

import (
	"context"

	"github.com/agentrpc/corerpc/protocol"
	"github.com/agentrpc/corerpc/task"
)

const goalVariable = "_workflow.goal"

// Router is the Store-backed protocol.TaskRouter used by the composition
// root to back every prompts/get call that runs a workflow.
type Router struct {
	store task.Store
}

// New builds a Router over store.
func New(store task.Store) *Router {
	return &Router{store: store}
}

// ResolveOwner uses the caller's session as the task owner, falling back to
// task.AnonymousPrincipal for stateless or unauthenticated calls -- the
// underlying Store itself enforces whether anonymous access is permitted
// (spec.md §4.B SecurityConfig).
func (r *Router) ResolveOwner(ctx context.Context, extra protocol.Extra) (string, error) {
	if extra.SessionID != "" {
		return extra.SessionID, nil
	}
	return task.AnonymousPrincipal, nil
}

// CreateWorkflowTask creates a new task for ownerID and stamps it with goal
// before any step runs, so a client polling tasks/get immediately sees what
// the workflow is trying to accomplish.
func (r *Router) CreateWorkflowTask(ctx context.Context, ownerID, goal string) (string, error) {
	rec, err := r.store.Create(ctx, ownerID, "prompts/get", nil)
	if err != nil {
		return "", err
	}
	if _, err := r.store.SetVariables(ctx, rec.TaskID, ownerID, map[string]any{goalVariable: goal}); err != nil {
		return "", err
	}
	return rec.TaskID, nil
}

// SetTaskVariables writes variables in one merge call, matching the
// wrapper's single batch write per invocation (spec.md §4.H).
func (r *Router) SetTaskVariables(ctx context.Context, taskID, ownerID string, variables map[string]any) error {
	_, err := r.store.SetVariables(ctx, taskID, ownerID, variables)
	return err
}

// CompleteWorkflowTask transitions the task to completed with result
// attached, the terminal state a fully-finished workflow reaches.
func (r *Router) CompleteWorkflowTask(ctx context.Context, taskID, ownerID string, result any) error {
	_, err := r.store.CompleteWithResult(ctx, taskID, ownerID, task.StatusCompleted, nil, result)
	return err
}

// Capabilities advertises that this router supports both cancellation and
// listing, since task.Store implements both.
func (r *Router) Capabilities() protocol.TaskCapabilities {
	return protocol.TaskCapabilities{SupportsCancel: true, SupportsList: true}
}

var _ protocol.TaskRouter = (*Router)(nil)
