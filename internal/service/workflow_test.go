package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/projectcontrols/internal/domain"
)

func TestWorkflow_Execute(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	w1 := env.create(t, domain.EntityWBE, project, "", domain.Payload{"budget": 100})
	co := env.changeOrder(t, project)
	assert.Equal(t, domain.WorkflowDesign, co.State)
	assert.EqualValues(t, 1, co.Version)

	env.update(t, domain.EntityWBE, w1.EntityID, co.Branch, domain.Payload{"budget": 200})

	approved, changes, err := env.workflow.Approve(env.ctx, co.ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowApprove, approved.State)
	assert.EqualValues(t, 2, approved.Version)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ChangeUpdated, changes[0].Kind)

	executed, result, err := env.workflow.Execute(env.ctx, co.ID, "executor")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowExecute, executed.State)
	assert.Equal(t, 1, result.Applied)

	main := env.current(t, domain.EntityWBE, w1.EntityID, "")
	assert.EqualValues(t, 200, main.Payload["budget"])

	got, err := env.workflow.Get(env.ctx, co.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowExecute, got.State)
	assert.EqualValues(t, 3, got.Version)
	assert.Equal(t, "executor", got.Actor)

	_, _, err = env.workflow.Cancel(env.ctx, co.ID, "late")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestWorkflow_ExecuteRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	co := env.changeOrder(t, project)

	_, _, err := env.workflow.Execute(env.ctx, co.ID, "eager")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = env.workflow.Reopen(env.ctx, co.ID, "eager")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestWorkflow_Cancel(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	co := env.changeOrder(t, project)
	c9 := env.create(t, domain.EntityCostElement, project, co.Branch, domain.Payload{"code": "C9"})

	cancelled, result, err := env.workflow.Cancel(env.ctx, co.ID, "pm")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowCancelled, cancelled.State)
	assert.Equal(t, 1, result.Archived)

	rec := env.current(t, domain.EntityCostElement, c9.EntityID, co.Branch)
	assert.Equal(t, domain.StatusDeleted, rec.Status)

	_, err = env.versions.Get(env.ctx, &GetRequest{EntityType: domain.EntityCostElement, EntityID: c9.EntityID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.versions.Create(env.ctx, &CreateRequest{
		EntityType: domain.EntityCostElement,
		ProjectID:  project,
		Branch:     co.Branch,
	})
	assert.ErrorIs(t, err, domain.ErrBranchLocked)
}

func TestWorkflow_ExecuteRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	w := env.create(t, domain.EntityWBE, project, "", domain.Payload{"v": 1})
	co := env.changeOrder(t, project)
	env.update(t, domain.EntityWBE, w.EntityID, co.Branch, domain.Payload{"v": 2})
	_, _, err := env.workflow.Approve(env.ctx, co.ID, "r")
	require.NoError(t, err)

	// Fail while marking branch rows merged, after main was written.
	env.store.setHook(func(rec *domain.Record) error {
		if rec.Branch == co.Branch && rec.Status == domain.StatusMerged {
			return assert.AnError
		}
		return nil
	})
	_, _, err = env.workflow.Execute(env.ctx, co.ID, "x")
	require.ErrorIs(t, err, assert.AnError)
	env.store.setHook(nil)

	got, err := env.workflow.Get(env.ctx, co.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowApprove, got.State)
	assert.EqualValues(t, 1, env.current(t, domain.EntityWBE, w.EntityID, "").Version)
}

func TestWorkflow_List(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	other := env.createProject(t)
	env.changeOrder(t, project)
	env.changeOrder(t, project)
	env.changeOrder(t, other)

	cos, err := env.workflow.List(env.ctx, project)
	require.NoError(t, err)
	assert.Len(t, cos, 2)

	_, err = env.workflow.Create(env.ctx, &CreateChangeOrderRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.workflow.Get(env.ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
