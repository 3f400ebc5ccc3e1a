package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/projectcontrols/internal/domain"
)

func TestDiff(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	updated := env.create(t, domain.EntityWBE, project, "", domain.Payload{"name": "U"})
	same := env.create(t, domain.EntityWBE, project, "", domain.Payload{"name": "S"})
	deleted := env.create(t, domain.EntityWBE, project, "", domain.Payload{"name": "D"})
	co := env.changeOrder(t, project)

	env.update(t, domain.EntityWBE, updated.EntityID, co.Branch, domain.Payload{"name": "U2"})
	env.update(t, domain.EntityWBE, same.EntityID, co.Branch, domain.Payload{"name": "S"})
	_, err := env.versions.DeleteInBranch(env.ctx, &DeleteRequest{EntityType: domain.EntityWBE, EntityID: deleted.EntityID, Branch: co.Branch})
	require.NoError(t, err)
	created := env.create(t, domain.EntityCostElement, project, co.Branch, domain.Payload{"code": "C"})

	changes, err := env.branches.Diff(env.ctx, co.Branch)
	require.NoError(t, err)

	kinds := map[string]domain.ChangeKind{}
	for _, c := range changes {
		kinds[c.EntityID] = c.Kind
	}
	assert.Equal(t, map[string]domain.ChangeKind{
		updated.EntityID: domain.ChangeUpdated,
		deleted.EntityID: domain.ChangeDeleted,
		created.EntityID: domain.ChangeCreated,
	}, kinds)

	empty, err := env.branches.Diff(env.ctx, "co-404")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = env.branches.Diff(env.ctx, domain.BranchMain)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestMerge(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	w1 := env.create(t, domain.EntityWBE, project, "", domain.Payload{"budget": 100})
	co := env.changeOrder(t, project)

	env.update(t, domain.EntityWBE, w1.EntityID, co.Branch, domain.Payload{"budget": 150})
	c9 := env.create(t, domain.EntityCostElement, project, co.Branch, domain.Payload{"code": "C9"})
	env.approve(t, co)

	result, err := env.branches.Merge(env.ctx, co.Branch, "merger")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.ElementsMatch(t, []string{w1.EntityID, c9.EntityID}, result.EntityIDs)
	assert.Empty(t, result.Warnings)

	main := env.current(t, domain.EntityWBE, w1.EntityID, "")
	assert.EqualValues(t, 2, main.Version)
	assert.EqualValues(t, 150, main.Payload["budget"])
	assert.Equal(t, "merger", main.Actor)

	born := env.current(t, domain.EntityCostElement, c9.EntityID, "")
	assert.EqualValues(t, 1, born.Version)
	assert.Equal(t, domain.StatusActive, born.Status)

	// Branch rows are superseded by merged versions; history is kept.
	history := env.history(t, domain.EntityWBE, w1.EntityID, co.Branch)
	require.Len(t, history, 2)
	assert.Equal(t, domain.StatusActive, history[0].Status)
	assert.Equal(t, domain.StatusMerged, history[1].Status)

	_, err = env.versions.Get(env.ctx, &GetRequest{EntityType: domain.EntityWBE, EntityID: w1.EntityID, Branch: co.Branch, IncludeDeleted: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	again, err := env.branches.Merge(env.ctx, co.Branch, "merger")
	require.NoError(t, err)
	assert.Zero(t, again.Applied)
	assert.EqualValues(t, 2, env.current(t, domain.EntityWBE, w1.EntityID, "").Version)
}

func TestMerge_DeletesAndBranchLocalEntities(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	w := env.create(t, domain.EntityWBE, project, "", nil)
	co := env.changeOrder(t, project)

	_, err := env.versions.DeleteInBranch(env.ctx, &DeleteRequest{EntityType: domain.EntityWBE, EntityID: w.EntityID, Branch: co.Branch})
	require.NoError(t, err)
	temp := env.create(t, domain.EntityWBE, project, co.Branch, nil)
	_, err = env.versions.SoftDelete(env.ctx, &DeleteRequest{EntityType: domain.EntityWBE, EntityID: temp.EntityID, Branch: co.Branch})
	require.NoError(t, err)
	env.approve(t, co)

	result, err := env.branches.Merge(env.ctx, co.Branch, "merger")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)

	main := env.current(t, domain.EntityWBE, w.EntityID, "")
	assert.EqualValues(t, 2, main.Version)
	assert.Equal(t, domain.StatusDeleted, main.Status)

	assert.Empty(t, env.history(t, domain.EntityWBE, temp.EntityID, ""))
	tempHistory := env.history(t, domain.EntityWBE, temp.EntityID, co.Branch)
	assert.Equal(t, domain.StatusMerged, tempHistory[len(tempHistory)-1].Status)
}

func TestMerge_LastWriteWinsAcrossBranches(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	c5 := env.create(t, domain.EntityCostElement, project, "", domain.Payload{"amount": 1})
	co4 := env.changeOrder(t, project)
	co5 := env.changeOrder(t, project)

	env.update(t, domain.EntityCostElement, c5.EntityID, co4.Branch, domain.Payload{"amount": 4})
	env.update(t, domain.EntityCostElement, c5.EntityID, co5.Branch, domain.Payload{"amount": 5, "note": "co5"})
	env.approve(t, co4)
	env.approve(t, co5)

	first, err := env.branches.Merge(env.ctx, co4.Branch, "a")
	require.NoError(t, err)
	assert.Empty(t, first.Warnings)
	assert.EqualValues(t, 4, env.current(t, domain.EntityCostElement, c5.EntityID, "").Payload["amount"])

	second, err := env.branches.Merge(env.ctx, co5.Branch, "b")
	require.NoError(t, err)
	require.Len(t, second.Warnings, 1)
	w := second.Warnings[0]
	assert.Equal(t, c5.EntityID, w.EntityID)
	assert.EqualValues(t, 1, w.BaseVersion)
	assert.EqualValues(t, 2, w.MainVersion)

	final := env.current(t, domain.EntityCostElement, c5.EntityID, "")
	assert.EqualValues(t, 3, final.Version)
	assert.Equal(t, domain.Payload{"amount": float64(5), "note": "co5"}, final.Payload)
}

func TestMerge_NoConflictDetector(t *testing.T) {
	env := newTestEnv(t, WithConflictDetector(NoopConflictDetector{}))
	project := env.createProject(t)
	c := env.create(t, domain.EntityCostElement, project, "", nil)
	co := env.changeOrder(t, project)
	env.update(t, domain.EntityCostElement, c.EntityID, co.Branch, domain.Payload{"x": 1})
	env.update(t, domain.EntityCostElement, c.EntityID, "", domain.Payload{"x": 2})
	env.approve(t, co)

	result, err := env.branches.Merge(env.ctx, co.Branch, "a")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
}

func TestMerge_IsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	a := env.create(t, domain.EntityWBE, project, "", domain.Payload{"v": "a1"})
	b := env.create(t, domain.EntityWBE, project, "", domain.Payload{"v": "b1"})
	co := env.changeOrder(t, project)
	env.update(t, domain.EntityWBE, a.EntityID, co.Branch, domain.Payload{"v": "a2"})
	env.update(t, domain.EntityWBE, b.EntityID, co.Branch, domain.Payload{"v": "b2"})
	env.approve(t, co)

	boom := errors.New("disk on fire")
	mainWrites := 0
	env.store.setHook(func(rec *domain.Record) error {
		if rec.Branch == domain.BranchMain {
			mainWrites++
			if mainWrites == 2 {
				return boom
			}
		}
		return nil
	})

	_, err := env.branches.Merge(env.ctx, co.Branch, "merger")
	require.ErrorIs(t, err, boom)
	env.store.setHook(nil)

	for _, id := range []string{a.EntityID, b.EntityID} {
		assert.EqualValues(t, 1, env.current(t, domain.EntityWBE, id, "").Version)
		assert.Equal(t, domain.StatusActive, env.current(t, domain.EntityWBE, id, co.Branch).Status)
	}

	result, err := env.branches.Merge(env.ctx, co.Branch, "merger")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, "a2", env.current(t, domain.EntityWBE, a.EntityID, "").Payload["v"])
	assert.Equal(t, "b2", env.current(t, domain.EntityWBE, b.EntityID, "").Payload["v"])
}

func TestMerge_RequiresApprovedChangeOrder(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	w1 := env.create(t, domain.EntityWBE, project, "", domain.Payload{"budget": 100})

	t.Run("design", func(t *testing.T) {
		co := env.changeOrder(t, project)
		env.update(t, domain.EntityWBE, w1.EntityID, co.Branch, domain.Payload{"budget": 150})

		_, err := env.branches.Merge(env.ctx, co.Branch, "merger")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.EqualValues(t, 1, env.current(t, domain.EntityWBE, w1.EntityID, "").Version)
		assert.Equal(t, domain.StatusActive, env.current(t, domain.EntityWBE, w1.EntityID, co.Branch).Status)
	})

	t.Run("cancelled", func(t *testing.T) {
		co := env.changeOrder(t, project)
		env.update(t, domain.EntityWBE, w1.EntityID, co.Branch, domain.Payload{"budget": 200})
		_, _, err := env.workflow.Cancel(env.ctx, co.ID, "canceller")
		require.NoError(t, err)

		_, err = env.branches.Merge(env.ctx, co.Branch, "merger")
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		main := env.current(t, domain.EntityWBE, w1.EntityID, "")
		assert.EqualValues(t, 1, main.Version)
		assert.Equal(t, domain.StatusActive, main.Status)
		assert.EqualValues(t, 100, main.Payload["budget"])
	})

	t.Run("executed", func(t *testing.T) {
		co := env.changeOrder(t, project)
		env.approve(t, co)
		_, _, err := env.workflow.Execute(env.ctx, co.ID, "executor")
		require.NoError(t, err)

		_, err = env.branches.Merge(env.ctx, co.Branch, "merger")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("unowned branch", func(t *testing.T) {
		result, err := env.branches.Merge(env.ctx, "co-404", "merger")
		require.NoError(t, err)
		assert.Zero(t, result.Applied)
	})
}

func TestArchive(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)
	co := env.changeOrder(t, project)
	c9 := env.create(t, domain.EntityCostElement, project, co.Branch, domain.Payload{"code": "C9"})
	env.update(t, domain.EntityCostElement, c9.EntityID, co.Branch, domain.Payload{"code": "C9b"})

	result, err := env.branches.Archive(env.ctx, co.Branch, "archiver")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Archived)

	again, err := env.branches.Archive(env.ctx, co.Branch, "archiver")
	require.NoError(t, err)
	assert.Zero(t, again.Archived)

	active, err := env.filter.Resolve(env.ctx, &ResolveRequest{EntityType: domain.EntityCostElement, Branch: co.Branch})
	require.NoError(t, err)
	assert.Empty(t, active)

	history := env.history(t, domain.EntityCostElement, c9.EntityID, co.Branch)
	assert.Equal(t, []int64{1, 2, 3}, versionsOf(history))
	assert.Equal(t, "C9", history[0].Payload["code"])
	assert.Equal(t, domain.StatusDeleted, history[2].Status)

	_, err = env.versions.Get(env.ctx, &GetRequest{EntityType: domain.EntityCostElement, EntityID: c9.EntityID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	empty, err := env.branches.Archive(env.ctx, "co-404", "archiver")
	require.NoError(t, err)
	assert.Zero(t, empty.Archived)
}

func TestCreateBranch_Sequence(t *testing.T) {
	env := newTestEnv(t)
	project := env.createProject(t)

	first := env.changeOrder(t, project)
	second := env.changeOrder(t, project)
	assert.Equal(t, "co-001", first.Branch)
	assert.Equal(t, "co-002", second.Branch)

	infos, err := env.branches.ListBranches(env.ctx, project)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, first.ID, infos[0].ChangeOrderID)
}

func TestConflictDetectors(t *testing.T) {
	branchRow := &domain.Record{EntityID: "e", Branched: domain.Branched{BaseVersion: 2}}
	mainRow := &domain.Record{EntityID: "e", Branched: domain.Branched{Versioned: domain.Versioned{Version: 2}}}

	assert.Nil(t, VersionConflictDetector{}.Detect(branchRow, mainRow, nil))
	assert.Nil(t, VersionConflictDetector{}.Detect(branchRow, nil, nil))

	mainRow.Version = 3
	w := VersionConflictDetector{}.Detect(branchRow, mainRow, nil)
	require.NotNil(t, w)
	assert.Contains(t, w.Reason, "2 to 3")

	info := &domain.BranchInfo{CreatedAt: mainRow.CreatedAt.Add(1)}
	assert.Nil(t, TimestampConflictDetector{}.Detect(branchRow, mainRow, info))
	info.CreatedAt = mainRow.CreatedAt.Add(-1)
	assert.NotNil(t, TimestampConflictDetector{}.Detect(branchRow, mainRow, info))

	for _, name := range []string{"", "version", "timestamp", "none"} {
		_, err := NewConflictDetector(name)
		assert.NoError(t, err, name)
	}
	_, err := NewConflictDetector("psychic")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
