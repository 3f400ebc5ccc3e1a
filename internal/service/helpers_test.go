package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/storage"
	"github.com/example/projectcontrols/internal/storage/sqlite"
)

// testEnv wires every service against a temp-file database.
type testEnv struct {
	ctx      context.Context
	store    *faultyStorage
	versions *VersionService
	branches *BranchService
	workflow *WorkflowService
	filter   *Filter
	composer *ViewComposer
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { db.Close() })

	store := &faultyStorage{Storage: db}
	versions := NewVersionService(store, opts...)
	branches := NewBranchService(store, versions, opts...)
	return &testEnv{
		ctx:      ctx,
		store:    store,
		versions: versions,
		branches: branches,
		workflow: NewWorkflowService(store, branches, opts...),
		filter:   NewFilter(store),
		composer: NewViewComposer(store),
	}
}

func (e *testEnv) createProject(t *testing.T) string {
	t.Helper()
	rec, err := e.versions.Create(e.ctx, &CreateRequest{
		EntityType: domain.EntityProject,
		Payload:    domain.Payload{"name": "Plant"},
		Actor:      "setup",
	})
	require.NoError(t, err)
	return rec.EntityID
}

func (e *testEnv) create(t *testing.T, entityType domain.EntityType, projectID, branch string, payload domain.Payload) *domain.Record {
	t.Helper()
	rec, err := e.versions.Create(e.ctx, &CreateRequest{
		EntityType: entityType,
		ProjectID:  projectID,
		Branch:     branch,
		Payload:    payload,
		Actor:      "setup",
	})
	require.NoError(t, err)
	return rec
}

func (e *testEnv) update(t *testing.T, entityType domain.EntityType, entityID, branch string, payload domain.Payload) *domain.Record {
	t.Helper()
	rec, err := e.versions.Update(e.ctx, &UpdateRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Branch:     branch,
		Payload:    payload,
		Actor:      "editor",
	})
	require.NoError(t, err)
	return rec
}

func (e *testEnv) changeOrder(t *testing.T, projectID string) *domain.ChangeOrder {
	t.Helper()
	co, err := e.workflow.Create(e.ctx, &CreateChangeOrderRequest{ProjectID: projectID, Title: "test", Actor: "setup"})
	require.NoError(t, err)
	return co
}

func (e *testEnv) approve(t *testing.T, co *domain.ChangeOrder) {
	t.Helper()
	_, _, err := e.workflow.Approve(e.ctx, co.ID, "reviewer")
	require.NoError(t, err)
}

func (e *testEnv) current(t *testing.T, entityType domain.EntityType, entityID, branch string) *domain.Record {
	t.Helper()
	rec, err := e.versions.Get(e.ctx, &GetRequest{
		EntityType:     entityType,
		EntityID:       entityID,
		Branch:         branch,
		IncludeDeleted: true,
	})
	require.NoError(t, err)
	return rec
}

func (e *testEnv) history(t *testing.T, entityType domain.EntityType, entityID, branch string) []*domain.Record {
	t.Helper()
	recs, err := e.versions.History(e.ctx, entityType, entityID, branch)
	require.NoError(t, err)
	return recs
}

func versionsOf(recs []*domain.Record) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Version)
	}
	return out
}

// faultyStorage lets tests fail version inserts of write transactions.
type faultyStorage struct {
	storage.Storage

	mu     sync.Mutex
	hook   func(rec *domain.Record) error
	begins int
}

func (s *faultyStorage) setHook(hook func(rec *domain.Record) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *faultyStorage) writeBegins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins
}

func (s *faultyStorage) BeginImmediate(ctx context.Context) (storage.UnitOfWork, error) {
	uow, err := s.Storage.BeginImmediate(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.begins++
	s.mu.Unlock()
	return &faultyUnitOfWork{UnitOfWork: uow, store: s}, nil
}

type faultyUnitOfWork struct {
	storage.UnitOfWork
	store *faultyStorage
}

func (u *faultyUnitOfWork) Versions() storage.VersionRepository {
	return &faultyVersions{VersionRepository: u.UnitOfWork.Versions(), store: u.store}
}

type faultyVersions struct {
	storage.VersionRepository
	store *faultyStorage
}

func (v *faultyVersions) Insert(ctx context.Context, rec *domain.Record) error {
	v.store.mu.Lock()
	hook := v.store.hook
	v.store.mu.Unlock()
	if hook != nil {
		if err := hook(rec); err != nil {
			return err
		}
	}
	return v.VersionRepository.Insert(ctx, rec)
}
