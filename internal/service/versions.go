package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/observability"
	"github.com/example/projectcontrols/internal/storage"
	"github.com/example/projectcontrols/pkg/id"
)

// VersionService performs every write to version rows: create, update,
// soft delete and restore. Each call runs in one write transaction that
// reads the current version and inserts the next one.
type VersionService struct {
	storage    storage.Storage
	maxRetries int
	log        zerolog.Logger
	metrics    *observability.Metrics
}

// NewVersionService creates a new VersionService.
func NewVersionService(store storage.Storage, opts ...Option) *VersionService {
	o := newServiceOptions(opts)
	return &VersionService{
		storage:    store,
		maxRetries: o.maxRetries,
		log:        o.logger.With().Str("component", "versions").Logger(),
		metrics:    o.metrics,
	}
}

// CreateRequest is the request for Create.
type CreateRequest struct {
	EntityType domain.EntityType
	ProjectID  string
	Branch     string
	EntityID   string // generated when empty
	Payload    domain.Payload
	Actor      string
}

// UpdateRequest is the request for Update.
type UpdateRequest struct {
	EntityType domain.EntityType
	EntityID   string
	Branch     string
	Payload    domain.Payload
	Actor      string
}

// DeleteRequest is the request for SoftDelete, DeleteInBranch and Restore.
type DeleteRequest struct {
	EntityType domain.EntityType
	EntityID   string
	Branch     string
	Actor      string
}

// GetRequest is the request for Get.
type GetRequest struct {
	EntityType     domain.EntityType
	EntityID       string
	Branch         string
	IncludeDeleted bool
}

// Create writes version 1 of a new entity.
func (s *VersionService) Create(ctx context.Context, req *CreateRequest) (*domain.Record, error) {
	branch, err := domain.NormalizeBranch(req.EntityType, req.Branch)
	if err != nil {
		return nil, err
	}
	if req.ProjectID == "" && req.EntityType != domain.EntityProject {
		return nil, fmt.Errorf("%w: project_id is required", domain.ErrInvalidArgument)
	}

	entityID := req.EntityID
	if entityID == "" {
		entityID = id.Generate()
	} else if !id.Valid(entityID) {
		return nil, fmt.Errorf("%w: entity_id %q is not a UUID", domain.ErrInvalidArgument, entityID)
	}

	projectID := req.ProjectID
	if req.EntityType == domain.EntityProject && projectID == "" {
		projectID = entityID
	}

	var rec *domain.Record
	err = s.inWriteTx(ctx, "create", req.EntityType, func(ctx context.Context, uow storage.UnitOfWork) error {
		if err := checkWritable(ctx, uow, branch); err != nil {
			return err
		}

		repo := uow.Versions()
		owner, err := repo.TypeOf(ctx, entityID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err == nil && owner != req.EntityType {
			return fmt.Errorf("%w: id %s is already used by a %s", domain.ErrDuplicateEntity, entityID, owner)
		}

		if _, err := repo.Current(ctx, req.EntityType, entityID, branch); err == nil {
			return fmt.Errorf("%w: %s %s in branch %s", domain.ErrDuplicateEntity, req.EntityType, entityID, branch)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if branch != domain.BranchMain {
			if _, err := repo.Current(ctx, req.EntityType, entityID, domain.BranchMain); err == nil {
				return fmt.Errorf("%w: %s %s already exists in main", domain.ErrDuplicateEntity, req.EntityType, entityID)
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}

		rec = &domain.Record{
			EntityID:   entityID,
			EntityType: req.EntityType,
			ProjectID:  projectID,
			Branched: domain.Branched{
				Versioned: domain.Versioned{Version: 1, Status: domain.StatusActive},
				Branch:    branch,
			},
			Payload:   req.Payload.Clone(),
			Actor:     req.Actor,
			CreatedAt: time.Now().UTC(),
		}
		return repo.Insert(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("entity_id", rec.EntityID).Str("branch", branch).
		Str("entity_type", string(rec.EntityType)).Msg("entity created")
	return rec, nil
}

// Update writes the next version of an entity with a new payload.
//
// In a change order branch, an entity that has no branch rows yet but is
// active in main is forked: the branch starts its own sequence at version 1
// and remembers the main version it was forked from.
func (s *VersionService) Update(ctx context.Context, req *UpdateRequest) (*domain.Record, error) {
	branch, err := domain.NormalizeBranch(req.EntityType, req.Branch)
	if err != nil {
		return nil, err
	}

	var rec *domain.Record
	err = s.inWriteTx(ctx, "update", req.EntityType, func(ctx context.Context, uow storage.UnitOfWork) error {
		if err := checkWritable(ctx, uow, branch); err != nil {
			return err
		}

		cur, err := s.currentOrFork(ctx, uow, req.EntityType, req.EntityID, branch)
		if err != nil {
			return err
		}
		if !cur.IsVisible() {
			return fmt.Errorf("%w: %s %s is %s in branch %s", domain.ErrNotFound, req.EntityType, req.EntityID, cur.Status, branch)
		}

		rec = s.next(cur, domain.StatusActive, req.Payload.Clone(), req.Actor)
		return uow.Versions().Insert(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("entity_id", rec.EntityID).Str("branch", branch).
		Int64("version", rec.Version).Msg("entity updated")
	return rec, nil
}

// SoftDelete writes a deleted version of an entity. Deleting an entity whose
// current version is already deleted is a no-op returning that version.
// The entity must already have rows in the target branch.
func (s *VersionService) SoftDelete(ctx context.Context, req *DeleteRequest) (*domain.Record, error) {
	branch, err := domain.NormalizeBranch(req.EntityType, req.Branch)
	if err != nil {
		return nil, err
	}

	var rec *domain.Record
	err = s.inWriteTx(ctx, "delete", req.EntityType, func(ctx context.Context, uow storage.UnitOfWork) error {
		if err := checkWritable(ctx, uow, branch); err != nil {
			return err
		}

		cur, err := uow.Versions().Current(ctx, req.EntityType, req.EntityID, branch)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %s %s does not exist in branch %s", domain.ErrNotFound, req.EntityType, req.EntityID, branch)
		}
		if err != nil {
			return err
		}
		rec, err = s.deleteFrom(ctx, uow, cur, req.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteInBranch deletes an entity within a change order branch. Unlike
// SoftDelete it accepts an entity that so far exists only in main, seeding
// the branch with a deleted version 1 forked from main's current version.
func (s *VersionService) DeleteInBranch(ctx context.Context, req *DeleteRequest) (*domain.Record, error) {
	branch, err := domain.NormalizeBranch(req.EntityType, req.Branch)
	if err != nil {
		return nil, err
	}
	if branch == domain.BranchMain {
		return s.SoftDelete(ctx, req)
	}

	var rec *domain.Record
	err = s.inWriteTx(ctx, "delete", req.EntityType, func(ctx context.Context, uow storage.UnitOfWork) error {
		if err := checkWritable(ctx, uow, branch); err != nil {
			return err
		}

		cur, err := s.currentOrFork(ctx, uow, req.EntityType, req.EntityID, branch)
		if err != nil {
			return err
		}
		rec, err = s.deleteFrom(ctx, uow, cur, req.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Restore reactivates a deleted entity with the payload of its last active
// version. Restoring an active entity is a no-op.
func (s *VersionService) Restore(ctx context.Context, req *DeleteRequest) (*domain.Record, error) {
	branch, err := domain.NormalizeBranch(req.EntityType, req.Branch)
	if err != nil {
		return nil, err
	}

	var rec *domain.Record
	err = s.inWriteTx(ctx, "restore", req.EntityType, func(ctx context.Context, uow storage.UnitOfWork) error {
		if err := checkWritable(ctx, uow, branch); err != nil {
			return err
		}

		repo := uow.Versions()
		history, err := repo.History(ctx, req.EntityType, req.EntityID, branch)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return fmt.Errorf("%w: %s %s does not exist in branch %s", domain.ErrNotFound, req.EntityType, req.EntityID, branch)
		}

		cur := history[len(history)-1]
		switch cur.Status {
		case domain.StatusActive:
			rec = cur
			return nil
		case domain.StatusMerged:
			return fmt.Errorf("%w: %s %s was merged from branch %s", domain.ErrNotFound, req.EntityType, req.EntityID, branch)
		}

		payload := cur.Payload
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Status == domain.StatusActive {
				payload = history[i].Payload
				break
			}
		}

		rec = s.next(cur, domain.StatusActive, payload.Clone(), req.Actor)
		return repo.Insert(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the current version of an entity in a branch. Deleted
// entities are reported as not found unless IncludeDeleted is set.
func (s *VersionService) Get(ctx context.Context, req *GetRequest) (*domain.Record, error) {
	branch := readBranch(req.EntityType, req.Branch)

	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	cur, err := uow.Versions().Current(ctx, req.EntityType, req.EntityID, branch)
	if err != nil {
		return nil, err
	}
	if cur.Status == domain.StatusMerged || (cur.IsDeleted() && !req.IncludeDeleted) {
		return nil, domain.ErrNotFound
	}
	return cur, nil
}

// GetVersion returns one historical version of an entity.
func (s *VersionService) GetVersion(ctx context.Context, entityType domain.EntityType, entityID, branch string, version int64) (*domain.Record, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.Versions().GetVersion(ctx, entityType, entityID, readBranch(entityType, branch), version)
}

// History returns every version of an entity in a branch, oldest first.
func (s *VersionService) History(ctx context.Context, entityType domain.EntityType, entityID, branch string) ([]*domain.Record, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.Versions().History(ctx, entityType, entityID, readBranch(entityType, branch))
}

// currentOrFork returns the current branch row, or a synthetic version-0
// row forked from main when the branch has never touched the entity.
func (s *VersionService) currentOrFork(ctx context.Context, uow storage.UnitOfWork, entityType domain.EntityType, entityID, branch string) (*domain.Record, error) {
	repo := uow.Versions()
	cur, err := repo.Current(ctx, entityType, entityID, branch)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || branch == domain.BranchMain {
		return nil, err
	}

	base, err := repo.Current(ctx, entityType, entityID, domain.BranchMain)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s does not exist in branch %s or main", domain.ErrNotFound, entityType, entityID, branch)
	}
	if err != nil {
		return nil, err
	}
	if !base.IsVisible() {
		return nil, fmt.Errorf("%w: %s %s is %s in main", domain.ErrNotFound, entityType, entityID, base.Status)
	}

	fork := *base
	fork.Branch = branch
	fork.Version = 0
	fork.BaseVersion = base.Version
	return &fork, nil
}

func (s *VersionService) deleteFrom(ctx context.Context, uow storage.UnitOfWork, cur *domain.Record, actor string) (*domain.Record, error) {
	switch cur.Status {
	case domain.StatusDeleted:
		return cur, nil
	case domain.StatusMerged:
		return nil, fmt.Errorf("%w: %s %s was merged from branch %s", domain.ErrNotFound, cur.EntityType, cur.EntityID, cur.Branch)
	}

	rec := s.next(cur, domain.StatusDeleted, cur.Payload.Clone(), actor)
	if err := uow.Versions().Insert(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Debug().Str("entity_id", rec.EntityID).Str("branch", rec.Branch).
		Int64("version", rec.Version).Msg("entity deleted")
	return rec, nil
}

// next builds the version following prev in the same branch.
func (s *VersionService) next(prev *domain.Record, status domain.Status, payload domain.Payload, actor string) *domain.Record {
	return &domain.Record{
		EntityID:   prev.EntityID,
		EntityType: prev.EntityType,
		ProjectID:  prev.ProjectID,
		Branched: domain.Branched{
			Versioned:   domain.Versioned{Version: prev.Version + 1, Status: status},
			Branch:      prev.Branch,
			BaseVersion: prev.BaseVersion,
		},
		Payload:   payload,
		Actor:     actor,
		CreatedAt: time.Now().UTC(),
	}
}

// inWriteTx runs fn in a write transaction. When the insert loses a version
// race the whole function is re-run against the new current version, up to
// the configured retry budget.
func (s *VersionService) inWriteTx(ctx context.Context, op string, entityType domain.EntityType, fn func(context.Context, storage.UnitOfWork) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.runWriteTx(ctx, fn)
		if !errors.Is(err, domain.ErrConcurrentModify) {
			break
		}
		if attempt >= s.maxRetries {
			err = fmt.Errorf("failed to %s after %d attempts: %w", op, attempt+1, err)
			break
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		s.metrics.ObserveRetry(op)
		s.log.Debug().Str("operation", op).Int("attempt", attempt+1).Msg("version race lost, retrying")
	}
	if entityType != "" {
		s.metrics.ObserveMutation(op, entityType, err)
	}
	return err
}

func (s *VersionService) runWriteTx(ctx context.Context, fn func(context.Context, storage.UnitOfWork) error) error {
	uow, err := s.storage.BeginImmediate(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := fn(ctx, uow); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// checkWritable rejects writes to branches that are unknown or locked.
func checkWritable(ctx context.Context, uow storage.UnitOfWork, branch string) error {
	if branch == domain.BranchMain {
		return nil
	}
	co, err := uow.ChangeOrders().GetByBranch(ctx, branch)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownBranch, branch)
	}
	if err != nil {
		return err
	}
	if !co.BranchWritable() {
		return fmt.Errorf("%w: change order %s is in %s", domain.ErrBranchLocked, co.ID, co.State)
	}
	return nil
}

// readBranch maps a requested branch to the one holding the type's rows.
// Non-branching types have no branch dimension, so reads always see main.
func readBranch(entityType domain.EntityType, branch string) string {
	if branch == "" || !entityType.BranchCapable() {
		return domain.BranchMain
	}
	return branch
}
