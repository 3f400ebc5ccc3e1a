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
)

// BranchService creates, diffs, merges and archives change order branches.
type BranchService struct {
	storage  storage.Storage
	versions *VersionService
	detector ConflictDetector
	log      zerolog.Logger
	metrics  *observability.Metrics
}

// NewBranchService creates a new BranchService. Writes go through versions.
func NewBranchService(store storage.Storage, versions *VersionService, opts ...Option) *BranchService {
	o := newServiceOptions(opts)
	return &BranchService{
		storage:  store,
		versions: versions,
		detector: o.detector,
		log:      o.logger.With().Str("component", "branches").Logger(),
		metrics:  o.metrics,
	}
}

// CreateBranch registers a branch for a new change order and persists the
// change order's first version. No rows are copied: an empty branch falls
// back to main everywhere.
func (s *BranchService) CreateBranch(ctx context.Context, co *domain.ChangeOrder) (string, error) {
	if co.ProjectID == "" {
		return "", fmt.Errorf("%w: change order needs a project", domain.ErrInvalidArgument)
	}

	err := s.versions.inWriteTx(ctx, "create_branch", "", func(ctx context.Context, uow storage.UnitOfWork) error {
		info, err := uow.Branches().Register(ctx, co.ID, co.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to register branch: %w", err)
		}
		co.Branch = info.Name
		return uow.ChangeOrders().Create(ctx, co)
	})
	if err != nil {
		return "", err
	}

	s.log.Info().Str("change_order_id", co.ID).Str("branch", co.Branch).Msg("branch created")
	return co.Branch, nil
}

// ListBranches returns the branch registry of a project.
func (s *BranchService) ListBranches(ctx context.Context, projectID string) ([]*domain.BranchInfo, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.Branches().List(ctx, projectID)
}

// Diff lists how the branch differs from main. Entities whose branch payload
// equals main's are omitted.
func (s *BranchService) Diff(ctx context.Context, branch string) ([]domain.Change, error) {
	if branch == "" || branch == domain.BranchMain {
		return nil, fmt.Errorf("%w: cannot diff main against itself", domain.ErrInvalidArgument)
	}

	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return s.diffInTx(ctx, uow, branch)
}

func (s *BranchService) diffInTx(ctx context.Context, uow storage.UnitOfWork, branch string) ([]domain.Change, error) {
	rows, err := uow.Versions().ListBranchCurrent(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch %s: %w", branch, err)
	}

	var changes []domain.Change
	for _, b := range rows {
		if b.Status == domain.StatusMerged {
			continue
		}
		m, err := mainCurrent(ctx, uow, b)
		if err != nil {
			return nil, err
		}

		var kind domain.ChangeKind
		switch {
		case m == nil || m.Status != domain.StatusActive:
			if b.Status != domain.StatusActive {
				continue
			}
			kind = domain.ChangeCreated
		case b.Status == domain.StatusDeleted:
			kind = domain.ChangeDeleted
		case !b.Payload.Equal(m.Payload):
			kind = domain.ChangeUpdated
		default:
			continue
		}

		changes = append(changes, domain.Change{
			EntityID:   b.EntityID,
			EntityType: b.EntityType,
			Kind:       kind,
			Main:       m,
			Branch:     b,
		})
	}
	return changes, nil
}

// Merge folds the branch into main with last-write-wins: every current
// branch row that is active or deleted becomes a new main version carrying
// the branch payload and status, then the branch row is superseded by a
// merged version. Everything happens in one transaction; a failure leaves
// both main and the branch untouched.
//
// The owning change order must be in approve. A branch no change order owns
// has no rows and merges to an empty result.
func (s *BranchService) Merge(ctx context.Context, branch, actor string) (*domain.MergeResult, error) {
	start := time.Now()

	var result *domain.MergeResult
	err := s.versions.inWriteTx(ctx, "merge", "", func(ctx context.Context, uow storage.UnitOfWork) error {
		if err := checkMergeable(ctx, uow, branch); err != nil {
			return err
		}
		var err error
		result, err = s.mergeInTx(ctx, uow, branch, actor)
		return err
	})
	s.metrics.ObserveMerge(start, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BranchService) mergeInTx(ctx context.Context, uow storage.UnitOfWork, branch, actor string) (*domain.MergeResult, error) {
	if branch == "" || branch == domain.BranchMain {
		return nil, fmt.Errorf("%w: cannot merge main into itself", domain.ErrInvalidArgument)
	}

	repo := uow.Versions()
	rows, err := repo.ListBranchCurrent(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch %s: %w", branch, err)
	}

	result := &domain.MergeResult{Branch: branch}
	if len(rows) == 0 {
		return result, nil
	}

	info, err := uow.Branches().Get(ctx, branch)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var merged []*domain.Record
	for _, b := range rows {
		if b.Status == domain.StatusMerged {
			continue
		}
		merged = append(merged, b)

		m, err := mainCurrent(ctx, uow, b)
		if err != nil {
			return nil, err
		}
		if w := s.detector.Detect(b, m, info); w != nil {
			if info != nil {
				w.BranchCreatedAt = info.CreatedAt
			}
			result.Warnings = append(result.Warnings, *w)
			s.log.Warn().Str("branch", branch).Str("entity_id", b.EntityID).
				Str("reason", w.Reason).Msg("main changed since branch baseline")
		}

		// Born and deleted inside the branch: nothing to carry into main.
		if m == nil && b.IsDeleted() {
			continue
		}

		rec := &domain.Record{
			EntityID:   b.EntityID,
			EntityType: b.EntityType,
			ProjectID:  b.ProjectID,
			Branched: domain.Branched{
				Versioned: domain.Versioned{Version: 1, Status: b.Status},
				Branch:    domain.BranchMain,
			},
			Payload:   b.Payload.Clone(),
			Actor:     actor,
			CreatedAt: time.Now().UTC(),
		}
		if m != nil {
			rec.Version = m.Version + 1
		}
		if err := repo.Insert(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to merge %s %s: %w", b.EntityType, b.EntityID, err)
		}
		result.Applied++
		result.EntityIDs = append(result.EntityIDs, b.EntityID)
	}

	for _, b := range merged {
		rec := s.versions.next(b, domain.StatusMerged, b.Payload.Clone(), actor)
		if err := repo.Insert(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to mark %s %s merged: %w", b.EntityType, b.EntityID, err)
		}
	}

	s.log.Info().Str("branch", branch).Int("applied", result.Applied).
		Int("warnings", len(result.Warnings)).Msg("branch merged")
	return result, nil
}

// Archive marks every active current row of the branch deleted. History is
// kept; merged and already deleted rows are left alone, so archiving twice
// or archiving an unknown branch affects nothing.
func (s *BranchService) Archive(ctx context.Context, branch, actor string) (*domain.ArchiveResult, error) {
	var result *domain.ArchiveResult
	err := s.versions.inWriteTx(ctx, "archive", "", func(ctx context.Context, uow storage.UnitOfWork) error {
		var err error
		result, err = s.archiveInTx(ctx, uow, branch, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveArchive(result)
	return result, nil
}

func (s *BranchService) archiveInTx(ctx context.Context, uow storage.UnitOfWork, branch, actor string) (*domain.ArchiveResult, error) {
	if branch == "" || branch == domain.BranchMain {
		return nil, fmt.Errorf("%w: main cannot be archived", domain.ErrInvalidArgument)
	}

	repo := uow.Versions()
	rows, err := repo.ListBranchCurrent(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch %s: %w", branch, err)
	}

	result := &domain.ArchiveResult{Branch: branch}
	for _, b := range rows {
		if !b.IsVisible() {
			continue
		}
		rec := s.versions.next(b, domain.StatusDeleted, b.Payload.Clone(), actor)
		if err := repo.Insert(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to archive %s %s: %w", b.EntityType, b.EntityID, err)
		}
		result.Archived++
		result.EntityIDs = append(result.EntityIDs, b.EntityID)
	}

	if result.Archived > 0 {
		s.log.Info().Str("branch", branch).Int("archived", result.Archived).Msg("branch archived")
	}
	return result, nil
}

// checkMergeable rejects merging a branch whose change order is still in
// design, already executed or cancelled. Execute merges inside its own
// transition and does not go through this check.
func checkMergeable(ctx context.Context, uow storage.UnitOfWork, branch string) error {
	if branch == "" || branch == domain.BranchMain {
		return nil
	}
	co, err := uow.ChangeOrders().GetByBranch(ctx, branch)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if co.State != domain.WorkflowApprove {
		return fmt.Errorf("%w: change order %s is in %s, only approved change orders can be merged",
			domain.ErrInvalidState, co.ID, co.State)
	}
	return nil
}

func mainCurrent(ctx context.Context, uow storage.UnitOfWork, b *domain.Record) (*domain.Record, error) {
	m, err := uow.Versions().Current(ctx, b.EntityType, b.EntityID, domain.BranchMain)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
