package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/observability"
	"github.com/example/projectcontrols/internal/storage"
	"github.com/example/projectcontrols/pkg/id"
)

// WorkflowService drives change orders through design, approve and execute,
// calling the branch lifecycle at each transition.
type WorkflowService struct {
	storage  storage.Storage
	branches *BranchService
	versions *VersionService
	log      zerolog.Logger
	metrics  *observability.Metrics
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(store storage.Storage, branches *BranchService, opts ...Option) *WorkflowService {
	o := newServiceOptions(opts)
	return &WorkflowService{
		storage:  store,
		branches: branches,
		versions: branches.versions,
		log:      o.logger.With().Str("component", "workflow").Logger(),
		metrics:  o.metrics,
	}
}

// CreateChangeOrderRequest is the request for Create.
type CreateChangeOrderRequest struct {
	ProjectID   string
	Title       string
	Description string
	Actor       string
}

// Create opens a change order in design and creates its branch.
func (s *WorkflowService) Create(ctx context.Context, req *CreateChangeOrderRequest) (*domain.ChangeOrder, error) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, fmt.Errorf("%w: project_id is required", domain.ErrInvalidArgument)
	}

	co := domain.NewChangeOrder(id.Generate(), req.ProjectID, req.Title)
	co.Description = req.Description
	co.Actor = req.Actor

	if _, err := s.branches.CreateBranch(ctx, co); err != nil {
		return nil, fmt.Errorf("failed to create change order: %w", err)
	}
	s.metrics.ObserveTransition(domain.WorkflowDesign)
	return co, nil
}

// Get retrieves the current version of a change order.
func (s *WorkflowService) Get(ctx context.Context, changeOrderID string) (*domain.ChangeOrder, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.ChangeOrders().Get(ctx, changeOrderID)
}

// List lists the change orders of a project.
func (s *WorkflowService) List(ctx context.Context, projectID string) ([]*domain.ChangeOrder, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.ChangeOrders().List(ctx, projectID)
}

// Approve locks the branch for review and returns its diff against main.
func (s *WorkflowService) Approve(ctx context.Context, changeOrderID, actor string) (*domain.ChangeOrder, []domain.Change, error) {
	var changes []domain.Change
	co, err := s.transition(ctx, changeOrderID, actor, domain.WorkflowApprove,
		func(ctx context.Context, uow storage.UnitOfWork, co *domain.ChangeOrder) error {
			var err error
			changes, err = s.branches.diffInTx(ctx, uow, co.Branch)
			return err
		})
	if err != nil {
		return nil, nil, err
	}
	return co, changes, nil
}

// Reopen sends an approved change order back to design, unlocking its branch.
func (s *WorkflowService) Reopen(ctx context.Context, changeOrderID, actor string) (*domain.ChangeOrder, error) {
	return s.transition(ctx, changeOrderID, actor, domain.WorkflowDesign, nil)
}

// Execute merges the branch into main and archives it, atomically with the
// state change.
func (s *WorkflowService) Execute(ctx context.Context, changeOrderID, actor string) (*domain.ChangeOrder, *domain.MergeResult, error) {
	start := time.Now()
	var result *domain.MergeResult
	co, err := s.transition(ctx, changeOrderID, actor, domain.WorkflowExecute,
		func(ctx context.Context, uow storage.UnitOfWork, co *domain.ChangeOrder) error {
			var err error
			if result, err = s.branches.mergeInTx(ctx, uow, co.Branch, actor); err != nil {
				return err
			}
			_, err = s.branches.archiveInTx(ctx, uow, co.Branch, actor)
			return err
		})
	s.metrics.ObserveMerge(start, result, err)
	if err != nil {
		return nil, nil, err
	}
	return co, result, nil
}

// Cancel archives the branch without merging.
func (s *WorkflowService) Cancel(ctx context.Context, changeOrderID, actor string) (*domain.ChangeOrder, *domain.ArchiveResult, error) {
	var result *domain.ArchiveResult
	co, err := s.transition(ctx, changeOrderID, actor, domain.WorkflowCancelled,
		func(ctx context.Context, uow storage.UnitOfWork, co *domain.ChangeOrder) error {
			var err error
			result, err = s.branches.archiveInTx(ctx, uow, co.Branch, actor)
			return err
		})
	if err != nil {
		return nil, nil, err
	}
	s.metrics.ObserveArchive(result)
	return co, result, nil
}

// transition loads the change order, validates the move, runs the branch
// work and appends the next change order version in one transaction.
func (s *WorkflowService) transition(ctx context.Context, changeOrderID, actor string, to domain.WorkflowState,
	work func(context.Context, storage.UnitOfWork, *domain.ChangeOrder) error) (*domain.ChangeOrder, error) {

	var co *domain.ChangeOrder
	err := s.versions.inWriteTx(ctx, "transition", "", func(ctx context.Context, uow storage.UnitOfWork) error {
		var err error
		co, err = uow.ChangeOrders().Get(ctx, changeOrderID)
		if err != nil {
			return err
		}
		if err := co.Transition(to); err != nil {
			return err
		}
		if work != nil {
			if err := work(ctx, uow, co); err != nil {
				return err
			}
		}
		co.Actor = actor
		return uow.ChangeOrders().Update(ctx, co)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to move change order %s to %s: %w", changeOrderID, to, err)
	}

	s.metrics.ObserveTransition(to)
	s.log.Info().Str("change_order_id", co.ID).Str("branch", co.Branch).
		Str("state", string(co.State)).Msg("change order transitioned")
	return co, nil
}
