package storage

import (
	"context"

	"github.com/example/projectcontrols/internal/domain"
)

// CurrentQuery selects the current (max-version) row of each entity.
type CurrentQuery struct {
	EntityType domain.EntityType
	Branch     string
	Scope      domain.Scope

	// Statuses the current row must have (empty = any).
	Statuses []domain.Status
}

// VersionRepository provides access to the append-only version rows.
type VersionRepository interface {
	// Insert appends a version row. A row already holding the same
	// (entity_id, branch, version) yields domain.ErrConcurrentModify.
	Insert(ctx context.Context, rec *domain.Record) error

	// Current retrieves the highest-version row for an entity in a branch,
	// whatever its status.
	Current(ctx context.Context, entityType domain.EntityType, entityID, branch string) (*domain.Record, error)

	// GetVersion retrieves one specific version.
	GetVersion(ctx context.Context, entityType domain.EntityType, entityID, branch string, version int64) (*domain.Record, error)

	// History lists every version of an entity in a branch, oldest first.
	History(ctx context.Context, entityType domain.EntityType, entityID, branch string) ([]*domain.Record, error)

	// ListCurrent lists current rows matching the query, ordered by entity ID.
	ListCurrent(ctx context.Context, q CurrentQuery) ([]*domain.Record, error)

	// ListBranchCurrent lists the current row of every entity of any
	// branch-capable type that has versions in branch.
	ListBranchCurrent(ctx context.Context, branch string) ([]*domain.Record, error)

	// TypeOf reports the entity type that owns entityID in any branch, or
	// domain.ErrNotFound when no row uses the ID.
	TypeOf(ctx context.Context, entityID string) (domain.EntityType, error)
}

// ChangeOrderRepository provides access to versioned ChangeOrder storage.
type ChangeOrderRepository interface {
	// Create inserts version 1 of a ChangeOrder.
	Create(ctx context.Context, co *domain.ChangeOrder) error

	// Get retrieves the current version of a ChangeOrder.
	Get(ctx context.Context, id string) (*domain.ChangeOrder, error)

	// GetByBranch retrieves the current version of the ChangeOrder owning branch.
	GetByBranch(ctx context.Context, branch string) (*domain.ChangeOrder, error)

	// Update appends the next version of a ChangeOrder. co.Version must be
	// the version that was read; it is incremented on success.
	Update(ctx context.Context, co *domain.ChangeOrder) error

	// List lists current ChangeOrders of a project (all projects when empty).
	List(ctx context.Context, projectID string) ([]*domain.ChangeOrder, error)
}

// BranchRepository provides access to the branch registry.
type BranchRepository interface {
	// Register assigns the next branch sequence number to a change order.
	Register(ctx context.Context, changeOrderID, projectID string) (*domain.BranchInfo, error)

	// Get retrieves a registry entry by branch name.
	Get(ctx context.Context, name string) (*domain.BranchInfo, error)

	// List lists registry entries of a project (all projects when empty).
	List(ctx context.Context, projectID string) ([]*domain.BranchInfo, error)
}

// UnitOfWork provides transactional access to all repositories.
type UnitOfWork interface {
	// Repository accessors
	Versions() VersionRepository
	ChangeOrders() ChangeOrderRepository
	Branches() BranchRepository

	// Transaction control
	Commit() error
	Rollback() error
}

// Storage provides the main entry point for storage operations.
type Storage interface {
	// Begin starts a read transaction and returns a UnitOfWork.
	Begin(ctx context.Context) (UnitOfWork, error)

	// BeginImmediate starts a write transaction that holds the write lock
	// from the start, so read-then-insert sequences serialize.
	BeginImmediate(ctx context.Context) (UnitOfWork, error)

	// Close closes the storage connection.
	Close() error

	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
}
