package service

import (
	"context"
	"fmt"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/storage"
)

// Filter resolves the single authoritative version of each entity visible
// in a branch.
type Filter struct {
	storage storage.Storage
}

// NewFilter creates a new Filter.
func NewFilter(store storage.Storage) *Filter {
	return &Filter{storage: store}
}

// ResolveRequest is the request for Resolve.
type ResolveRequest struct {
	EntityType     domain.EntityType
	Scope          domain.Scope
	Branch         string
	IncludeDeleted bool
}

// Resolve returns the current row of every entity in the branch that matches
// the scope. A branch no row references resolves to an empty set.
func (f *Filter) Resolve(ctx context.Context, req *ResolveRequest) ([]*domain.Record, error) {
	if _, err := domain.ParseEntityType(string(req.EntityType)); err != nil {
		return nil, err
	}

	uow, err := f.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return resolveCurrent(ctx, uow, req.EntityType, req.Scope, req.Branch, req.IncludeDeleted)
}

// resolveCurrent keeps the max-version row per entity in the branch and
// drops entities whose current row is deleted (unless includeDeleted) or
// merged. Merged rows are never current: merge always writes a newer main
// version, and the branch view falls back to main.
func resolveCurrent(ctx context.Context, uow storage.UnitOfWork, entityType domain.EntityType, scope domain.Scope, branch string, includeDeleted bool) ([]*domain.Record, error) {
	statuses := []domain.Status{domain.StatusActive}
	if includeDeleted {
		statuses = append(statuses, domain.StatusDeleted)
	}

	recs, err := uow.Versions().ListCurrent(ctx, storage.CurrentQuery{
		EntityType: entityType,
		Branch:     readBranch(entityType, branch),
		Scope:      scope,
		Statuses:   statuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s in %s: %w", entityType, branch, err)
	}
	return recs, nil
}
