package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/storage"
)

// ViewComposer builds read-only views of a branch relative to main.
type ViewComposer struct {
	storage storage.Storage
}

// NewViewComposer creates a new ViewComposer.
func NewViewComposer(store storage.Storage) *ViewComposer {
	return &ViewComposer{storage: store}
}

// ComposeRequest is the request for Compose and BranchOnly.
type ComposeRequest struct {
	EntityType domain.EntityType
	Scope      domain.Scope
	Branch     string
}

// Compose returns main's entities overlaid with the branch's, each tagged
// unchanged, created, updated or deleted relative to main.
func (c *ViewComposer) Compose(ctx context.Context, req *ComposeRequest) ([]domain.ViewEntry, error) {
	mainSet, branchSet, err := c.load(ctx, req)
	if err != nil {
		return nil, err
	}

	inBranch := indexByEntity(branchSet)
	inMain := indexByEntity(mainSet)

	entries := make([]domain.ViewEntry, 0, len(mainSet)+len(branchSet))
	for _, m := range mainSet {
		b, ok := inBranch[m.EntityID]
		if !ok {
			entries = append(entries, domain.ViewEntry{Record: m, Status: domain.ChangeUnchanged})
			continue
		}
		status := domain.ChangeUpdated
		if b.IsDeleted() {
			status = domain.ChangeDeleted
		}
		entries = append(entries, domain.ViewEntry{Record: b, Status: status})
	}
	for _, b := range branchSet {
		if _, ok := inMain[b.EntityID]; ok || b.IsDeleted() {
			continue
		}
		entries = append(entries, domain.ViewEntry{Record: b, Status: domain.ChangeCreated})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Record.EntityID < entries[j].Record.EntityID
	})
	return paginate(entries, req.Scope), nil
}

// BranchOnly returns just the branch's own rows, tagged relative to main.
func (c *ViewComposer) BranchOnly(ctx context.Context, req *ComposeRequest) ([]domain.ViewEntry, error) {
	mainSet, branchSet, err := c.load(ctx, req)
	if err != nil {
		return nil, err
	}

	inMain := indexByEntity(mainSet)
	entries := make([]domain.ViewEntry, 0, len(branchSet))
	for _, b := range branchSet {
		status := domain.ChangeCreated
		if _, ok := inMain[b.EntityID]; ok {
			status = domain.ChangeUpdated
		}
		if b.IsDeleted() {
			status = domain.ChangeDeleted
		}
		entries = append(entries, domain.ViewEntry{Record: b, Status: status})
	}
	return paginate(entries, req.Scope), nil
}

// load reads main (active only) and the branch (active and deleted) in one
// read transaction so both sides come from the same snapshot.
func (c *ViewComposer) load(ctx context.Context, req *ComposeRequest) (mainSet, branchSet []*domain.Record, err error) {
	if _, err := domain.ParseEntityType(string(req.EntityType)); err != nil {
		return nil, nil, err
	}

	uow, err := c.storage.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// Pagination applies to the composed list, not to either side.
	scope := req.Scope
	scope.Limit, scope.Offset = 0, 0

	mainSet, err = resolveCurrent(ctx, uow, req.EntityType, scope, domain.BranchMain, false)
	if err != nil {
		return nil, nil, err
	}

	branch := readBranch(req.EntityType, req.Branch)
	if branch == domain.BranchMain {
		return mainSet, nil, nil
	}
	branchSet, err = resolveCurrent(ctx, uow, req.EntityType, scope, branch, true)
	if err != nil {
		return nil, nil, err
	}
	return mainSet, branchSet, nil
}

func indexByEntity(recs []*domain.Record) map[string]*domain.Record {
	idx := make(map[string]*domain.Record, len(recs))
	for _, r := range recs {
		idx[r.EntityID] = r
	}
	return idx
}

func paginate(entries []domain.ViewEntry, scope domain.Scope) []domain.ViewEntry {
	if scope.Offset > 0 {
		if scope.Offset >= len(entries) {
			return []domain.ViewEntry{}
		}
		entries = entries[scope.Offset:]
	}
	if scope.Limit > 0 && scope.Limit < len(entries) {
		entries = entries[:scope.Limit]
	}
	return entries
}
