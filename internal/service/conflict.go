package service

import (
	"fmt"

	"github.com/example/projectcontrols/internal/domain"
)

// ConflictDetector decides whether main moved underneath a branch entity
// since the branch forked. Detection only produces warnings; merges are
// always last-write-wins.
type ConflictDetector interface {
	// Detect inspects one branch row against main's current row (nil when
	// main has none) and the branch registry entry (nil when unregistered).
	Detect(branchRow, mainRow *domain.Record, branch *domain.BranchInfo) *domain.MergeConflictWarning
}

// NewConflictDetector returns the detector registered under name.
func NewConflictDetector(name string) (ConflictDetector, error) {
	switch name {
	case "", "version":
		return VersionConflictDetector{}, nil
	case "timestamp":
		return TimestampConflictDetector{}, nil
	case "none":
		return NoopConflictDetector{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown conflict detector %q", domain.ErrInvalidArgument, name)
	}
}

// VersionConflictDetector warns when main's current version differs from the
// version the branch row was forked from.
type VersionConflictDetector struct{}

func (VersionConflictDetector) Detect(branchRow, mainRow *domain.Record, _ *domain.BranchInfo) *domain.MergeConflictWarning {
	if mainRow == nil {
		return nil
	}
	if branchRow.BaseVersion == mainRow.Version {
		return nil
	}

	reason := fmt.Sprintf("main moved from version %d to %d", branchRow.BaseVersion, mainRow.Version)
	if branchRow.BaseVersion == 0 {
		reason = "entity was created in main after the branch"
	}
	return &domain.MergeConflictWarning{
		EntityID:      branchRow.EntityID,
		EntityType:    branchRow.EntityType,
		BaseVersion:   branchRow.BaseVersion,
		MainVersion:   mainRow.Version,
		MainChangedAt: mainRow.CreatedAt,
		Reason:        reason,
	}
}

// TimestampConflictDetector warns when main's current row was written after
// the branch was created.
type TimestampConflictDetector struct{}

func (TimestampConflictDetector) Detect(branchRow, mainRow *domain.Record, branch *domain.BranchInfo) *domain.MergeConflictWarning {
	if mainRow == nil || branch == nil || !mainRow.CreatedAt.After(branch.CreatedAt) {
		return nil
	}
	return &domain.MergeConflictWarning{
		EntityID:        branchRow.EntityID,
		EntityType:      branchRow.EntityType,
		BaseVersion:     branchRow.BaseVersion,
		MainVersion:     mainRow.Version,
		MainChangedAt:   mainRow.CreatedAt,
		BranchCreatedAt: branch.CreatedAt,
		Reason:          "main changed after the branch was created",
	}
}

// NoopConflictDetector never warns.
type NoopConflictDetector struct{}

func (NoopConflictDetector) Detect(_, _ *domain.Record, _ *domain.BranchInfo) *domain.MergeConflictWarning {
	return nil
}
