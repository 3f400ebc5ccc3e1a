package domain

import (
	"fmt"
	"strings"
	"time"
)

// WorkflowState describes where a change order is in its lifecycle.
type WorkflowState string

const (
	WorkflowDesign    WorkflowState = "design"    // Branch open for edits
	WorkflowApprove   WorkflowState = "approve"   // Branch locked for review
	WorkflowExecute   WorkflowState = "execute"   // Branch merged into main
	WorkflowCancelled WorkflowState = "cancelled" // Branch archived without merge
)

// ParseWorkflowState converts a stored workflow state.
func ParseWorkflowState(s string) (WorkflowState, error) {
	switch WorkflowState(s) {
	case WorkflowDesign, WorkflowApprove, WorkflowExecute, WorkflowCancelled:
		return WorkflowState(s), nil
	default:
		return "", fmt.Errorf("%w: unknown workflow state %q", ErrInvalidArgument, s)
	}
}

// ValidWorkflowTransition checks if a change order may move between states.
// Valid transitions: design -> approve -> execute, design|approve -> cancelled
func ValidWorkflowTransition(from, to WorkflowState) bool {
	switch from {
	case WorkflowDesign:
		return to == WorkflowApprove || to == WorkflowCancelled
	case WorkflowApprove:
		return to == WorkflowExecute || to == WorkflowCancelled || to == WorkflowDesign
	default:
		return false
	}
}

// ChangeOrder stages modifications to a project in its own branch.
type ChangeOrder struct {
	ID          string
	ProjectID   string
	Branch      string
	Title       string
	Description string
	State       WorkflowState
	Versioned
	Actor     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewChangeOrder creates a change order in the design state.
// The branch is assigned when the change order is persisted.
func NewChangeOrder(id, projectID, title string) *ChangeOrder {
	now := time.Now().UTC()
	return &ChangeOrder{
		ID:        id,
		ProjectID: projectID,
		Title:     title,
		State:     WorkflowDesign,
		Versioned: Versioned{Version: 1, Status: StatusActive},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the change order to a new workflow state.
func (c *ChangeOrder) Transition(to WorkflowState) error {
	if !ValidWorkflowTransition(c.State, to) {
		return fmt.Errorf("%w: cannot move change order from %s to %s",
			ErrInvalidState, c.State, to)
	}
	c.State = to
	c.UpdatedAt = time.Now().UTC()
	// Note: Version is managed by the storage layer, not here
	return nil
}

// BranchWritable reports whether the owned branch still accepts edits.
func (c *ChangeOrder) BranchWritable() bool {
	return c.State == WorkflowDesign
}

// BranchName derives the branch name for a change order sequence number.
func BranchName(seq int64) string {
	return fmt.Sprintf("co-%03d", seq)
}

// IsChangeOrderBranch reports whether name follows the change order branch scheme.
func IsChangeOrderBranch(name string) bool {
	return strings.HasPrefix(name, "co-") && len(name) > 3
}

// BranchInfo is the registry entry tying a branch to its change order.
type BranchInfo struct {
	Name          string
	Sequence      int64
	ChangeOrderID string
	ProjectID     string
	CreatedAt     time.Time
}
