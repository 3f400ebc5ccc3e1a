package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity has no current row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEntity is returned when create targets an entity that already has versions.
	ErrDuplicateEntity = errors.New("entity already exists")

	// ErrInvalidState is returned when a state transition is not allowed.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrConcurrentModify is returned when a version insert loses a race.
	ErrConcurrentModify = errors.New("concurrent modification")

	// ErrInvalidArgument is returned when an argument is invalid.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBranchLocked is returned when writing to a branch whose change order left design.
	ErrBranchLocked = errors.New("branch is read-only")

	// ErrUnknownBranch is returned when writing to a branch no change order owns.
	ErrUnknownBranch = errors.New("unknown branch")
)
