package domain

import "time"

// ChangeKind classifies how a branch differs from main for one entity.
type ChangeKind string

const (
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeCreated   ChangeKind = "created"
	ChangeUpdated   ChangeKind = "updated"
	ChangeDeleted   ChangeKind = "deleted"
)

// Change is one entry of a branch diff.
type Change struct {
	EntityID   string
	EntityType EntityType
	Kind       ChangeKind
	Main       *Record // nil when absent from main
	Branch     *Record
}

// ViewEntry is one row of a composed view, tagged relative to main.
type ViewEntry struct {
	Record *Record
	Status ChangeKind
}

// MergeConflictWarning reports that main moved after the branch forked.
// It is informational; the merge still applies last-write-wins.
type MergeConflictWarning struct {
	EntityID        string
	EntityType      EntityType
	BaseVersion     int64
	MainVersion     int64
	MainChangedAt   time.Time
	BranchCreatedAt time.Time
	Reason          string
}

// MergeResult summarizes a merge of one branch into main.
type MergeResult struct {
	Branch    string
	Applied   int
	EntityIDs []string
	Warnings  []MergeConflictWarning
}

// ArchiveResult summarizes an archive of one branch.
type ArchiveResult struct {
	Branch    string
	Archived  int
	EntityIDs []string
}
