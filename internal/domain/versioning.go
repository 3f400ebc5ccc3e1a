package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BranchMain is the live, authoritative branch.
const BranchMain = "main"

// Status is the lifecycle status carried by every entity version.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
	StatusMerged  Status = "merged"
)

// ParseStatus converts a stored status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusDeleted, StatusMerged:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
	}
}

// Versioned is the (version, status) pair shared by all entities.
type Versioned struct {
	Version int64
	Status  Status
}

// IsDeleted reports whether this version marks the entity as gone.
func (v Versioned) IsDeleted() bool { return v.Status == StatusDeleted }

// IsVisible reports whether a current row with this status is returned by default reads.
func (v Versioned) IsVisible() bool { return v.Status == StatusActive }

// Branched extends Versioned with the branch a version lives in.
// BaseVersion is the main version a branch row was forked from (0 when the
// entity was born in the branch or the row lives in main).
type Branched struct {
	Versioned
	Branch      string
	BaseVersion int64
}

// IsMain reports whether the row belongs to the main branch.
func (b Branched) IsMain() bool { return b.Branch == BranchMain }

// Payload holds an entity's domain fields as of one version.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Equal compares two payloads by their canonical JSON encoding.
func (p Payload) Equal(other Payload) bool {
	a, errA := p.canonical()
	b, errB := other.canonical()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (p Payload) canonical() ([]byte, error) {
	if len(p) == 0 {
		return []byte("{}"), nil
	}
	// Round-trip so numeric types decoded from storage and literals compare equal.
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var norm map[string]any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, err
	}
	return json.Marshal(norm)
}

// ParentID returns the payload's parent reference, if any.
func (p Payload) ParentID() string {
	if v, ok := p["parent_id"].(string); ok {
		return v
	}
	return ""
}

// Record is one immutable version row of an entity.
type Record struct {
	EntityID   string
	EntityType EntityType
	ProjectID  string
	Branched
	Payload   Payload
	Actor     string
	CreatedAt time.Time
}

// Key identifies the version sequence a record belongs to.
func (r *Record) Key() VersionKey {
	return VersionKey{EntityID: r.EntityID, Branch: r.Branch}
}

// VersionKey is the (entity_id, branch) scope in which versions are numbered.
type VersionKey struct {
	EntityID string
	Branch   string
}

func (k VersionKey) String() string {
	return k.EntityID + "@" + k.Branch
}

// NormalizeBranch returns the branch name to use for an entity type.
// Non-branching types always live in main.
func NormalizeBranch(t EntityType, branch string) (string, error) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		branch = BranchMain
	}
	if !t.BranchCapable() && branch != BranchMain {
		return "", fmt.Errorf("%w: %s does not support branches", ErrInvalidArgument, t)
	}
	return branch, nil
}

// Scope narrows a resolution to part of a project.
type Scope struct {
	ProjectID string
	EntityIDs []string
	ParentID  string

	// Pagination
	Limit  int
	Offset int
}
