package web

import (
	"time"

	"github.com/example/projectcontrols/internal/domain"
)

// RecordResponse is one version row of an entity.
type RecordResponse struct {
	EntityID    string         `json:"entityId"`
	EntityType  string         `json:"entityType"`
	ProjectID   string         `json:"projectId"`
	Branch      string         `json:"branch"`
	Version     int64          `json:"version"`
	BaseVersion int64          `json:"baseVersion,omitempty"`
	Status      string         `json:"status"`
	Payload     map[string]any `json:"payload"`
	Actor       string         `json:"actor,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// ListRecordsResponse is the response for list and history routes.
type ListRecordsResponse struct {
	Records []RecordResponse `json:"records"`
}

// ChangeResponse is one entry of a branch diff.
type ChangeResponse struct {
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Kind       string          `json:"kind"`
	Main       *RecordResponse `json:"main,omitempty"`
	Branch     *RecordResponse `json:"branch"`
}

// ViewEntryResponse is one row of a composed view.
type ViewEntryResponse struct {
	Status string         `json:"status"`
	Record RecordResponse `json:"record"`
}

// ViewResponse is the response for GET /api/v1/view/:type
type ViewResponse struct {
	Branch  string              `json:"branch"`
	Entries []ViewEntryResponse `json:"entries"`
}

// WarningResponse reports that main moved under a merged entity.
type WarningResponse struct {
	EntityID    string `json:"entityId"`
	EntityType  string `json:"entityType"`
	BaseVersion int64  `json:"baseVersion"`
	MainVersion int64  `json:"mainVersion"`
	Reason      string `json:"reason"`
}

// MergeResponse summarizes a merge.
type MergeResponse struct {
	Branch    string            `json:"branch"`
	Applied   int               `json:"applied"`
	EntityIDs []string          `json:"entityIds"`
	Warnings  []WarningResponse `json:"warnings"`
}

// ArchiveResponse summarizes an archive.
type ArchiveResponse struct {
	Branch    string   `json:"branch"`
	Archived  int      `json:"archived"`
	EntityIDs []string `json:"entityIds"`
}

// ChangeOrderResponse is the current version of a change order.
type ChangeOrderResponse struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Branch      string    `json:"branch"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	State       string    `json:"state"`
	Version     int64     `json:"version"`
	Actor       string    `json:"actor,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Set by the transition that produced them.
	Changes []ChangeResponse `json:"changes,omitempty"`
	Merge   *MergeResponse   `json:"merge,omitempty"`
	Archive *ArchiveResponse `json:"archive,omitempty"`
}

// BranchResponse is one branch registry entry.
type BranchResponse struct {
	Name          string    `json:"name"`
	Sequence      int64     `json:"sequence"`
	ChangeOrderID string    `json:"changeOrderId"`
	ProjectID     string    `json:"projectId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteEntityRequest is the body for creating or updating an entity.
type WriteEntityRequest struct {
	EntityID  string         `json:"entityId"`
	ProjectID string         `json:"projectId"`
	Branch    string         `json:"branch"`
	Payload   map[string]any `json:"payload"`
	Actor     string         `json:"actor"`
}

// CreateChangeOrderRequest is the body for POST /api/v1/change-orders
type CreateChangeOrderRequest struct {
	ProjectID   string `json:"projectId" binding:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Actor       string `json:"actor"`
}

func toRecord(r *domain.Record) RecordResponse {
	payload := map[string]any(r.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	return RecordResponse{
		EntityID:    r.EntityID,
		EntityType:  string(r.EntityType),
		ProjectID:   r.ProjectID,
		Branch:      r.Branch,
		Version:     r.Version,
		BaseVersion: r.BaseVersion,
		Status:      string(r.Status),
		Payload:     payload,
		Actor:       r.Actor,
		CreatedAt:   r.CreatedAt,
	}
}

func toRecordPtr(r *domain.Record) *RecordResponse {
	if r == nil {
		return nil
	}
	resp := toRecord(r)
	return &resp
}

func toRecords(recs []*domain.Record) []RecordResponse {
	out := make([]RecordResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRecord(r))
	}
	return out
}

func toChanges(changes []domain.Change) []ChangeResponse {
	out := make([]ChangeResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, ChangeResponse{
			EntityID:   c.EntityID,
			EntityType: string(c.EntityType),
			Kind:       string(c.Kind),
			Main:       toRecordPtr(c.Main),
			Branch:     toRecordPtr(c.Branch),
		})
	}
	return out
}

func toView(branch string, entries []domain.ViewEntry) ViewResponse {
	resp := ViewResponse{Branch: branch, Entries: make([]ViewEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, ViewEntryResponse{
			Status: string(e.Status),
			Record: toRecord(e.Record),
		})
	}
	return resp
}

func toMerge(r *domain.MergeResult) *MergeResponse {
	if r == nil {
		return nil
	}
	resp := &MergeResponse{
		Branch:    r.Branch,
		Applied:   r.Applied,
		EntityIDs: append([]string{}, r.EntityIDs...),
		Warnings:  make([]WarningResponse, 0, len(r.Warnings)),
	}
	for _, w := range r.Warnings {
		resp.Warnings = append(resp.Warnings, WarningResponse{
			EntityID:    w.EntityID,
			EntityType:  string(w.EntityType),
			BaseVersion: w.BaseVersion,
			MainVersion: w.MainVersion,
			Reason:      w.Reason,
		})
	}
	return resp
}

func toArchive(r *domain.ArchiveResult) *ArchiveResponse {
	if r == nil {
		return nil
	}
	return &ArchiveResponse{
		Branch:    r.Branch,
		Archived:  r.Archived,
		EntityIDs: append([]string{}, r.EntityIDs...),
	}
}

func toChangeOrder(co *domain.ChangeOrder) ChangeOrderResponse {
	return ChangeOrderResponse{
		ID:          co.ID,
		ProjectID:   co.ProjectID,
		Branch:      co.Branch,
		Title:       co.Title,
		Description: co.Description,
		State:       string(co.State),
		Version:     co.Version,
		Actor:       co.Actor,
		CreatedAt:   co.CreatedAt,
		UpdatedAt:   co.UpdatedAt,
	}
}

func toBranch(b *domain.BranchInfo) BranchResponse {
	return BranchResponse{
		Name:          b.Name,
		Sequence:      b.Sequence,
		ChangeOrderID: b.ChangeOrderID,
		ProjectID:     b.ProjectID,
		CreatedAt:     b.CreatedAt,
	}
}
