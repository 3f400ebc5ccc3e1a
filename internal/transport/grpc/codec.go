package grpc

import (
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/projectcontrols/internal/domain"
)

func encode(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func boolField(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func intField(s *structpb.Struct, key string) int {
	return int(s.GetFields()[key].GetNumberValue())
}

func scopeFromStruct(s *structpb.Struct) domain.Scope {
	scope := domain.Scope{
		ProjectID: stringField(s, "project_id"),
		ParentID:  stringField(s, "parent_id"),
		Limit:     intField(s, "limit"),
		Offset:    intField(s, "offset"),
	}
	for _, v := range s.GetFields()["entity_ids"].GetListValue().GetValues() {
		scope.EntityIDs = append(scope.EntityIDs, v.GetStringValue())
	}
	return scope
}

func recordToMap(r *domain.Record) map[string]any {
	if r == nil {
		return nil
	}
	return map[string]any{
		"entity_id":    r.EntityID,
		"entity_type":  string(r.EntityType),
		"project_id":   r.ProjectID,
		"branch":       r.Branch,
		"version":      r.Version,
		"status":       string(r.Status),
		"base_version": r.BaseVersion,
		"payload":      map[string]any(r.Payload),
		"actor":        r.Actor,
		"created_at":   r.CreatedAt.Format(time.RFC3339Nano),
	}
}

func recordsToList(recs []*domain.Record) []any {
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordToMap(r))
	}
	return out
}

func changesToList(changes []domain.Change) []any {
	out := make([]any, 0, len(changes))
	for _, c := range changes {
		m := map[string]any{
			"entity_id":   c.EntityID,
			"entity_type": string(c.EntityType),
			"kind":        string(c.Kind),
			"branch":      recordToMap(c.Branch),
		}
		if c.Main != nil {
			m["main"] = recordToMap(c.Main)
		}
		out = append(out, m)
	}
	return out
}

func entriesToList(entries []domain.ViewEntry) []any {
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"status": string(e.Status),
			"record": recordToMap(e.Record),
		})
	}
	return out
}

func mergeResultToMap(r *domain.MergeResult) map[string]any {
	warnings := make([]any, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		warnings = append(warnings, map[string]any{
			"entity_id":    w.EntityID,
			"entity_type":  string(w.EntityType),
			"base_version": w.BaseVersion,
			"main_version": w.MainVersion,
			"reason":       w.Reason,
		})
	}
	return map[string]any{
		"branch":     r.Branch,
		"applied":    r.Applied,
		"entity_ids": stringsToList(r.EntityIDs),
		"warnings":   warnings,
	}
}

func archiveResultToMap(r *domain.ArchiveResult) map[string]any {
	return map[string]any{
		"branch":     r.Branch,
		"archived":   r.Archived,
		"entity_ids": stringsToList(r.EntityIDs),
	}
}

func stringsToList(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}
