package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/storage"
)

// versionTable describes where versions of an entity type are stored.
type versionTable struct {
	name     string
	branched bool
}

var (
	branchedTable = versionTable{name: "branched_versions", branched: true}
	plainTable    = versionTable{name: "entity_versions", branched: false}
)

func tableFor(t domain.EntityType) versionTable {
	if t.BranchCapable() {
		return branchedTable
	}
	return plainTable
}

// columns returns the select list for the table. Non-branching rows report
// branch 'main' and base version 0 so both shapes scan the same way.
func (t versionTable) columns(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	branchCols := "'main', 0"
	if t.branched {
		branchCols = p + "branch, " + p + "base_version"
	}
	return fmt.Sprintf("%[1]sentity_id, %[1]sentity_type, %[1]sproject_id, %[2]s, %[1]sversion, %[1]sstatus, %[1]spayload_json, %[1]sactor, %[1]screated_at",
		p, branchCols)
}

type versionRepo struct {
	tx *sql.Tx
}

func (r *versionRepo) Insert(ctx context.Context, rec *domain.Record) error {
	payloadJSON, err := encodePayload(rec.Payload)
	if err != nil {
		return err
	}

	var parentID sql.NullString
	if p := rec.Payload.ParentID(); p != "" {
		parentID = sql.NullString{String: p, Valid: true}
	}

	tbl := tableFor(rec.EntityType)
	if tbl.branched {
		_, err = r.tx.ExecContext(ctx, `
			INSERT INTO branched_versions (entity_id, entity_type, project_id, branch, version, status,
				base_version, parent_id, payload_json, actor, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.EntityID, string(rec.EntityType), rec.ProjectID, rec.Branch, rec.Version, string(rec.Status),
			rec.BaseVersion, parentID, payloadJSON, rec.Actor, rec.CreatedAt)
		return insertError(rec, err)
	}

	if !rec.IsMain() {
		return fmt.Errorf("%w: %s rows cannot live in branch %q", domain.ErrInvalidArgument, rec.EntityType, rec.Branch)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO entity_versions (entity_id, entity_type, project_id, version, status,
			parent_id, payload_json, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.EntityID, string(rec.EntityType), rec.ProjectID, rec.Version, string(rec.Status),
		parentID, payloadJSON, rec.Actor, rec.CreatedAt)
	return insertError(rec, err)
}

func (r *versionRepo) Current(ctx context.Context, entityType domain.EntityType, entityID, branch string) (*domain.Record, error) {
	tbl := tableFor(entityType)
	query, args := tbl.keyFilter(entityType, entityID, branch)
	row := r.tx.QueryRowContext(ctx,
		"SELECT "+tbl.columns("")+" FROM "+tbl.name+" WHERE "+query+" ORDER BY version DESC LIMIT 1",
		args...)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

func (r *versionRepo) GetVersion(ctx context.Context, entityType domain.EntityType, entityID, branch string, version int64) (*domain.Record, error) {
	tbl := tableFor(entityType)
	query, args := tbl.keyFilter(entityType, entityID, branch)
	args = append(args, version)
	row := r.tx.QueryRowContext(ctx,
		"SELECT "+tbl.columns("")+" FROM "+tbl.name+" WHERE "+query+" AND version = ?",
		args...)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

func (r *versionRepo) History(ctx context.Context, entityType domain.EntityType, entityID, branch string) ([]*domain.Record, error) {
	tbl := tableFor(entityType)
	query, args := tbl.keyFilter(entityType, entityID, branch)
	rows, err := r.tx.QueryContext(ctx,
		"SELECT "+tbl.columns("")+" FROM "+tbl.name+" WHERE "+query+" ORDER BY version ASC",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *versionRepo) ListCurrent(ctx context.Context, q storage.CurrentQuery) ([]*domain.Record, error) {
	tbl := tableFor(q.EntityType)

	// Inner query picks the max version per entity within the branch.
	inner := "entity_type = ?"
	args := []any{string(q.EntityType)}
	if tbl.branched {
		inner += " AND branch = ?"
		args = append(args, q.Branch)
	}
	if q.Scope.ProjectID != "" {
		inner += " AND project_id = ?"
		args = append(args, q.Scope.ProjectID)
	}
	if len(q.Scope.EntityIDs) > 0 {
		inner += " AND entity_id IN (" + placeholders(len(q.Scope.EntityIDs)) + ")"
		for _, id := range q.Scope.EntityIDs {
			args = append(args, id)
		}
	}

	// Outer filters apply to the current row only.
	outer := "v.entity_type = ?"
	args = append(args, string(q.EntityType))
	if tbl.branched {
		outer += " AND v.branch = ?"
		args = append(args, q.Branch)
	}
	if q.Scope.ParentID != "" {
		outer += " AND v.parent_id = ?"
		args = append(args, q.Scope.ParentID)
	}
	if len(q.Statuses) > 0 {
		outer += " AND v.status IN (" + placeholders(len(q.Statuses)) + ")"
		for _, s := range q.Statuses {
			args = append(args, string(s))
		}
	}

	query := `
		SELECT ` + tbl.columns("v") + `
		FROM ` + tbl.name + ` v
		JOIN (
			SELECT entity_id, MAX(version) AS max_version
			FROM ` + tbl.name + `
			WHERE ` + inner + `
			GROUP BY entity_id
		) cur ON v.entity_id = cur.entity_id AND v.version = cur.max_version
		WHERE ` + outer + `
		ORDER BY v.entity_id`

	switch {
	case q.Scope.Limit > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Scope.Limit, q.Scope.Offset)
	case q.Scope.Offset > 0:
		query += " LIMIT -1 OFFSET ?"
		args = append(args, q.Scope.Offset)
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *versionRepo) ListBranchCurrent(ctx context.Context, branch string) ([]*domain.Record, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+branchedTable.columns("v")+`
		FROM branched_versions v
		JOIN (
			SELECT entity_id, MAX(version) AS max_version
			FROM branched_versions
			WHERE branch = ?
			GROUP BY entity_id
		) cur ON v.entity_id = cur.entity_id AND v.version = cur.max_version
		WHERE v.branch = ?
		ORDER BY v.entity_type, v.entity_id
	`, branch, branch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *versionRepo) TypeOf(ctx context.Context, entityID string) (domain.EntityType, error) {
	var entityType string
	err := r.tx.QueryRowContext(ctx, `
		SELECT entity_type FROM branched_versions WHERE entity_id = ?
		UNION ALL
		SELECT entity_type FROM entity_versions WHERE entity_id = ?
		LIMIT 1
	`, entityID, entityID).Scan(&entityType)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.EntityType(entityType), nil
}

func (t versionTable) keyFilter(entityType domain.EntityType, entityID, branch string) (string, []any) {
	if t.branched {
		return "entity_type = ? AND entity_id = ? AND branch = ?",
			[]any{string(entityType), entityID, branch}
	}
	return "entity_type = ? AND entity_id = ?", []any{string(entityType), entityID}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.Record, error) {
	rec := &domain.Record{}
	var entityType, status, payloadJSON string
	var actor sql.NullString

	err := row.Scan(&rec.EntityID, &entityType, &rec.ProjectID, &rec.Branch, &rec.BaseVersion,
		&rec.Version, &status, &payloadJSON, &actor, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.EntityType = domain.EntityType(entityType)
	rec.Actor = actor.String
	if rec.Status, err = domain.ParseStatus(status); err != nil {
		return nil, err
	}
	if rec.Payload, err = decodePayload(payloadJSON); err != nil {
		return nil, err
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]*domain.Record, error) {
	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func encodePayload(p domain.Payload) (string, error) {
	if p == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(raw), nil
}

func decodePayload(s string) (domain.Payload, error) {
	p := domain.Payload{}
	if s == "" || s == "null" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
