package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/projectcontrols/internal/domain"
)

type branchRepo struct {
	tx *sql.Tx
}

func (r *branchRepo) Register(ctx context.Context, changeOrderID, projectID string) (*domain.BranchInfo, error) {
	var seq int64
	if err := r.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM branches`).Scan(&seq); err != nil {
		return nil, err
	}

	info := &domain.BranchInfo{
		Name:          domain.BranchName(seq),
		Sequence:      seq,
		ChangeOrderID: changeOrderID,
		ProjectID:     projectID,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO branches (seq, name, change_order_id, project_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, info.Sequence, info.Name, info.ChangeOrderID, info.ProjectID, info.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return info, nil
}

func (r *branchRepo) Get(ctx context.Context, name string) (*domain.BranchInfo, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT seq, name, change_order_id, project_id, created_at
		FROM branches WHERE name = ?
	`, name)

	info := &domain.BranchInfo{}
	err := row.Scan(&info.Sequence, &info.Name, &info.ChangeOrderID, &info.ProjectID, &info.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (r *branchRepo) List(ctx context.Context, projectID string) ([]*domain.BranchInfo, error) {
	query := `SELECT seq, name, change_order_id, project_id, created_at FROM branches`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY seq`

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BranchInfo
	for rows.Next() {
		info := &domain.BranchInfo{}
		if err := rows.Scan(&info.Sequence, &info.Name, &info.ChangeOrderID, &info.ProjectID, &info.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
