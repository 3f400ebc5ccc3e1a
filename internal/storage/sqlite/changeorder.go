package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/projectcontrols/internal/domain"
)

type changeOrderRepo struct {
	tx *sql.Tx
}

const changeOrderColumns = `id, version, project_id, branch, title, description, state, status, actor, created_at, updated_at`

func (r *changeOrderRepo) Create(ctx context.Context, co *domain.ChangeOrder) error {
	return r.insert(ctx, co)
}

func (r *changeOrderRepo) insert(ctx context.Context, co *domain.ChangeOrder) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO change_orders (`+changeOrderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, co.ID, co.Version, co.ProjectID, co.Branch, co.Title, co.Description,
		string(co.State), string(co.Status), co.Actor, co.CreatedAt, co.UpdatedAt)
	return mapWriteError(err)
}

func (r *changeOrderRepo) Get(ctx context.Context, id string) (*domain.ChangeOrder, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT `+changeOrderColumns+`
		FROM change_orders WHERE id = ?
		ORDER BY version DESC LIMIT 1
	`, id)
	return scanChangeOrder(row)
}

func (r *changeOrderRepo) GetByBranch(ctx context.Context, branch string) (*domain.ChangeOrder, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT `+changeOrderColumns+`
		FROM change_orders WHERE branch = ?
		ORDER BY version DESC LIMIT 1
	`, branch)
	return scanChangeOrder(row)
}

// Update appends the next version. Losing a race to another writer of the
// same version surfaces as domain.ErrConcurrentModify.
func (r *changeOrderRepo) Update(ctx context.Context, co *domain.ChangeOrder) error {
	next := *co
	next.Version = co.Version + 1
	if err := r.insert(ctx, &next); err != nil {
		return err
	}
	co.Version++
	return nil
}

func (r *changeOrderRepo) List(ctx context.Context, projectID string) ([]*domain.ChangeOrder, error) {
	filter := ""
	var args []any
	if projectID != "" {
		filter = "WHERE project_id = ?"
		args = append(args, projectID)
	}

	rows, err := r.tx.QueryContext(ctx, `
		SELECT c.id, c.version, c.project_id, c.branch, c.title, c.description, c.state, c.status,
		       c.actor, c.created_at, c.updated_at
		FROM change_orders c
		JOIN (
			SELECT id, MAX(version) AS max_version FROM change_orders
			`+filter+` GROUP BY id
		) cur ON c.id = cur.id AND c.version = cur.max_version
		ORDER BY c.created_at, c.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ChangeOrder
	for rows.Next() {
		co, err := scanChangeOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, co)
	}
	return out, rows.Err()
}

func scanChangeOrder(row scanner) (*domain.ChangeOrder, error) {
	co := &domain.ChangeOrder{}
	var title, description, actor sql.NullString
	var state, status string

	err := row.Scan(&co.ID, &co.Version, &co.ProjectID, &co.Branch, &title, &description,
		&state, &status, &actor, &co.CreatedAt, &co.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	co.Title = title.String
	co.Description = description.String
	co.Actor = actor.String
	if co.State, err = domain.ParseWorkflowState(state); err != nil {
		return nil, err
	}
	if co.Status, err = domain.ParseStatus(status); err != nil {
		return nil, err
	}
	return co, nil
}
