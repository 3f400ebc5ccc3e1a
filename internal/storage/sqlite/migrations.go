package sqlite

import (
	"context"
	"database/sql"
)

// Migrate runs all database migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// Versions of branch-capable entities (WBE, cost element)
		`CREATE TABLE IF NOT EXISTS branched_versions (
			entity_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			project_id TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT 'main',
			version INTEGER NOT NULL CHECK (version > 0),
			status TEXT NOT NULL CHECK (status IN ('active', 'deleted', 'merged')),
			base_version INTEGER NOT NULL DEFAULT 0,
			parent_id TEXT,
			payload_json TEXT NOT NULL,
			actor TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE (entity_id, branch, version)
		)`,

		// Versions of non-branching entities
		`CREATE TABLE IF NOT EXISTS entity_versions (
			entity_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			project_id TEXT NOT NULL,
			version INTEGER NOT NULL CHECK (version > 0),
			status TEXT NOT NULL CHECK (status IN ('active', 'deleted', 'merged')),
			parent_id TEXT,
			payload_json TEXT NOT NULL,
			actor TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE (entity_id, version)
		)`,

		// Change orders, versioned without a branch dimension
		`CREATE TABLE IF NOT EXISTS change_orders (
			id TEXT NOT NULL,
			version INTEGER NOT NULL CHECK (version > 0),
			project_id TEXT NOT NULL,
			branch TEXT NOT NULL,
			title TEXT,
			description TEXT,
			state TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('active', 'deleted')),
			actor TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (id, version)
		)`,

		// Branch registry: one branch per change order
		`CREATE TABLE IF NOT EXISTS branches (
			seq INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			change_order_id TEXT NOT NULL UNIQUE,
			project_id TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		// Version rows are append-only
		`CREATE TRIGGER IF NOT EXISTS branched_versions_no_update
			BEFORE UPDATE ON branched_versions
			BEGIN SELECT RAISE(ABORT, 'branched_versions is append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS branched_versions_no_delete
			BEFORE DELETE ON branched_versions
			BEGIN SELECT RAISE(ABORT, 'branched_versions is append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS entity_versions_no_update
			BEFORE UPDATE ON entity_versions
			BEGIN SELECT RAISE(ABORT, 'entity_versions is append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS entity_versions_no_delete
			BEFORE DELETE ON entity_versions
			BEGIN SELECT RAISE(ABORT, 'entity_versions is append-only'); END`,
		`CREATE TRIGGER IF NOT EXISTS change_orders_no_update
			BEFORE UPDATE ON change_orders
			BEGIN SELECT RAISE(ABORT, 'change_orders is append-only'); END`,

		// Indexes for efficient queries
		`CREATE INDEX IF NOT EXISTS idx_branched_current ON branched_versions(branch, status, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_branched_history ON branched_versions(entity_id, branch, version)`,
		`CREATE INDEX IF NOT EXISTS idx_branched_scope ON branched_versions(project_id, entity_type, branch)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_current ON entity_versions(status, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_history ON entity_versions(entity_id, version)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_scope ON entity_versions(project_id, entity_type)`,
		`CREATE INDEX IF NOT EXISTS idx_change_orders_project ON change_orders(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_change_orders_branch ON change_orders(branch, version)`,
		`CREATE INDEX IF NOT EXISTS idx_branches_project ON branches(project_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}

	return nil
}
