package sqlite

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/example/projectcontrols/internal/domain"
)

// mapWriteError turns uniqueness violations into domain.ErrConcurrentModify.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", domain.ErrConcurrentModify, err)
		}
	}
	return err
}

// insertError wraps a failed version insert with the row it was writing.
func insertError(rec *domain.Record, err error) error {
	if err = mapWriteError(err); err != nil {
		return fmt.Errorf("failed to insert version %d of %s: %w", rec.Version, rec.Key(), err)
	}
	return nil
}
