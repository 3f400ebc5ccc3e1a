package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/projectcontrols/internal/observability"
	"github.com/example/projectcontrols/internal/storage"
)

// SQLiteStorage implements the Storage interface using SQLite.
//
// Two handles are kept on the same database file: a pooled reader and a
// single-connection writer whose transactions begin IMMEDIATE. The path must
// therefore name a real file, not ":memory:".
type SQLiteStorage struct {
	db      *sql.DB
	writer  *sql.DB
	metrics *observability.Metrics
}

// New creates a new SQLite storage instance.
func New(path string) (*SQLiteStorage, error) {
	return NewWithMetrics(path, nil)
}

// NewWithMetrics creates a new SQLite storage instance that reports
// transaction metrics.
func NewWithMetrics(path string, metrics *observability.Metrics) (*SQLiteStorage, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	writer, err := sql.Open("sqlite3", dsn+"&_txlock=immediate")
	if err != nil {
		db.Close()
		return nil, err
	}
	// SQLite works best with single connection for writes
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	return &SQLiteStorage{db: db, writer: writer, metrics: metrics}, nil
}

// Begin starts a new read transaction.
func (s *SQLiteStorage) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newUnitOfWork(tx, "read", s.metrics), nil
}

// BeginImmediate starts a write transaction holding the database write lock.
func (s *SQLiteStorage) BeginImmediate(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newUnitOfWork(tx, "write", s.metrics), nil
}

// Close closes the database connections.
func (s *SQLiteStorage) Close() error {
	werr := s.writer.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return werr
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.writer)
}

// unitOfWork implements the UnitOfWork interface.
type unitOfWork struct {
	tx           *sql.Tx
	versions     *versionRepo
	changeOrders *changeOrderRepo
	branches     *branchRepo

	mode    string
	started time.Time
	done    bool
	metrics *observability.Metrics
}

func newUnitOfWork(tx *sql.Tx, mode string, metrics *observability.Metrics) *unitOfWork {
	metrics.TxStarted()
	return &unitOfWork{
		tx:           tx,
		versions:     &versionRepo{tx: tx},
		changeOrders: &changeOrderRepo{tx: tx},
		branches:     &branchRepo{tx: tx},
		mode:         mode,
		started:      time.Now(),
		metrics:      metrics,
	}
}

func (u *unitOfWork) Versions() storage.VersionRepository {
	return u.versions
}

func (u *unitOfWork) ChangeOrders() storage.ChangeOrderRepository {
	return u.changeOrders
}

func (u *unitOfWork) Branches() storage.BranchRepository {
	return u.branches
}

func (u *unitOfWork) Commit() error {
	err := u.tx.Commit()
	u.finish("commit", err)
	return err
}

func (u *unitOfWork) Rollback() error {
	err := u.tx.Rollback()
	u.finish("rollback", err)
	return err
}

func (u *unitOfWork) finish(outcome string, err error) {
	if u.done || err == sql.ErrTxDone {
		return
	}
	u.done = true
	if err != nil {
		outcome = "error"
	}
	u.metrics.TxFinished(u.mode, outcome, u.started)
}
