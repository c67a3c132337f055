package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements HistoryStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyRetries bounds the retries of a write that hit a locked database.
	BusyRetries uint64
}

var _ HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyRetries == 0 {
		cfg.BusyRetries = 5
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Open creates, initializes and migrates a store in one call.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database connection with WAL mode and foreign keys on.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// StartOperation records a running operation.
func (s *SQLiteStore) StartOperation(ctx context.Context, rec *OperationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("operation id is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = OperationStatusRunning
	}

	plugins, err := encodePlugins(rec.Plugins)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO operations (id, name, env, project_path, status, plugins, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return s.exec(ctx, "failed to start operation", query,
		rec.ID,
		rec.Name,
		rec.Env,
		rec.ProjectPath,
		string(rec.Status),
		plugins,
		rec.StartedAt.UnixNano(),
	)
}

// CompleteOperation records the outcome of a started operation.
func (s *SQLiteStore) CompleteOperation(ctx context.Context, id string, c OperationCompletion) error {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now()
	}

	query := `
		UPDATE operations
		SET status = ?, error_code = ?, error_message = ?, completed_at = ?,
		    duration_ms = MAX(0, (? - started_at) / 1000000)
		WHERE id = ?
	`

	var rows int64
	err := s.retry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query,
			string(c.Status),
			c.ErrorCode,
			c.ErrorMessage,
			c.CompletedAt.UnixNano(),
			c.CompletedAt.UnixNano(),
			id,
		)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SetPlugins replaces the plugin list of an operation.
func (s *SQLiteStore) SetPlugins(ctx context.Context, id string, plugins []string) error {
	encoded, err := encodePlugins(plugins)
	if err != nil {
		return err
	}
	return s.exec(ctx, "failed to set plugins", `UPDATE operations SET plugins = ? WHERE id = ?`, encoded, id)
}

// RecordStage appends a stage call to an operation.
func (s *SQLiteStore) RecordStage(ctx context.Context, rec *StageRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	query := `
		INSERT INTO stage_calls (operation_id, plugin, stage, status, error_code, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.retry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query,
			rec.OperationID,
			rec.Plugin,
			rec.Stage,
			string(rec.Status),
			rec.ErrorCode,
			rec.Error,
			rec.StartedAt.UnixNano(),
			rec.Duration.Milliseconds(),
		)
		if err != nil {
			return err
		}
		rec.ID, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record stage: %w", err)
	}
	return nil
}

const operationColumns = `id, name, env, project_path, status, error_code, error_message, plugins, started_at, completed_at, duration_ms`

// GetOperation retrieves an operation by ID
func (s *SQLiteStore) GetOperation(ctx context.Context, id string) (*OperationRecord, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = ?`

	rec, err := scanOperation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return rec, nil
}

// ListOperations lists operations, newest first.
func (s *SQLiteStore) ListOperations(ctx context.Context, filter OperationFilter) ([]*OperationRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Env != "" {
		where = append(where, "env = ?")
		args = append(args, filter.Env)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + operationColumns + ` FROM operations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*OperationRecord{}
	for rows.Next() {
		rec, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, rec)
	}

	return ops, rows.Err()
}

// ListStages lists the stage calls of an operation in call order.
func (s *SQLiteStore) ListStages(ctx context.Context, operationID string) ([]*StageRecord, error) {
	query := `
		SELECT id, operation_id, plugin, stage, status, error_code, error, started_at, duration_ms
		FROM stage_calls
		WHERE operation_id = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	stages := []*StageRecord{}
	for rows.Next() {
		var (
			rec        StageRecord
			status     string
			startedAt  int64
			durationMs int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.OperationID,
			&rec.Plugin,
			&rec.Stage,
			&status,
			&rec.ErrorCode,
			&rec.Error,
			&startedAt,
			&durationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		rec.Status = StageStatus(status)
		rec.StartedAt = time.Unix(0, startedAt)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		stages = append(stages, &rec)
	}

	return stages, rows.Err()
}

// Prune deletes operations started before cutoff. Stage calls go with them.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.retry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE started_at < ?`, cutoff.UnixNano())
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune operations: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*OperationRecord, error) {
	var (
		rec         OperationRecord
		status      string
		plugins     string
		startedAt   int64
		completedAt sql.NullInt64
		durationMs  int64
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Env,
		&rec.ProjectPath,
		&status,
		&rec.ErrorCode,
		&rec.ErrorMessage,
		&plugins,
		&startedAt,
		&completedAt,
		&durationMs,
	); err != nil {
		return nil, err
	}

	rec.Status = OperationStatus(status)
	rec.StartedAt = time.Unix(0, startedAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		rec.CompletedAt = &t
	}
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	if plugins != "" {
		if err := json.Unmarshal([]byte(plugins), &rec.Plugins); err != nil {
			return nil, fmt.Errorf("invalid plugin list: %w", err)
		}
	}
	return &rec, nil
}

func encodePlugins(plugins []string) (string, error) {
	if plugins == nil {
		plugins = []string{}
	}
	data, err := json.Marshal(plugins)
	if err != nil {
		return "", fmt.Errorf("failed to encode plugins: %w", err)
	}
	return string(data), nil
}

func (s *SQLiteStore) exec(ctx context.Context, what, query string, args ...interface{}) error {
	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// retry runs op again while the database reports it is busy or locked.
func (s *SQLiteStore) retry(ctx context.Context, op func() error) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(func() error {
		err := op()
		if err == nil || isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.BusyRetries), ctx))
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
