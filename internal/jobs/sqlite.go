package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const jobColumns = "id, status, markup, artifact_ref, error_message, diagram_type, hint, template_id, generation, created_at, updated_at"

type jobRow struct {
	ID           string `db:"id"`
	Status       string `db:"status"`
	Markup       string `db:"markup"`
	ArtifactRef  string `db:"artifact_ref"`
	ErrorMessage string `db:"error_message"`
	DiagramType  string `db:"diagram_type"`
	Hint         string `db:"hint"`
	TemplateID   string `db:"template_id"`
	Generation   int64  `db:"generation"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r jobRow) toJob() *Job {
	return &Job{
		ID:           r.ID,
		Status:       Status(r.Status),
		Markup:       r.Markup,
		ArtifactRef:  r.ArtifactRef,
		ErrorMessage: r.ErrorMessage,
		DiagramType:  r.DiagramType,
		Hint:         r.Hint,
		TemplateID:   r.TemplateID,
		Generation:   uint64(r.Generation),
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
}

func rowFromJob(j *Job) jobRow {
	return jobRow{
		ID:           j.ID,
		Status:       string(j.Status),
		Markup:       j.Markup,
		ArtifactRef:  j.ArtifactRef,
		ErrorMessage: j.ErrorMessage,
		DiagramType:  j.DiagramType,
		Hint:         j.Hint,
		TemplateID:   j.TemplateID,
		Generation:   int64(j.Generation),
		CreatedAt:    formatTime(j.CreatedAt),
		UpdatedAt:    formatTime(j.UpdatedAt),
	}
}

// SQLiteRegistry persists jobs in a SQLite database. Writes are serialized
// through a single connection so generation checks and updates are atomic.
type SQLiteRegistry struct {
	db   *sqlx.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens (or creates) the registry database at path.
func OpenSQLite(path string) (*SQLiteRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure registry dir: %w", err)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	reg := &SQLiteRegistry{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := reg.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return reg, nil
}

// Path returns the database file location.
func (r *SQLiteRegistry) Path() string { return r.path }

// Close closes the underlying database connection.
func (r *SQLiteRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteRegistry) initSchema(ctx context.Context) error {
	var tableExists int
	if err := r.db.GetContext(ctx, &tableExists,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'"); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return r.createSchema(ctx)
	}

	var version int
	if err := r.db.GetContext(ctx, &version, "SELECT version FROM schema_version LIMIT 1"); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, r.path)
	}
	return nil
}

func (r *SQLiteRegistry) createSchema(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (r *SQLiteRegistry) Create(ctx context.Context, id string, meta Meta) (uint64, error) {
	id, err := normalizeID(id)
	if err != nil {
		return 0, err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	if err := tx.GetContext(ctx, &current, "SELECT COALESCE(MAX(generation), 0) FROM jobs"); err != nil {
		return 0, fmt.Errorf("read generation: %w", err)
	}
	job := newJob(id, meta, uint64(current)+1, r.now())
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
         VALUES (:id, :status, :markup, :artifact_ref, :error_message, :diagram_type, :hint, :template_id, :generation, :created_at, :updated_at)
         ON CONFLICT(id) DO UPDATE SET
             status = excluded.status, markup = excluded.markup, artifact_ref = excluded.artifact_ref,
             error_message = excluded.error_message, diagram_type = excluded.diagram_type, hint = excluded.hint,
             template_id = excluded.template_id, generation = excluded.generation,
             created_at = excluded.created_at, updated_at = excluded.updated_at`,
		rowFromJob(job),
	); err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create: %w", err)
	}
	return job.Generation, nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, id string) (*Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", strings.TrimSpace(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return row.toJob(), nil
}

func (r *SQLiteRegistry) Update(ctx context.Context, id string, generation uint64, patch Patch) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row jobRow
	err = tx.GetContext(ctx, &row, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", strings.TrimSpace(id))
	if errors.Is(err, sql.ErrNoRows) {
		return false, missingOnUpdate(id)
	}
	if err != nil {
		return false, fmt.Errorf("load job: %w", err)
	}
	job := row.toJob()
	if job.Generation != generation {
		return false, nil
	}
	if err := job.apply(patch, r.now()); err != nil {
		return false, err
	}
	res, err := tx.NamedExecContext(ctx,
		`UPDATE jobs SET status = :status, markup = :markup, artifact_ref = :artifact_ref,
             error_message = :error_message, updated_at = :updated_at
         WHERE id = :id AND generation = :generation`,
		rowFromJob(job),
	)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return true, nil
}

func (r *SQLiteRegistry) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var args []any
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		var err error
		query, args, err = sqlx.In(query+" WHERE status IN (?)", values)
		if err != nil {
			return nil, fmt.Errorf("build status filter: %w", err)
		}
	}
	query += " ORDER BY created_at DESC, id ASC"

	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]*Job, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toJob())
	}
	return out, nil
}

func (r *SQLiteRegistry) Stats(ctx context.Context) (map[Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, "SELECT status, COUNT(*) AS count FROM jobs GROUP BY status"); err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	stats := make(map[Status]int, len(rows))
	for _, row := range rows {
		stats[Status(row.Status)] = row.Count
	}
	return stats, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
