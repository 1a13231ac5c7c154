// Package ledger keeps one PostgreSQL row per conversion job with its latest
// run status.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/worker/job"
)

const maxErrorText = 2000

var ErrJobNotFound = errors.New("job not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversion_jobs (
	uuid        TEXT PRIMARY KEY,
	file_name   TEXT NOT NULL,
	extension   TEXT NOT NULL,
	output      TEXT NOT NULL,
	status      TEXT NOT NULL,
	attempt     INTEGER NOT NULL DEFAULT 1,
	object_key  TEXT,
	error_text  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS conversion_jobs_status_idx ON conversion_jobs (status, created_at DESC);
`

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Record struct {
	UUID       string     `json:"uuid"`
	FileName   string     `json:"file_name"`
	Extension  string     `json:"extension"`
	Output     string     `json:"output"`
	Status     string     `json:"status"`
	Attempt    int        `json:"attempt"`
	ObjectKey  string     `json:"object_key,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Ledger struct {
	db DB
}

func New(db DB) *Ledger {
	return &Ledger{db: db}
}

// Migrate creates the table when missing.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schema); err != nil {
		return apperrors.Wrap(err, "ledger.migrate", "create conversion_jobs")
	}
	return nil
}

// Start marks the job RUNNING, creating the row on first sight.
func (l *Ledger) Start(ctx context.Context, j job.ConversionJob, attempt int) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO conversion_jobs (uuid, file_name, extension, output, status, attempt, started_at)
		 VALUES ($1,$2,$3,$4,'RUNNING',$5,NOW())
		 ON CONFLICT (uuid) DO UPDATE
		 SET status='RUNNING', attempt=EXCLUDED.attempt, started_at=NOW(), finished_at=NULL, error_text=NULL`,
		j.UUID, j.EncodedFileName, j.Extension, string(j.Output), attempt,
	)
	if err != nil {
		return apperrors.Wrap(err, "ledger.start", "mark running")
	}
	return nil
}

// Finish records the terminal status of the current run.
func (l *Ledger) Finish(ctx context.Context, uuid, status, objectKey string, cause error) error {
	_, err := l.db.Exec(ctx,
		`UPDATE conversion_jobs
		 SET status=$2, object_key=COALESCE(NULLIF($3,''), object_key), error_text=NULLIF($4,''), finished_at=NOW()
		 WHERE uuid=$1`,
		uuid, status, objectKey, errorText(cause),
	)
	if err != nil {
		return apperrors.Wrap(err, "ledger.finish", "mark "+strings.ToLower(status))
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, uuid string) (Record, error) {
	var r Record
	var objectKey, errText *string
	err := l.db.QueryRow(ctx,
		`SELECT uuid, file_name, extension, output, status, attempt, object_key, error_text,
		        created_at, started_at, finished_at
		 FROM conversion_jobs WHERE uuid=$1`,
		uuid,
	).Scan(&r.UUID, &r.FileName, &r.Extension, &r.Output, &r.Status, &r.Attempt,
		&objectKey, &errText, &r.CreatedAt, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return Record{}, ErrJobNotFound
		}
		return Record{}, apperrors.Wrap(err, "ledger.get", "query job")
	}
	r.ObjectKey = deref(objectKey)
	r.Error = deref(errText)
	return r, nil
}

// List returns the most recent jobs, optionally filtered by status.
func (l *Ledger) List(ctx context.Context, status string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = l.db.Query(ctx,
			`SELECT uuid, output, status, attempt, created_at
			 FROM conversion_jobs WHERE status=$1
			 ORDER BY created_at DESC
			 LIMIT $2`,
			status, limit,
		)
	} else {
		rows, err = l.db.Query(ctx,
			`SELECT uuid, output, status, attempt, created_at
			 FROM conversion_jobs
			 ORDER BY created_at DESC
			 LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		if isUndefinedTable(err) {
			return []Record{}, nil
		}
		return nil, apperrors.Wrap(err, "ledger.list", "query jobs")
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.UUID, &r.Output, &r.Status, &r.Attempt, &r.CreatedAt); err != nil {
			return nil, apperrors.Wrap(err, "ledger.list", "scan job")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "ledger.list", "iterate jobs")
	}
	return out, nil
}

func errorText(cause error) string {
	if cause == nil {
		return ""
	}
	msg := cause.Error()
	if len(msg) > maxErrorText {
		msg = msg[:maxErrorText]
	}
	return msg
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// 42P01 = undefined_table
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
