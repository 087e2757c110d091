package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS split_history (
	id           UUID PRIMARY KEY,
	job_id       TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	encoding     TEXT NOT NULL DEFAULT '',
	confidence   TEXT NOT NULL DEFAULT '',
	row_count    INTEGER NOT NULL DEFAULT 0,
	chunk_size   INTEGER NOT NULL DEFAULT 0,
	chunks       INTEGER NOT NULL DEFAULT 0,
	failed_files INTEGER NOT NULL DEFAULT 0,
	output_dir   TEXT,
	status       TEXT NOT NULL,
	error        TEXT,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	ip_address   TEXT,
	user_agent   TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS split_history_created_at_idx ON split_history (created_at DESC);
`

const insertSQL = `
INSERT INTO split_history (
	id, job_id, file_name, source, encoding, confidence, row_count, chunk_size,
	chunks, failed_files, output_dir, status, error, duration_ms, ip_address,
	user_agent, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

const listSQL = `
SELECT id, job_id, file_name, source, encoding, confidence, row_count, chunk_size,
	chunks, failed_files, output_dir, status, error, duration_ms, ip_address,
	user_agent, created_at
FROM split_history
ORDER BY created_at DESC
LIMIT $1`

// PostgresStore keeps entries in the split_history table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool. Call EnsureSchema before first use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the history table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create split_history: %w", err)
	}
	return nil
}

func (p *PostgresStore) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := p.pool.Exec(ctx, insertSQL,
		toPgUUID(e.ID),
		e.JobID,
		e.FileName,
		e.Source,
		e.Encoding,
		e.Confidence,
		int32(e.Rows),
		int32(e.ChunkSize),
		int32(e.Chunks),
		int32(e.FailedFiles),
		toPgText(e.OutputDir),
		string(e.Status),
		toPgText(e.Error),
		e.DurationMS,
		toPgText(e.IPAddress),
		toPgText(e.UserAgent),
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert split history: %w", err)
	}
	return e, nil
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := p.pool.Query(ctx, listSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query split history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan split history: %w", err)
	}
	return entries, nil
}

func (p *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM split_history WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune split history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e                                        Entry
		id                                       pgtype.UUID
		rowsN, chunkSize, chunks, failed         int32
		outputDir, errText, ipAddress, userAgent pgtype.Text
		status                                   string
		createdAt                                pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &e.JobID, &e.FileName, &e.Source, &e.Encoding, &e.Confidence,
		&rowsN, &chunkSize, &chunks, &failed, &outputDir, &status, &errText,
		&e.DurationMS, &ipAddress, &userAgent, &createdAt,
	)
	if err != nil {
		return Entry{}, err
	}

	e.ID = uuidToString(id)
	e.Rows = int(rowsN)
	e.ChunkSize = int(chunkSize)
	e.Chunks = int(chunks)
	e.FailedFiles = int(failed)
	e.OutputDir = outputDir.String
	e.Status = Status(status)
	e.Error = errText.String
	e.IPAddress = ipAddress.String
	e.UserAgent = userAgent.String
	e.CreatedAt = createdAt.Time
	return e, nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
