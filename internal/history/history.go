// Package history records finished split jobs.
//
// Two Store implementations exist: MemoryStore for single-process use and
// tests, and PostgresStore backed by a pgx pool when DATABASE_URL is set.
package history

import (
	"context"
	"time"
)

// DefaultListLimit is used when a List call passes a non-positive limit.
const DefaultListLimit = 50

// Status is the outcome of a split job.
type Status string

const (
	StatusComplete  Status = "complete"
	StatusPartial   Status = "partial" // Some output files failed to write
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Entry is one recorded split job.
type Entry struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	FileName    string    `json:"fileName"`
	Source      string    `json:"source"`
	Encoding    string    `json:"encoding"`
	Confidence  string    `json:"confidence"`
	Rows        int       `json:"rows"`
	ChunkSize   int       `json:"chunkSize"`
	Chunks      int       `json:"chunks"`
	FailedFiles int       `json:"failedFiles"`
	OutputDir   string    `json:"outputDir,omitempty"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"durationMs"`
	IPAddress   string    `json:"ipAddress,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists history entries.
type Store interface {
	// Record saves e. A missing ID or CreatedAt is filled in.
	Record(ctx context.Context, e Entry) (Entry, error)

	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Prune deletes entries created before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
