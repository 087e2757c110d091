package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/csvsplit/internal/charset"
)

// RawFile is a loaded input file. It is never modified after load.
type RawFile struct {
	Path string // Absolute or caller-relative path; empty for uploads
	Name string // Display name, usually the base of Path
	Data []byte
}

// Size returns the file size in bytes.
func (f RawFile) Size() int64 {
	return int64(len(f.Data))
}

// OutputRecord is one finished output file: header plus one window of rows,
// already encoded in the source encoding.
type OutputRecord struct {
	Name    string // {base}_part{Index}.csv
	Index   int    // 1-based sequence index
	Rows    int    // Data rows in this record, header excluded
	Content []byte
}

// FailedWrite describes one record the FileStore could not write.
type FailedWrite struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// SaveResult reports what a FileStore wrote.
// Created and Failed together account for every record handed in.
type SaveResult struct {
	Dir     string        `json:"dir"`
	Created []string      `json:"created"`
	Failed  []FailedWrite `json:"failed,omitempty"`
}

// FileStore loads input files and persists output records.
type FileStore interface {
	LoadFile(path string) (RawFile, error)
	SaveRecords(ctx context.Context, records []OutputRecord, dir string) (SaveResult, error)
}

// FileInfo summarises a loaded file without splitting it.
type FileInfo struct {
	Name               string                  `json:"name"`
	Path               string                  `json:"path,omitempty"`
	Size               int64                   `json:"size"`
	SizeLabel          string                  `json:"sizeLabel"`
	Detection          charset.DetectionResult `json:"detection"`
	TotalLines         int                     `json:"totalLines"` // Header included
	DataRows           int                     `json:"dataRows"`
	SuggestedChunkSize int                     `json:"suggestedChunkSize"`
}

// SplitPhase indicates the current stage of a split job.
type SplitPhase string

const (
	PhaseStarting  SplitPhase = "starting"
	PhaseDetecting SplitPhase = "detecting"
	PhaseSplitting SplitPhase = "splitting"
	PhaseSaving    SplitPhase = "saving"
	PhaseComplete  SplitPhase = "complete"
	PhaseFailed    SplitPhase = "failed"
	PhaseCancelled SplitPhase = "cancelled"
)

// Terminal reports whether no further progress will follow.
func (p SplitPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// SplitProgress represents the current state of a split job.
type SplitProgress struct {
	JobID      string     `json:"jobId"`
	FileName   string     `json:"fileName"`
	Phase      SplitPhase `json:"phase"`
	ChunkIndex int        `json:"chunkIndex"` // Chunks produced so far
	ChunkTotal int        `json:"chunkTotal"`
	Saved      int        `json:"saved"`
	Error      string     `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100).
// Splitting covers 0-90 and saving the remaining 10.
func (p SplitProgress) Percent() int {
	switch {
	case p.Phase == PhaseComplete:
		return 100
	case p.ChunkTotal <= 0:
		return 0
	case p.Phase == PhaseSaving:
		return 90 + (p.Saved*10)/p.ChunkTotal
	default:
		return (p.ChunkIndex * 90) / p.ChunkTotal
	}
}

// ProgressFunc receives progress updates from a running split.
type ProgressFunc func(SplitProgress)

// SplitRequest describes one split job.
type SplitRequest struct {
	// Path of a file readable by the FileStore. Used when Data is nil.
	Path string

	// FileName is the display name. Defaults to the base of Path.
	FileName string

	// Data holds uploaded bytes; takes precedence over Path.
	Data []byte

	// ChunkSize is the maximum number of data rows per output file.
	ChunkSize int

	// OutputDir overrides the derived {dir}/{base}_split_{millis} directory.
	OutputDir string

	// Source labels where the request came from ("web", "cli", "watch").
	Source string
}

// SplitResult contains the final result of a split.
type SplitResult struct {
	JobID      string             `json:"jobId,omitempty"`
	FileName   string             `json:"fileName"`
	Encoding   charset.Tag        `json:"encoding"`
	Confidence charset.Confidence `json:"confidence"`
	Rows       int                `json:"rows"`
	ChunkSize  int                `json:"chunkSize"`
	Chunks     int                `json:"chunks"`
	OutputDir  string             `json:"outputDir,omitempty"`
	Files      []string           `json:"files,omitempty"`
	Failed     []FailedWrite      `json:"failed,omitempty"`
	Duration   time.Duration      `json:"duration"`
	Error      string             `json:"error,omitempty"` // Non-empty if the split failed
}
