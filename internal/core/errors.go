package core

import "errors"

var (
	// ErrEmptyTable is returned when a file has a header but no data rows.
	ErrEmptyTable = errors.New("empty table: file has a header but no data rows")

	// ErrInvalidChunkSize is returned for a non-positive rows-per-file value.
	ErrInvalidChunkSize = errors.New("invalid chunk size: rows per file must be a positive integer")

	// ErrUnsupportedFile is returned by surfaces for anything but a .csv file.
	ErrUnsupportedFile = errors.New("unsupported file: only .csv files can be split")

	// ErrFileTooLarge is returned when input exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoFileLoaded is returned by Session methods before Load succeeds.
	ErrNoFileLoaded = errors.New("no file loaded")

	// ErrJobNotFound is returned for unknown or expired job IDs.
	ErrJobNotFound = errors.New("split job not found")

	// ErrJobRunning is returned by Resave while the job is still in progress.
	ErrJobRunning = errors.New("split job still running")

	// ErrSplitCancelled marks a job stopped by CancelSplit or CancelAll.
	ErrSplitCancelled = errors.New("split cancelled")
)

// ErrNoOutput is returned by Resave for a job that produced no records.
var ErrNoOutput = errors.New("no output to save")
