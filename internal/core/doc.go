// Package core provides the business logic for splitting table files.
//
// This package holds all domain logic independent of any transport layer. It
// is used by the web handlers, the CLI and the drop-folder watcher without
// modification.
//
// # Pipeline
//
// A split runs in strict order:
//
//  1. The raw bytes are loaded (by a [FileStore]) into a [RawFile].
//  2. Each job loads the file into its own [Session]. [Session.Load] runs
//     [Inspect], which detects the encoding with charset.Detect, decodes the
//     text and parses it into a [ParsedTable].
//  3. [Session.Split] hands the table to [Split], which cuts the data rows
//     into windows of at most N rows, prefixes each with the header and
//     re-encodes it with the source encoding.
//  4. The resulting [OutputRecord] values are handed to the FileStore.
//
// Step 3 is a pure function: it performs no I/O, keeps no state between
// calls and either returns every record or none.
//
// # Jobs
//
// [Service] runs splits asynchronously for the web layer and synchronously
// (SplitNow) for the CLI and watcher. Each background job has an ID,
// streams [SplitProgress] to subscribers and keeps its records after
// completion so that a failed save can be retried with [Service.Resave]
// without splitting again.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - SPL001-SPL003: Split errors (empty table, chunk size, file type)
//   - ENC001-ENC003: Encoding errors (decode, encode, unknown)
//   - FILE001-FILE005: File errors (missing, read, write, size, none selected)
//   - JOB001-JOB007: Job errors (cancelled, busy, expired, running, timeout)
//   - RATE001, REQ001: Rate limit and malformed API requests
package core
