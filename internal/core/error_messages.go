package core

// # Error Codes Reference
//
// User-facing messages carry a code users can quote when reporting a problem.
//
// # Split Errors (SPL001-SPL099)
//
//	SPL001 - Empty table: The file has a header but no data rows
//	         Action: Add at least one data row below the header
//	         Patterns: "empty table"
//
//	SPL002 - Invalid rows per file: Rows per file must be a positive whole number
//	         Action: Enter a number of rows greater than zero
//	         Patterns: "invalid chunk size"
//
//	SPL003 - Unsupported file: Only .csv files can be split
//	         Action: Choose a file ending in .csv
//	         Patterns: "unsupported file"
//
// # Encoding Errors (ENC001-ENC099)
//
//	ENC001 - Encoding mismatch: The file could not be read in its detected encoding
//	         Action: Re-save the file as UTF-8 or GBK and try again
//	         Patterns: "bytes are not valid"
//
//	ENC002 - Unencodable text: Some characters cannot be written in the file's encoding
//	         Action: Re-save the file as UTF-8 and try again
//	         Patterns: "cannot be represented"
//
//	ENC003 - Unknown encoding: The encoding is not supported
//	         Action: Use UTF-8, UTF-16 or GBK
//	         Patterns: "unknown encoding"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File not found: The file does not exist
//	          Patterns: "file not found"
//	FILE002 - Read failed: The file could not be read
//	          Patterns: "read error"
//	FILE003 - Write failed: Some output files could not be written
//	          Patterns: "write failed"
//	FILE004 - File too large: File exceeds the maximum size limit
//	          Patterns: "file too large"
//	FILE005 - No file: No file was selected
//	          Patterns: "no file provided", "no file loaded"
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Split cancelled
//	JOB002 - System busy: Too many splits in progress
//	JOB003 - Job expired: Split job not found
//	JOB004 - Job running: The split is still in progress
//	JOB005 - Request cancelled ("context canceled")
//	JOB006 - Request timeout ("context deadline exceeded")
//	JOB007 - Nothing to save: The job produced no output files
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests ("rate limit")
//	REQ001  - Malformed API request ("invalid request")
//
// ERR000 is the fallback; check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Split Errors (SPL001-SPL003)
	// =========================================================================
	{
		pattern: "empty table",
		msg: UserMessage{
			Message: "The file has a header but no data rows",
			Action:  "Add at least one data row below the header",
			Code:    "SPL001",
		},
	},
	{
		pattern: "invalid chunk size",
		msg: UserMessage{
			Message: "Rows per file must be a positive whole number",
			Action:  "Enter a number of rows greater than zero",
			Code:    "SPL002",
		},
	},
	{
		pattern: "unsupported file",
		msg: UserMessage{
			Message: "Only .csv files can be split",
			Action:  "Choose a file ending in .csv",
			Code:    "SPL003",
		},
	},

	// =========================================================================
	// Encoding Errors (ENC001-ENC003)
	// =========================================================================
	{
		pattern: "bytes are not valid",
		msg: UserMessage{
			Message: "The file could not be read in its detected encoding",
			Action:  "Re-save the file as UTF-8 or GBK and try again",
			Code:    "ENC001",
		},
	},
	{
		pattern: "cannot be represented",
		msg: UserMessage{
			Message: "Some characters cannot be written in the file's encoding",
			Action:  "Re-save the file as UTF-8 and try again",
			Code:    "ENC002",
		},
	},
	{
		pattern: "unknown encoding",
		msg: UserMessage{
			Message: "The encoding is not supported",
			Action:  "Use UTF-8, UTF-16 or GBK",
			Code:    "ENC003",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE005)
	// =========================================================================
	{
		pattern: "file not found",
		msg: UserMessage{
			Message: "The file does not exist",
			Action:  "Check the path and try again",
			Code:    "FILE001",
		},
	},
	{
		pattern: "read error",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check the file permissions and try again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "write failed",
		msg: UserMessage{
			Message: "Some output files could not be written",
			Action:  "Check free disk space and folder permissions, then save again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file locally with the command line tool",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to split",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no file loaded",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to split",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Job Errors (JOB001-JOB007)
	// =========================================================================
	{
		pattern: "split cancelled",
		msg: UserMessage{
			Message: "Split was cancelled",
			Action:  "Start a new split when ready",
			Code:    "JOB001",
		},
	},
	{
		pattern: "too many concurrent splits",
		msg: UserMessage{
			Message: "Too many splits in progress",
			Action:  "Please wait a moment and try again",
			Code:    "JOB002",
		},
	},
	{
		pattern: "split job not found",
		msg: UserMessage{
			Message: "Split job not found",
			Action:  "The job may have expired. Please start a new split",
			Code:    "JOB003",
		},
	},
	{
		pattern: "split job still running",
		msg: UserMessage{
			Message: "The split is still in progress",
			Action:  "Wait for it to finish before saving again",
			Code:    "JOB004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "JOB005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "JOB006",
		},
	},
	{
		pattern: "no output to save",
		msg: UserMessage{
			Message: "The job produced no output files",
			Action:  "Start a new split",
			Code:    "JOB007",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},

	// =========================================================================
	// Request Errors (REQ001)
	// =========================================================================
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Send a CSV file as multipart form data, or JSON with a path and rows",
			Code:    "REQ001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the ERR000 fallback is returned.
//
// Example:
//
//	msg := MapError(ErrEmptyTable)
//	// msg.Code == "SPL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-friendly message.
// Error returns the user message; Unwrap returns the technical error.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
