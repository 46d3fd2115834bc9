package dispatch

// errors.go maps technical errors to operator-facing messages.
//
// Dispatchers are not engineers; when a line fails they need to know what
// happened and what to do next, and support staff need a stable code to
// search for. Every category has a code range:
//
//	ORD001 - Duplicate order code: an order with this code already exists
//	         Patterns: "duplicate order code", "duplicate key"
//	ORD002 - Missing customer: the line was submitted without a customer
//	         Patterns: "missing customer"
//	ORD003 - Unknown customer: the assigned customer id is not in the
//	         backend snapshot
//	         Patterns: "unknown customer"
//	ORD004 - Order rejected: the backend refused the order draft
//	         Patterns: "order rejected"
//	RMT001 - Backend unreachable
//	         Patterns: "connection refused", "no such host", "connection reset"
//	RMT002 - Backend timeout
//	         Patterns: "context deadline exceeded", "timeout"
//	RMT003 - Backend error: the order service returned a server error
//	         Patterns: "backend error"
//	BAT001 - Batch cancelled
//	         Patterns: "batch cancelled", "context canceled"
//	BAT002 - Too many batches in flight
//	         Patterns: "too many concurrent batches"
//	BAT003 - Batch not found (expired or never existed)
//	         Patterns: "batch not found"
//	BAT004 - Nothing to submit: the paste contained no parseable lines
//	         Patterns: "no parseable lines"
//	RATE001 - Rate limited
//	         Patterns: "rate limit"
//	ERR000 - Fallback; check server logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns sit before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors call sites branch on with errors.Is.
var (
	// ErrDuplicateOrderCode marks a create rejected because the order code
	// is already taken. The batch runner surfaces it per line.
	ErrDuplicateOrderCode = errors.New("duplicate order code")

	// ErrMissingCustomer marks a line submitted without a customer assigned.
	ErrMissingCustomer = errors.New("missing customer")

	// ErrUnknownCustomer marks a line whose customer id is absent from the
	// backend snapshot taken at batch start.
	ErrUnknownCustomer = errors.New("unknown customer")

	// ErrBatchNotFound is returned for lookups of expired or unknown batch ids.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrTooManyBatches is returned when the concurrent batch limit is
	// reached and no slot frees up within the configured wait.
	ErrTooManyBatches = errors.New("too many concurrent batches")

	// ErrEmptyBatch is returned when a paste produces no parseable lines.
	ErrEmptyBatch = errors.New("no parseable lines in pasted text")
)

// UserMessage provides operator-facing error information with a support code.
type UserMessage struct {
	Message string // what happened, in dispatcher terms
	Action  string // what to do about it
	Code    string // stable code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to operator
// messages. First match wins; keep specific patterns before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Order submission (ORD001-ORD004)
	// =========================================================================
	{
		pattern: "duplicate order code",
		msg: UserMessage{
			Message: "An order with this code already exists",
			Action:  "Check whether the note was already submitted, or renumber the line",
			Code:    "ORD001",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "An order with this code already exists",
			Action:  "Check whether the note was already submitted, or renumber the line",
			Code:    "ORD001",
		},
	},
	{
		pattern: "missing customer",
		msg: UserMessage{
			Message: "No customer was assigned to this line",
			Action:  "Assign a customer to every line before submitting",
			Code:    "ORD002",
		},
	},
	{
		pattern: "unknown customer",
		msg: UserMessage{
			Message: "The assigned customer no longer exists",
			Action:  "Reload the page and pick the customer again",
			Code:    "ORD003",
		},
	},
	{
		pattern: "order rejected",
		msg: UserMessage{
			Message: "The order service refused this order",
			Action:  "Review the line and try again",
			Code:    "ORD004",
		},
	},

	// =========================================================================
	// Order service connectivity (RMT001-RMT003)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Cannot reach the order service",
			Action:  "Please try again in a few moments",
			Code:    "RMT001",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "Cannot reach the order service",
			Action:  "Please try again in a few moments",
			Code:    "RMT001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The connection to the order service was interrupted",
			Action:  "Please try again",
			Code:    "RMT001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The order service took too long to respond",
			Action:  "Try again with a smaller batch",
			Code:    "RMT002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The order service took too long to respond",
			Action:  "Try again with a smaller batch",
			Code:    "RMT002",
		},
	},
	{
		pattern: "backend error",
		msg: UserMessage{
			Message: "The order service reported an internal error",
			Action:  "Please try again or contact support",
			Code:    "RMT003",
		},
	},

	// =========================================================================
	// Batch lifecycle (BAT001-BAT004)
	// =========================================================================
	{
		pattern: "batch cancelled",
		msg: UserMessage{
			Message: "The batch was cancelled",
			Action:  "Start a new batch when ready",
			Code:    "BAT001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The batch was cancelled",
			Action:  "Start a new batch when ready",
			Code:    "BAT001",
		},
	},
	{
		pattern: "too many concurrent batches",
		msg: UserMessage{
			Message: "The system is busy processing other batches",
			Action:  "Please wait a moment and try again",
			Code:    "BAT002",
		},
	},
	{
		pattern: "batch not found",
		msg: UserMessage{
			Message: "Batch not found",
			Action:  "The batch may have expired. Submit the notes again if needed",
			Code:    "BAT003",
		},
	},
	{
		pattern: "no parseable lines",
		msg: UserMessage{
			Message: "No order lines were found in the pasted text",
			Action:  "Each order line must start with a number followed by \")\"",
			Code:    "BAT004",
		},
	},

	// =========================================================================
	// Rate limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000). Support
// staff should check server logs for the technical error in that case.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-facing message.
// The first matching pattern wins; unmatched errors fall back to ERR000.
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

// FormatUserError renders an error for display as
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether an error maps to a specific pattern rather
// than the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its operator-facing mapping so the
// technical detail survives for logging while the display stays clean.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError wraps a technical error with its mapped message.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
