package essync

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ConfigError reports a setup problem: a bad option, an unknown kind, a
// missing query template. It is never retried.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// NewConfigError returns a *ConfigError with the formatted message.
func NewConfigError(format string, args ...interface{}) error {
	return configErrorf(format, args...)
}

// RowError is the validation error raised when a row cannot be transformed.
// Position is 1-based within the batch.
type RowError struct {
	Kind     string
	Position int
	RowID    string
	Row      map[string]interface{}
	Err      error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d (id %q): %v", e.Kind, e.Position, e.RowID, e.Err)
}

// Cause implements the causer interface used by errors.Cause.
func (e *RowError) Cause() error { return e.Err }

func (e *RowError) Unwrap() error { return e.Err }

// BulkItemError is the failure of a single document within a bulk request.
type BulkItemError struct {
	ID     string
	Status int
	Type   string
	Reason string
}

// BulkError reports a bulk request which was accepted but in which some
// documents were rejected.
type BulkError struct {
	Index  string
	Total  int
	Failed []BulkItemError
}

func (e *BulkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bulk write to %s: %d of %d documents failed", e.Index, len(e.Failed), e.Total)
	if len(e.Failed) > 0 {
		f := e.Failed[0]
		fmt.Fprintf(&b, ", first: id=%s status=%d %s: %s", f.ID, f.Status, f.Type, f.Reason)
	}
	return b.String()
}

// CursorWriteError reports that a batch was loaded but the cursor could not
// be advanced. The pass for that kind stops; the batch will be loaded again
// next time, which is harmless.
type CursorWriteError struct {
	Key string
	Err error
}

func (e *CursorWriteError) Error() string {
	return fmt.Sprintf("writing cursor %s: %v", e.Key, e.Err)
}

// Cause implements the causer interface used by errors.Cause.
func (e *CursorWriteError) Cause() error { return e.Err }

func (e *CursorWriteError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a *RowError.
func IsValidation(err error) bool {
	var rerr *RowError
	return errors.As(err, &rerr)
}

// IsPermanent reports whether retrying err cannot help: validation and
// configuration errors, cursor write failures, and context cancellation.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var (
		cerr *ConfigError
		werr *CursorWriteError
	)
	switch {
	case IsValidation(err), errors.As(err, &cerr), errors.As(err, &werr):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}
