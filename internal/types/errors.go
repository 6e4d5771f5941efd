package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrInvalidIdentifier = errors.New("malformed identifier")
	ErrMaxRetries        = errors.New("max retries exceeded")
	ErrBlocked           = errors.New("blocked by robots.txt")
	ErrExcluded          = errors.New("excluded by pattern")
	ErrEmptyResponse     = errors.New("empty response body")
	ErrUninterpretable   = errors.New("uninterpretable response")
	ErrRunStopped        = errors.New("run has been stopped")
	ErrNoSource          = errors.New("no content source configured")
)

// FetchError wraps errors that occur during fetching. Retryable errors are
// transient: timeouts, connection resets, 5xx and 429 responses. Everything
// else is permanent and recorded without another attempt.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// Transient builds a retryable FetchError.
func Transient(url string, status int, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: status, Err: err, Retryable: true}
}

// Permanent builds a non-retryable FetchError.
func Permanent(url string, status int, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: status, Err: err}
}

// ExtractionError reports raw content the extractor could not make sense of.
type ExtractionError struct {
	ID     string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction error for %s: %s: %v", e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction error for %s: %s", e.ID, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ClassificationError reports a completion service failure or a response
// that is not an accepted token.
type ClassificationError struct {
	ID       string
	Response string
	Attempts int
	Err      error
}

func (e *ClassificationError) Error() string {
	if e.Response != "" {
		return fmt.Sprintf("classification error for %s after %d attempt(s) (response %q): %v", e.ID, e.Attempts, e.Response, e.Err)
	}
	return fmt.Sprintf("classification error for %s after %d attempt(s): %v", e.ID, e.Attempts, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// StoreCorruptionError is returned (and logged) when a persisted progress
// document cannot be read back. The store recovers by starting empty.
type StoreCorruptionError struct {
	Path string
	Err  error
}

func (e *StoreCorruptionError) Error() string {
	return fmt.Sprintf("progress store %s is corrupt: %v", e.Path, e.Err)
}

func (e *StoreCorruptionError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the record pipeline.
type PipelineError struct {
	Stage string
	ID    string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q for %s: %v", e.Stage, e.ID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ConfigError is the only class of error that aborts a run at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsRetryable reports whether err carries a transient classification.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.IsRetryable()
	}
	return false
}

// RetryHint returns the server-provided retry delay carried by err, if any.
func RetryHint(err error) time.Duration {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}
