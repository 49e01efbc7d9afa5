// Package crawlerr defines the error taxonomy shared by the fetch, extraction and
// persistence layers. Callers inspect errors with errors.As / errors.Is.
package crawlerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors wrapped by the typed errors below.
var (
	// ErrCorrupted marks a state file that exists but cannot be decoded.
	ErrCorrupted = errors.New("file is most likely corrupted")
	// ErrNoMatch marks a page whose markup did not fit an extraction heuristic.
	ErrNoMatch = errors.New("no matching element")
	// ErrNotFound is returned when a named book or chapter is unknown.
	ErrNotFound = errors.New("not found")
)

// ParseError reports a malformed URL or numeric segment.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure or a non-success HTTP status.
// StatusCode is zero when no response was received.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
	timeout    bool
}

// NewNetworkError builds a NetworkError, remembering whether err was a timeout.
func NewNetworkError(url string, status int, err error) *NetworkError {
	ne := &NetworkError{URL: url, StatusCode: status, Err: err}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		ne.timeout = true
	}
	return ne
}

// NewTimeoutError builds a NetworkError for a request that exceeded its deadline.
func NewTimeoutError(url string, err error) *NetworkError {
	return &NetworkError{URL: url, Err: err, timeout: true}
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d (%s): %v", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	if e.timeout {
		return fmt.Sprintf("fetch %s: timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the request was abandoned because it ran out of time.
func (e *NetworkError) Timeout() bool { return e.timeout }

// Temporary reports whether retrying the same request may succeed.
func (e *NetworkError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// ExtractionError reports that a page did not have the markup a heuristic expects.
type ExtractionError struct {
	URL       string
	Heuristic string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s from %s: %v", e.Heuristic, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NoMatch builds an ExtractionError wrapping ErrNoMatch.
func NoMatch(url, heuristic string) *ExtractionError {
	return &ExtractionError{URL: url, Heuristic: heuristic, Err: ErrNoMatch}
}

// PersistenceError reports an unreadable, unwritable or corrupt state file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Corrupted builds the PersistenceError returned when a state file cannot be decoded.
func Corrupted(path string, cause error) *PersistenceError {
	return &PersistenceError{Op: "load", Path: path, Err: fmt.Errorf("%w: %v", ErrCorrupted, cause)}
}
