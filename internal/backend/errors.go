package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// SubmissionError reports a rejected upload or a transport failure during submit.
type SubmissionError struct {
	StatusCode int // zero when no response was received
	Message    string
	Cause      error
}

func (e *SubmissionError) Error() string {
	return formatError("submission failed", e.StatusCode, e.Message, e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// FetchError reports a failed list or detail request.
type FetchError struct {
	Op         string // "list" or "detail"
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	return formatError(e.Op+" fetch failed", e.StatusCode, e.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// DeleteError reports a delete request that failed or returned non-success.
type DeleteError struct {
	ID         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *DeleteError) Error() string {
	return formatError(fmt.Sprintf("delete %s failed", e.ID), e.StatusCode, e.Message, e.Cause)
}

func (e *DeleteError) Unwrap() error { return e.Cause }

// ParseError reports an embedded detail field that could not be decoded.
// The field is exposed as its empty value instead.
type ParseError struct {
	Field string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Field, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// IsNotFound reports whether err is a detail fetch the backend answered with 404.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
}

func formatError(prefix string, status int, msg string, cause error) string {
	s := prefix
	if status != 0 {
		s = fmt.Sprintf("%s: status %d", s, status)
	}
	if msg != "" {
		s = s + ": " + msg
	}
	if cause != nil {
		s = fmt.Sprintf("%s: %v", s, cause)
	}
	return s
}
