package types

import (
	"errors"
	"fmt"
)

// DefaultMimeType is the MIME type declared in the image data URL
const DefaultMimeType = "image/jpeg"

// DefaultMaxTokens caps the model reply length
const DefaultMaxTokens = 300

// VisionRequest is a single-turn prompt plus image sent to a vision model
type VisionRequest struct {
	Model     string
	Prompt    string
	ImageB64  string
	MimeType  string
	MaxTokens int
	Token     string
}

// Verdict is the outcome of an existence check
type Verdict int

const (
	// Unknown means the check could not be completed
	Unknown Verdict = iota
	// NotFound means the model answered false
	NotFound
	// Found means the model answered true
	Found
)

func (v Verdict) String() string {
	switch v {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a single check
type Result struct {
	ID      string  `json:"id"`
	Verdict Verdict `json:"verdict"`
	Raw     string  `json:"raw,omitempty"`
	Err     error   `json:"-"`
}

// Exists reports whether the model confirmed the predicate
func (r Result) Exists() bool {
	return r.Verdict == Found
}

// ErrorKind classifies why a check ended as Unknown
type ErrorKind string

const (
	ErrKindCredential        ErrorKind = "credential_unreadable"
	ErrKindImage             ErrorKind = "image_unreadable"
	ErrKindTransport         ErrorKind = "transport"
	ErrKindHTTPStatus        ErrorKind = "http_status"
	ErrKindMalformedResponse ErrorKind = "malformed_response"
	ErrKindMalformedAnswer   ErrorKind = "malformed_answer"
)

// CheckError wraps a failure with its kind and the step that produced it
type CheckError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *CheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
}

// Unwrap returns the underlying cause
func (e *CheckError) Unwrap() error {
	return e.Err
}

// NewCheckError creates a CheckError
func NewCheckError(kind ErrorKind, op string, err error) *CheckError {
	return &CheckError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the ErrorKind carried by err, or ErrKindTransport when err
// was not classified by a backend.
func KindOf(err error) ErrorKind {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrKindTransport
}

// StatusError reports a non-2xx response from the API
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}
