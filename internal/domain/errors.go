package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
	ErrUnauthorized    = errors.New("unauthorized")

	ErrCredentialExhausted = errors.New("credential exhausted")
	ErrModelUnavailable    = errors.New("model unavailable")
	ErrTransient           = errors.New("transient transport error")
	ErrMalformedResponse   = errors.New("malformed response")
	ErrExhaustedAttempts   = errors.New("exhausted attempts")
	ErrRejected            = errors.New("request rejected")
)

// ErrorKind classifies a failed completion attempt.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindCredentialExhausted ErrorKind = "credential_exhausted"
	KindModelUnavailable    ErrorKind = "model_unavailable"
	KindTransient           ErrorKind = "transient"
	KindMalformedResponse   ErrorKind = "malformed_response"
	KindExhaustedAttempts   ErrorKind = "exhausted_attempts"
	KindRejected            ErrorKind = "rejected"
)

// Sentinel returns the package-level error matching the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindCredentialExhausted:
		return ErrCredentialExhausted
	case KindModelUnavailable:
		return ErrModelUnavailable
	case KindTransient:
		return ErrTransient
	case KindMalformedResponse:
		return ErrMalformedResponse
	case KindExhaustedAttempts:
		return ErrExhaustedAttempts
	case KindRejected:
		return ErrRejected
	default:
		return ErrInternal
	}
}

// Error is the structured failure returned by the completion orchestrator.
// Callers are expected to log and skip, never to panic on it.
type Error struct {
	Kind     ErrorKind
	Message  string
	Model    string   // last concrete model tried
	Status   int      // last HTTP status, 0 for transport failures
	Tried    []string // concrete models attempted, in order, without duplicates
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Model != "" {
		fmt.Fprintf(&b, " (model=%s", e.Model)
		if e.Status != 0 {
			fmt.Fprintf(&b, " status=%d", e.Status)
		}
		b.WriteString(")")
	}
	if len(e.Tried) > 0 {
		fmt.Fprintf(&b, " tried=[%s]", strings.Join(e.Tried, ","))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrModelUnavailable) and friends work on *Error.
func (e *Error) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// KindOf extracts the ErrorKind of err, or KindNone when err is not an *Error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindNone
}
