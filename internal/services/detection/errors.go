package detection

import (
	"errors"
	"fmt"

	"github.com/mdobak/go-xerrors"
)

var (
	// ErrInvalidInput marks requests rejected before anything is created.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream marks failures of the image store, document store or other collaborators.
	ErrUpstream = errors.New("upstream failure")
	// ErrNotFound is returned by stores for unknown detection ids.
	ErrNotFound = errors.New("detection not found")
	// ErrNoProvider is returned by Analyze when no signal provider is configured.
	ErrNoProvider = errors.New("signal provider not configured")
)

// InputError names the offending request field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a collaborator failure.
type UpstreamError struct {
	Collaborator string
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// upstream records the stack where the collaborator call failed.
func upstream(collaborator string, err error) error {
	return xerrors.New(&UpstreamError{Collaborator: collaborator, Err: err})
}
