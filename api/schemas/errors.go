package schemas

import (
	"errors"
	"fmt"
)

// Sentinels for failures that stay inside the core. Provider and source errors
// are recovered locally; ErrInvariant marks data the core refuses to process.
var (
	ErrProvider  = errors.New("text analysis provider failure")
	ErrSource    = errors.New("finding source failure")
	ErrInvariant = errors.New("internal invariant violated")
)

// ValidationError reports caller input rejected before any state was created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown scan or report id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidStateError reports an operation requested on a scan whose status
// does not allow it.
type InvalidStateError struct {
	ID     string
	Status ScanStatus
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("scan %s is %s: %s", e.ID, e.Status, e.Reason)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidState reports whether err wraps an InvalidStateError.
func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
