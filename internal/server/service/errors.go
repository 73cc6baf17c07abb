package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the service layer.
var (
	ErrNoFiles         = errors.New("no files selected")
	ErrNotFound        = errors.New("item not found")
	ErrInvalidItem     = errors.New("invalid item name")
	ErrInvalidTarget   = errors.New("invalid target path")
	ErrUnauthenticated = errors.New("not logged in")
	ErrForbidden       = errors.New("access denied")
)

// RejectionKind classifies why a single file in a batch was refused.
type RejectionKind string

const (
	// KindValidation is a user-correctable problem such as a disallowed extension.
	KindValidation RejectionKind = "validation"
	// KindSecurity covers path traversal and executable content.
	KindSecurity RejectionKind = "security"
	// KindInternal is an unexpected I/O failure while storing the file.
	KindInternal RejectionKind = "internal"
)

// Rejection is the per-file failure reported alongside successes.
type Rejection struct {
	Filename string        `json:"filename"`
	Kind     RejectionKind `json:"kind"`
	Reason   string        `json:"reason"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s rejected (%s): %s", r.Filename, r.Kind, r.Reason)
}
