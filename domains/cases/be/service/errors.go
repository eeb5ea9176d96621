package service

import (
	"errors"
	"fmt"
)

var (
	// ErrCaseNotFound is returned when no matching case reference exists, or
	// when an operation requires an active reference and the row is inactive.
	ErrCaseNotFound = errors.New("case not found")
	// ErrInvalidInput wraps validation failures on request payloads.
	ErrInvalidInput = errors.New("invalid input")
)

// ProvisioningError reports a failure while creating the physical database for
// a case. By the time it is returned the placeholder registry row has already
// been compensated away.
type ProvisioningError struct {
	Stage string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("case database provisioning failed at %s: %v", e.Stage, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
