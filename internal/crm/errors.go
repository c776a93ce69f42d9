package crm

import "errors"

// Failure taxonomy shared by every core operation. Handlers map these to
// transport codes; anything unrecognized is reported as an internal failure
// without leaking store detail.
var (
	ErrUnauthenticated = errors.New("crm: unauthenticated")
	ErrForbidden       = errors.New("crm: forbidden")
	ErrNotFound        = errors.New("crm: not found")
	ErrValidation      = errors.New("crm: validation failed")
	ErrConflict        = errors.New("crm: conflict")
)
