package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("invalid input")
	ErrAuthorization = errors.New("not authorized")
	ErrIntegrity     = errors.New("integrity violation")
	ErrPrecondition  = errors.New("precondition failed")
	ErrStaleIndex    = errors.New("stale ordering index")
)
