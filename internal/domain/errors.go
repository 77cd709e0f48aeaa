package domain

import "errors"

var (
	ErrNotFound                   = errors.New("not found")
	ErrAlreadyInitialized         = errors.New("already initialized")
	ErrInvalidQuestion            = errors.New("invalid question parameters")
	ErrDeadlineExpired            = errors.New("deadline expired")
	ErrAlreadyResolved            = errors.New("already resolved")
	ErrSignatureRejected          = errors.New("signature rejected")
	ErrUnauthorizedOracleEndpoint = errors.New("unauthorized oracle endpoint")
	ErrLockHeld                   = errors.New("lock already held")
	ErrPreconditionFailed         = errors.New("precondition failed")
)
