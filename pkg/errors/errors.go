package errors

import "errors"

var (
	ErrForbidden           = errors.New("forbidden")
	ErrRecomputeInProgress = errors.New("recompute already in progress")

	ErrAdminNotFound        = errors.New("admin not found")
	ErrInvalidAdminPassword = errors.New("invalid admin credentials")
	ErrAdminDisabled        = errors.New("admin account disabled")

	ErrPlayerNotFound = errors.New("player not found")
)
