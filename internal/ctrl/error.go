package ctrl

import (
	"errors"

	md "github.com/JMURv/session-core/internal/models"
)

// ErrNotFound is returned when a resource is not found.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a resource already exists.
var ErrAlreadyExists = errors.New("already exists")

// ErrCodeIsNotValid is returned when a verification code is wrong or expired.
var ErrCodeIsNotValid = errors.New("code is not valid")

var (
	ErrAccountBlocked       = errors.New("account is blocked")
	ErrTokenVersionStale    = errors.New("token version is stale")
	ErrInvalidTokenFamily   = errors.New("invalid token family")
	ErrDeviceSessionRevoked = errors.New("device session revoked")
	ErrDeviceLimitExceeded  = md.ErrDeviceLimitExceeded
	ErrAlreadyVerified      = errors.New("account is already verified")
	ErrNoEmail              = errors.New("account has no email")
)

// ErrCacheTimeout never leaves the package: a slow cache read falls back to
// the credential store.
var ErrCacheTimeout = errors.New("cache read timed out")
