package admission

import "errors"

var (
	ErrRateLimited        = errors.New("rate limited")
	ErrTooManyConnections = errors.New("too many connections")
	ErrUnknownAction      = errors.New("unknown admission action")
)
