package jwt

import "errors"

var (
	ErrWhileCreatingToken = errors.New("error while creating token")
	ErrWeakSecret         = errors.New("signing secret is missing or too short")
	ErrMalformed          = errors.New("token is malformed")
	ErrBadSignature       = errors.New("token signature is invalid")
	ErrExpired            = errors.New("token is expired")
)
