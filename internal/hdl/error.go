package hdl

import (
	"errors"
	"net/http"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/auth"
	"github.com/JMURv/session-core/internal/auth/captcha"
	"github.com/JMURv/session-core/internal/auth/jwt"
	"github.com/JMURv/session-core/internal/ctrl"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

var ErrInternal = errors.New("internal error")
var ErrDecodeRequest = errors.New("decode request")
var ErrNoDeviceInfo = errors.New("no device info")

var ErrToRetrievePathArg = errors.New("error to retrieve path argument")
var ErrFailedToGetUUID = errors.New("failed to get uid from context")
var ErrMissingToken = errors.New("missing bearer token")

// Failure is the caller-facing form of an error. Code is stable across
// releases; Message never carries internal detail.
type Failure struct {
	HTTP    int
	GRPC    codes.Code
	Code    string
	Message string
}

type mapping struct {
	err error
	Failure
}

var failures = []mapping{
	{jwt.ErrMalformed, Failure{http.StatusUnauthorized, codes.Unauthenticated, "token_malformed", ""}},
	{ErrMissingToken, Failure{http.StatusUnauthorized, codes.Unauthenticated, "token_malformed", ""}},
	{jwt.ErrBadSignature, Failure{http.StatusUnauthorized, codes.Unauthenticated, "token_bad_signature", ""}},
	{jwt.ErrExpired, Failure{http.StatusUnauthorized, codes.Unauthenticated, "token_expired", ""}},
	{ctrl.ErrTokenVersionStale, Failure{http.StatusUnauthorized, codes.Unauthenticated, "token_version_stale", ""}},
	{ctrl.ErrInvalidTokenFamily, Failure{http.StatusUnauthorized, codes.Unauthenticated, "invalid_token_family", ""}},
	{ctrl.ErrDeviceSessionRevoked, Failure{http.StatusUnauthorized, codes.Unauthenticated, "device_session_revoked", ""}},
	{auth.ErrInvalidCredentials, Failure{http.StatusUnauthorized, codes.Unauthenticated, "invalid_credentials", ""}},
	{captcha.ErrValidationFailed, Failure{http.StatusUnauthorized, codes.Unauthenticated, "captcha_failed", ""}},
	{ctrl.ErrAccountBlocked, Failure{http.StatusForbidden, codes.PermissionDenied, "account_blocked", ""}},
	{ctrl.ErrDeviceLimitExceeded, Failure{http.StatusConflict, codes.FailedPrecondition, "device_limit_exceeded", ""}},
	{admission.ErrRateLimited, Failure{http.StatusTooManyRequests, codes.ResourceExhausted, "rate_limited", ""}},
	{admission.ErrTooManyConnections, Failure{http.StatusTooManyRequests, codes.ResourceExhausted, "too_many_connections", ""}},
	{ctrl.ErrNotFound, Failure{http.StatusNotFound, codes.NotFound, "not_found", ""}},
	{ctrl.ErrAlreadyExists, Failure{http.StatusConflict, codes.AlreadyExists, "already_exists", ""}},
	{ctrl.ErrAlreadyVerified, Failure{http.StatusConflict, codes.AlreadyExists, "already_verified", ""}},
	{ctrl.ErrCodeIsNotValid, Failure{http.StatusBadRequest, codes.InvalidArgument, "code_not_valid", ""}},
	{ctrl.ErrNoEmail, Failure{http.StatusBadRequest, codes.FailedPrecondition, "no_email", ""}},
	{ErrDecodeRequest, Failure{http.StatusBadRequest, codes.InvalidArgument, "bad_request", ""}},
	{ErrNoDeviceInfo, Failure{http.StatusBadRequest, codes.InvalidArgument, "bad_request", ""}},
}

// Classify maps err onto its caller-facing Failure. Unknown errors become
// internal; their cause is logged here and nowhere returned.
func Classify(err error) Failure {
	for _, m := range failures {
		if errors.Is(err, m.err) {
			f := m.Failure
			f.Message = m.err.Error()
			return f
		}
	}

	zap.L().Error("unclassified error", zap.Error(err))
	return Failure{
		HTTP:    http.StatusInternalServerError,
		GRPC:    codes.Internal,
		Code:    "internal",
		Message: ErrInternal.Error(),
	}
}
