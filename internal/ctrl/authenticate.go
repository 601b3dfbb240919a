package ctrl

import (
	"context"
	"errors"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/auth/jwt"
	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type authenticator interface {
	Authenticate(ctx context.Context, token, ip string) (*dto.Identity, error)
	AdmitConnection(ctx context.Context, ip string) error
	ReleaseConnection(ctx context.Context, ip string)
}

const graceKey = "grace:%s"

// Authenticate resolves an access token into an Identity. Tokens that fail
// verification are charged to the caller's IP; verified ones to the account.
func (c *Controller) Authenticate(ctx context.Context, token, ip string) (*dto.Identity, error) {
	const op = "auth.Authenticate.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	claims, inGrace, err := c.verifyAccess(ctx, token)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(failureCode(err)).Inc()
		if rlErr := c.gate.Consume(ctx, admission.Request, ip); rlErr != nil {
			return nil, rlErr
		}
		return nil, err
	}

	if err = c.gate.Consume(ctx, admission.Request, claims.UID.String()); err != nil {
		return nil, err
	}

	ident, err := c.identify(ctx, claims, inGrace)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(failureCode(err)).Inc()
		return nil, err
	}
	return ident, nil
}

// verifyAccess checks the token itself. inGrace is set when an expired token
// was let through the grace window.
func (c *Controller) verifyAccess(ctx context.Context, token string) (jwt.Claims, bool, error) {
	if token == "" {
		return jwt.Claims{}, false, jwt.ErrMalformed
	}

	claims, err := c.au.Verify(ctx, token)
	if errors.Is(err, jwt.ErrExpired) || (err == nil && c.expired(claims)) {
		if claims.Kind != jwt.KindAccess || !c.au.InGrace(claims) || !c.takeGrace(ctx, claims.ID) {
			return claims, false, jwt.ErrExpired
		}
		return claims, true, nil
	}
	if err != nil {
		return claims, false, err
	}

	if claims.Kind != jwt.KindAccess {
		return claims, false, jwt.ErrMalformed
	}
	return claims, false, nil
}

// expired reports a token past its exp that the parser still let through
// its clock skew leeway.
func (c *Controller) expired(claims jwt.Claims) bool {
	return claims.ExpiresAt != nil && c.now().After(claims.ExpiresAt.Time)
}

func (c *Controller) identify(ctx context.Context, claims jwt.Claims, inGrace bool) (*dto.Identity, error) {
	const op = "auth.identify.ctrl"

	acc, err := c.resolveAccount(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenVersionStale
		}
		return nil, err
	}

	if acc.IsBlocked {
		return nil, ErrAccountBlocked
	}
	if acc.TokenVersion != claims.Version {
		return nil, ErrTokenVersionStale
	}
	if !acc.ActiveDevice(claims.DeviceID) {
		return nil, ErrDeviceSessionRevoked
	}

	ident := &dto.Identity{
		AccountID:    acc.ID,
		DeviceID:     claims.DeviceID,
		Admin:        acc.IsAdmin,
		TokenVersion: acc.TokenVersion,
		NeedsRefresh: inGrace,
	}

	if inGrace || c.au.ShouldRenew(claims) {
		renewed, err := c.au.Renew(ctx, claims)
		if err != nil {
			zap.L().Warn("failed to renew access token", zap.String("op", op), zap.Error(err))
		} else {
			ident.NewToken = renewed
		}
	}

	return ident, nil
}

// takeGrace admits an expired token once per jti. An unreachable cache
// denies the grace.
func (c *Controller) takeGrace(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}

	ok, err := c.cache.SetNX(ctx, config.GraceWindow, fmtKey(graceKey, jti), 1)
	if err != nil {
		zap.L().Warn("grace check unavailable", zap.Error(err))
		return false
	}
	return ok
}

func (c *Controller) AdmitConnection(ctx context.Context, ip string) error {
	const op = "auth.AdmitConnection.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return c.gate.AcquireConnection(ctx, ip)
}

func (c *Controller) ReleaseConnection(ctx context.Context, ip string) {
	c.gate.ReleaseConnection(ctx, ip)
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return "expired"
	case errors.Is(err, jwt.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, jwt.ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenVersionStale):
		return "stale_version"
	case errors.Is(err, ErrDeviceSessionRevoked):
		return "device_revoked"
	case errors.Is(err, ErrAccountBlocked):
		return "blocked"
	}
	return "internal"
}
