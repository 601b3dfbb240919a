package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/JMURv/session-core/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

type Port interface {
	NewAccess(ctx context.Context, s Subject) (string, error)
	NewRefresh(ctx context.Context, s Subject) (string, error)
	GenPair(ctx context.Context, s Subject) (string, string, error)
	Verify(ctx context.Context, tokenStr string) (Claims, error)
	Renew(ctx context.Context, c Claims) (string, error)
	InGrace(c Claims) bool
	ShouldRenew(c Claims) bool
}

// Subject is the identity a token is minted for.
type Subject struct {
	UID      uuid.UUID
	Version  int64
	Family   string
	DeviceID string
	Admin    bool
}

type Claims struct {
	UID      uuid.UUID `json:"uid"`
	Version  int64     `json:"ver"`
	Family   string    `json:"fam"`
	DeviceID string    `json:"did"`
	Admin    bool      `json:"adm,omitempty"`
	Kind     string    `json:"knd"`
	jwt.RegisteredClaims
}

func (c Claims) Subject() Subject {
	return Subject{
		UID:      c.UID,
		Version:  c.Version,
		Family:   c.Family,
		DeviceID: c.DeviceID,
		Admin:    c.Admin,
	}
}

type Core struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

func New(conf config.JWTConfig) (*Core, error) {
	return NewWithClock(conf, time.Now)
}

// NewWithClock is New with an injectable time source.
func NewWithClock(conf config.JWTConfig, now func() time.Time) (*Core, error) {
	if len(conf.Secret) < config.MinSecretLength {
		return nil, ErrWeakSecret
	}

	return &Core{
		secret: []byte(conf.Secret),
		issuer: conf.Issuer,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(config.TokenLeeway),
			jwt.WithTimeFunc(now),
			jwt.WithIssuer(conf.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}, nil
}

func (c *Core) NewAccess(ctx context.Context, s Subject) (string, error) {
	return c.sign(ctx, s, KindAccess, config.AccessTokenDuration)
}

func (c *Core) NewRefresh(ctx context.Context, s Subject) (string, error) {
	return c.sign(ctx, s, KindRefresh, config.RefreshTokenDuration)
}

func (c *Core) GenPair(ctx context.Context, s Subject) (string, string, error) {
	const op = "auth.GenPair.jwt"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	access, err := c.NewAccess(ctx, s)
	if err != nil {
		zap.L().Error(
			"Failed to generate token pair",
			zap.String("uid", s.UID.String()),
			zap.Error(err),
		)

		return "", "", err
	}

	refresh, err := c.NewRefresh(ctx, s)
	if err != nil {
		zap.L().Error(
			"Failed to generate token pair",
			zap.String("uid", s.UID.String()),
			zap.Error(err),
		)

		return "", "", err
	}

	return access, refresh, nil
}

// Renew mints an access token carrying the same identity as c. The refresh
// family is left alone.
func (c *Core) Renew(ctx context.Context, claims Claims) (string, error) {
	const op = "auth.Renew.jwt"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return c.NewAccess(ctx, claims.Subject())
}

func (c *Core) sign(ctx context.Context, s Subject, kind string, d time.Duration) (string, error) {
	const op = "auth.sign.jwt"
	span, _ := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	now := c.now()
	signed, err := jwt.NewWithClaims(
		jwt.SigningMethodHS256, &Claims{
			UID:      s.UID,
			Version:  s.Version,
			Family:   s.Family,
			DeviceID: s.DeviceID,
			Admin:    s.Admin,
			Kind:     kind,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				ExpiresAt: jwt.NewNumericDate(now.Add(d)),
				IssuedAt:  jwt.NewNumericDate(now),
				Issuer:    c.issuer,
			},
		},
	).SignedString(c.secret)
	if err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		zap.L().Error(
			ErrWhileCreatingToken.Error(),
			zap.String("op", op),
			zap.Error(err),
		)

		return "", ErrWhileCreatingToken
	}

	return signed, nil
}

// Verify checks signature, algorithm and expiry. On ErrExpired the decoded
// claims are returned as well; their signature has already been checked.
func (c *Core) Verify(ctx context.Context, tokenStr string) (Claims, error) {
	const op = "auth.Verify.jwt"
	span, _ := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	claims := Claims{}
	_, err := c.parser.ParseWithClaims(
		tokenStr, &claims, func(token *jwt.Token) (any, error) {
			return c.secret, nil
		},
	)
	if err == nil {
		return claims, nil
	}

	switch {
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		zap.L().Debug("Malformed token", zap.String("op", op), zap.Error(err))
		return Claims{}, ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		zap.L().Debug("Bad token signature", zap.String("op", op), zap.Error(err))
		return Claims{}, ErrBadSignature
	default:
		zap.L().Debug("Malformed token", zap.String("op", op), zap.Error(err))
		return Claims{}, ErrMalformed
	}
}

// InGrace reports whether an expired token is still inside the grace window.
func (c *Core) InGrace(claims Claims) bool {
	if claims.ExpiresAt == nil {
		return false
	}
	return c.now().Sub(claims.ExpiresAt.Time) <= config.GraceWindow
}

func (c *Core) ShouldRenew(claims Claims) bool {
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Sub(c.now()) < config.RenewThreshold
}
