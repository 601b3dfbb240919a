package ctrl

import (
	"context"
	"errors"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/auth"
	"github.com/JMURv/session-core/internal/auth/captcha"
	"github.com/JMURv/session-core/internal/auth/jwt"
	"github.com/JMURv/session-core/internal/dto"
	md "github.com/JMURv/session-core/internal/models"
	"github.com/JMURv/session-core/internal/repo"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type authCtrl interface {
	Signup(ctx context.Context, d *dto.DeviceRequest, req *dto.SignupRequest) (*dto.LoginResponse, error)
	Login(ctx context.Context, d *dto.DeviceRequest, req *dto.LoginRequest) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, d *dto.DeviceRequest, req *dto.RefreshRequest) (*dto.TokenPair, error)
	Logout(ctx context.Context, uid uuid.UUID, deviceID string) error
	LogoutAll(ctx context.Context, uid uuid.UUID) error
	ChangePassword(ctx context.Context, uid uuid.UUID, req *dto.ChangePasswordRequest) error
}

func subjectOf(acc *md.Account, deviceID string) jwt.Subject {
	return jwt.Subject{
		UID:      acc.ID,
		Version:  acc.TokenVersion,
		Family:   acc.TokenFamily,
		DeviceID: deviceID,
		Admin:    acc.IsAdmin,
	}
}

func (c *Controller) checkCaptcha(ctx context.Context, token string, action captcha.Actions) error {
	ok, err := c.captcha.VerifyRecaptcha(ctx, token, action)
	if err != nil {
		return err
	}
	if !ok {
		return captcha.ErrValidationFailed
	}
	return nil
}

func (c *Controller) Signup(
	ctx context.Context,
	d *dto.DeviceRequest,
	req *dto.SignupRequest,
) (*dto.LoginResponse, error) {
	const op = "auth.Signup.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if err := c.gate.Consume(ctx, admission.Login, d.IP); err != nil {
		return nil, err
	}

	if err := c.checkCaptcha(ctx, req.Captcha, captcha.Signup); err != nil {
		return nil, err
	}

	hash, err := c.au.Hash(req.Password)
	if err != nil {
		zap.L().Error("failed to hash password", zap.String("op", op), zap.Error(err))
		return nil, err
	}

	deviceToken, err := newDeviceToken()
	if err != nil {
		return nil, err
	}

	acc := &md.Account{
		ID:           uuid.New(),
		Phone:        req.Phone,
		Email:        req.Email,
		PasswordHash: hash,
		TokenFamily:  uuid.NewString(),
	}
	if err = acc.RegisterDevice(req.DeviceID, deviceToken, c.now()); err != nil {
		return nil, err
	}

	if err = c.repo.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	access, refresh, err := c.au.GenPair(ctx, subjectOf(acc, req.DeviceID))
	if err != nil {
		return nil, err
	}

	zap.L().Info("account created", zap.String("id", acc.ID.String()), zap.String("ip", d.IP))
	return &dto.LoginResponse{Access: access, Refresh: refresh, DeviceToken: deviceToken}, nil
}

// Login checks the password and binds the device. An unknown phone and a
// wrong password are indistinguishable to the caller.
func (c *Controller) Login(
	ctx context.Context,
	d *dto.DeviceRequest,
	req *dto.LoginRequest,
) (*dto.LoginResponse, error) {
	const op = "auth.Login.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if err := c.gate.Consume(ctx, admission.Login, d.IP); err != nil {
		return nil, err
	}
	if err := c.gate.Consume(ctx, admission.Login, req.Phone); err != nil {
		return nil, err
	}

	if err := c.checkCaptcha(ctx, req.Captcha, captcha.Login); err != nil {
		return nil, err
	}

	acc, err := c.repo.GetAccountByPhone(ctx, req.Phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}

	if err = c.au.ComparePasswords([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	if acc.IsBlocked {
		return nil, ErrAccountBlocked
	}

	acc, deviceToken, err := c.registerDevice(ctx, acc.ID, req.DeviceID)
	if err != nil {
		return nil, err
	}

	access, refresh, err := c.au.GenPair(ctx, subjectOf(acc, req.DeviceID))
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{Access: access, Refresh: refresh, DeviceToken: deviceToken}, nil
}

// Refresh rotates a refresh token. Family, version and device are checked
// inside the store transaction, so a concurrent password change or
// logout-everywhere is ordered against it.
func (c *Controller) Refresh(
	ctx context.Context,
	d *dto.DeviceRequest,
	req *dto.RefreshRequest,
) (*dto.TokenPair, error) {
	const op = "auth.Refresh.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	claims, err := c.au.Verify(ctx, req.Refresh)
	if err != nil {
		if rlErr := c.gate.Consume(ctx, admission.Request, d.IP); rlErr != nil {
			return nil, rlErr
		}
		return nil, err
	}

	if claims.Kind != jwt.KindRefresh {
		return nil, jwt.ErrMalformed
	}

	if err = c.gate.Consume(ctx, admission.Request, claims.UID.String()); err != nil {
		return nil, err
	}

	acc, err := c.repo.UpdateAccount(
		ctx, claims.UID, func(a *md.Account) error {
			if a.TokenFamily != claims.Family || a.TokenVersion != claims.Version {
				return ErrInvalidTokenFamily
			}
			if a.IsBlocked {
				return ErrAccountBlocked
			}
			if err := a.TouchDevice(claims.DeviceID, c.now()); err != nil {
				return ErrInvalidTokenFamily
			}
			return nil
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidTokenFamily):
			zap.L().Warn(
				"refresh token outside current family",
				zap.String("op", op),
				zap.String("uid", claims.UID.String()),
				zap.String("device", claims.DeviceID),
				zap.String("ip", d.IP),
			)
			return nil, ErrInvalidTokenFamily
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrInvalidTokenFamily
		}
		return nil, err
	}

	access, refresh, err := c.au.GenPair(ctx, subjectOf(acc, claims.DeviceID))
	if err != nil {
		return nil, err
	}

	return &dto.TokenPair{Access: access, Refresh: refresh}, nil
}

// Logout ends the session of a single device. Its slot stays taken.
func (c *Controller) Logout(ctx context.Context, uid uuid.UUID, deviceID string) error {
	const op = "auth.Logout.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return c.ClearDevice(ctx, uid, deviceID)
}

// LogoutAll rotates the token family and clears every device.
func (c *Controller) LogoutAll(ctx context.Context, uid uuid.UUID) error {
	const op = "auth.LogoutAll.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	_, err := c.updateAccount(
		ctx, uid, func(a *md.Account) error {
			a.RotateFamily()
			a.ClearAllDevices()
			return nil
		},
	)
	if err != nil {
		return err
	}

	zap.L().Info("logged out everywhere", zap.String("uid", uid.String()))
	return nil
}

func (c *Controller) ChangePassword(ctx context.Context, uid uuid.UUID, req *dto.ChangePasswordRequest) error {
	const op = "auth.ChangePassword.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	hash, err := c.au.Hash(req.New)
	if err != nil {
		zap.L().Error("failed to hash password", zap.String("op", op), zap.Error(err))
		return err
	}

	_, err = c.updateAccount(
		ctx, uid, func(a *md.Account) error {
			if err := c.au.ComparePasswords([]byte(a.PasswordHash), []byte(req.Old)); err != nil {
				return auth.ErrInvalidCredentials
			}
			a.PasswordHash = hash
			a.RotateFamily()
			a.ClearAllDevices()
			return nil
		},
	)
	return err
}
