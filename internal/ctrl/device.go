package ctrl

import (
	"context"
	"errors"

	"github.com/JMURv/session-core/internal/dto"
	md "github.com/JMURv/session-core/internal/models"
	"github.com/JMURv/session-core/internal/repo"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type deviceCtrl interface {
	RegisterDevice(ctx context.Context, uid uuid.UUID, deviceID string) (string, error)
	ClearDevice(ctx context.Context, uid uuid.UUID, deviceID string) error
	RemoveDevice(ctx context.Context, uid uuid.UUID, deviceID string) error
	ListDevices(ctx context.Context, uid uuid.UUID) ([]dto.DeviceResponse, error)
}

// RegisterDevice binds deviceID to the account and returns a fresh device
// token. It fails with ErrDeviceLimitExceeded when every slot is taken.
func (c *Controller) RegisterDevice(ctx context.Context, uid uuid.UUID, deviceID string) (string, error) {
	const op = "devices.RegisterDevice.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	_, token, err := c.registerDevice(ctx, uid, deviceID)
	return token, err
}

func (c *Controller) registerDevice(ctx context.Context, uid uuid.UUID, deviceID string) (*md.Account, string, error) {
	const op = "devices.registerDevice.ctrl"

	token, err := newDeviceToken()
	if err != nil {
		return nil, "", err
	}

	acc, err := c.updateAccount(
		ctx, uid, func(a *md.Account) error {
			if a.IsBlocked {
				return ErrAccountBlocked
			}
			return a.RegisterDevice(deviceID, token, c.now())
		},
	)
	if err != nil {
		if errors.Is(err, md.ErrDeviceLimitExceeded) {
			zap.L().Debug("device limit reached", zap.String("op", op), zap.String("uid", uid.String()))
		}
		return nil, "", err
	}

	return acc, token, nil
}

func (c *Controller) ClearDevice(ctx context.Context, uid uuid.UUID, deviceID string) error {
	const op = "devices.ClearDevice.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	_, err := c.updateAccount(
		ctx, uid, func(a *md.Account) error {
			return a.ClearDevice(deviceID)
		},
	)
	if errors.Is(err, md.ErrDeviceNotFound) {
		return ErrNotFound
	}
	return err
}

// RemoveDevice frees the slot so another device can take it.
func (c *Controller) RemoveDevice(ctx context.Context, uid uuid.UUID, deviceID string) error {
	const op = "devices.RemoveDevice.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	_, err := c.updateAccount(
		ctx, uid, func(a *md.Account) error {
			return a.RemoveDevice(deviceID)
		},
	)
	if errors.Is(err, md.ErrDeviceNotFound) {
		return ErrNotFound
	}
	return err
}

func (c *Controller) ListDevices(ctx context.Context, uid uuid.UUID) ([]dto.DeviceResponse, error) {
	const op = "devices.ListDevices.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	acc, err := c.repo.GetAccountByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return devicesResponse(acc.Devices), nil
}
