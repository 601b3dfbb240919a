package ctrl

import (
	"context"
	"errors"
	"fmt"

	"github.com/JMURv/session-core/internal/cache"
	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	md "github.com/JMURv/session-core/internal/models"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	"github.com/JMURv/session-core/internal/repo"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type accountCtrl interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*dto.AccountResponse, error)
	SendVerificationCode(ctx context.Context, id uuid.UUID) error
	ConfirmVerification(ctx context.Context, id uuid.UUID, req *dto.ConfirmVerificationRequest) error
}

const (
	accountCacheKey = "account:%v"
	accountGenKey   = "account:%v:gen"
)

type cachedAccount struct {
	acc *md.Account
	err error
}

func (c *Controller) GetAccount(ctx context.Context, id uuid.UUID) (*dto.AccountResponse, error) {
	const op = "accounts.GetAccount.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	acc, err := c.resolveAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	return &dto.AccountResponse{
		ID:         acc.ID,
		Phone:      acc.Phone,
		Email:      acc.Email,
		IsVerified: acc.IsVerified,
		IsAdmin:    acc.IsAdmin,
		Devices:    devicesResponse(acc.Devices),
	}, nil
}

// resolveAccount reads the account from the cache and falls back to the
// credential store on a miss, an error or a slow cache. Only a miss
// repopulates, and only if no mutation landed since the store read began.
func (c *Controller) resolveAccount(ctx context.Context, id uuid.UUID) (*md.Account, error) {
	const op = "accounts.resolveAccount.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	key := fmt.Sprintf(accountCacheKey, id)
	acc, err := c.cachedAccount(ctx, key)
	if err == nil {
		return acc, nil
	}

	miss := errors.Is(err, cache.ErrNotFoundInCache)
	switch {
	case miss:
		metrics.CacheFallbacks.WithLabelValues("miss").Inc()
	case errors.Is(err, ErrCacheTimeout):
		metrics.CacheFallbacks.WithLabelValues("timeout").Inc()
		zap.L().Warn("account cache read timed out", zap.String("op", op), zap.String("id", id.String()))
	default:
		metrics.CacheFallbacks.WithLabelValues("error").Inc()
		zap.L().Warn("account cache read failed", zap.String("op", op), zap.Error(err))
	}

	genKey := fmt.Sprintf(accountGenKey, id)
	var gen int64
	if miss {
		if gen, err = c.cache.Generation(ctx, genKey); err != nil {
			zap.L().Debug("failed to read account generation", zap.String("op", op), zap.Error(err))
			miss = false
		}
	}

	acc, err = c.repo.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !miss {
		return acc, nil
	}

	bytes, err := json.Marshal(acc)
	if err != nil {
		return acc, nil
	}

	ok, err := c.cache.SetAtGeneration(ctx, config.MinCacheTime, key, genKey, gen, bytes)
	if err != nil {
		zap.L().Debug("failed to repopulate account", zap.String("op", op), zap.Error(err))
	} else if !ok {
		zap.L().Debug("account changed during read, not cached", zap.String("op", op), zap.String("id", id.String()))
	}
	return acc, nil
}

// cachedAccount bounds the cache read by cacheTimeout. A reply that arrives
// after the deadline lands in the buffered channel and is dropped.
func (c *Controller) cachedAccount(ctx context.Context, key string) (*md.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()

	res := make(chan cachedAccount, 1)
	go func() {
		acc := &md.Account{}
		err := c.cache.GetToStruct(ctx, key, acc)
		res <- cachedAccount{acc: acc, err: err}
	}()

	select {
	case r := <-res:
		return r.acc, r.err
	case <-ctx.Done():
		return nil, ErrCacheTimeout
	}
}

func (c *Controller) invalidateAccount(ctx context.Context, id uuid.UUID) {
	const op = "accounts.invalidateAccount.ctrl"
	if err := c.cache.Invalidate(ctx, fmt.Sprintf(accountCacheKey, id), fmt.Sprintf(accountGenKey, id)); err != nil {
		zap.L().Error("failed to invalidate cached account", zap.String("op", op), zap.String("id", id.String()), zap.Error(err))
	}
}

// updateAccount runs fn in a store transaction, then drops the cached copy
// and advances its generation.
func (c *Controller) updateAccount(ctx context.Context, id uuid.UUID, fn func(*md.Account) error) (*md.Account, error) {
	acc, err := c.repo.UpdateAccount(ctx, id, fn)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	c.invalidateAccount(ctx, id)
	return acc, nil
}

func devicesResponse(devices []md.DeviceRecord) []dto.DeviceResponse {
	res := make([]dto.DeviceResponse, 0, len(devices))
	for _, d := range devices {
		res = append(
			res, dto.DeviceResponse{
				DeviceID:   d.DeviceID,
				Active:     d.Active(),
				LastUsedAt: d.LastUsedAt,
			},
		)
	}
	return res
}
