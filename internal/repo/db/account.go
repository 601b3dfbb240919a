package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/JMURv/session-core/internal/config"
	md "github.com/JMURv/session-core/internal/models"
	"github.com/JMURv/session-core/internal/repo"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

func (r *Repository) GetAccountByID(ctx context.Context, id uuid.UUID) (*md.Account, error) {
	const op = "accounts.GetAccountByID.repo"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return r.getAccount(ctx, r.conn, accountGetByIDQ, id)
}

func (r *Repository) GetAccountByPhone(ctx context.Context, phone string) (*md.Account, error) {
	const op = "accounts.GetAccountByPhone.repo"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	return r.getAccount(ctx, r.conn, accountGetByPhoneQ, phone)
}

func (r *Repository) getAccount(ctx context.Context, q sqlx.QueryerContext, query string, arg any) (*md.Account, error) {
	acc := &md.Account{}
	if err := sqlx.GetContext(ctx, q, acc, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		zap.L().Error("failed to get account", zap.Any("key", arg), zap.Error(err))
		return nil, err
	}

	acc.Devices = []md.DeviceRecord{}
	if err := sqlx.SelectContext(ctx, q, &acc.Devices, devicesListQ, acc.ID); err != nil {
		zap.L().Error("failed to list devices", zap.String("id", acc.ID.String()), zap.Error(err))
		return nil, err
	}

	return acc, nil
}

func (r *Repository) CreateAccount(ctx context.Context, acc *md.Account) error {
	const op = "accounts.CreateAccount.repo"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Error("failed to rollback", zap.String("op", op), zap.Error(err))
		}
	}()

	err = tx.QueryRowxContext(
		ctx,
		accountCreateQ,
		acc.ID,
		acc.Phone,
		acc.Email,
		acc.PasswordHash,
		acc.TokenVersion,
		acc.TokenFamily,
		acc.IsVerified,
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrAlreadyExists
		}
		span.SetTag(config.ErrorSpanTag, true)
		zap.L().Error("failed to create account", zap.String("op", op), zap.Error(err))
		return err
	}

	if err = syncDevices(ctx, tx, acc.ID, nil, acc.Devices); err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		return err
	}

	return tx.Commit()
}

// UpdateAccount runs fn against the row-locked account and persists what fn
// changed. Devices are merged: only added, changed or removed records are
// written, so concurrent edits of other devices are kept.
func (r *Repository) UpdateAccount(
	ctx context.Context,
	id uuid.UUID,
	fn func(*md.Account) error,
) (*md.Account, error) {
	const op = "accounts.UpdateAccount.repo"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		return nil, err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zap.L().Error("failed to rollback", zap.String("op", op), zap.Error(err))
		}
	}()

	acc, err := r.getAccount(ctx, tx, accountLockQ, id)
	if err != nil {
		return nil, err
	}

	before := make([]md.DeviceRecord, len(acc.Devices))
	copy(before, acc.Devices)

	if err = fn(acc); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(
		ctx,
		accountUpdateQ,
		acc.PasswordHash,
		acc.TokenVersion,
		acc.TokenFamily,
		acc.IsBlocked,
		acc.IsVerified,
		acc.ID,
	)
	if err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		zap.L().Error("failed to update account", zap.String("op", op), zap.Error(err))
		return nil, err
	}

	if err = syncDevices(ctx, tx, acc.ID, before, acc.Devices); err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		return nil, err
	}
	return acc, nil
}

func syncDevices(ctx context.Context, tx *sqlx.Tx, accountID uuid.UUID, before, after []md.DeviceRecord) error {
	kept := make(map[string]struct{}, len(after))
	for i, d := range after {
		kept[d.DeviceID] = struct{}{}
		if i < len(before) && before[i] == d {
			continue
		}

		if _, err := tx.ExecContext(ctx, deviceUpsertQ, accountID, d.DeviceID, d.DeviceToken, i, d.LastUsedAt); err != nil {
			zap.L().Error("failed to upsert device", zap.String("device", d.DeviceID), zap.Error(err))
			return err
		}
	}

	for _, d := range before {
		if _, ok := kept[d.DeviceID]; ok {
			continue
		}

		if _, err := tx.ExecContext(ctx, deviceDeleteQ, accountID, d.DeviceID); err != nil {
			zap.L().Error("failed to delete device", zap.String("device", d.DeviceID), zap.Error(err))
			return err
		}
	}
	return nil
}
