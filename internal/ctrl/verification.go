package ctrl

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/cache"
	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	md "github.com/JMURv/session-core/internal/models"
	"github.com/JMURv/session-core/internal/repo"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

const (
	verifyKey = "verify:%s"

	verifySendSubject    = "send:%s"
	verifyConfirmSubject = "confirm:%s"
)

func fmtKey(format string, v any) string {
	return fmt.Sprintf(format, v)
}

func (c *Controller) SendVerificationCode(ctx context.Context, id uuid.UUID) error {
	const op = "accounts.SendVerificationCode.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if err := c.gate.Consume(ctx, admission.Verify, fmtKey(verifySendSubject, id)); err != nil {
		return err
	}

	acc, err := c.repo.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if acc.IsVerified {
		return ErrAlreadyVerified
	}
	if acc.Email == "" {
		return ErrNoEmail
	}

	code, err := newVerificationCode()
	if err != nil {
		return err
	}

	bytes, err := json.Marshal(code)
	if err != nil {
		return err
	}
	if err = c.cache.Set(ctx, config.VerifyCodeTime, fmtKey(verifyKey, id), bytes); err != nil {
		zap.L().Error("failed to store verification code", zap.String("op", op), zap.Error(err))
		return err
	}

	if err = c.mailer.SendVerificationCode(ctx, acc.Email, code); err != nil {
		zap.L().Error("failed to send verification code", zap.String("op", op), zap.Error(err))
		return err
	}
	return nil
}

func (c *Controller) ConfirmVerification(ctx context.Context, id uuid.UUID, req *dto.ConfirmVerificationRequest) error {
	const op = "accounts.ConfirmVerification.ctrl"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if err := c.gate.Consume(ctx, admission.Verify, fmtKey(verifyConfirmSubject, id)); err != nil {
		return err
	}

	key := fmtKey(verifyKey, id)
	var stored string
	if err := c.cache.GetToStruct(ctx, key, &stored); err != nil {
		if errors.Is(err, cache.ErrNotFoundInCache) {
			return ErrCodeIsNotValid
		}
		return err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(req.Code)) != 1 {
		return ErrCodeIsNotValid
	}
	c.cache.Delete(ctx, key)

	_, err := c.updateAccount(
		ctx, id, func(a *md.Account) error {
			a.IsVerified = true
			return nil
		},
	)
	return err
}
