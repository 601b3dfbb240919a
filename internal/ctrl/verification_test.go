package ctrl

import (
	"context"
	"errors"
	"testing"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/dto"
	md "github.com/JMURv/session-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Verification(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, testAdmission)
	res := env.signup(t, testPhone, "d1")

	ident, err := env.ctrl.Authenticate(ctx, res.Access, testIP)
	require.NoError(t, err)
	uid := ident.AccountID

	require.NoError(t, env.ctrl.SendVerificationCode(ctx, uid))
	code := env.mailer.code("a@example.com")
	require.Len(t, code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = env.ctrl.ConfirmVerification(ctx, uid, &dto.ConfirmVerificationRequest{Code: wrong})
	assert.ErrorIs(t, err, ErrCodeIsNotValid)

	require.NoError(t, env.ctrl.ConfirmVerification(ctx, uid, &dto.ConfirmVerificationRequest{Code: code}))

	acc, err := env.ctrl.GetAccount(ctx, uid)
	require.NoError(t, err)
	assert.True(t, acc.IsVerified)

	t.Run("CodeIsSingleUse", func(t *testing.T) {
		err := env.ctrl.ConfirmVerification(ctx, uid, &dto.ConfirmVerificationRequest{Code: code})
		assert.ErrorIs(t, err, ErrCodeIsNotValid)
	})

	t.Run("AlreadyVerified", func(t *testing.T) {
		assert.ErrorIs(t, env.ctrl.SendVerificationCode(ctx, uid), ErrAlreadyVerified)
	})

	t.Run("RateLimited", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, env.ctrl.SendVerificationCode(ctx, uid), ErrAlreadyVerified)
		}
		assert.ErrorIs(t, env.ctrl.SendVerificationCode(ctx, uid), admission.ErrRateLimited)
	})
}

func TestController_Verification_ResendsKeepConfirmBudget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, testAdmission)
	res := env.signup(t, testPhone, "d1")

	ident, err := env.ctrl.Authenticate(ctx, res.Access, testIP)
	require.NoError(t, err)
	uid := ident.AccountID

	for i := int64(0); i < testAdmission.VerifyLimit; i++ {
		require.NoError(t, env.ctrl.SendVerificationCode(ctx, uid))
	}
	assert.ErrorIs(t, env.ctrl.SendVerificationCode(ctx, uid), admission.ErrRateLimited)

	code := env.mailer.code("a@example.com")
	require.NoError(t, env.ctrl.ConfirmVerification(ctx, uid, &dto.ConfirmVerificationRequest{Code: code}))
}

func TestController_SendVerificationCode_Errors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, testAdmission)
	res := env.signup(t, testPhone, "d1")

	ident, err := env.ctrl.Authenticate(ctx, res.Access, testIP)
	require.NoError(t, err)

	t.Run("MailerFailure", func(t *testing.T) {
		env.mailer.err = errors.New("smtp down")
		defer func() { env.mailer.err = nil }()

		assert.Error(t, env.ctrl.SendVerificationCode(ctx, ident.AccountID))
	})

	t.Run("CacheDownSendsNothing", func(t *testing.T) {
		env.mr.Close()
		defer func() { require.NoError(t, env.mr.Restart()) }()

		assert.Error(t, env.ctrl.SendVerificationCode(ctx, ident.AccountID))
		assert.Empty(t, env.mailer.code("a@example.com"))
	})

	t.Run("NoEmail", func(t *testing.T) {
		_, err := env.ctrl.repo.UpdateAccount(
			ctx, ident.AccountID, func(a *md.Account) error {
				a.Email = ""
				return nil
			},
		)
		require.NoError(t, err)
		assert.ErrorIs(t, env.ctrl.SendVerificationCode(ctx, ident.AccountID), ErrNoEmail)
	})
}
