package http

import (
	"net/http"
	"time"

	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/internal/hdl/http/utils"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	ot "github.com/opentracing/opentracing-go"
)

// me godoc
//
//	@Summary		Current account
//	@Tags			Account
//	@Produce		json
//	@Param			Authorization	header		string	true	"Bearer access token"
//	@Success		200				{object}	utils.Response{data=dto.AccountResponse}
//	@Failure		401				{object}	utils.ErrorsResponse
//	@Failure		500				{object}	utils.ErrorsResponse
//	@Router			/me [get]
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	const op = "accounts.me.hdl"
	s, c := time.Now(), http.StatusOK
	span, ctx := ot.StartSpanFromContext(r.Context(), op)
	defer func() {
		span.Finish()
		metrics.ObserveRequest(time.Since(s), c, op)
	}()

	ident, ok := identity(w, r)
	if !ok {
		c = http.StatusInternalServerError
		return
	}

	res, err := h.ctrl.GetAccount(ctx, ident.AccountID)
	if err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, c, res)
}

// sendVerification godoc
//
//	@Summary		Send verification code
//	@Description	E-mail a one-time code valid for 10 minutes
//	@Tags			Account
//	@Produce		json
//	@Param			Authorization	header	string	true	"Bearer access token"
//	@Success		204
//	@Failure		400	{object}	utils.ErrorsResponse	"no e-mail on the account"
//	@Failure		409	{object}	utils.ErrorsResponse	"already verified"
//	@Failure		429	{object}	utils.ErrorsResponse
//	@Failure		500	{object}	utils.ErrorsResponse
//	@Router			/auth/verification/send [post]
func (h *Handler) sendVerification(w http.ResponseWriter, r *http.Request) {
	const op = "accounts.sendVerification.hdl"
	s, c := time.Now(), http.StatusNoContent
	span, ctx := ot.StartSpanFromContext(r.Context(), op)
	defer func() {
		span.Finish()
		metrics.ObserveRequest(time.Since(s), c, op)
	}()

	ident, ok := identity(w, r)
	if !ok {
		c = http.StatusInternalServerError
		return
	}

	if err := h.ctrl.SendVerificationCode(ctx, ident.AccountID); err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.StatusResponse(w, c)
}

// confirmVerification godoc
//
//	@Summary		Confirm verification code
//	@Tags			Account
//	@Accept			json
//	@Produce		json
//	@Param			Authorization	header	string							true	"Bearer access token"
//	@Param			body			body	dto.ConfirmVerificationRequest	true	"Code"
//	@Success		204
//	@Failure		400	{object}	utils.ErrorsResponse	"code is not valid"
//	@Failure		429	{object}	utils.ErrorsResponse
//	@Failure		500	{object}	utils.ErrorsResponse
//	@Router			/auth/verification/confirm [post]
func (h *Handler) confirmVerification(w http.ResponseWriter, r *http.Request) {
	const op = "accounts.confirmVerification.hdl"
	s, c := time.Now(), http.StatusNoContent
	span, ctx := ot.StartSpanFromContext(r.Context(), op)
	defer func() {
		span.Finish()
		metrics.ObserveRequest(time.Since(s), c, op)
	}()

	ident, ok := identity(w, r)
	if !ok {
		c = http.StatusInternalServerError
		return
	}

	req := &dto.ConfirmVerificationRequest{}
	if ok = utils.ParseAndValidate(w, r, req); !ok {
		c = http.StatusBadRequest
		return
	}

	if err := h.ctrl.ConfirmVerification(ctx, ident.AccountID, req); err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.StatusResponse(w, c)
}
