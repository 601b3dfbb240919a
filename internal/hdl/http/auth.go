package http

import (
	"net/http"
	"time"

	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/internal/hdl"
	"github.com/JMURv/session-core/internal/hdl/http/utils"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	ot "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

func identity(w http.ResponseWriter, r *http.Request) (*dto.Identity, bool) {
	ident, ok := r.Context().Value(config.IdentityKey).(*dto.Identity)
	if !ok {
		zap.L().Error(
			hdl.ErrFailedToGetUUID.Error(),
			zap.Any("identity", r.Context().Value(config.IdentityKey)),
		)
		utils.ErrResponse(w, http.StatusInternalServerError, hdl.ErrInternal)
		return nil, false
	}
	return ident, true
}

// signup godoc
//
//	@Summary		Create an account
//	@Description	Verify reCAPTCHA, create the account and bind the first device
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			body	body		dto.SignupRequest	true	"Account data"
//	@Success		201		{object}	utils.Response{data=dto.LoginResponse}
//	@Failure		400		{object}	utils.ErrorsResponse
//	@Failure		409		{object}	utils.ErrorsResponse	"phone already registered"
//	@Failure		429		{object}	utils.ErrorsResponse
//	@Failure		500		{object}	utils.ErrorsResponse
//	@Router			/auth/signup [post]
func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	const op = "auth.signup.hdl"
	s, c := time.Now(), http.StatusCreated
	span, ctx := ot.StartSpanFromContext(r.Context(), op)
	defer func() {
		span.Finish()
		metrics.ObserveRequest(time.Since(s), c, op)
	}()

	d, ok := utils.ParseDeviceByRequest(ctx)
	if !ok {
		c = utils.ErrorResponse(w, hdl.ErrNoDeviceInfo)
		return
	}

	req := &dto.SignupRequest{}
	if ok = utils.ParseAndValidate(w, r, req); !ok {
		c = http.StatusBadRequest
		return
	}

	res, err := h.ctrl.Signup(ctx, &d, req)
	if err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, c, res)
}

// login godoc
//
//	@Summary		Login with phone & password
//	@Description	Verify reCAPTCHA, check credentials and bind the device
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			body	body		dto.LoginRequest	true	"Login credentials"
//	@Success		200		{object}	utils.Response{data=dto.LoginResponse}
//	@Failure		400		{object}	utils.ErrorsResponse
//	@Failure		401		{object}	utils.ErrorsResponse	"invalid credentials"
//	@Failure		403		{object}	utils.ErrorsResponse	"account blocked"
//	@Failure		409		{object}	utils.ErrorsResponse	"device limit exceeded"
//	@Failure		429		{object}	utils.ErrorsResponse
//	@Failure		500		{object}	utils.ErrorsResponse
//	@Router			/auth/login [post]
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	const op = "auth.login.hdl"
	s, c := time.Now(), http.StatusOK
	span, ctx := ot.StartSpanFromContext(r.Context(), op)
	defer func() {
		span.Finish()
		metrics.ObserveRequest(time.Since(s), c, op)
	}()

	d, ok := utils.ParseDeviceByRequest(ctx)
	if !ok {
		c = utils.ErrorResponse(w, hdl.ErrNoDeviceInfo)
		return
	}

	req := &dto.LoginRequest{}
	if ok = utils.ParseAndValidate(w, r, req); !ok {
		c = http.StatusBadRequest
		return
	}

	res, err := h.ctrl.Login(ctx, &d, req)
	if err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, c, res)
}

// refresh godoc
//
//	@Summary		Refresh tokens
//	@Description	Exchange a refresh token of the current family for a new pair
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			body	body		dto.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	utils.Response{data=dto.TokenPair}
//	@Failure		400		{object}	utils.ErrorsResponse
//	@Failure		401		{object}	utils.ErrorsResponse	"invalid token family"
//	@Failure		429		{object}	utils.ErrorsResponse
//	@Failure		500		{object}	utils.ErrorsResponse
//	@Router			/auth/refresh [post]
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	const op = "auth.refresh.hdl"
	s, c := time.Now(), http.StatusOK
	span, ctx := ot.StartSpanFromContext(r.Context(), op)
	defer func() {
		span.Finish()
		metrics.ObserveRequest(time.Since(s), c, op)
	}()

	d, ok := utils.ParseDeviceByRequest(ctx)
	if !ok {
		c = utils.ErrorResponse(w, hdl.ErrNoDeviceInfo)
		return
	}

	req := &dto.RefreshRequest{}
	if ok = utils.ParseAndValidate(w, r, req); !ok {
		c = http.StatusBadRequest
		return
	}

	res, err := h.ctrl.Refresh(ctx, &d, req)
	if err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, c, res)
}

// logout godoc
//
//	@Summary		Logout the current device
//	@Description	Clear the device token; the device slot is kept
//	@Tags			Authentication
//	@Produce		json
//	@Param			Authorization	header	string	true	"Bearer access token"
//	@Success		204
//	@Failure		401	{object}	utils.ErrorsResponse
//	@Failure		500	{object}	utils.ErrorsResponse
//	@Router			/auth/logout [post]
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	const op = "auth.logout.hdl"
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

	if err := h.ctrl.Logout(ctx, ident.AccountID, ident.DeviceID); err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.StatusResponse(w, c)
}

// logoutAll godoc
//
//	@Summary		Logout everywhere
//	@Description	Rotate the token family; every issued token stops working
//	@Tags			Authentication
//	@Produce		json
//	@Param			Authorization	header	string	true	"Bearer access token"
//	@Success		204
//	@Failure		401	{object}	utils.ErrorsResponse
//	@Failure		500	{object}	utils.ErrorsResponse
//	@Router			/auth/logout-all [post]
func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	const op = "auth.logoutAll.hdl"
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

	if err := h.ctrl.LogoutAll(ctx, ident.AccountID); err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.StatusResponse(w, c)
}

// changePassword godoc
//
//	@Summary		Change password
//	@Description	Replace the password and void every issued token
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			Authorization	header	string						true	"Bearer access token"
//	@Param			body			body	dto.ChangePasswordRequest	true	"Old and new password"
//	@Success		204
//	@Failure		400	{object}	utils.ErrorsResponse
//	@Failure		401	{object}	utils.ErrorsResponse
//	@Failure		500	{object}	utils.ErrorsResponse
//	@Router			/auth/password [put]
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	const op = "auth.changePassword.hdl"
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

	req := &dto.ChangePasswordRequest{}
	if ok = utils.ParseAndValidate(w, r, req); !ok {
		c = http.StatusBadRequest
		return
	}

	if err := h.ctrl.ChangePassword(ctx, ident.AccountID, req); err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.StatusResponse(w, c)
}
