package http

import (
	"net/http"
	"time"

	"github.com/JMURv/session-core/internal/hdl"
	"github.com/JMURv/session-core/internal/hdl/http/utils"
	"github.com/JMURv/session-core/internal/hdl/validation"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	chi "github.com/go-chi/chi/v5"
	ot "github.com/opentracing/opentracing-go"
)

// listDevices godoc
//
//	@Summary		List devices
//	@Description	Device slots of the account; device tokens are never exposed
//	@Tags			Devices
//	@Produce		json
//	@Param			Authorization	header		string	true	"Bearer access token"
//	@Success		200				{object}	utils.Response{data=[]dto.DeviceResponse}
//	@Failure		401				{object}	utils.ErrorsResponse
//	@Failure		500				{object}	utils.ErrorsResponse
//	@Router			/devices [get]
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	const op = "devices.listDevices.hdl"
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

	res, err := h.ctrl.ListDevices(ctx, ident.AccountID)
	if err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, c, res)
}

// removeDevice godoc
//
//	@Summary		Remove a device
//	@Description	Free the device slot so another device can be registered
//	@Tags			Devices
//	@Produce		json
//	@Param			Authorization	header	string	true	"Bearer access token"
//	@Param			id				path	string	true	"Device ID"
//	@Success		204
//	@Failure		400	{object}	utils.ErrorsResponse
//	@Failure		401	{object}	utils.ErrorsResponse
//	@Failure		404	{object}	utils.ErrorsResponse
//	@Failure		500	{object}	utils.ErrorsResponse
//	@Router			/devices/{id} [delete]
func (h *Handler) removeDevice(w http.ResponseWriter, r *http.Request) {
	const op = "devices.removeDevice.hdl"
	s, c := time.Now(), http.StatusNoContent
	span, ctx := ot.StartSpanFromContext(r.Context(), op)
	defer func() {
		span.Finish()
		metrics.ObserveRequest(time.Since(s), c, op)
	}()

	deviceID := chi.URLParam(r, "id")
	if !validation.DeviceID(deviceID) {
		c = http.StatusBadRequest
		utils.ErrResponse(w, c, hdl.ErrToRetrievePathArg)
		return
	}

	ident, ok := identity(w, r)
	if !ok {
		c = http.StatusInternalServerError
		return
	}

	if err := h.ctrl.RemoveDevice(ctx, ident.AccountID, deviceID); err != nil {
		c = utils.ErrorResponse(w, err)
		return
	}

	utils.StatusResponse(w, c)
}
