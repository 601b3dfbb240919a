package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	_ "github.com/JMURv/session-core/api/rest/v1"
	"github.com/JMURv/session-core/internal/ctrl"
	mid "github.com/JMURv/session-core/internal/hdl/http/middleware"
	"github.com/JMURv/session-core/internal/hdl/http/utils"
	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

type Handler struct {
	router *chi.Mux
	srv    *http.Server
	ctrl   ctrl.AppCtrl
	ws     http.Handler
}

// New builds the REST handler. ws serves the persistent-connection
// handshake at /ws. Forwarding headers are honoured only from proxies.
func New(ctrl ctrl.AppCtrl, ws http.Handler, proxies []netip.Prefix) *Handler {
	h := &Handler{
		router: chi.NewRouter(),
		ctrl:   ctrl,
		ws:     ws,
	}

	h.router.Use(
		mid.Logger(zap.L()),
		middleware.StripSlashes,
		middleware.RequestID,
		mid.RealIP(proxies),
		middleware.Recoverer,
		mid.Prometheus,
		mid.OT,
	)

	h.RegisterRoutes()
	h.router.Get("/swagger/*", httpSwagger.WrapHandler)
	h.router.Get(
		"/health", func(w http.ResponseWriter, r *http.Request) {
			utils.SuccessResponse(w, http.StatusOK, "OK")
		},
	)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) Start(port int) {
	h.srv = &http.Server{
		Handler:           h.router,
		Addr:              fmt.Sprintf(":%v", port),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	zap.L().Info(
		"Starting HTTP server",
		zap.String("addr", h.srv.Addr),
	)

	err := h.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		zap.L().Error("Server error", zap.Error(err))
	}
}

func (h *Handler) Close(ctx context.Context) error {
	if h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}
