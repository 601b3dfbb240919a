package grpc

import (
	"errors"
	"fmt"
	"net"

	"github.com/JMURv/session-core/internal/ctrl"
	"github.com/JMURv/session-core/internal/hdl/grpc/interceptors"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	pm "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Handler struct {
	srv  *grpc.Server
	hsrv *health.Server
	ctrl ctrl.AppCtrl
}

func New(name string, ctrl ctrl.AppCtrl) *Handler {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			metrics.SrvMetrics.UnaryServerInterceptor(
				pm.WithExemplarFromContext(metrics.Exemplar),
			),
			interceptors.LogTraceMetrics(),
			interceptors.AuthUnary(ctrl),
		),
		grpc.ChainStreamInterceptor(
			metrics.SrvMetrics.StreamServerInterceptor(
				pm.WithExemplarFromContext(metrics.Exemplar),
			),
			interceptors.AuthStream(ctrl),
		),
	)

	hsrv := health.NewServer()
	hsrv.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)

	h := &Handler{
		ctrl: ctrl,
		srv:  srv,
		hsrv: hsrv,
	}

	srv.RegisterService(&sessionDesc, h)
	grpc_health_v1.RegisterHealthServer(srv, hsrv)
	reflection.Register(srv)
	metrics.SrvMetrics.InitializeMetrics(srv)
	return h
}

func (h *Handler) Serve(lis net.Listener) error {
	if err := h.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (h *Handler) Start(port int) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		zap.L().Fatal("failed to listen", zap.Error(err))
	}

	if err = h.Serve(lis); err != nil {
		zap.L().Fatal("failed to serve", zap.Error(err))
	}
}

func (h *Handler) Close() error {
	h.hsrv.Shutdown()
	h.srv.GracefulStop()
	return nil
}
