package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/auth"
	"github.com/JMURv/session-core/internal/auth/captcha"
	"github.com/JMURv/session-core/internal/auth/jwt"
	"github.com/JMURv/session-core/internal/cache/redis"
	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/ctrl"
	"github.com/JMURv/session-core/internal/hdl/grpc"
	"github.com/JMURv/session-core/internal/hdl/http"
	"github.com/JMURv/session-core/internal/hdl/http/middleware"
	"github.com/JMURv/session-core/internal/hdl/ws"
	"github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	"github.com/JMURv/session-core/internal/observability/tracing/jaeger"
	"github.com/JMURv/session-core/internal/repo/db"
	"github.com/JMURv/session-core/internal/smtp"
	"go.uber.org/zap"
)

const (
	configPath      = ".env"
	shutdownTimeout = 10 * time.Second
)

func mustRegisterLogger(mode string) {
	switch mode {
	case "prod":
		zap.ReplaceGlobals(zap.Must(zap.NewProduction()))
	case "dev":
		zap.ReplaceGlobals(zap.Must(zap.NewDevelopment()))
	}
}

func main() {
	defer func() {
		if err := recover(); err != nil {
			zap.L().Panic("panic occurred", zap.Any("error", err))
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := config.MustLoad(configPath)
	mustRegisterLogger(conf.Server.Mode)

	go prometheus.New(conf.Server.Port + 5).Start(ctx)
	go jaeger.Start(ctx, conf.ServiceName, conf.Jaeger)

	tokens, err := jwt.New(conf.Auth.JWT)
	if err != nil {
		if errors.Is(err, jwt.ErrWeakSecret) {
			zap.L().Fatal("refusing to start with a weak signing secret", zap.Error(err))
		}
		zap.L().Fatal("failed to init token issuer", zap.Error(err))
	}

	cache := redis.New(conf.Redis)
	repo := db.New(conf.DB)
	gate := admission.New(cache, conf.Admission)

	svc := ctrl.New(
		auth.New(tokens),
		repo,
		cache,
		gate,
		smtp.New(conf.Email),
		captcha.New(conf.Auth.Captcha),
	)

	proxies, err := middleware.ParseProxies(conf.Server.TrustedProxies)
	if err != nil {
		zap.L().Fatal("failed to parse trusted proxies", zap.Error(err))
	}

	hh := http.New(svc, ws.New(svc, conf.WS), proxies)
	gh := grpc.New(conf.ServiceName, svc)

	zap.L().Info(
		"Starting servers",
		zap.String("scheme", conf.Server.Scheme),
		zap.String("domain", conf.Server.Domain),
		zap.Int("port", conf.Server.Port),
		zap.Int("grpc_port", conf.Server.GRPCPort),
	)
	go hh.Start(conf.Server.Port)
	go gh.Start(conf.Server.GRPCPort)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	zap.L().Info("Shutting down gracefully...")
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()

	if err = hh.Close(sctx); err != nil {
		zap.L().Warn("Error closing http handler", zap.Error(err))
	}

	if err = gh.Close(); err != nil {
		zap.L().Warn("Error closing grpc handler", zap.Error(err))
	}

	if err = cache.Close(); err != nil {
		zap.L().Warn("Failed to close connection to Redis: ", zap.Error(err))
	}

	if err = repo.Close(sctx); err != nil {
		zap.L().Warn("Error closing repository", zap.Error(err))
	}

	cancel()
	os.Exit(0)
}
