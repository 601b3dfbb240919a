package interceptors

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/internal/hdl"
	"github.com/JMURv/session-core/internal/hdl/http/utils"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const newTokenMD = "x-new-token"

// Calls under these prefixes skip authentication.
var exempt = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

type Authenticator interface {
	Authenticate(ctx context.Context, token, ip string) (*dto.Identity, error)
}

func isExempt(method string) bool {
	for _, p := range exempt {
		if strings.HasPrefix(method, p) {
			return true
		}
	}
	return false
}

func tokenFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return utils.BearerToken(vals[0])
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}

	addr := p.Addr.String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func authenticate(ctx context.Context, au Authenticator) (context.Context, *dto.Identity, error) {
	ident, err := au.Authenticate(ctx, tokenFrom(ctx), peerIP(ctx))
	if err != nil {
		f := hdl.Classify(err)
		return ctx, nil, status.Error(f.GRPC, f.Message)
	}

	ctx = context.WithValue(ctx, config.UidKey, ident.AccountID)
	ctx = context.WithValue(ctx, config.IdentityKey, ident)
	return ctx, ident, nil
}

// AuthUnary authenticates every non-exempt unary call. A renewed access token
// is returned in the x-new-token response header.
func AuthUnary(au Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isExempt(info.FullMethod) {
			return handler(ctx, req)
		}

		ctx, ident, err := authenticate(ctx, au)
		if err != nil {
			return nil, err
		}

		if ident.NewToken != "" {
			if err = grpc.SetHeader(ctx, metadata.Pairs(newTokenMD, ident.NewToken)); err != nil {
				zap.L().Debug("failed to set header", zap.String("method", info.FullMethod), zap.Error(err))
			}
		}
		return handler(ctx, req)
	}
}

type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context {
	return s.ctx
}

func AuthStream(au Authenticator) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isExempt(info.FullMethod) {
			return handler(srv, ss)
		}

		ctx, ident, err := authenticate(ss.Context(), au)
		if err != nil {
			return err
		}

		if ident.NewToken != "" {
			if err = ss.SetHeader(metadata.Pairs(newTokenMD, ident.NewToken)); err != nil {
				zap.L().Debug("failed to set header", zap.String("method", info.FullMethod), zap.Error(err))
			}
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}

func LogTraceMetrics() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		s := time.Now()
		span, ctx := opentracing.StartSpanFromContext(ctx, info.FullMethod)
		defer span.Finish()

		res, err := handler(ctx, req)
		code := status.Code(err)
		metrics.ObserveRequest(time.Since(s), int(code), info.FullMethod)
		if err != nil {
			span.SetTag(config.ErrorSpanTag, true)
		}

		zap.L().Info(
			"<--",
			zap.String("method", info.FullMethod),
			zap.String("status", code.String()),
			zap.Duration("duration", time.Since(s)),
			zap.Error(err),
		)
		return res, err
	}
}
