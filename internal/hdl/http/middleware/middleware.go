package middleware

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/internal/hdl"
	"github.com/JMURv/session-core/internal/hdl/http/utils"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	chi "github.com/go-chi/chi/v5"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

var (
	ErrHijackUnsupported = errors.New("response writer does not support hijacking")
	ErrBadProxy          = errors.New("bad trusted proxy entry")
)

type Authenticator interface {
	Authenticate(ctx context.Context, token, ip string) (*dto.Identity, error)
}

// Auth runs the request authenticator. A renewed access token is handed
// back in the X-New-Token header.
func Auth(au Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				token := utils.BearerToken(r.Header.Get("Authorization"))
				ident, err := au.Authenticate(r.Context(), token, utils.ClientIP(r))
				if err != nil {
					utils.ErrorResponse(w, err)
					return
				}

				if ident.NewToken != "" {
					w.Header().Set(config.NewTokenHeader, ident.NewToken)
				}

				ctx := context.WithValue(r.Context(), config.UidKey, ident.AccountID)
				ctx = context.WithValue(ctx, config.IdentityKey, ident)
				next.ServeHTTP(w, r.WithContext(ctx))
			},
		)
	}
}

func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r)
			if ip == "" {
				utils.ErrorResponse(w, hdl.ErrNoDeviceInfo)
				return
			}

			ctx := context.WithValue(r.Context(), config.IpKey, ip)
			ctx = context.WithValue(ctx, config.UaKey, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		},
	)
}

// ParseProxies reads trusted proxy entries, each a CIDR or a single address.
func ParseProxies(entries []string) ([]netip.Prefix, error) {
	res := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}

		if p, err := netip.ParsePrefix(e); err == nil {
			res = append(res, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadProxy, e)
		}
		res = append(res, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return res, nil
}

func trusted(proxies []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RealIP replaces RemoteAddr with the forwarded client address, but only for
// requests whose peer is a trusted proxy. X-Forwarded-For is walked from the
// right and the first untrusted hop wins.
func RealIP(proxies []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				peer, err := netip.ParseAddr(utils.ClientIP(r))
				if err != nil || !trusted(proxies, peer) {
					next.ServeHTTP(w, r)
					return
				}

				if ip, ok := forwardedFor(proxies, r.Header.Values("X-Forwarded-For")); ok {
					r.RemoteAddr = ip.String()
				} else if ip, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
					r.RemoteAddr = ip.Unmap().String()
				}
				next.ServeHTTP(w, r)
			},
		)
	}
}

func forwardedFor(proxies []netip.Prefix, headers []string) (netip.Addr, bool) {
	hops := make([]string, 0, len(headers))
	for _, h := range headers {
		hops = append(hops, strings.Split(h, ",")...)
	}

	var last netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		ip, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}

		last = ip.Unmap()
		if !trusted(proxies, last) {
			return last, true
		}
	}
	return last, last.IsValid()
}

type LoggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func NewLoggingResponseWriter(w http.ResponseWriter) *LoggingResponseWriter {
	return &LoggingResponseWriter{w, http.StatusOK}
}

func (lrw *LoggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *LoggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

// Hijack hands the connection over for the websocket upgrade.
func (lrw *LoggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, ErrHijackUnsupported
	}

	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// routeOp names a request by its matched route pattern, so path parameters
// do not multiply metric series.
func routeOp(r *http.Request) string {
	pattern := "unmatched"
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		pattern = rctx.RoutePattern()
	}
	return r.Method + " " + pattern
}

func Prometheus(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			s := time.Now()
			lrw := NewLoggingResponseWriter(w)
			next.ServeHTTP(lrw, r)
			metrics.ObserveRequest(time.Since(s), lrw.statusCode, routeOp(r))
		},
	)
}

func Logger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()
				lrw := NewLoggingResponseWriter(w)
				logger.Debug(
					"-->",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote", r.RemoteAddr),
				)

				next.ServeHTTP(lrw, r)

				logger.Info(
					"<--",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", lrw.statusCode),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote", r.RemoteAddr),
				)
			},
		)
	}
}

func OT(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			span, ctx := opentracing.StartSpanFromContext(r.Context(), r.Method)
			defer span.Finish()

			r = r.WithContext(ctx)
			next.ServeHTTP(w, r)
			span.SetOperationName(routeOp(r))
		},
	)
}
