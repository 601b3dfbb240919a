// Package admission counts requests and persistent connections in the shared
// cache so that every handler instance enforces the same budgets.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/JMURv/session-core/internal/config"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type Action string

const (
	Request Action = "request"
	Login   Action = "login"
	Verify  Action = "verify"
	Connect Action = "connect"
)

const (
	rateKey = "rl:%s:%s"
	connKey = "conn:%s"
)

type Counter interface {
	Take(ctx context.Context, key string, limit int64, window time.Duration) (int64, bool, error)
	Acquire(ctx context.Context, key string, limit int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Budget struct {
	Limit  int64
	Window time.Duration
}

type Gate struct {
	counter Counter
	budgets map[Action]Budget
	connCap int64
	slotTTL time.Duration
}

func New(counter Counter, conf config.AdmissionConfig) *Gate {
	return &Gate{
		counter: counter,
		budgets: map[Action]Budget{
			Request: {Limit: conf.RequestLimit, Window: conf.RequestWindow},
			Login:   {Limit: conf.LoginLimit, Window: conf.LoginWindow},
			Verify:  {Limit: conf.VerifyLimit, Window: conf.VerifyWindow},
			Connect: {Limit: conf.ConnectLimit, Window: conf.ConnectWindow},
		},
		connCap: conf.ConnCap,
		slotTTL: conf.ConnSlotTTL,
	}
}

// Consume records one hit of action for subject. Subjects are opaque: an
// account id, an IP or a phone number.
//
// The counter store is best effort. When it is unreachable the hit is let
// through and logged.
func (g *Gate) Consume(ctx context.Context, action Action, subject string) error {
	const op = "admission.Consume.gate"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	b, ok := g.budgets[action]
	if !ok {
		return ErrUnknownAction
	}

	_, allowed, err := g.counter.Take(ctx, fmt.Sprintf(rateKey, action, subject), b.Limit, b.Window)
	if err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		metrics.AdmissionDegraded.Inc()
		zap.L().Warn(
			"admission counter unavailable",
			zap.String("op", op),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return nil
	}

	if !allowed {
		metrics.RateLimited.WithLabelValues(string(action)).Inc()
		return ErrRateLimited
	}
	return nil
}

// AcquireConnection admits a new persistent connection from ip. On success the
// caller owns one slot and must hand it back with ReleaseConnection.
func (g *Gate) AcquireConnection(ctx context.Context, ip string) error {
	const op = "admission.AcquireConnection.gate"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if err := g.Consume(ctx, Connect, ip); err != nil {
		return err
	}

	ok, err := g.counter.Acquire(ctx, fmt.Sprintf(connKey, ip), g.connCap, g.slotTTL)
	if err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		metrics.AdmissionDegraded.Inc()
		zap.L().Warn("connection counter unavailable", zap.String("op", op), zap.Error(err))
		return nil
	}

	if !ok {
		metrics.RateLimited.WithLabelValues("connection_cap").Inc()
		return ErrTooManyConnections
	}
	return nil
}

func (g *Gate) ReleaseConnection(ctx context.Context, ip string) {
	const op = "admission.ReleaseConnection.gate"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if err := g.counter.Release(ctx, fmt.Sprintf(connKey, ip)); err != nil {
		zap.L().Warn("failed to release connection slot", zap.String("op", op), zap.String("ip", ip), zap.Error(err))
	}
}
