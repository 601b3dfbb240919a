// Package ws authenticates persistent connections. Admission and token
// verification both run before the upgrade, so a rejected handshake never
// allocates connection state.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/internal/hdl"
	"github.com/JMURv/session-core/internal/hdl/http/utils"
	metrics "github.com/JMURv/session-core/internal/observability/metrics/prometheus"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxFrameBytes = 4 << 10

const (
	typeReady = "ready"
	typePing  = "ping"
	typePong  = "pong"
	typeError = "error"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token, ip string) (*dto.Identity, error)
	AdmitConnection(ctx context.Context, ip string) error
	ReleaseConnection(ctx context.Context, ip string)
}

type frame struct {
	Type      string `json:"type"`
	AccountID string `json:"accountId,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
	NewToken  string `json:"newToken,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type Gateway struct {
	au           Authenticator
	origins      []string
	frameRate    rate.Limit
	frameBurst   int
	readIdle     time.Duration
	writeTimeout time.Duration
}

func New(au Authenticator, conf config.WSConfig) *Gateway {
	return &Gateway{
		au:           au,
		origins:      conf.OriginPatterns,
		frameRate:    rate.Limit(conf.FrameRate),
		frameBurst:   conf.FrameBurst,
		readIdle:     conf.ReadIdle,
		writeTimeout: conf.WriteTimeout,
	}
}

// ServeHTTP runs the handshake: IP admission, then token verification, then
// the upgrade. The IP slot taken by admission is held until disconnect.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "ws.ServeHTTP.hdl"
	ctx := r.Context()
	ip := utils.ClientIP(r)

	if err := g.au.AdmitConnection(ctx, ip); err != nil {
		utils.ErrorResponse(w, err)
		return
	}
	release := func() {
		g.au.ReleaseConnection(context.WithoutCancel(ctx), ip)
	}

	token := utils.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get(config.WSTokenParam)
	}

	ident, err := g.au.Authenticate(ctx, token, ip)
	if err != nil {
		release()
		utils.ErrorResponse(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.origins})
	if err != nil {
		release()
		zap.L().Debug("websocket accept failed", zap.String("op", op), zap.Error(err))
		return
	}

	metrics.ActiveConnections.Inc()
	defer func() {
		metrics.ActiveConnections.Dec()
		release()
	}()
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)
	zap.L().Debug(
		"connection accepted",
		zap.String("op", op),
		zap.String("uid", ident.AccountID.String()),
		zap.String("device", ident.DeviceID),
		zap.String("ip", ip),
	)

	g.serve(ctx, conn, ident)
}

func (g *Gateway) serve(ctx context.Context, conn *websocket.Conn, ident *dto.Identity) {
	const op = "ws.serve.hdl"

	ready := frame{
		Type:      typeReady,
		AccountID: ident.AccountID.String(),
		DeviceID:  ident.DeviceID,
		NewToken:  ident.NewToken,
	}
	if err := g.write(ctx, conn, ready); err != nil {
		return
	}

	lim := rate.NewLimiter(g.frameRate, g.frameBurst)
	for {
		readCtx, cancel := context.WithTimeout(ctx, g.readIdle)
		typ, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				zap.L().Debug("read failed", zap.String("op", op), zap.Error(err))
			}
			return
		}

		if !lim.Allow() {
			_ = g.write(ctx, conn, errFrame(hdl.Classify(errTooManyFrames)))
			_ = conn.Close(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		if typ != websocket.MessageText {
			if err = g.write(ctx, conn, frame{Type: typeError, Code: "unsupported"}); err != nil {
				return
			}
			continue
		}

		in := frame{}
		if err = json.Unmarshal(data, &in); err != nil {
			if err = g.write(ctx, conn, frame{Type: typeError, Code: "bad_json"}); err != nil {
				return
			}
			continue
		}

		out := frame{Type: typeError, Code: "unsupported", Message: in.Type}
		if in.Type == typePing {
			out = frame{Type: typePong}
		}
		if err = g.write(ctx, conn, out); err != nil {
			return
		}
	}
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, f frame) error {
	ctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()

	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func errFrame(f hdl.Failure) frame {
	return frame{Type: typeError, Code: f.Code, Message: f.Message}
}
