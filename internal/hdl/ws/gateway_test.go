package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/auth/jwt"
	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/tests/mocks"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testIP = "127.0.0.1"

var testConf = config.WSConfig{
	FrameRate:    100,
	FrameBurst:   100,
	ReadIdle:     time.Second,
	WriteTimeout: time.Second,
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGateway_Handshake(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	mctrl := mocks.NewMockAppCtrl(mock)
	srv := httptest.NewServer(New(mctrl, testConf))
	defer srv.Close()

	t.Run("Too many connections", func(t *testing.T) {
		mctrl.EXPECT().AdmitConnection(gomock.Any(), testIP).Return(admission.ErrTooManyConnections)

		res, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	})

	t.Run("Bad token releases slot", func(t *testing.T) {
		gomock.InOrder(
			mctrl.EXPECT().AdmitConnection(gomock.Any(), testIP).Return(nil),
			mctrl.EXPECT().Authenticate(gomock.Any(), "bad", testIP).Return(nil, jwt.ErrBadSignature),
			mctrl.EXPECT().ReleaseConnection(gomock.Any(), testIP),
		)

		_, res, err := websocket.Dial(context.Background(), wsURL(srv)+"?"+config.WSTokenParam+"=bad", nil)
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})
}

func TestGateway_Session(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	ident := &dto.Identity{AccountID: uuid.New(), DeviceID: "d1", NewToken: "renewed"}
	mctrl := mocks.NewMockAppCtrl(mock)
	srv := httptest.NewServer(New(mctrl, testConf))
	defer srv.Close()

	released := make(chan struct{})
	mctrl.EXPECT().AdmitConnection(gomock.Any(), testIP).Return(nil)
	mctrl.EXPECT().Authenticate(gomock.Any(), "tok", testIP).Return(ident, nil)
	mctrl.EXPECT().ReleaseConnection(gomock.Any(), testIP).Do(func(context.Context, string) { close(released) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer tok"}},
	})
	require.NoError(t, err)

	got := frame{}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, typeReady, got.Type)
	assert.Equal(t, ident.AccountID.String(), got.AccountID)
	assert.Equal(t, "d1", got.DeviceID)
	assert.Equal(t, "renewed", got.NewToken)

	require.NoError(t, wsjson.Write(ctx, conn, frame{Type: typePing}))
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, typePong, got.Type)

	require.NoError(t, wsjson.Write(ctx, conn, frame{Type: "subscribe"}))
	got = frame{}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, typeError, got.Type)
	assert.Equal(t, "unsupported", got.Code)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	select {
	case <-released:
	case <-ctx.Done():
		t.Fatal("connection slot was not released")
	}
}

func TestGateway_FrameRate(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	conf := testConf
	conf.FrameRate = 0.001
	conf.FrameBurst = 1

	mctrl := mocks.NewMockAppCtrl(mock)
	srv := httptest.NewServer(New(mctrl, conf))
	defer srv.Close()

	mctrl.EXPECT().AdmitConnection(gomock.Any(), testIP).Return(nil)
	mctrl.EXPECT().Authenticate(gomock.Any(), "tok", testIP).Return(&dto.Identity{AccountID: uuid.New()}, nil)
	released := make(chan struct{})
	mctrl.EXPECT().ReleaseConnection(gomock.Any(), testIP).Do(func(context.Context, string) { close(released) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv)+"?"+config.WSTokenParam+"=tok", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	got := frame{}
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	require.Equal(t, typeReady, got.Type)

	require.NoError(t, wsjson.Write(ctx, conn, frame{Type: typePing}))
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	require.Equal(t, typePong, got.Type)

	require.NoError(t, wsjson.Write(ctx, conn, frame{Type: typePing}))
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, typeError, got.Type)
	assert.Equal(t, "rate_limited", got.Code)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	select {
	case <-released:
	case <-ctx.Done():
		t.Fatal("connection slot was not released")
	}
}
