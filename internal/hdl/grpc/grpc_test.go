package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/JMURv/session-core/internal/auth/jwt"
	"github.com/JMURv/session-core/internal/ctrl"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/tests/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func dial(t *testing.T, c ctrl.AppCtrl) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	h := New("session-core", c)
	go func() { _ = h.Serve(lis) }()
	t.Cleanup(func() { _ = h.Close() })

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func withToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func TestHandler_Whoami(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	mctrl := mocks.NewMockAppCtrl(mock)
	conn := dial(t, mctrl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("Success with renewal", func(t *testing.T) {
		ident := &dto.Identity{AccountID: uuid.New(), DeviceID: "d1", NewToken: "renewed"}
		mctrl.EXPECT().Authenticate(gomock.Any(), "tok", gomock.Any()).Return(ident, nil)

		out, header := &structpb.Struct{}, metadata.MD{}
		err := conn.Invoke(withToken(ctx, "tok"), WhoamiMethod, &emptypb.Empty{}, out, grpc.Header(&header))
		require.NoError(t, err)
		assert.Equal(t, ident.AccountID.String(), out.Fields["accountId"].GetStringValue())
		assert.Equal(t, "d1", out.Fields["deviceId"].GetStringValue())
		assert.Equal(t, []string{"renewed"}, header.Get("x-new-token"))
	})

	t.Run("Missing token", func(t *testing.T) {
		mctrl.EXPECT().Authenticate(gomock.Any(), "", gomock.Any()).Return(nil, jwt.ErrMalformed)

		err := conn.Invoke(ctx, WhoamiMethod, &emptypb.Empty{}, &structpb.Struct{})
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
		assert.Equal(t, jwt.ErrMalformed.Error(), status.Convert(err).Message())
	})

	t.Run("Blocked account", func(t *testing.T) {
		mctrl.EXPECT().Authenticate(gomock.Any(), "tok", gomock.Any()).Return(nil, ctrl.ErrAccountBlocked)

		err := conn.Invoke(withToken(ctx, "tok"), WhoamiMethod, &emptypb.Empty{}, &structpb.Struct{})
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})
}

func TestHandler_ListDevices(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	mctrl := mocks.NewMockAppCtrl(mock)
	conn := dial(t, mctrl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	uid := uuid.New()
	mctrl.EXPECT().Authenticate(gomock.Any(), "tok", gomock.Any()).Return(&dto.Identity{AccountID: uid, DeviceID: "d1"}, nil)
	mctrl.EXPECT().ListDevices(gomock.Any(), uid).Return([]dto.DeviceResponse{
		{DeviceID: "d1", Active: true, LastUsedAt: time.Now()},
		{DeviceID: "d2"},
	}, nil)

	out := &structpb.Struct{}
	require.NoError(t, conn.Invoke(withToken(ctx, "tok"), ListDevicesMethod, &emptypb.Empty{}, out))

	list := out.Fields["devices"].GetListValue().GetValues()
	require.Len(t, list, 2)
	assert.Equal(t, "d1", list[0].GetStructValue().Fields["deviceId"].GetStringValue())
	assert.True(t, list[0].GetStructValue().Fields["active"].GetBoolValue())
	assert.False(t, list[1].GetStructValue().Fields["active"].GetBoolValue())
}

func TestHandler_HealthExempt(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	conn := dial(t, mocks.NewMockAppCtrl(mock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "session-core"})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, res.Status)
}
