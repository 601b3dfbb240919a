package interceptors

import (
	"context"
	"net"
	"testing"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/tests/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type fakeStream struct {
	grpc.ServerStream
	ctx    context.Context
	header metadata.MD
}

func (s *fakeStream) Context() context.Context {
	return s.ctx
}

func (s *fakeStream) SetHeader(md metadata.MD) error {
	s.header = metadata.Join(s.header, md)
	return nil
}

func incoming(token string) context.Context {
	ctx := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 4242},
	})
	return metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", "Bearer "+token))
}

func TestAuthUnary(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	mctrl := mocks.NewMockAppCtrl(mock)
	intercept := AuthUnary(mctrl)

	t.Run("Exempt", func(t *testing.T) {
		info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
		res, err := intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
	})

	t.Run("Identity in context", func(t *testing.T) {
		ident := &dto.Identity{AccountID: uuid.New()}
		mctrl.EXPECT().Authenticate(gomock.Any(), "tok", "10.0.0.7").Return(ident, nil)

		info := &grpc.UnaryServerInfo{FullMethod: "/session.v1.Session/Whoami"}
		_, err := intercept(incoming("tok"), nil, info, func(ctx context.Context, req any) (any, error) {
			assert.Equal(t, ident, ctx.Value(config.IdentityKey))
			assert.Equal(t, ident.AccountID, ctx.Value(config.UidKey))
			return nil, nil
		})
		require.NoError(t, err)
	})

	t.Run("Rate limited", func(t *testing.T) {
		mctrl.EXPECT().Authenticate(gomock.Any(), "tok", "10.0.0.7").Return(nil, admission.ErrRateLimited)

		info := &grpc.UnaryServerInfo{FullMethod: "/session.v1.Session/Whoami"}
		_, err := intercept(incoming("tok"), nil, info, func(ctx context.Context, req any) (any, error) {
			t.Fatal("handler must not run")
			return nil, nil
		})
		assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	})
}

func TestAuthStream(t *testing.T) {
	mock := gomock.NewController(t)
	defer mock.Finish()

	mctrl := mocks.NewMockAppCtrl(mock)
	ident := &dto.Identity{AccountID: uuid.New(), NewToken: "renewed"}
	mctrl.EXPECT().Authenticate(gomock.Any(), "tok", "10.0.0.7").Return(ident, nil)

	ss := &fakeStream{ctx: incoming("tok")}
	info := &grpc.StreamServerInfo{FullMethod: "/session.v1.Session/Watch", IsServerStream: true}
	err := AuthStream(mctrl)(nil, ss, info, func(srv any, stream grpc.ServerStream) error {
		assert.Equal(t, ident, stream.Context().Value(config.IdentityKey))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"renewed"}, ss.header.Get(newTokenMD))
}
