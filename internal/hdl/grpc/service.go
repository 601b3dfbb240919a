package grpc

import (
	"context"
	"time"

	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	"github.com/JMURv/session-core/internal/hdl"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName       = "session.v1.Session"
	WhoamiMethod      = "/" + ServiceName + "/Whoami"
	ListDevicesMethod = "/" + ServiceName + "/ListDevices"
)

type sessionServer interface {
	Whoami(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	ListDevices(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

var sessionDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*sessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Whoami", Handler: whoamiHandler},
		{MethodName: "ListDevices", Handler: listDevicesHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func whoamiHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(sessionServer).Whoami(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoamiMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(sessionServer).Whoami(ctx, req.(*emptypb.Empty))
	})
}

func listDevicesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(sessionServer).ListDevices(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListDevicesMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(sessionServer).ListDevices(ctx, req.(*emptypb.Empty))
	})
}

func identityFrom(ctx context.Context) (*dto.Identity, error) {
	ident, ok := ctx.Value(config.IdentityKey).(*dto.Identity)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, hdl.ErrMissingToken.Error())
	}
	return ident, nil
}

func (h *Handler) Whoami(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ident, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}

	res, err := structpb.NewStruct(map[string]any{
		"accountId": ident.AccountID.String(),
		"deviceId":  ident.DeviceID,
		"admin":     ident.Admin,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, hdl.ErrInternal.Error())
	}
	return res, nil
}

func (h *Handler) ListDevices(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ident, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}

	devices, err := h.ctrl.ListDevices(ctx, ident.AccountID)
	if err != nil {
		f := hdl.Classify(err)
		return nil, status.Error(f.GRPC, f.Message)
	}

	list := make([]any, 0, len(devices))
	for _, d := range devices {
		list = append(list, map[string]any{
			"deviceId":   d.DeviceID,
			"active":     d.Active,
			"lastUsedAt": d.LastUsedAt.UTC().Format(time.RFC3339),
		})
	}

	res, err := structpb.NewStruct(map[string]any{"devices": list})
	if err != nil {
		return nil, status.Error(codes.Internal, hdl.ErrInternal.Error())
	}
	return res, nil
}
