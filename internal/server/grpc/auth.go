package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const authMeMethod = "/zappro.v1.Auth/Me"

// AuthServer is the server API of the zappro.v1.Auth service. Every method
// requires an access token.
type AuthServer interface {
	// Me returns the authenticated user as a struct with id, email, name,
	// role and created_at (RFC 3339) fields.
	Me(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func authMeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AuthServer).Me(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: authMeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AuthServer).Me(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: "zappro.v1.Auth",
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Me", Handler: authMeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "zappro/v1/auth.proto",
}

func RegisterAuthServer(r grpc.ServiceRegistrar, srv AuthServer) {
	r.RegisterService(&authServiceDesc, srv)
}

func (s *GRPCServer) Me(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	u := UserFromContext(ctx)
	if u == nil {
		return nil, status.Error(codes.Unauthenticated, "Not authenticated")
	}

	out, err := structpb.NewStruct(map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"name":       u.Name,
		"role":       string(u.Role),
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error(ctx, "encode user failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}
