package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// WhoamiMethod is the full method name of Sessions/Whoami.
const WhoamiMethod = "/gophauth.v1.Sessions/Whoami"

// SessionsServer is the server API of the gophauth.v1.Sessions service.
// Messages are well-known protobuf types so no generated code is needed.
type SessionsServer interface {
	Whoami(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
}

var sessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: "gophauth.v1.Sessions",
	HandlerType: (*SessionsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Whoami", Handler: whoamiHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophauth/v1/sessions.proto",
}

// RegisterSessionsServer attaches srv to s under gophauth.v1.Sessions.
func RegisterSessionsServer(s grpc.ServiceRegistrar, srv SessionsServer) {
	s.RegisterService(&sessionsServiceDesc, srv)
}

func whoamiHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionsServer).Whoami(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoamiMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionsServer).Whoami(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// SessionsClient calls gophauth.v1.Sessions.
type SessionsClient struct {
	cc grpc.ClientConnInterface
}

// NewSessionsClient returns a client bound to cc.
func NewSessionsClient(cc grpc.ClientConnInterface) *SessionsClient {
	return &SessionsClient{cc: cc}
}

// Whoami returns the user id bound to the access token in the outgoing
// metadata of ctx.
func (c *SessionsClient) Whoami(ctx context.Context, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, WhoamiMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Whoami reports the authenticated user id.
func (s *GRPCServer) Whoami(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	id, _ := UserIDFromContext(ctx)
	return wrapperspb.Int64(id), nil
}
