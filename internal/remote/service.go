package remote

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "membership.v1.MembershipService"

const (
	methodGetMembership        = "/" + ServiceName + "/GetMembership"
	methodGetMembershipSummary = "/" + ServiceName + "/GetMembershipSummary"
)

// MembershipServer serves the membership aggregation contract.
type MembershipServer interface {
	GetMembership(context.Context, *GetMembershipRequest) (*GetMembershipResponse, error)
	GetMembershipSummary(context.Context, *GetMembershipSummaryRequest) (*GetMembershipSummaryResponse, error)
}

// ServiceDesc describes the membership service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MembershipServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMembership", Handler: getMembershipHandler},
		{MethodName: "GetMembershipSummary", Handler: getMembershipSummaryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "membership/v1/membership.proto",
}

// RegisterMembershipServer registers srv on s. The server must be created
// with ServerOptions so requests decode with the membership codec.
func RegisterMembershipServer(s grpc.ServiceRegistrar, srv MembershipServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServerOptions returns the options a grpc.Server needs to speak the
// membership wire format.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{grpc.ForceServerCodec(Codec{})}
}

func getMembershipHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetMembershipRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MembershipServer).GetMembership(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetMembership}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MembershipServer).GetMembership(ctx, req.(*GetMembershipRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getMembershipSummaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetMembershipSummaryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MembershipServer).GetMembershipSummary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetMembershipSummary}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MembershipServer).GetMembershipSummary(ctx, req.(*GetMembershipSummaryRequest))
	}
	return interceptor(ctx, in, info, handler)
}
