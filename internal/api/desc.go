// Package api exposes the daemon's control service over gRPC. Messages are
// carried as structpb values so the service needs no generated code.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatsync.v1.Control"

// ControlServer is the server API for the control service.
type ControlServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListChats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resend(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	React(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStream) error
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&serviceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: unary("Status", func(s ControlServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return s.Status(ctx, in)
		})},
		{MethodName: "ListChats", Handler: unary("ListChats", func(s ControlServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return s.ListChats(ctx, in)
		})},
		{MethodName: "ListMessages", Handler: unary("ListMessages", func(s ControlServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.ListMessages(ctx, in)
		})},
		{MethodName: "SendMessage", Handler: unary("SendMessage", func(s ControlServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.SendMessage(ctx, in)
		})},
		{MethodName: "Resend", Handler: unary("Resend", func(s ControlServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.Resend(ctx, in)
		})},
		{MethodName: "React", Handler: unary("React", func(s ControlServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.React(ctx, in)
		})},
		{MethodName: "Search", Handler: unary("Search", func(s ControlServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.Search(ctx, in)
		})},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ControlServer).WatchEvents(in, stream)
			},
		},
	},
	Metadata: "chatsync/v1/control.proto",
}

// unary adapts a typed method to grpc.MethodHandler, honouring interceptors
// the same way generated code does.
func unary[T any, PT interface {
	*T
	proto.Message
}](name string, call func(ControlServer, context.Context, PT) (proto.Message, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PT(new(T))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlServer), ctx, req.(PT))
		})
	}
}
