package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// anyHandler lets RegisterService accept any implementation value.
var anyHandler = (*any)(nil)

// NewServiceDesc assembles a service description from its unary methods and
// streams.
func NewServiceDesc(name string, methods []grpc.MethodDesc, streams ...grpc.StreamDesc) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: anyHandler,
		Methods:     methods,
		Streams:     streams,
		Metadata:    "chatsync/v1",
	}
}

// Unary adapts a typed handler to a grpc.MethodDesc carrying Structs.
func Unary[Req, Resp any](service, method string, fn func(context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	call := func(ctx context.Context, in *structpb.Struct) (any, error) {
		req := new(Req)
		if err := Decode(in, req); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return Encode(resp)
	}
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(service, method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(ctx, req.(*structpb.Struct))
			})
		},
	}
}

// Sender is the send half of a server stream.
type Sender[T any] interface {
	Context() context.Context
	Send(*T) error
}

type structSender[T any] struct {
	stream grpc.ServerStream
}

func (s structSender[T]) Context() context.Context { return s.stream.Context() }

func (s structSender[T]) Send(v *T) error {
	out, err := Encode(v)
	if err != nil {
		return err
	}
	return s.stream.SendMsg(out)
}

// ServerStream adapts a typed server-streaming handler.
func ServerStream[Req, Resp any](method string, fn func(*Req, Sender[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(_ any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			req := new(Req)
			if err := Decode(in, req); err != nil {
				return status.Error(codes.InvalidArgument, err.Error())
			}
			return fn(req, structSender[Resp]{stream: stream})
		},
	}
}
