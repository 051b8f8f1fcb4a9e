package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "psrinfo.v1.PulsarService"

const (
	methodDescribe        = "/" + ServiceName + "/Describe"
	methodPredict         = "/" + ServiceName + "/Predict"
	methodDistance        = "/" + ServiceName + "/Distance"
	methodSetProperMotion = "/" + ServiceName + "/SetProperMotion"
)

// PulsarServer is the server API for PulsarService. Messages are
// google.protobuf.Struct documents; field names are listed on each handler.
type PulsarServer interface {
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Distance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetProperMotion(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterPulsarServer attaches srv to s.
func RegisterPulsarServer(s grpc.ServiceRegistrar, srv PulsarServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler(fullMethod string, call func(PulsarServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PulsarServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PulsarServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes PulsarService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PulsarServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: unaryHandler(methodDescribe, PulsarServer.Describe)},
		{MethodName: "Predict", Handler: unaryHandler(methodPredict, PulsarServer.Predict)},
		{MethodName: "Distance", Handler: unaryHandler(methodDistance, PulsarServer.Distance)},
		{MethodName: "SetProperMotion", Handler: unaryHandler(methodSetProperMotion, PulsarServer.SetProperMotion)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "psrinfo/v1/pulsar.proto",
}

// Client is a thin PulsarService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Describe calls PulsarService/Describe.
func (c *Client) Describe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodDescribe, in, opts...)
}

// Predict calls PulsarService/Predict.
func (c *Client) Predict(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodPredict, in, opts...)
}

// Distance calls PulsarService/Distance.
func (c *Client) Distance(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodDistance, in, opts...)
}

// SetProperMotion calls PulsarService/SetProperMotion.
func (c *Client) SetProperMotion(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSetProperMotion, in, opts...)
}
