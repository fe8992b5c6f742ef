// Package rpc builds gRPC service descriptors whose requests and responses
// are google.protobuf.Struct messages, so services need no generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler serves one unary method on server S.
type Handler[S any] func(srv S, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// Desc accumulates the methods of one service. S must be an interface type
// implemented by the registered server.
type Desc[S any] struct {
	desc grpc.ServiceDesc
}

// NewDesc starts a descriptor for the fully qualified service name, e.g.
// "soundmatch.match.v1.MatchService".
func NewDesc[S any](service string) *Desc[S] {
	return &Desc[S]{desc: grpc.ServiceDesc{
		ServiceName: service,
		HandlerType: (*S)(nil),
		Metadata:    "structpb",
	}}
}

// Unary adds a unary method.
func (d *Desc[S]) Unary(method string, h Handler[S]) *Desc[S] {
	fullMethod := "/" + d.desc.ServiceName + "/" + method
	d.desc.Methods = append(d.desc.Methods, grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return h(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(srv.(S), ctx, req.(*structpb.Struct))
			})
		},
	})
	return d
}

func (d *Desc[S]) ServiceDesc() *grpc.ServiceDesc {
	out := d.desc
	return &out
}

// Methods lists the method names in registration order.
func (d *Desc[S]) Methods() []string {
	names := make([]string, len(d.desc.Methods))
	for i, m := range d.desc.Methods {
		names[i] = m.MethodName
	}
	return names
}

// Call invokes service/method on cc.
func Call(ctx context.Context, cc grpc.ClientConnInterface, service, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
