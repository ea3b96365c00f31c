package gateway

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AdmitMethod is the full gRPC method name of the admission check.
const AdmitMethod = "/atlas.v1.Admission/Admit"

// AdmissionServer answers admission checks for proxies that talk gRPC. The
// request carries the client id; an empty value falls back to the
// x-client-id metadata and then to the anonymous client.
type AdmissionServer interface {
	Admit(ctx context.Context, client *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// admissionServiceDesc is written by hand over the well-known wrapper types,
// so the service needs no generated code.
var admissionServiceDesc = grpc.ServiceDesc{
	ServiceName: "atlas.v1.Admission",
	HandlerType: (*AdmissionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Admit",
			Handler:    admitHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "atlas/v1/admission.proto",
}

func admitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServer).Admit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AdmitMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdmissionServer).Admit(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// admissionService is the gateway's AdmissionServer. A denial is an answer,
// not an error: the caller gets false and rejects its own request.
type admissionService struct {
	server *Server
}

func (a *admissionService) Admit(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	client := strings.TrimSpace(in.GetValue())
	if client == "" {
		client = a.server.grpcClientID(ctx)
	}
	return wrapperspb.Bool(a.server.admit(ctx, client, "grpc")), nil
}
