package gateway

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/xizzxy/atlas/internal/admission"
)

// Methods under these prefixes are never rate limited by the interceptors.
// The admission check makes its own decision for the client it is asked
// about.
var unlimitedMethodPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
	AdmitMethod,
}

func unlimitedMethod(fullMethod string) bool {
	for _, prefix := range unlimitedMethodPrefixes {
		if strings.HasPrefix(fullMethod, prefix) {
			return true
		}
	}
	return false
}

// grpcClientID reads the client identity from incoming metadata. gRPC
// metadata keys are lower case.
func (s *Server) grpcClientID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return admission.AnonymousClient
	}
	for _, v := range md.Get(strings.ToLower(s.config.Gateway.ClientIDHeader)) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return admission.AnonymousClient
}

func (s *Server) unaryAdmissionInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if unlimitedMethod(info.FullMethod) {
		return handler(ctx, req)
	}
	if !s.admit(ctx, s.grpcClientID(ctx), "grpc") {
		return nil, status.Error(codes.ResourceExhausted, "too many requests")
	}
	return handler(ctx, req)
}

func (s *Server) streamAdmissionInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if unlimitedMethod(info.FullMethod) {
		return handler(srv, ss)
	}
	ctx := ss.Context()
	if !s.admit(ctx, s.grpcClientID(ctx), "grpc") {
		return status.Error(codes.ResourceExhausted, "too many requests")
	}
	return handler(srv, ss)
}

func (s *Server) unaryLoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	s.logger.Info("gRPC request completed",
		"method", info.FullMethod,
		"duration", time.Since(start),
		"code", status.Code(err).String(),
	)
	return resp, err
}
