package rpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs every unary call with its status code and
// duration. Server-side failures log at error level, client mistakes at
// debug.
func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}

		switch code {
		case codes.OK:
			log.Debug("rpc handled", args...)
		case codes.Internal, codes.Unavailable, codes.Unknown, codes.DataLoss:
			log.Error("rpc failed", append(args, "err", err)...)
		default:
			log.Debug("rpc rejected", append(args, "err", err)...)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into an Internal error.
func RecoveryInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("rpc panic", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
