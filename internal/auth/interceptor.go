// ABOUTME: gRPC interceptors authenticating requests with bearer JWTs
// ABOUTME: Methods in the skip list (health checks) pass through unauthenticated

package auth

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// HealthMethods are the grpc.health.v1 methods, always unauthenticated.
var HealthMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/List",
	"/grpc.health.v1.Health/Watch",
}

func logAuthFailure(ctx context.Context, logger *slog.Logger, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	base := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		base = append(base, "peer_addr", p.Addr.String())
	}
	logger.Warn("auth failure", append(base, attrs...)...)
}

func extractAuth(ctx context.Context, tokens TokenVerifier, logger *slog.Logger) (*AuthContext, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		logAuthFailure(ctx, logger, "missing_metadata")
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	headers := md.Get("authorization")
	if len(headers) == 0 {
		logAuthFailure(ctx, logger, "missing_header")
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}
	if !strings.HasPrefix(headers[0], "Bearer ") {
		logAuthFailure(ctx, logger, "bad_header")
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
	}
	claims, err := tokens.Verify(strings.TrimPrefix(headers[0], "Bearer "))
	if err != nil {
		logAuthFailure(ctx, logger, "jwt_auth_failed", "error", err.Error())
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return fromClaims(claims), nil
}

// UnaryInterceptor authenticates unary calls not in skip.
func UnaryInterceptor(tokens TokenVerifier, logger *slog.Logger, skip ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if slices.Contains(skip, info.FullMethod) {
			return handler(ctx, req)
		}
		a, err := extractAuth(ctx, tokens, logger)
		if err != nil {
			return nil, err
		}
		return handler(WithAuth(ctx, a), req)
	}
}

// StreamInterceptor authenticates streams not in skip.
func StreamInterceptor(tokens TokenVerifier, logger *slog.Logger, skip ...string) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if slices.Contains(skip, info.FullMethod) {
			return handler(srv, ss)
		}
		a, err := extractAuth(ss.Context(), tokens, logger)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: WithAuth(ss.Context(), a)})
	}
}

// NoAuthUnaryInterceptor injects Anonymous when authentication is disabled.
func NoAuthUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(WithAuth(ctx, Anonymous), req)
	}
}

// NoAuthStreamInterceptor injects Anonymous when authentication is disabled.
func NoAuthStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: WithAuth(ss.Context(), Anonymous)})
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
