// Package interceptor applies admission control to gRPC servers.
package interceptor

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/SmitUplenchwar2687/admit/internal/limiter"
	"github.com/SmitUplenchwar2687/admit/internal/log"
)

// APIKeyHeader is the metadata key callers identify themselves with.
const APIKeyHeader = "x-api-key"

// KeyFunc extracts the admission key for a call.
type KeyFunc func(ctx context.Context) string

// DefaultKey uses the x-api-key metadata value, falling back to the peer's
// host.
func DefaultKey(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(APIKeyHeader); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}
	return "unknown"
}

// Unary returns a unary interceptor that rejects calls with
// codes.ResourceExhausted when lim denies the caller's key.
func Unary(lim limiter.Limiter[string], keyFn KeyFunc) grpc.UnaryServerInterceptor {
	if keyFn == nil {
		keyFn = DefaultKey
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := admit(lim, keyFn(ctx), info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream is the streaming counterpart of Unary. The check happens once,
// when the stream opens.
func Stream(lim limiter.Limiter[string], keyFn KeyFunc) grpc.StreamServerInterceptor {
	if keyFn == nil {
		keyFn = DefaultKey
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := admit(lim, keyFn(ss.Context()), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func admit(lim limiter.Limiter[string], key, method string) error {
	if lim.Check(key) {
		return nil
	}
	log.Logger().Debug("grpc call rejected", zap.String("key", key), zap.String("method", method))
	return status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s", key)
}
