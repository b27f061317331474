package interceptor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
	"github.com/SmitUplenchwar2687/admit/internal/limiter"
)

func startHealthServer(t *testing.T, lim limiter.Limiter[string]) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(Unary(lim, nil)),
		grpc.StreamInterceptor(Stream(lim, nil)),
	)
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func withKey(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), APIKeyHeader, key)
}

func TestUnary_RejectsWithResourceExhausted(t *testing.T) {
	lim := limiter.NewFixedWindow[string](2, time.Minute, clock.NewVirtualClock(time.Unix(0, 0)))
	client := startHealthServer(t, lim)

	for i := 0; i < 2; i++ {
		_, err := client.Check(withKey("team-a"), &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
	}

	_, err := client.Check(withKey("team-a"), &healthpb.HealthCheckRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// Other keys are unaffected.
	_, err = client.Check(withKey("team-b"), &healthpb.HealthCheckRequest{})
	assert.NoError(t, err)
}

func TestStream_ChecksOnOpen(t *testing.T) {
	lim := limiter.NewTokenBucket[string](1, 0, clock.NewVirtualClock(time.Unix(0, 0)))
	client := startHealthServer(t, lim)

	ctx, cancel := context.WithTimeout(withKey("watcher"), 5*time.Second)
	defer cancel()

	stream, err := client.Watch(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	resp, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	stream, err = client.Watch(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestDefaultKey(t *testing.T) {
	md := metadata.Pairs(APIKeyHeader, "k1")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	assert.Equal(t, "k1", DefaultKey(ctx))

	ctx = peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5000},
	})
	assert.Equal(t, "10.0.0.1", DefaultKey(ctx))

	assert.Equal(t, "unknown", DefaultKey(context.Background()))
}

func TestUnary_CustomKeyFunc(t *testing.T) {
	lim := limiter.NewTokenBucket[string](1, 0, clock.NewVirtualClock(time.Unix(0, 0)))
	intercept := Unary(lim, func(context.Context) string { return "shared" })

	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}

	resp, err := intercept(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = intercept(context.Background(), nil, info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
