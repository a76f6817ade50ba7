package client

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestHealthGRPCClient(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var gotAuth []string
	srv := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		gotAuth = md.Get("authorization")
		return handler(ctx, req)
	}))
	hs := health.NewServer()
	hs.SetServingStatus(XeroHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	c, err := NewHealthGRPCClient(lis.Addr().String(), "tok")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	ok, err := c.XeroServing(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"Bearer tok"}, gotAuth)

	hs.SetServingStatus(XeroHealthService, healthpb.HealthCheckResponse_SERVING)
	ok, err = c.XeroServing(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
