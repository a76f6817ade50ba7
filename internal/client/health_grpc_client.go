package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// XeroHealthService is the gRPC health service name reporting the stored
// Xero connection.
const XeroHealthService = "ar.xero"

// HealthGRPCClient queries the server's gRPC health service.
type HealthGRPCClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// NewHealthGRPCClient creates a client for addr. A non-empty token is sent
// as bearer authorization on every call.
func NewHealthGRPCClient(addr, token string) (*HealthGRPCClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(bearerToken(token)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &HealthGRPCClient{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the gRPC connection.
func (c *HealthGRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// XeroServing reports whether the server considers the Xero connection usable.
func (c *HealthGRPCClient) XeroServing(ctx context.Context) (bool, error) {
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: XeroHealthService})
	if err != nil {
		return false, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// bearerToken is a unary client interceptor that attaches the API token to
// outgoing metadata.
func bearerToken(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if token != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
