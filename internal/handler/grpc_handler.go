package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
	"github.com/pesio-ai/be-ar-invoicing/internal/service"
)

// StatusSource reports the stored connection.
type StatusSource interface {
	Status(ctx context.Context) (*service.ConnectionStatus, error)
}

// HealthReporter publishes the Xero connection on the gRPC health service.
type HealthReporter struct {
	health *health.Server
	logger zerolog.Logger
}

// NewHealthReporter creates a reporter and registers it on srv.
func NewHealthReporter(srv *grpc.Server, logger zerolog.Logger) *HealthReporter {
	h := &HealthReporter{
		health: health.NewServer(),
		logger: logger.With().Str("handler", "grpc_health").Logger(),
	}
	h.health.SetServingStatus(client.XeroHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, h.health)
	return h
}

// SetConnected updates the ar.xero status.
func (h *HealthReporter) SetConnected(connected bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(client.XeroHealthService, st)
	h.logger.Debug().Bool("connected", connected).Msg("Xero health updated")
}

// Sync sets the initial status from src.
func (h *HealthReporter) Sync(ctx context.Context, src StatusSource) {
	st, err := src.Status(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read Xero connection status")
		return
	}
	h.SetConnected(st.Connected)
}

// Shutdown marks every service as not serving.
func (h *HealthReporter) Shutdown() {
	h.health.Shutdown()
}

// UnaryLogger logs each unary call and maps application errors to gRPC
// status codes.
func UnaryLogger(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		err = grpcError(err)

		ev := logger.Debug()
		if err != nil {
			ev = logger.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC call")
		return resp, err
	}
}

func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	appErr, ok := errors.As(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	switch appErr.Code {
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, appErr.Error())
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, appErr.Error())
	case errors.ErrCodeConflict:
		return status.Error(codes.AlreadyExists, appErr.Error())
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, appErr.Error())
	case errors.ErrCodeNoCredentials, errors.ErrCodeRefreshExpired, errors.ErrCodeAuthentication:
		return status.Error(codes.Unauthenticated, appErr.Error())
	case errors.ErrCodeUnavailable:
		return status.Error(codes.Unavailable, appErr.Error())
	default:
		return status.Error(codes.Internal, appErr.Error())
	}
}

// UnaryBearerAuth rejects calls whose authorization metadata does not carry
// token. An empty token disables the check.
func UnaryBearerAuth(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		for _, v := range md.Get("authorization") {
			if v == "Bearer "+token {
				return handler(ctx, req)
			}
		}
		return nil, status.Error(codes.Unauthenticated, "missing or invalid API token")
	}
}
