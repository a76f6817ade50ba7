package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/config"
	"github.com/pesio-ai/be-ar-invoicing/internal/database"
	"github.com/pesio-ai/be-ar-invoicing/internal/handler"
	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
	"github.com/pesio-ai/be-ar-invoicing/internal/middleware"
	"github.com/pesio-ai/be-ar-invoicing/internal/repository"
	"github.com/pesio-ai/be-ar-invoicing/internal/service"
	"github.com/pesio-ai/be-ar-invoicing/internal/telemetry"
	"github.com/pesio-ai/be-ar-invoicing/internal/xero"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting AR Invoicing Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       cfg.OTel.Endpoint,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Initialize database
	db, err := database.New(ctx, database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Redis connection established")

	// Initialize NATS (optional)
	var natsConn client.Publisher
	if cfg.NATS.URL != "" {
		nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, invoice notifications disabled")
		} else {
			defer nc.Close()
			natsConn = nc
		}
	}
	publisher := client.NewNotificationPublisher(natsConn, log.Logger)

	// Initialize repositories
	connectionRepo := repository.NewConnectionRepository(db)
	contractRepo := repository.NewContractRepository(db)
	linkRepo := repository.NewInvoiceLinkRepository(db)
	stateRepo := repository.NewOAuthStateRepository(rdb, cfg.Redis.StateTTL)

	// Initialize Xero
	authenticator := xero.NewAuthenticator(cfg.Xero)
	xeroClient := xero.NewClient(cfg.Xero.APIBaseURL, cfg.Xero.RequestsPerSec, cfg.Xero.Burst, log)

	stateSecret := []byte(cfg.Xero.StateSecret)
	if len(stateSecret) == 0 {
		stateSecret = make([]byte, 32)
		_, _ = rand.Read(stateSecret)
		log.Warn().Msg("STATE_SECRET not set, using a random secret; pending authorizations will not survive a restart")
	}
	signer := service.NewStateSigner(stateSecret, cfg.Service.Name, cfg.Redis.StateTTL, nil)

	// Initialize services
	connectionService := service.NewConnectionService(connectionRepo, stateRepo, authenticator, xeroClient, signer, service.ConnectionOptions{
		PublicURL:      cfg.Server.PublicURL,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}, log)
	invoiceService := service.NewXeroInvoiceService(contractRepo, linkRepo, connectionService, xeroClient, publisher, service.XeroInvoiceOptions{
		SalesAccountCode: cfg.Xero.SalesAccountCode,
		Currency:         cfg.Xero.Currency,
	}, log)

	// gRPC health reflects the stored connection
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.UnaryLogger(log.Logger),
		handler.UnaryBearerAuth(cfg.Server.APIToken),
	))
	healthReporter := handler.NewHealthReporter(grpcServer, log.Logger)
	healthReporter.Sync(ctx, connectionService)
	connectionService.OnChange(healthReporter.SetConnected)
	reflection.Register(grpcServer) // Enable reflection for debugging

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(connectionService, invoiceService, log)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	corsOrigins := append([]string{cfg.Server.PublicURL}, cfg.Server.CORSOrigins...)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.BearerAuth(cfg.Server.APIToken, handler.PublicPaths()...)(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(corsOrigins)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	healthReporter.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		grpcServer.Stop()
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tracing shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
