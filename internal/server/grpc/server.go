// Package grpc hosts the gRPC side of the API. Every call passes the same
// request edge as HTTP before reaching a service.
package grpc

import (
	"context"
	"fmt"
	"net"

	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/edge"
	"github.com/dmitrijs2005/zappro/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type GRPCServer struct {
	address string
	gate    *edge.Gate
	users   *services.UserService
	logger  logging.Logger
	health  *health.Server
}

func NewGRPCServer(address string, gate *edge.Gate, users *services.UserService, logger logging.Logger) *GRPCServer {
	return &GRPCServer{
		address: address,
		gate:    gate,
		users:   users,
		logger:  logger.With("module", "grpc_server"),
		health:  health.NewServer(),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.address, err)
	}
	return s.Serve(ctx, listen)
}

func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.edgeInterceptor, s.accessTokenInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)
	RegisterAuthServer(srv, s)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			s.health.Shutdown()
			srv.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
