package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/soundmatch/internal/auth"
	"github.com/oggyb/soundmatch/internal/config"
	"github.com/oggyb/soundmatch/internal/rpc"
)

// Server is the gRPC server with health and reflection attached.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	grpc   *grpc.Server
	health *health.Server
}

// New builds a server and registers all provided services. Every call goes
// through recovery, logging and auth, in that order.
func New(cfg *config.Config, log *slog.Logger, authn *auth.Authenticator, registrars ...Registrar) *Server {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		rpc.RecoveryInterceptor(log),
		rpc.LoggingInterceptor(log),
		authn.UnaryServerInterceptor(),
	))

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	hs := health.NewServer()
	for name := range grpcServer.GetServiceInfo() {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(grpcServer, hs)

	// Reflection lists every service, but only health and reflection have
	// real descriptors; the Struct services cannot be described by grpcurl.
	reflection.Register(grpcServer)

	return &Server{cfg: cfg, log: log, grpc: grpcServer, health: hs}
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%s", s.cfg.GRPC.Host, s.cfg.GRPC.Port)
}

// ListenAndServe listens on Addr and serves until Stop.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("serving gRPC", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
