// Package grpchealth exposes dependency readiness over the standard gRPC health protocol.
package grpchealth

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"flexsearch-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reporting overall readiness
const ServiceName = "flexsearch.FlexibleSearch"

// Check reports whether one dependency is reachable
type Check func(ctx context.Context) error

// Server serves grpc.health.v1 and refreshes statuses from registered checks
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	interval   time.Duration
	logger     logger.Logger

	mu     sync.Mutex
	checks map[string]Check
}

// NewServer creates a health server polling its checks every interval
func NewServer(interval time.Duration, logger logger.Logger) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		interval:   interval,
		logger:     logger,
		checks:     make(map[string]Check),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register adds a named dependency check, e.g. "redis"
func (s *Server) Register(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Refresh runs every check once and updates the reported statuses
func (s *Server) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	checks := make(map[string]Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.Unlock()

	healthy := true
	for name, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(cctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.Warn("Dependency unhealthy", "dependency", name, "error", err)
		}
		s.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, overall)
	s.health.SetServingStatus("", overall)
	return healthy
}

// Serve listens on addr and blocks until ctx is done
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	go s.poll(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info("Starting gRPC health server", "addr", addr)
	return s.grpcServer.Serve(lis)
}

// HealthServer exposes the underlying health implementation
func (s *Server) HealthServer() healthpb.HealthServer {
	return s.health
}

func (s *Server) poll(ctx context.Context) {
	s.Refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
