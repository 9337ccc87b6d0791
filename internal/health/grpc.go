package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the manager.
const ServiceName = "txmanager"

// GRPCServer exposes the standard gRPC health service backed by the Monitor.
type GRPCServer struct {
	monitor  *Monitor
	health   *grpchealth.Server
	server   *grpc.Server
	port     int
	interval time.Duration
}

// NewGRPCServer creates a gRPC health server on port.
func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	hs := grpchealth.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCServer{
		monitor:  monitor,
		health:   hs,
		server:   srv,
		port:     port,
		interval: 15 * time.Second,
	}
}

// Start listens on the configured port and serves until Stop.
func (g *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go g.watch(ctx)
	return g.server.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

// Refresh updates the serving status from a fresh health report.
func (g *GRPCServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := servingStatus(g.monitor.CheckHealth(ctx).SystemStatus)
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
	return status
}

func (g *GRPCServer) watch(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := g.Refresh(ctx)
			slog.Debug("grpc health refreshed", "status", status.String())
		}
	}
}

func servingStatus(s SystemStatus) healthpb.HealthCheckResponse_ServingStatus {
	if s == StatusCritical {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
