package database

import (
	"context"
	"fmt"
	"net"
	"time"

	"team_portal_service/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CreateGRPCClient create grpc client, wait until READY or timeout
func CreateGRPCClient(grpcIP string, timeout time.Duration) (*grpc.ClientConn, error) {
	client, err := grpc.NewClient(grpcIP, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("create grpc client [%s]: %w", grpcIP, err)
	}
	client.Connect()

	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			client.Close()
			return nil, fmt.Errorf("connection[%s] did not become READY within %s", grpcIP, timeout)
		case <-ticker.C:
			state := client.GetState()
			logger.Log.Debug("grpc connection state", zap.String("addr", grpcIP), zap.String("state", state.String()))
			if state == connectivity.Ready {
				return client, nil
			}
		}
	}
}

// CheckHealth dial addr and ask the grpc health service of service, error unless SERVING
func CheckHealth(ctx context.Context, addr, service string, timeout time.Duration) error {
	conn, err := CreateGRPCClient(addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return fmt.Errorf("health check [%s]: %w", addr, err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("service %s is %s", service, resp.Status)
	}
	return nil
}

// HealthServer grpc health endpoint of a service
type HealthServer struct {
	Server   *grpc.Server
	Health   *health.Server
	Listener net.Listener
}

// NewHealthServer listen addr and register grpc health service, service report SERVING
func NewHealthServer(addr, service string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{Server: srv, Health: hs, Listener: lis}, nil
}

// Serve block until server stop
func (h *HealthServer) Serve() error {
	logger.Log.Info("grpc health server listening", zap.String("addr", h.Listener.Addr().String()))
	return h.Server.Serve(h.Listener)
}

// Shutdown mark NOT_SERVING then stop
func (h *HealthServer) Shutdown() {
	h.Health.Shutdown()
	h.Server.GracefulStop()
}
