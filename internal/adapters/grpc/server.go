package grpc

import (
	"context"

	"google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/application"
)

// SimulationInternalServer exposes the engine's health over gRPC for
// orchestration probes. Simulation traffic itself arrives through the queue,
// not RPC.
type SimulationInternalServer struct {
	grpc_health_v1.UnimplementedHealthServer
	service *application.Service
}

func NewSimulationInternalServer(service *application.Service) *SimulationInternalServer {
	return &SimulationInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc *SimulationInternalServer) {
	grpc_health_v1.RegisterHealthServer(server, svc)
}

func (s *SimulationInternalServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	_ = s.service
	_ = ctx
	_ = req
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func (s *SimulationInternalServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	_ = s.service
	_ = req
	return stream.Send(&grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING})
}
