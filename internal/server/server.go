package server

import (
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joshp123/agrobot/internal/mirror"
)

// RobotService is the health service name that tracks robot reachability.
const RobotService = "agrobot.Robot"

// GRPCServer wraps a gRPC server and listener.
type GRPCServer struct {
	Server   *grpc.Server
	Listener net.Listener
	Health   *health.Server

	stopOnce sync.Once
}

func NewGRPCServer(addr string) (*GRPCServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(RobotService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	return &GRPCServer{Server: s, Listener: ln, Health: hs}, nil
}

// TrackRobot keeps RobotService SERVING exactly while the mirrored robot is
// connected. The returned func stops tracking.
func (s *GRPCServer) TrackRobot(src ViewSource) (cancel func()) {
	return TrackHealth(s.Health, src)
}

// ViewSource is the read side of the mirror.
type ViewSource interface {
	View() mirror.View
	Subscribe(fn func(mirror.View)) (cancel func())
}

func TrackHealth(hs *health.Server, src ViewSource) (cancel func()) {
	update := func(view mirror.View) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if view.State.IsConnected {
			status = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus(RobotService, status)
	}
	cancel = src.Subscribe(update)
	update(src.View())
	return cancel
}

func (s *GRPCServer) Serve() error {
	return s.Server.Serve(s.Listener)
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
// It also releases the listener when Serve was never reached, and is safe to
// call more than once.
func (s *GRPCServer) Stop() {
	s.stopOnce.Do(func() {
		s.Health.Shutdown()
		s.Server.GracefulStop()
		_ = s.Listener.Close()
	})
}
