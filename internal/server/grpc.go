package server

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/magefree/tabletop-server/internal/room"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RoomServiceName is the health service name reported for the room registry.
const RoomServiceName = "tabletop.Rooms"

// HealthServer reports serving status over the standard gRPC health protocol.
type HealthServer struct {
	*health.Server
	registry *room.Registry
	logger   *zap.Logger
}

// NewHealthServer creates a health server reporting SERVING for the room
// registry and the server as a whole.
func NewHealthServer(registry *room.Registry, logger *zap.Logger) *HealthServer {
	hs := &HealthServer{Server: health.NewServer(), registry: registry, logger: logger}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(RoomServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// Check logs the probe with the current room count before answering.
func (hs *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	hs.logger.Debug("health check",
		zap.String("service", req.GetService()),
		zap.String("peer", extractHostFromContext(ctx)),
		zap.Int("rooms", hs.registry.Count()),
	)
	return hs.Server.Check(ctx, req)
}

// NewGRPCServer builds the gRPC server with recovery and logging
// interceptors and registers hs on it.
func NewGRPCServer(hs *HealthServer, logger *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				buf = buf[:runtime.Stack(buf, false)]
				logger.Error("panic in grpc handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", buf),
				)
				err = status.Error(codes.Internal, fmt.Sprintf("internal error: %v", r))
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every unary call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("peer", extractHostFromContext(ctx)),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("grpc call", fields...)
		}
		return resp, err
	}
}

func extractHostFromContext(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != net.Addr(nil) {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
