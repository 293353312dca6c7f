package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/vaultshop/internal/config"
	"github.com/Additional-Code/vaultshop/internal/database"
)

// ServiceName is the health service name reported for the order store.
const ServiceName = "vaultshop.Orders"

// Module exposes the gRPC server and lifecycle hooks to Fx.
var Module = fx.Module("grpc_server",
	fx.Provide(NewServer, health.NewServer),
	fx.Invoke(RegisterHealth, Run),
)

// NewServer builds a gRPC server that logs every call. Handlers may return
// errorbank errors directly; they are sent with the matching status code.
func NewServer(logger *zap.Logger) *grpc.Server {
	logger = logger.Named("grpc")
	return grpc.NewServer(
		grpc.ChainUnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			start := time.Now()
			resp, err := handler(ctx, req)
			logCall(logger, info.FullMethod, start, err)
			return resp, err
		}),
		grpc.ChainStreamInterceptor(func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			start := time.Now()
			err := handler(srv, ss)
			logCall(logger, info.FullMethod, start, err)
			return err
		}),
	)
}

func logCall(logger *zap.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("duration", time.Since(start)),
	}
	switch code {
	case codes.OK:
		logger.Debug("call finished", fields...)
	case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
		logger.Error("call failed", append(fields, zap.Error(err))...)
	default:
		logger.Info("call rejected", append(fields, zap.Error(err))...)
	}
}

// RegisterHealth exposes grpc.health.v1 and reflection. The overall and
// order store statuses follow a database ping taken every interval.
func RegisterHealth(lc fx.Lifecycle, server *grpc.Server, hs *health.Server, conns *database.Connections, logger *zap.Logger) {
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	const interval = 15 * time.Second
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			probe := func() {
				pingCtx, done := context.WithTimeout(ctx, 2*time.Second)
				defer done()
				status := healthpb.HealthCheckResponse_SERVING
				if err := conns.Ping(pingCtx); err != nil {
					logger.Warn("grpc health probe failed", zap.Error(err))
					status = healthpb.HealthCheckResponse_NOT_SERVING
				}
				hs.SetServingStatus("", status)
				hs.SetServingStatus(ServiceName, status)
			}
			probe()
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						probe()
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			hs.Shutdown()
			return nil
		},
	})
}

// Run binds the gRPC server to the configured host/port and manages lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, server *grpc.Server, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	var listener net.Listener

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen grpc: %w", err)
			}
			listener = ln
			logger.Info("starting gRPC server", zap.String("addr", addr))
			go func() {
				if err := server.Serve(listener); err != nil {
					logger.Fatal("grpc server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping gRPC server")
			stopped := make(chan struct{})
			go func() {
				server.GracefulStop()
				close(stopped)
			}()

			select {
			case <-ctx.Done():
				server.Stop()
				return ctx.Err()
			case <-stopped:
				if listener != nil {
					_ = listener.Close()
				}
				return nil
			}
		},
	})
}
