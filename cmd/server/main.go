package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magefree/tabletop-server/internal/catalog"
	"github.com/magefree/tabletop-server/internal/config"
	"github.com/magefree/tabletop-server/internal/room"
	"github.com/magefree/tabletop-server/internal/server"
	"github.com/magefree/tabletop-server/internal/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	envFile    = flag.String("env", ".env", "optional dotenv file loaded before the environment is read")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting tabletop server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("tabletop server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	adapter, closeCatalog, err := catalog.New(ctx, cfg.Catalog, logger.Named("catalog"))
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	defer closeCatalog()

	hub := server.NewHub(cfg.Server.WebSocket, logger.Named("ws"))
	registry := room.NewRegistry(hub, logger.Named("room"))
	sessions := session.NewManager(registry, adapter, hub, logger.Named("session"), session.Options{
		InitialHandSize:  cfg.Game.InitialHandSize,
		StrictInvariants: cfg.Game.StrictInvariants,
	})
	hub.Attach(sessions)
	logger.Info("room registry initialized",
		zap.Int("initial_hand_size", cfg.Game.InitialHandSize),
		zap.Bool("strict_invariants", cfg.Game.StrictInvariants),
	)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTP.Address,
		Handler: server.NewRouter(cfg.Server.HTTP.Mode, registry, hub, logger.Named("http")),
	}

	var (
		grpcServer *grpc.Server
		grpcLis    net.Listener
		health     *server.HealthServer
	)
	if cfg.Server.GRPC.Enabled {
		grpcLis, err = net.Listen("tcp", cfg.Server.GRPC.Address)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPC.Address, err)
		}
		health = server.NewHealthServer(registry, logger.Named("grpc"))
		grpcServer = server.NewGRPCServer(health, logger.Named("grpc"))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
			if err := grpcServer.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if health != nil {
			health.Shutdown()
		}
		err := httpServer.Shutdown(shutdownCtx)
		hub.CloseAll()
		sessions.Close()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}

		logger.Info("shutdown complete",
			zap.Int("rooms", registry.Count()),
			zap.Int("sessions", sessions.Count()),
		)
		return err
	})

	return g.Wait()
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
