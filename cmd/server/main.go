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
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coupgame/coup-server-go/internal/clock"
	"github.com/coupgame/coup-server-go/internal/config"
	"github.com/coupgame/coup-server-go/internal/game"
	"github.com/coupgame/coup-server-go/internal/lobby"
	"github.com/coupgame/coup-server-go/internal/repository"
	"github.com/coupgame/coup-server-go/internal/server"
	"github.com/coupgame/coup-server-go/internal/transport/ws"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	envPath    = flag.String("env", ".env", "optional dotenv file loaded before the environment is read")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envPath, err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting Coup server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	settings := game.Settings{
		ResponseWindow: cfg.Game.ResponseWindow,
		MinimumPlayers: cfg.Game.MinimumPlayers,
		MaximumPlayers: cfg.Game.MaximumPlayers,
		StartingCoins:  cfg.Game.StartingCoins,
		CardsPerPlayer: cfg.Game.CardsPerPlayer,
	}
	registry := lobby.NewRegistry(logger, cfg.Game.RoomCodeLength, game.WithSettings(settings))
	registry.SetIdleTimeout(clock.NewReal(), cfg.Game.IdleRoomTimeout)
	logger.Info("room registry initialized",
		zap.Duration("response_window", settings.ResponseWindow),
		zap.Int("maximum_players", settings.MaximumPlayers),
	)

	if cfg.Replay.Enabled {
		recorder := game.NewReplayRecorder(logger, cfg.Replay.Directory)
		registry.OnRoomCreated(func(room *game.Room) { recorder.Attach(room) })
		logger.Info("replay recording enabled", zap.String("directory", cfg.Replay.Directory))
	}

	var results *repository.ResultsRepository
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(ctx, repository.Config{
			URL:      cfg.Database.URL,
			MaxConns: int32(cfg.Database.MaxConns),
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := repository.Migrate(ctx, db); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}

		stats := db.Stat()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)

		results = repository.NewResultsRepository(db, logger)
		registry.OnRoomCreated(func(room *game.Room) { results.Attach(room.Events()) })
	} else {
		logger.Warn("database url not configured; game results will not be stored")
	}

	hub := ws.NewHub(registry, ws.Config{
		ReadBufferSize:  cfg.Server.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.Server.WebSocket.WriteBufferSize,
		SendBuffer:      cfg.Server.WebSocket.SendBuffer,
		AllowedOrigins:  cfg.Server.WebSocket.AllowedOrigins,
	}, logger)
	go hub.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTP.Address,
		Handler:           server.NewRouter(registry, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, healthSrv := server.NewGRPCServer(server.GRPCConfig{
		MaxConcurrentStreams: uint32(cfg.Server.GRPC.MaxConcurrentStreams),
	}, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	// Start gRPC server
	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	// Start HTTP and WebSocket server
	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTP.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(serveErr))
		}
	}()

	logger.Info("Coup server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTP.Address),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	healthSrv.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	// Closes every websocket, which removes its player from their room.
	cancel()

	grpcServer.GracefulStop()

	if results != nil {
		results.Wait()
	}

	logger.Info("Coup server stopped")
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
