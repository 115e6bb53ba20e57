package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-commerce-service/config"
	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/checkpoint"
	"github.com/fekuna/omnipos-commerce-service/internal/flight"
	"github.com/fekuna/omnipos-commerce-service/internal/metrics"
	"github.com/fekuna/omnipos-commerce-service/internal/movement"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation"
	"github.com/fekuna/omnipos-commerce-service/internal/status"
	"github.com/fekuna/omnipos-commerce-service/pkg/broker"
	"github.com/fekuna/omnipos-commerce-service/pkg/logger"
	"github.com/fekuna/omnipos-commerce-service/pkg/postgres"

	mutListenerPkg "github.com/fekuna/omnipos-commerce-service/internal/mutation/listener"
	mutRepoPkg "github.com/fekuna/omnipos-commerce-service/internal/mutation/repository"
	mutUCPkg "github.com/fekuna/omnipos-commerce-service/internal/mutation/usecase"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Repository
	mutRepo := mutRepoPkg.NewPGRepository(db)
	if err := mutRepo.EnsureSchema(context.Background()); err != nil {
		appLogger.Fatal("Could not prepare schema", zap.Error(err))
	}

	// 5. Engine core: classifier, reducer and per-owner snapshot stores
	classifier := status.NewClassifier(cfg.Status.Completed, cfg.Status.Failed)
	reducer := mutation.NewReducer(classifier)

	loader := mutation.RebuildLoader(mutRepo, reducer)
	var hooks []func(*aggregate.Snapshot)
	if cfg.Checkpoint.Enabled {
		checkpoints, err := checkpoint.NewPebbleStore(cfg.Checkpoint.Dir)
		if err != nil {
			appLogger.Fatal("Could not open checkpoint store", zap.Error(err))
		}
		defer checkpoints.Close()
		loader = aggregate.Chain(checkpoints, loader)
		hooks = append(hooks, checkpoints.Hook(appLogger))
		appLogger.Info("Snapshot checkpoints enabled", zap.String("dir", cfg.Checkpoint.Dir))
	}
	registry := aggregate.NewRegistry(loader, hooks...)

	// 6. Single-flight guard
	var guard flight.Guard = flight.NewMemoryGuard()
	if cfg.Flight.Backend == "redis" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		guard = flight.NewRedisGuard(redisClient, cfg.Flight.TTL, appLogger)
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 7. Movement journal
	publishers := movement.Multi{movement.PublishFunc(mutRepo.LogMovements)}
	if cfg.Kafka.PublishEnabled {
		publishers = append(publishers, movement.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.MovementTopic))
		appLogger.Info("Publishing stock movements", zap.String("topic", cfg.Kafka.MovementTopic))
	}
	defer publishers.Close()

	// 8. Initialize UseCase
	promRegistry := metrics.NewRegistry()
	mutUC := mutUCPkg.NewMutationUseCase(mutRepo, registry, reducer, guard, publishers, promRegistry, appLogger)

	// 9. Initialize Kafka Consumer and Listener
	kafkaConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.MutationTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer kafkaConsumer.Close()
	appLogger.Info("Connected to Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.MutationTopic))

	mutListener := mutListenerPkg.NewMutationListener(kafkaConsumer, mutUC, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mutListener.Start(ctx)

	// 10. Metrics endpoint
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promRegistry.Handler())
	metricsServer := &http.Server{Addr: cfg.Server.MetricsPort, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 11. Start gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Register Reflection
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port), zap.String("metrics_port", cfg.Server.MetricsPort))

	// Graceful Shutdown
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}
