package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/worqly/orchestrator/internal/credential"
	"github.com/worqly/orchestrator/internal/engine"
	"github.com/worqly/orchestrator/internal/event"
	"github.com/worqly/orchestrator/internal/provider"
	"github.com/worqly/orchestrator/internal/queue"
	"github.com/worqly/orchestrator/internal/record"
	"github.com/worqly/orchestrator/internal/runner"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	port := os.Getenv("GRPC_PORT")
	if port == "" {
		port = "50051"
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Run history store: PostgreSQL when configured, in-memory otherwise
	var records engine.RecordStore
	if os.Getenv("DATABASE_URL") != "" {
		pg, err := record.NewPostgresStore(ctx, sugar)
		if err != nil {
			sugar.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			sugar.Fatalf("Failed to migrate run history schema: %v", err)
		}
		records = pg
	} else {
		sugar.Warn("DATABASE_URL not set, run history will not survive restarts")
		records = record.NewMemoryStore()
	}

	// 2. Event bus
	eventBus := event.NewBus(sugar)

	// 3. Credential manager over the in-memory store
	credStore := credential.NewMemoryStore()
	credentials := credential.NewManager(credStore, sugar)

	// 4. Provider and runner registries
	providers := provider.NewRegistry()
	runners := runner.NewRegistry()
	runner.RegisterBuiltins(runners, providers, credentials, sugar)

	// 5. Execution coordinator (durable traversal mode)
	coordinator := engine.NewCoordinator(runners, records, eventBus, sugar, engine.Options{
		Strategy: engine.StrategyRecursive,
	})

	// 6. Task broker: NATS JetStream when configured, in-memory otherwise
	var broker queue.Queue
	if os.Getenv("NATS_URL") != "" {
		nq, err := queue.NewNATSQueue(ctx, sugar)
		if err != nil {
			sugar.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nq.Close()
		broker = nq
	} else {
		sugar.Info("NATS_URL not set, using in-process task queue")
		broker = queue.NewInMemoryQueue(0)
	}

	// 7. Workers and maintenance
	results := queue.NewResultStore(queue.DefaultResultTTL)
	concurrency := 1
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			concurrency = n
		}
	}
	for i := 0; i < concurrency; i++ {
		worker := queue.NewWorker(broker, coordinator, results, sugar, queue.WorkerOptions{Runners: runners})
		go func(id int) {
			for ctx.Err() == nil {
				if err := worker.Run(ctx); err != nil {
					sugar.Errorw("worker stopped", "worker", id, "error", err)
					return
				}
			}
		}(i)
	}

	maintenance := queue.NewMaintenance(credentials, sugar)
	go func() {
		if err := maintenance.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Errorw("maintenance scheduler stopped", "error", err)
		}
	}()

	// 8. gRPC health server
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		sugar.Fatalf("Failed to listen: %v", err)
	}

	server := grpclib.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("orchestrator", healthpb.HealthCheckResponse_SERVING)

	sugar.Infof("Worqly orchestrator gRPC server listening on :%s", port)
	sugar.Infow("worker pool started", "concurrency", concurrency)

	go func() {
		if err := server.Serve(lis); err != nil {
			sugar.Fatalf("Failed to serve: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down gRPC server...")
	server.GracefulStop()
	sugar.Info("Server stopped")
}
