package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/opencmp/cmp-orchestrator/config"
	"github.com/opencmp/cmp-orchestrator/consumer/worker"
	"github.com/opencmp/cmp-orchestrator/entity"
	infraPkg "github.com/opencmp/cmp-orchestrator/infra"
	"github.com/opencmp/cmp-orchestrator/reconcile"
	"github.com/opencmp/cmp-orchestrator/repository"
)

func main() {
	err := godotenv.Load("../staging.env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapters := map[entity.Provider]reconcile.VMAdapter{
		entity.ProviderAWS:   infra.AWS,
		entity.ProviderAzure: infra.Azure,
	}
	reconciler := reconcile.NewReconciler(adapters, infra.Logger)
	orchestrator := reconcile.NewOrchestrator(
		repository.NewReconcileStore(repo),
		infra.Pulumi,
		infra.Redis,
		reconciler,
		infra.Logger,
		cfg.EnvConfig.Reconcile.Workers,
		cfg.EnvConfig.Reconcile.LeaseTTL,
	)

	// Start Project Consumer
	projectConsumer := worker.NewProjectConsumer(infra.RabbitMQ.Channel, infra, repo, orchestrator)
	if err := projectConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Project consumer: %v", err)
		log.Fatalf("Failed to start Project consumer: %v", err)
	}

	// Start periodic reconcile scheduler
	scheduler := worker.NewScheduler(infra, repo, cfg.EnvConfig.Reconcile.Interval)
	scheduler.Start(ctx)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down consumer...")
	cancel()

	if infra.Telemetry != nil {
		_ = infra.Telemetry.Shutdown(context.Background())
	}
	_ = infra.Logger.Shutdown(context.Background())

	log.Println("Consumer exited properly")
}
