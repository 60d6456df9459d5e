package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/andrebarreto/stockflow-backend/internal/cron"
	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/materials"
	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/orders"
	"github.com/andrebarreto/stockflow-backend/internal/production"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/internal/shortage"
	"github.com/andrebarreto/stockflow-backend/pkg/config"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
	"github.com/andrebarreto/stockflow-backend/pkg/metrics"
	"github.com/andrebarreto/stockflow-backend/pkg/migrate"
	"github.com/andrebarreto/stockflow-backend/pkg/redis"
)

// systemActorID stamps rows written by scheduled jobs rather than a person.
var systemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	conn := dbClient.DB()
	materialsRepo := materials.NewRepository(conn)
	balanceRepo := inventory.NewBalanceRepository(conn)
	demandRepo := shortage.NewDemandRepository(conn)
	resRepo := reservations.NewRepository(conn)
	prodRepo := production.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	notificationsRepo := notifications.NewRepository(conn)

	emitter, err := notifications.NewEmitter(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification emitter", err)
		os.Exit(1)
	}

	resEngine, err := reservations.NewEngine(resRepo, balanceRepo, cfg.Engine.ReservationTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation engine", err)
		os.Exit(1)
	}
	prodEngine, err := production.NewEngine(prodRepo, resEngine)
	if err != nil {
		logg.Error(context.Background(), "failed to create production engine", err)
		os.Exit(1)
	}

	reservationsSvc, err := reservations.NewService(dbClient, resEngine, resRepo, prodEngine.SyncTaskTx, orders.RecomputeReadinessTx, engineMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservations service", err)
		os.Exit(1)
	}
	ordersSvc, err := orders.NewService(dbClient, ordersRepo, balanceRepo, demandRepo, resRepo, resEngine, prodEngine, emitter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	var snapshotCache inventory.SnapshotCache
	if cfg.Engine.SnapshotEnabled {
		snapshotCache = redisClient
	}
	snapshotSvc, err := inventory.NewSnapshotService(balanceRepo, materialsRepo, snapshotCache, cfg.Engine.SnapshotTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory snapshot service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReservationSweepJob(cron.ReservationSweepJobParams{
		Logger:  logg,
		Sweeper: reservationsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation sweep job", err)
		os.Exit(1)
	}
	lowStockJob, err := cron.NewLowStockJob(cron.LowStockJobParams{
		Logger:    logg,
		DB:        dbClient,
		Materials: materialsRepo,
		Emitter:   emitter,
		Orders:    ordersSvc,
		ActorID:   systemActorID,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create low stock job", err)
		os.Exit(1)
	}
	snapshotJob, err := cron.NewSnapshotRefreshJob(cron.SnapshotRefreshJobParams{
		Logger:    logg,
		Snapshots: snapshotSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot refresh job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob, lowStockJob, snapshotJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
