package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/andrebarreto/stockflow-backend/api/routes"
	"github.com/andrebarreto/stockflow-backend/internal/allocation"
	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/materials"
	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/orders"
	"github.com/andrebarreto/stockflow-backend/internal/production"
	"github.com/andrebarreto/stockflow-backend/internal/receipts"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/internal/shortage"
	"github.com/andrebarreto/stockflow-backend/pkg/config"
	"github.com/andrebarreto/stockflow-backend/pkg/db"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
	"github.com/andrebarreto/stockflow-backend/pkg/metrics"
	"github.com/andrebarreto/stockflow-backend/pkg/migrate"
	"github.com/andrebarreto/stockflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	conn := dbClient.DB()
	materialsRepo := materials.NewRepository(conn)
	balanceRepo := inventory.NewBalanceRepository(conn)
	demandRepo := shortage.NewDemandRepository(conn)
	resRepo := reservations.NewRepository(conn)
	prodRepo := production.NewRepository(conn)
	receiptRepo := receipts.NewRepository(conn)
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

	syncTask := prodEngine.SyncTaskTx
	readiness := orders.RecomputeReadinessTx

	allocator, err := allocation.NewEngine(resEngine, syncTask, readiness, emitter, engineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create allocation engine", err)
		os.Exit(1)
	}

	receiptsSvc, err := receipts.NewService(dbClient, receiptRepo, balanceRepo, resEngine, allocator, engineMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create receipts service", err)
		os.Exit(1)
	}
	productionSvc, err := production.NewService(dbClient, prodRepo, prodEngine, receiptsSvc, resEngine, emitter, readiness, engineMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create production service", err)
		os.Exit(1)
	}
	reservationsSvc, err := reservations.NewService(dbClient, resEngine, resRepo, syncTask, readiness, engineMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservations service", err)
		os.Exit(1)
	}
	ordersSvc, err := orders.NewService(dbClient, ordersRepo, balanceRepo, demandRepo, resRepo, resEngine, prodEngine, emitter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	materialsSvc, err := materials.NewService(materialsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create materials service", err)
		os.Exit(1)
	}
	notificationsSvc, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Logger:        logg,
			DBPinger:      dbClient,
			RedisPinger:   redisClient,
			Orders:        ordersSvc,
			Reservations:  reservationsSvc,
			Production:    productionSvc,
			Receipts:      receiptsSvc,
			Materials:     materialsSvc,
			Inventory:     snapshotSvc,
			Notifications: notificationsSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
