package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andrebarreto/stockflow-backend/api/controllers"
	"github.com/andrebarreto/stockflow-backend/api/middleware"
	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/internal/materials"
	"github.com/andrebarreto/stockflow-backend/internal/notifications"
	"github.com/andrebarreto/stockflow-backend/internal/orders"
	"github.com/andrebarreto/stockflow-backend/internal/production"
	"github.com/andrebarreto/stockflow-backend/internal/receipts"
	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Logger        *logger.Logger
	DBPinger      controllers.Pinger
	RedisPinger   controllers.Pinger
	Orders        orders.Service
	Reservations  reservations.Service
	Production    production.Service
	Receipts      receipts.Service
	Materials     materials.Service
	Inventory     inventory.SnapshotService
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
		middleware.Actor(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(deps.DBPinger, deps.RedisPinger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Orders, logg))
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.Put("/{orderID}/items", controllers.UpsertOrderItem(deps.Orders, logg))
			r.Delete("/{orderID}/items/{materialID}", controllers.RemoveOrderItem(deps.Orders, logg))
			r.Post("/{orderID}/submit", controllers.SubmitOrder(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Delete("/{orderID}", controllers.TrashOrder(deps.Orders, logg))
			r.Get("/{orderID}/reservations", controllers.ListOrderReservations(deps.Reservations, logg))
			r.Post("/{orderID}/reserve", controllers.ReserveOrderStock(deps.Reservations, logg))
			r.Post("/{orderID}/heartbeat", controllers.HeartbeatOrder(deps.Reservations, logg))
		})

		r.Route("/production/tasks", func(r chi.Router) {
			r.Get("/", controllers.ListProductionTasks(deps.Production, logg))
			r.Get("/{taskID}", controllers.GetProductionTask(deps.Production, logg))
			r.Post("/{taskID}/start", controllers.StartProductionTask(deps.Production, logg))
			r.Post("/{taskID}/complete", controllers.CompleteProductionTask(deps.Production, deps.Inventory, logg))
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Post("/", controllers.CreateReceipt(deps.Receipts, logg))
			r.Get("/", controllers.ListReceipts(deps.Receipts, logg))
			r.Get("/{receiptID}", controllers.GetReceipt(deps.Receipts, logg))
			r.Post("/{receiptID}/post", controllers.PostReceipt(deps.Receipts, deps.Inventory, logg))
		})

		r.Route("/materials", func(r chi.Router) {
			r.Post("/", controllers.CreateMaterial(deps.Materials, logg))
			r.Get("/", controllers.ListMaterials(deps.Materials, logg))
			r.Get("/{materialID}", controllers.GetMaterial(deps.Materials, logg))
			r.Patch("/{materialID}", controllers.UpdateMaterial(deps.Materials, logg))
		})

		r.Get("/inventory/snapshot", controllers.GetInventorySnapshot(deps.Inventory, logg))

		r.Route("/notifications/{role}", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}
