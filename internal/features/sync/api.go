package sync

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"aspire-sync/internal/config"
	"aspire-sync/internal/middleware"
)

type SyncRoute struct {
	controller *Controller
	hub        *Hub
	cfg        *config.Config
}

func NewSyncRoute(controller *Controller, hub *Hub, cfg *config.Config) *SyncRoute {
	return &SyncRoute{controller: controller, hub: hub, cfg: cfg}
}

func (r *SyncRoute) Setup(app *fiber.App) {
	api := app.Group("/api/sync", middleware.AuthMiddleware(r.cfg.SkipAuth))

	api.Post("/full", r.controller.FullSync)
	api.Post("/incremental", r.controller.IncrementalSync)
	api.Post("/manual", r.controller.ManualSync)
	api.Post("/resync", r.controller.Resync)
	api.Post("/link/work-tickets", r.controller.LinkWorkTickets)
	api.Post("/link/properties", r.controller.LinkProperties)
	api.Get("/logs", r.controller.ListLogs)
	api.Get("/status", r.controller.Status)

	app.Get("/api/ws/sync", websocket.New(r.hub.Handle))
}
