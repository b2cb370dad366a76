package sync

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Controller struct {
	service Service
	log     *zap.Logger
}

func NewController(service Service, log *zap.Logger) *Controller {
	return &Controller{service: service, log: log}
}

// dispatch runs a sync in the background and acks immediately; progress is
// observable over the websocket and the run log.
func (c *Controller) dispatch(ctx *fiber.Ctx, name string, fn func(context.Context)) error {
	go fn(context.Background())
	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": name + " started",
	})
}

func (c *Controller) FullSync(ctx *fiber.Ctx) error {
	return c.dispatch(ctx, "full sync", func(bg context.Context) {
		if _, err := c.service.FullSync(bg); err != nil {
			c.log.Error("full sync failed", zap.Error(err))
		}
	})
}

func (c *Controller) IncrementalSync(ctx *fiber.Ctx) error {
	return c.dispatch(ctx, "incremental sync", func(bg context.Context) {
		if _, err := c.service.IncrementalSync(bg); err != nil {
			c.log.Error("incremental sync failed", zap.Error(err))
		}
	})
}

func (c *Controller) ManualSync(ctx *fiber.Ctx) error {
	var cutoff *time.Time
	if raw := ctx.Query("cutoff_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "cutoff_date must be YYYY-MM-DD",
			})
		}
		cutoff = &parsed
	}
	return c.dispatch(ctx, "manual sync", func(bg context.Context) {
		if _, err := c.service.ManualSync(bg, cutoff); err != nil {
			c.log.Error("manual sync failed", zap.Error(err))
		}
	})
}

func (c *Controller) Resync(ctx *fiber.Ctx) error {
	raw := ctx.Query("cutoff_date")
	if raw == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cutoff_date is required",
		})
	}
	cutoff, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cutoff_date must be YYYY-MM-DD",
		})
	}
	return c.dispatch(ctx, "resync", func(bg context.Context) {
		if _, err := c.service.ResyncSince(bg, cutoff); err != nil {
			c.log.Error("resync failed", zap.Error(err))
		}
	})
}

func (c *Controller) LinkWorkTickets(ctx *fiber.Ctx) error {
	return c.dispatch(ctx, "work ticket link repair", func(bg context.Context) {
		if _, err := c.service.LinkWorkTicketsToProperties(bg); err != nil {
			c.log.Error("work ticket link repair failed", zap.Error(err))
		}
	})
}

func (c *Controller) LinkProperties(ctx *fiber.Ctx) error {
	return c.dispatch(ctx, "property link repair", func(bg context.Context) {
		if _, err := c.service.LinkPropertiesToCompanies(bg); err != nil {
			c.log.Error("property link repair failed", zap.Error(err))
		}
	})
}

func (c *Controller) ListLogs(ctx *fiber.Ctx) error {
	logs, err := c.service.ListLogs(
		ctx.Context(),
		ctx.Query("entity_scope"),
		ctx.Query("status"),
		int64(ctx.QueryInt("limit", 20)),
	)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return ctx.JSON(fiber.Map{"logs": logs})
}

func (c *Controller) Status(ctx *fiber.Ctx) error {
	connected := c.service.TestConnection(ctx.Context())
	return ctx.JSON(fiber.Map{"connected": connected})
}
