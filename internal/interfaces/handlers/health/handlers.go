package health

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Handlers struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// Status GET /api/v1/health — liveness plus dependency pings.
func (h *Handlers) Status(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deps := fiber.Map{"database": "ok", "redis": "ok"}
	status := fiber.StatusOK

	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		deps["database"] = "down"
		status = fiber.StatusServiceUnavailable
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			deps["redis"] = "down"
			status = fiber.StatusServiceUnavailable
		}
	}

	overall := "healthy"
	if status != fiber.StatusOK {
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"service":      "giftmarket-api",
		"status":       overall,
		"time":         time.Now().UTC().Format(time.RFC3339),
		"dependencies": deps,
	})
}
