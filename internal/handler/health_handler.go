package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// BrokerHealth reports whether the message broker connection is usable.
type BrokerHealth interface {
	Connected() bool
}

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, broker BrokerHealth) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, broker))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, broker BrokerHealth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgErr := sqlDB.PingContext(ctx)
		redisErr := rdb.Ping(ctx).Err()
		brokerUp := broker == nil || broker.Connected()

		pgStatus := "ok"
		if pgErr != nil {
			pgStatus = "down"
		}
		redisStatus := "ok"
		if redisErr != nil {
			redisStatus = "down"
		}
		brokerStatus := "ok"
		if !brokerUp {
			brokerStatus = "down"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if pgErr != nil || redisErr != nil || !brokerUp {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"postgres": pgStatus,
				"redis":    redisStatus,
				"rabbitmq": brokerStatus,
			},
		})
	}
}
