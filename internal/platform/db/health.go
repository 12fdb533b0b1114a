package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// HealthHandler returns an echo handler that pings the database with a short
// deadline and reports pool statistics.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}

		stats := pool.Stat()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"total_conns": stats.TotalConns(),
			"idle_conns":  stats.IdleConns(),
		})
	}
}
