package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// HealthHandler reports storage health. A nil pool means the service runs on
// in-memory repositories, which are always healthy.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		if pool == nil {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"status":  "healthy",
				"storage": "memory",
			})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		stats := GetPoolStats(pool)
		if err := pool.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unhealthy",
				"storage": "postgres",
				"error":   err.Error(),
				"pool":    stats,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"storage": "postgres",
			"pool":    stats,
		})
	}
}
