package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/middleware"
	"github.com/expensio/expensio_backend/internal/platform/config"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// healthHandler reports application and dependency health.
type healthHandler struct {
	dbPool      *pgxpool.Pool
	categorizer portssvc.CategorizerSvc
	checkDB     bool
}

// registerHealthRoutes registers the public health endpoint.
func registerHealthRoutes(r *gin.Engine, cfg *config.Config, dbPool *pgxpool.Pool, categorizer portssvc.CategorizerSvc) {
	h := &healthHandler{
		dbPool:      dbPool,
		categorizer: categorizer,
		checkDB:     cfg.EnableDBCheck,
	}
	r.GET("/health", h.health)
}

// health godoc
// @Summary Health check
// @Description Reports service health plus database and classifier reachability. An unreachable classifier degrades categorization to rule-based scoring but does not make the service unhealthy.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any "Database unreachable"
// @Router /health [get]
func (h *healthHandler) health(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	status := "ok"
	code := http.StatusOK
	checks := gin.H{}

	if h.checkDB && h.dbPool != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.dbPool.Ping(ctx); err != nil {
			logger.Error("Health check failed to reach database", slog.String("error", err.Error()))
			checks["database"] = "unreachable"
			status = "unavailable"
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if h.categorizer != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.categorizer.PingClassifier(ctx); err != nil {
			// Categorization degrades to rule-based scoring, so this is
			// reported without failing the check.
			checks["classifier"] = "unreachable"
			if status == "ok" {
				status = "degraded"
			}
		} else {
			checks["classifier"] = "ok"
		}
	}

	c.JSON(code, gin.H{"status": status, "checks": checks})
}
