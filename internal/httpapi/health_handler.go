package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stq-payments/notify-dispatcher/internal/broker"
)

// HealthHandler reports broker connectivity. Database and cache checks from
// the teacher's handler don't apply here — this system owns no datastore.
type HealthHandler struct {
	manager *broker.Manager
	logger  *zap.Logger
}

func NewHealthHandler(manager *broker.Manager, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{manager: manager, logger: logger}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	brokerStatus := "ok"
	if pc, err := h.manager.AcquireChannel(ctx); err != nil {
		brokerStatus = "error: " + err.Error()
		h.logger.Warn("broker health check failed", zap.Error(err))
	} else {
		pc.Release()
	}

	if brokerStatus != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "degraded",
			"rabbitmq": brokerStatus,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"rabbitmq": brokerStatus,
	})
}
