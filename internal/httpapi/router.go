// Package httpapi is the thin HTTP control plane: health and a fixed
// JSON error-body mapping. All dispatch logic lives in internal/supervisor
// and internal/dispatch; this package never touches a delivery.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stq-payments/notify-dispatcher/internal/broker"
)

// NewRouter builds the ingress engine: /health, /metrics, and a catch-all
// 404 responder, wrapped in the fixed error-body middleware.
func NewRouter(manager *broker.Manager, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(errorBodyMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", NewHealthHandler(manager, logger).Health)

	router.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"description": "Not found"})
	})

	return router
}

// errorBodyMiddleware rewrites a bare 400, 401, 404 or 500 status into the
// fixed JSON body for that status. Other statuses, and any response whose
// body a handler already wrote (422 validation errors included), pass
// through untouched.
func errorBodyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// A handler that already wrote a body (success responses, 422
		// validation errors, the NoRoute 404) is left untouched; only a
		// bare c.Status(code) with no body gets the fixed mapping.
		if c.Writer.Written() {
			return
		}

		switch status := c.Writer.Status(); status {
		case http.StatusBadRequest:
			c.JSON(status, gin.H{"description": "Bad request"})
		case http.StatusUnauthorized:
			c.JSON(status, gin.H{"description": "Unauthorized"})
		case http.StatusNotFound:
			c.JSON(status, gin.H{"description": "Not found"})
		case http.StatusInternalServerError:
			c.JSON(status, gin.H{"description": "Internal server error"})
		}
	}
}
