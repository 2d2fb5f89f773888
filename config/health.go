package config

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type closedChecker interface {
	IsClosed() bool
}

type connectedChecker interface {
	IsConnected() bool
}

type HealthChecker struct {
	db       pinger
	amqpConn closedChecker
	redis    redis.Cmdable
	mqtt     connectedChecker
}

func NewHealthChecker(db pinger, amqpConn closedChecker, rdb redis.Cmdable, mqttBackend connectedChecker) *HealthChecker {
	return &HealthChecker{db: db, amqpConn: amqpConn, redis: rdb, mqtt: mqttBackend}
}

func (h *HealthChecker) Register(r *gin.Engine) {
	r.GET("/healthz", h.Handle)
}

func (h *HealthChecker) Handle(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}
	ctx := c.Request.Context()

	if err := h.db.PingContext(ctx); err != nil {
		deps["postgres"] = gin.H{"status": "down", "error": err.Error()}
		status = http.StatusServiceUnavailable
	} else {
		deps["postgres"] = gin.H{"status": "up"}
	}

	if h.amqpConn.IsClosed() {
		deps["rabbitmq"] = gin.H{"status": "down", "error": "connection closed"}
		status = http.StatusServiceUnavailable
	} else {
		deps["rabbitmq"] = gin.H{"status": "up"}
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		deps["redis"] = gin.H{"status": "down", "error": err.Error()}
		status = http.StatusServiceUnavailable
	} else {
		deps["redis"] = gin.H{"status": "up"}
	}

	// the location backend reconnects on its own; a suspended session is
	// reported but does not fail the check
	if !h.mqtt.IsConnected() {
		deps["mqtt"] = gin.H{"status": "down", "error": "not connected"}
	} else {
		deps["mqtt"] = gin.H{"status": "up"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}
