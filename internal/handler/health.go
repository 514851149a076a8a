package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// changeListener is the slice of the docstore the health surface cares
// about: whether the notify listener currently holds its connection.
type changeListener interface {
	Listening() bool
}

type HealthHandler struct {
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	amqpConn    *amqp.Connection
	listener    changeListener
}

func NewHealthHandler(dbPool *pgxpool.Pool, redisClient *redis.Client, amqpConn *amqp.Connection, listener changeListener) *HealthHandler {
	return &HealthHandler{dbPool: dbPool, redisClient: redisClient, amqpConn: amqpConn, listener: listener}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz answers 503 while any hard dependency is down. The docstore change
// listener is reported but does not gate readiness: it reconnects on its own
// and only live streams degrade while it is away.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()

	checks := []struct {
		name string
		ok   func() bool
	}{
		{"postgres", func() bool { return h.dbPool.Ping(ctx) == nil }},
		{"redis", func() bool { return h.redisClient.Ping(ctx).Err() == nil }},
		{"rabbitmq", func() bool { return !h.amqpConn.IsClosed() }},
	}

	resp := gin.H{"status": "ok"}
	status := http.StatusOK
	for _, check := range checks {
		if check.ok() {
			resp[check.name] = "connected"
			continue
		}
		resp[check.name] = "unavailable"
		resp["status"] = "error"
		status = http.StatusServiceUnavailable
	}

	if h.listener.Listening() {
		resp["change_listener"] = "listening"
	} else {
		resp["change_listener"] = "reconnecting"
	}
	c.JSON(status, resp)
}
