package handler

import (
	"context"
	"net/http"
	"time"

	"clinicpos/internal/infra"
	"clinicpos/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Health pings postgres and redis and reports the audit breaker state plus
// the dead letter depth of each job queue. Only the two pings affect the
// status code; audit writes are retried later.
func Health(db *gorm.DB, rdb *redis.Client, auditCB *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{"db": "connected", "redis": "connected"}
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["db"] = "error"
		}
		if rdb.Ping(ctx).Err() != nil {
			checks["redis"] = "error"
		}

		status := http.StatusOK
		body := gin.H{}
		for k, v := range checks {
			body[k] = v
			if v != "connected" {
				status = http.StatusServiceUnavailable
			}
		}
		body["ok"] = status == http.StatusOK

		if auditCB != nil {
			body["audit_store"] = auditCB.State().String()
		}
		if checks["redis"] == "connected" {
			dead := gin.H{}
			for name, queue := range jobQueues {
				if n, err := worker.DLQLength(ctx, rdb, queue); err == nil {
					dead[name] = n
				}
			}
			body["dead_letters"] = dead
		}
		c.JSON(status, body)
	}
}
