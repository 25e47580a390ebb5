package handler

import (
	"net/http"
	"strconv"

	"clinicpos/internal/apierror"
	"clinicpos/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// jobQueues maps the public queue names onto their redis lists.
var jobQueues = map[string]string{
	"audit": worker.QueueAudit,
	"email": worker.QueueEmail,
}

type JobsHandler struct {
	rdb *redis.Client
}

func NewJobsHandler(rdb *redis.Client) *JobsHandler {
	return &JobsHandler{rdb: rdb}
}

// DeadLetters lists the newest dead-lettered jobs of one queue.
// GET /v1/jobs/dead-letters?queue=audit&limit=20
func (h *JobsHandler) DeadLetters(c *gin.Context) {
	name := c.DefaultQuery("queue", "audit")
	queue, ok := jobQueues[name]
	if !ok {
		c.JSON(http.StatusBadRequest, apierror.New("queue must be audit or email"))
		return
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	entries, err := worker.DLQEntries(c.Request.Context(), h.rdb, queue, limit)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("jobs: read dead letters")
		c.JSON(http.StatusInternalServerError, apierror.New("internal server error"))
		return
	}
	total, err := worker.DLQLength(c.Request.Context(), h.rdb, queue)
	if err != nil {
		total = int64(len(entries))
	}
	c.JSON(http.StatusOK, gin.H{"queue": name, "total": total, "entries": entries})
}
