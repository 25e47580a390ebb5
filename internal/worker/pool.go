package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"clinicpos/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueAudit = "jobs:audit"
	QueueEmail = "jobs:email"
)

// MaxAttempts is how many times a job runs before it is dead-lettered.
const MaxAttempts = 5

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts,omitempty"`
}

// Processor handles the payload of one job. A returned error schedules a
// retry unless it is marked Permanent.
type Processor interface {
	Process(ctx context.Context, raw json.RawMessage) error
}

// Handlers maps a queue name to the processor consuming it.
type Handlers map[string]Processor

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; the job goes straight to the DLQ.
func Permanent(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Dispatcher enqueues async jobs into Redis lists. It is the production
// audit sink and statement notifier for the services.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// Record enqueues an audit entry for the audit worker.
func (d *Dispatcher) Record(ctx context.Context, entry model.AuditLog) error {
	return d.enqueue(ctx, QueueAudit, "audit", entry)
}

// StatementJob is the payload of a statement email job.
type StatementJob struct {
	LiquidationID uuid.UUID `json:"liquidation_id"`
	ToEmail       string    `json:"to_email"`
}

// NotifyStatement enqueues delivery of a paid liquidation's statement.
func (d *Dispatcher) NotifyStatement(ctx context.Context, liquidationID uuid.UUID, toEmail string) error {
	return d.enqueue(ctx, QueueEmail, "statement", StatementJob{LiquidationID: liquidationID, ToEmail: toEmail})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// StartWorkerPool launches numWorkers goroutines consuming every queue in
// handlers. Each goroutine blocks on BRPOP, so idle workers cost nothing.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, handlers Handlers, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	queues := make([]string, 0, len(handlers))
	for q := range handlers {
		queues = append(queues, q)
	}
	sort.Strings(queues)

	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, handlers, queues, i)
	}
	log.Info().Strs("queues", queues).Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, handlers Handlers, queues []string, id int) {
	for {
		if ctx.Err() != nil {
			log.Info().Msgf("worker %d shutting down", id)
			return
		}
		// Blocking pop; waits up to 5s then loops to check ctx
		result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			continue
		}
		if err != nil {
			log.Error().Err(err).Int("worker", id).Msg("worker: BRPOP failed")
			sleep(ctx, time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}
		processJob(ctx, rdb, handlers, result[0], result[1])
	}
}

func processJob(ctx context.Context, rdb *redis.Client, handlers Handlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		SendToDLQ(ctx, rdb, queue, "unknown", json.RawMessage(fmt.Sprintf("%q", raw)), "malformed envelope: "+err.Error(), 0)
		return
	}
	h, ok := handlers[queue]
	if !ok {
		log.Warn().Str("queue", queue).Str("type", job.Type).Msg("no handler for queue")
		return
	}

	err := h.Process(ctx, job.Payload)
	if err == nil {
		return
	}
	job.Attempts++
	if isPermanent(err) || job.Attempts >= MaxAttempts {
		SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, err.Error(), job.Attempts)
		return
	}
	at := time.Now().Add(retryBackoff(job.Attempts))
	if serr := scheduleRetry(ctx, rdb, queue, job, at); serr != nil {
		log.Error().Err(serr).Str("queue", queue).Msg("worker: could not schedule retry")
		SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, err.Error(), job.Attempts)
		return
	}
	log.Warn().Err(err).
		Str("queue", queue).
		Str("type", job.Type).
		Int("attempts", job.Attempts).
		Time("next_attempt_at", at).
		Msg("worker: job failed, retry scheduled")
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
