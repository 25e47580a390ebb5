package worker

// retry_cron.go
// Failed jobs wait in a sorted set per queue (retry:{queue}) scored by the
// unix-millisecond time of their next attempt. The cron moves due members
// back onto their queue. Audit jobs stay parked while the audit store's
// circuit breaker is open.

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"clinicpos/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	RetryPrefix       = "retry:"
	retryTickInterval = 10 * time.Second
	retryBatchSize    = 50
	retryBaseDelay    = 2 * time.Second
	retryMaxDelay     = 5 * time.Minute
)

// requeueScript moves one member from the retry set to its queue. Only the
// caller whose ZREM succeeds pushes, so concurrent crons never duplicate a job.
var requeueScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
  return redis.call('LPUSH', KEYS[2], ARGV[1])
end
return 0
`)

// retryBackoff returns 2s, 4s, 8s … capped at five minutes.
func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return retryMaxDelay
	}
	d := retryBaseDelay << uint(attempt-1)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

func scheduleRetry(ctx context.Context, rdb *redis.Client, queue string, job Job, at time.Time) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.ZAdd(ctx, RetryPrefix+queue, redis.Z{Score: float64(at.UnixMilli()), Member: encoded}).Err()
}

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	RDB      *redis.Client
	AuditCB  *infra.CircuitBreaker
	Queues   []string
	Interval time.Duration
	Now      func() time.Time
}

// StartRetryCron launches a goroutine that requeues due jobs every tick
// until ctx is cancelled.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = retryTickInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg)
			}
		}
	}()
}

// processRetries runs one tick and returns how many jobs were requeued.
func processRetries(ctx context.Context, cfg RetryCronConfig) int {
	now := strconv.FormatInt(cfg.Now().UnixMilli(), 10)
	moved := 0
	for _, queue := range cfg.Queues {
		if queue == QueueAudit && cfg.AuditCB != nil && cfg.AuditCB.State() == infra.CBOpen {
			log.Debug().Msg("retry_cron: audit store circuit open, skipping audit retries")
			continue
		}
		key := RetryPrefix + queue
		due, err := cfg.RDB.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: "-inf", Max: now, Count: retryBatchSize,
		}).Result()
		if err != nil {
			log.Error().Err(err).Str("queue", queue).Msg("retry_cron: failed to query due jobs")
			continue
		}
		for _, member := range due {
			n, err := requeueScript.Run(ctx, cfg.RDB, []string{key, queue}, member).Int()
			if err != nil {
				log.Error().Err(err).Str("queue", queue).Msg("retry_cron: requeue failed")
				continue
			}
			if n > 0 {
				moved++
			}
		}
	}
	if moved > 0 {
		log.Info().Int("count", moved).Msg("retry_cron: jobs requeued")
	}
	return moved
}
