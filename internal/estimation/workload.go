package estimation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/models"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultWorkload is used whenever the workload cannot be computed.
const DefaultWorkload = 200

const workloadCacheKey = "passport:workload"

// StatusCounter counts applications in any of the given statuses.
type StatusCounter interface {
	CountByStatus(ctx context.Context, statuses ...models.ApplicationStatus) (int, error)
}

// WorkloadCounter reports the number of applications waiting on the early
// stages. It never fails.
type WorkloadCounter struct {
	source          StatusCounter
	cache           redis.Cmdable
	ttl             time.Duration
	defaultWorkload int
	group           singleflight.Group
	logger          logger.Logger
}

// NewWorkloadCounter returns a counter reading through cache. cache may be
// nil, in which case every call goes to the source.
func NewWorkloadCounter(source StatusCounter, cache redis.Cmdable, ttl time.Duration, defaultWorkload int, log logger.Logger) *WorkloadCounter {
	if defaultWorkload <= 0 {
		defaultWorkload = DefaultWorkload
	}
	return &WorkloadCounter{
		source:          source,
		cache:           cache,
		ttl:             ttl,
		defaultWorkload: defaultWorkload,
		logger:          log.WithFields(map[string]interface{}{"component": "workload"}),
	}
}

func (w *WorkloadCounter) Workload(ctx context.Context) int {
	if w.cache != nil {
		val, err := w.cache.Get(ctx, workloadCacheKey).Result()
		switch {
		case err == nil:
			if n, convErr := strconv.Atoi(val); convErr == nil {
				return n
			}
		case !errors.Is(err, redis.Nil):
			w.logger.Warn("workload cache read failed", map[string]interface{}{"error": err})
		}
	}

	v, err, _ := w.group.Do(workloadCacheKey, func() (interface{}, error) {
		n, err := w.source.CountByStatus(ctx, models.PendingStatuses...)
		if err != nil {
			return 0, err
		}
		if w.cache != nil {
			if setErr := w.cache.Set(ctx, workloadCacheKey, n, w.ttl).Err(); setErr != nil {
				w.logger.Warn("workload cache write failed", map[string]interface{}{"error": setErr})
			}
		}
		return n, nil
	})
	if err != nil {
		w.logger.Warn("workload count failed, using default", map[string]interface{}{
			"default": w.defaultWorkload,
			"error":   err,
		})
		return w.defaultWorkload
	}
	return v.(int)
}

// Invalidate drops the cached workload so the next call recounts.
func (w *WorkloadCounter) Invalidate(ctx context.Context) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Del(ctx, workloadCacheKey).Err(); err != nil {
		w.logger.Warn("workload cache invalidate failed", map[string]interface{}{"error": err})
	}
}
