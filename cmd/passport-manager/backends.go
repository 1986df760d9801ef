package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"passport-tracker/internal/api"
	awsclient "passport-tracker/internal/common/aws"
	"passport-tracker/internal/common/camunda"
	"passport-tracker/internal/common/config"
	"passport-tracker/internal/common/database"
	httpclient "passport-tracker/internal/common/http"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/estimation"
	"passport-tracker/internal/notification"
	"passport-tracker/internal/search"
	"passport-tracker/internal/store"
)

// backends holds every external connection the process opened. Optional
// ones stay nil when disabled.
type backends struct {
	store  store.Store
	pg     *database.PostgresClient
	redis  *database.RedisClient
	cache  redis.Cmdable
	es     *database.ElasticsearchClient
	index  *search.Index
	zeebe  *camunda.Client
	email  notification.EmailSender
	sms    notification.SMSSender
	closer []func() error
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func openBackends(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, log logger.Logger) (*backends, error) {
	b := &backends{}
	if err := b.open(ctx, cfg, zapLog, log); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) open(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, log logger.Logger) error {
	// --- Application store ---
	switch cfg.Database.Driver {
	case "memory":
		b.store = store.NewMemory()
		zapLog.Warn("using in-memory store, data is lost on restart")
	default:
		err := retryWithBackoff(ctx, func() error {
			var err error
			b.pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return b.pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return err
		}
		b.closer = append(b.closer, b.pg.Close)
		zapLog.Info("PostgreSQL connected successfully")

		if cfg.Database.Postgres.AutoMigrate {
			if err := database.Migrate(b.pg.DB); err != nil {
				return err
			}
			zapLog.Info("database migrations applied")
		}
		b.store = store.NewPostgres(b.pg.DB)
	}

	// --- Workload cache ---
	if cfg.Database.Redis.Enabled {
		err := retryWithBackoff(ctx, func() error {
			var err error
			b.redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return b.redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			return err
		}
		b.closer = append(b.closer, b.redis.Close)
		b.cache = b.redis.Client
		zapLog.Info("Redis connected successfully")
	}

	// --- Search index ---
	if cfg.Database.Elasticsearch.Enabled {
		err := retryWithBackoff(ctx, func() error {
			var err error
			b.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return b.es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			return err
		}
		b.index = search.NewIndex(b.es.Client, cfg.Search.Index, log)
		if err := b.index.EnsureIndex(ctx); err != nil {
			return err
		}
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", cfg.Search.Index))
	}

	// --- Zeebe ---
	if cfg.Camunda.Enabled {
		err := retryWithBackoff(ctx, func() error {
			var err error
			b.zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			return err
		}
		b.closer = append(b.closer, b.zeebe.Close)
		brokers, err := b.zeebe.Brokers(ctx)
		if err != nil {
			return fmt.Errorf("zeebe topology: %w", err)
		}
		zapLog.Info("Zeebe client connected successfully", zap.Int("brokers", brokers))
	}

	// --- Notification channels ---
	if cfg.Notifications.Email.Enabled {
		ses, err := awsclient.NewSESClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.Email.FromEmail)
		if err != nil {
			return fmt.Errorf("ses client: %w", err)
		}
		b.email = ses
	}
	if cfg.Notifications.SMS.Enabled {
		sns, err := awsclient.NewSNSClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.SMS.SenderID)
		if err != nil {
			return fmt.Errorf("sns client: %w", err)
		}
		b.sms = sns
	}
	return nil
}

// readyChecks lists one check per enabled backend for /ready.
func (b *backends) readyChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"store": b.store.Ping,
	}
	if b.redis != nil {
		checks["redis"] = b.redis.Ping
	}
	if b.es != nil {
		checks["elasticsearch"] = b.es.Ping
	}
	if b.zeebe != nil {
		checks["zeebe"] = b.zeebe.HealthCheck
	}
	return checks
}

// Close releases connections in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closer) - 1; i >= 0; i-- {
		_ = b.closer[i]()
	}
}

func newFetcher(timeout time.Duration) estimation.Fetcher {
	return httpclient.NewClient(timeout)
}
