package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/meetbrief/meetbrief/pkg/config"
	"github.com/meetbrief/meetbrief/pkg/logging"
	"github.com/meetbrief/meetbrief/pkg/meeting"
	"github.com/meetbrief/meetbrief/pkg/pipeline/coordinator"
	"github.com/meetbrief/meetbrief/pkg/pipeline/observability"
	"github.com/meetbrief/meetbrief/pkg/pipeline/queues"
	"github.com/meetbrief/meetbrief/pkg/pipeline/store"
)

// runtime bundles the plumbing every command needs: config, logger, the
// stage queues on Redis, the job store, and a coordinator over them.
type runtime struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *observability.PipelineMetrics

	redis      *redis.Client
	store      store.Store
	pgStore    *store.PostgresStore
	transcribe queues.Queue
	diarize    queues.Queue
	analyze    queues.Queue
	coord      *coordinator.Coordinator
}

// newRuntime loads configuration and connects the shared infrastructure.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := logging.NewLogger(&logging.Config{
		Level:       logging.Level(cfg.LogLevel),
		ServiceName: "meetbrief",
		JSONFormat:  cfg.LogJSON,
		Output:      os.Stderr,
	})

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.DefaultPipelineMetrics(),
	}

	rt.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rt.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	defaults := queues.DefaultConfigs()
	rt.transcribe = queues.NewRedisQueue(rt.redis, stageQueueConfig(defaults[meeting.StageTranscribe], cfg.Queues.Transcribe))
	rt.diarize = queues.NewRedisQueue(rt.redis, stageQueueConfig(defaults[meeting.StageDiarize], cfg.Queues.Diarize))
	rt.analyze = queues.NewRedisQueue(rt.redis, stageQueueConfig(defaults[meeting.StageAnalysis], cfg.Queues.Analyze))

	if cfg.Postgres.IsConfigured() {
		pg, err := store.Connect(ctx, cfg.Postgres.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		rt.pgStore = pg
		rt.store = pg
		logger.Debug("using postgres job store", logging.F("host", cfg.Postgres.Host))
	} else {
		rt.store = store.NewMemoryStore()
		logger.Warn("postgres not configured, job records are not durable")
	}

	rt.coord = coordinator.New(rt.store, rt.transcribe, rt.diarize, rt.analyze,
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(rt.metrics),
		coordinator.WithDeadlines(coordinator.Deadlines{
			Transcribe: cfg.Deadlines.Transcribe,
			Diarize:    cfg.Deadlines.Diarize,
			Analyze:    cfg.Deadlines.Analyze,
		}),
	)

	return rt, nil
}

// stageQueueConfig overlays configured bounds on the stage defaults.
func stageQueueConfig(base queues.Config, override config.StageQueueConfig) queues.Config {
	if override.MaxDepth > 0 {
		base.MaxDepth = int64(override.MaxDepth)
	}
	if override.VisibilityTimeout > 0 {
		base.VisibilityTimeout = override.VisibilityTimeout
	}
	if override.MaxRetries > 0 {
		base.MaxRetries = override.MaxRetries
	}
	return base
}

// close releases the runtime's connections.
func (rt *runtime) close() {
	if rt.pgStore != nil {
		rt.pgStore.Close()
	}
	if rt.redis != nil {
		rt.redis.Close()
	}
}
