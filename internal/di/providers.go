package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PlantDex/internal/domain/models"
	domrepo "PlantDex/internal/domain/repository"
	domsvc "PlantDex/internal/domain/service"
	"PlantDex/internal/handler/api"
	mid "PlantDex/internal/middleware"
	internalrepo "PlantDex/internal/repository"
	"PlantDex/internal/scheduler"
	icache "PlantDex/internal/service/cache"
	"PlantDex/internal/service/feed"
	"PlantDex/internal/service/lock"
	enginemetrics "PlantDex/internal/service/metrics"
	"PlantDex/internal/service/ratelimit"
	"PlantDex/internal/services/intelligence"
	"PlantDex/internal/services/reference"
	"PlantDex/internal/usecase"
	"PlantDex/pkg/cache"
	pkgch "PlantDex/pkg/clickhouse"
	"PlantDex/pkg/config"
	pkgkafka "PlantDex/pkg/kafka"
	applogger "PlantDex/pkg/logger"
	"PlantDex/pkg/metrics"
	"PlantDex/pkg/postgres"
	"PlantDex/pkg/queue"
	"PlantDex/pkg/server"

	"github.com/segmentio/kafka-go"
)

// Store is the engine store plus catalog seeding.
type Store interface {
	domrepo.EngineStore
	domrepo.ItemWriter
}

// ObservationStore is the observation store as seen by ingest and the aggregator.
type ObservationStore interface {
	domrepo.ObservationStorage
	domrepo.ObservationSource
	domrepo.CounterSource
	domrepo.CounterRecorder
}

// Engine bundles the compute and query sides for CLI commands.
type Engine struct {
	Config  *config.Config
	Logger  *applogger.Logger
	Store   Store
	Compute *usecase.ComputeUseCase
	Query   *usecase.QueryUseCase
	Jobs    *queue.RedisQueue
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.Producer.MaxAttempts,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:  cfg.Kafka.Producer.ReadTimeout,
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		BatchBytes:   cfg.Kafka.Producer.BatchBytes,
		Linger:       cfg.Kafka.Producer.Linger,
		Async:        cfg.Kafka.Producer.Async,
		KeyHashing:   true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the app logger. Error logs are aggregated and shipped to
// the logs topic when Kafka is enabled and kafka.logs_topic is set.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer == nil || cfg.Kafka.LogsTopic == "" {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Log.CollectInterval,
		CountThreshold: cfg.Log.CollectThreshold,
		Topic:          cfg.Kafka.LogsTopic,
		Publisher:      producer,
		Levels:         cfg.Log.CollectLevels,
		Service:        "plantdex-" + cfg.Environment,
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates the Prometheus recorder and registers the engine collectors.
func ProvideMetrics() domrepo.Metrics {
	enginemetrics.Register()
	return metrics.New()
}

// ProvideRedisCache connects the shared Redis cache, or returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		PoolTimeout:  cfg.Redis.PoolTimeout,
		Prefix:       cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache returns the query cache: memory in front of Redis when Redis
// is enabled, memory only otherwise.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) (cache.Service, func()) {
	if rc != nil {
		lc := cache.NewLayeredCache(rc, cache.LayeredConfig{
			LocalSize: cfg.Redis.LocalSize,
			LocalTTL:  cfg.Redis.LocalTTL,
		})
		// Redis itself is closed by its own provider
		return lc, func() { _ = lc.Close() }
	}
	mc := cache.NewMemoryCache(cfg.Redis.LocalSize)
	return mc, func() { _ = mc.Close() }
}

// ProvideLocker serializes recomputation per key, across replicas when Redis is enabled.
func ProvideLocker(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) *lock.KeyedLocker {
	opts := []lock.Option{
		lock.WithContentionHook(enginemetrics.ObserveLockWait),
		lock.WithLogger(l),
	}
	if rc != nil {
		opts = append(opts, lock.WithDistributed(rc, cfg.Redis.LockTTL))
	}
	return lock.New(opts...)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(pkgch.Config{
		Host:             cfg.ClickHouse.Host,
		Port:             cfg.ClickHouse.Port,
		Database:         cfg.ClickHouse.Database,
		User:             cfg.ClickHouse.User,
		Password:         cfg.ClickHouse.Password,
		UseHTTP:          cfg.ClickHouse.UseHTTP,
		Compression:      cfg.ClickHouse.Compression,
		AsyncInsert:      cfg.ClickHouse.AsyncInsert,
		WaitForAsync:     cfg.ClickHouse.WaitForAsync,
		DialTimeout:      cfg.ClickHouse.DialTimeout,
		ReadTimeout:      cfg.ClickHouse.ReadTimeout,
		MaxExecutionTime: cfg.ClickHouse.MaxExecutionTime,
		MaxOpenConns:     cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:     cfg.ClickHouse.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePostgresClient opens the engine database, or returns nil for the memory store.
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	if cfg.Store.Type != "postgres" {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(
		postgres.WithDSN(cfg.Postgres.DSN),
		postgres.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideMemoryStore is the in-process store used when no database is configured.
func ProvideMemoryStore() *internalrepo.MemoryStore {
	return internalrepo.NewMemoryStore()
}

// ProvideStore selects the engine store and seeds the configured catalog.
func ProvideStore(cfg *config.Config, pg *postgres.Client, mem *internalrepo.MemoryStore) (Store, error) {
	var store Store = mem
	if pg != nil {
		gs := internalrepo.NewGormStore(pg.Gorm())
		if cfg.Postgres.AutoMigrate {
			if err := gs.AutoMigrate(); err != nil {
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		store = gs
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, it := range cfg.Catalog {
		item := models.Item{ID: it.ID, Name: it.Name, Category: it.Category}
		if err := store.UpsertItem(ctx, item); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}
	return store, nil
}

// ProvideObservationStore selects ClickHouse for observations when enabled,
// else the in-process store.
func ProvideObservationStore(cfg *config.Config, ch *pkgch.Client, mem *internalrepo.MemoryStore, l *applogger.Logger) (ObservationStore, error) {
	if ch == nil {
		return mem, nil
	}
	store := internalrepo.NewCHObservationStore(ch, cfg.ClickHouse.Database)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideSeasonalReference serves seasonal calendars from the configured service,
// falling back to the static calendar in config. Responses are cached in Redis
// when enabled, in process otherwise.
func ProvideSeasonalReference(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) domrepo.SeasonalReferenceSource {
	static := reference.NewStaticSeasonalReference(cfg.Seasonal.Categories)
	if cfg.Seasonal.ServiceURL == "" {
		return static
	}

	var bc icache.BytesCache = icache.NewTTLCache(64)
	if rc != nil {
		bc = icache.NewRedisCacheFromClient(rc.Client(), cfg.Redis.Prefix)
	}
	return reference.NewHTTPSeasonalReference(cfg.Seasonal.ServiceURL, cfg.Seasonal.Timeout,
		reference.WithCache(bc, cfg.Seasonal.CacheTTL),
		reference.WithFallback(static),
		reference.WithLogger(l),
	)
}

func ProvideAggregator(cfg *config.Config, store Store, obs ObservationStore, l *applogger.Logger) domsvc.Aggregator {
	return intelligence.NewAggregator(store, obs, obs, store, cfg.Engine, intelligence.WithLogger(l))
}

func ProvideIndexCalculator(cfg *config.Config, store Store, l *applogger.Logger) domsvc.IndexCalculator {
	return intelligence.NewIndexCalculator(store, cfg.Engine, intelligence.WithLogger(l))
}

func ProvideScorer(cfg *config.Config, store Store, l *applogger.Logger) domsvc.Scorer {
	return intelligence.NewScorer(store, cfg.Engine, intelligence.WithLogger(l))
}

func ProvideForecaster(cfg *config.Config, store Store, l *applogger.Logger) domsvc.Forecaster {
	return intelligence.NewForecaster(store, cfg.Engine, intelligence.WithLogger(l))
}

func ProvideOpportunityDetector(cfg *config.Config, store Store, seasonal domrepo.SeasonalReferenceSource, l *applogger.Logger) domsvc.OpportunityDetector {
	return intelligence.NewOpportunityDetector(store, seasonal, cfg.Engine, intelligence.WithLogger(l))
}

// ProvideComputeUseCase wires the engine components behind keyed locks.
func ProvideComputeUseCase(
	store Store,
	agg domsvc.Aggregator,
	index domsvc.IndexCalculator,
	scorer domsvc.Scorer,
	detector domsvc.OpportunityDetector,
	locks *lock.KeyedLocker,
	m domrepo.Metrics,
	c cache.Service,
	l *applogger.Logger,
) *usecase.ComputeUseCase {
	return usecase.NewComputeUseCase(store, agg, index, scorer, detector, locks, m,
		usecase.WithComputeCache(c),
		usecase.WithComputeLogger(l),
	)
}

// ProvideQueryUseCase wires the read side with the query cache.
func ProvideQueryUseCase(
	cfg *config.Config,
	store Store,
	obs ObservationStore,
	agg domsvc.Aggregator,
	forecaster domsvc.Forecaster,
	c cache.Service,
	l *applogger.Logger,
) *usecase.QueryUseCase {
	return usecase.NewQueryUseCase(store, obs, agg, forecaster,
		usecase.WithQueryCache(c, cfg.Redis.QueryTTL),
		usecase.WithQueryLogger(l),
	)
}

// ProvideMarketHandler creates the HTTP query API.
func ProvideMarketHandler(cfg *config.Config, l *applogger.Logger, query *usecase.QueryUseCase, compute *usecase.ComputeUseCase) *api.MarketEchoHandler {
	return api.NewMarketEchoHandler(l, query, compute,
		api.WithComputeRateLimit(cfg.Server.ComputeRPS, cfg.Server.ComputeBurst),
	)
}

// ProvideJobQueue creates the recompute job queue with its workers, or nil
// when the queue is disabled. It is started by the app.
func ProvideJobQueue(cfg *config.Config, l *applogger.Logger, rc *cache.RedisCache, compute *usecase.ComputeUseCase) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		JobTimeout: cfg.Queue.JobTimeout,
	}, rc.Client(), queue.ModeProducerConsumer,
		queue.WithKeyPrefix(jobsPrefix(cfg)),
		queue.WithDedupe(cfg.Queue.Dedupe),
	)
	q.RegisterJobs(usecase.RecomputeJobs(compute))
	return q
}

// ProvideJobPublisher creates a started, publish-only handle on the job queue
// for CLI commands, or nil when the queue is disabled.
func ProvideJobPublisher(cfg *config.Config, l *applogger.Logger, rc *cache.RedisCache) (*queue.RedisQueue, func()) {
	if !cfg.Queue.Enabled || rc == nil {
		return nil, func() {}
	}
	q := queue.NewRedisPublisher(l, rc.Client(),
		queue.WithKeyPrefix(jobsPrefix(cfg)),
		queue.WithDedupe(cfg.Queue.Dedupe),
	)
	return q, func() { _ = q.Stop(context.Background()) }
}

func jobsPrefix(cfg *config.Config) string { return cfg.Redis.Prefix + ":jobs" }

// ProvideKafkaConsumer creates a Kafka consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cc.GroupID,
		StartOffset: cc.StartOffset,
		Workers:     cc.Workers,
		BufferSize:  cc.BufferSize,
		RetryMax:    cc.RetryMax,
		BackoffMin:  cc.BackoffMin,
		BackoffMax:  cc.BackoffMax,
		DLQTopic:    cc.DLQTopic,
		MinBytes:    cc.MinBytes,
		MaxBytes:    cc.MaxBytes,
		MaxWait:     cc.MaxWait,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.Use(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.HookFuncs{
			After: func(ctx context.Context, _ string, _ kafka.Message, _ []byte, err error) {
				if start, ok := pkgkafka.StartTime(ctx); ok && err == nil {
					m.RecordLatency("consume_handle", time.Since(start).Seconds())
				}
			},
			Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
				m.RecordError("consumer_handle")
				l.Warn("kafka handle attempt failed",
					applogger.String("topic", topic),
					applogger.Int("partition", km.Partition),
					applogger.Int64("offset", km.Offset),
					applogger.String("trace_id", pkgkafka.TraceID(ctx)),
					applogger.Error(err),
				)
			},
		},
	))
	return consumer, nil
}

// ProvideKafkaObservationsHandler consumes the observation topic into the observation store.
func ProvideKafkaObservationsHandler(cfg *config.Config, obs ObservationStore, m domrepo.Metrics) *usecase.KafkaObservationsHandler {
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.Topic, obs, obs, m)
}

// ProvideObservationPublisher ships collected observations to Kafka when a producer exists.
func ProvideObservationPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.ObservationPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideObservationProcessor routes collected observations to the configured backend.
func ProvideObservationProcessor(cfg *config.Config, pub domrepo.ObservationPublisher, obs ObservationStore, m domrepo.Metrics) *usecase.ObservationProcessor {
	return usecase.NewObservationProcessor(pub, obs, m, cfg.Backend.Type)
}

// ProvideCollector builds the price-feed collector, or nil when the feed is disabled.
func ProvideCollector(cfg *config.Config, l *applogger.Logger, proc *usecase.ObservationProcessor, m domrepo.Metrics) *usecase.ObservationCollector {
	if !cfg.Feed.Enabled {
		return nil
	}
	stream := feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Channels,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		l,
	)
	// Build middleware pipeline between the feed and the backend
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Feed.MaxRPS),
		mid.WithBufferSize(cfg.Feed.BufferSize),
		mid.WithLimiter(ratelimit.New()),
		mid.WithTransform(models.NormalizeObservation),
	)
	return usecase.NewObservationCollector(stream, proc, m, pipe, l)
}

// NewCycleScheduler registers the daily cycle on cfg.Scheduler.CycleSpec. With a
// job queue the cycle is enqueued for the workers; otherwise it runs in process.
func NewCycleScheduler(ctx context.Context, cfg *config.Config, l *applogger.Logger, compute *usecase.ComputeUseCase, jobs *queue.RedisQueue) (*scheduler.Runner, error) {
	r := scheduler.New(ctx, l)
	fn := func(ctx context.Context, date time.Time) error {
		if jobs != nil {
			err := jobs.Enqueue(ctx, usecase.JobTypeCycle, usecase.RecomputePayload{Date: date.Format("2006-01-02")})
			if errors.Is(err, queue.ErrDuplicate) {
				return nil
			}
			return err
		}
		_, err := compute.RunCycle(ctx, date)
		return err
	}
	if _, err := r.AddCycle(cfg.Scheduler.CycleSpec, fn); err != nil {
		return nil, fmt.Errorf("scheduler spec %q: %w", cfg.Scheduler.CycleSpec, err)
	}
	return r, nil
}

// ProvideScheduler runs the cycle scheduler inside serve when scheduler.enabled is set.
func ProvideScheduler(cfg *config.Config, l *applogger.Logger, compute *usecase.ComputeUseCase, jobs *queue.RedisQueue) (*scheduler.Runner, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	return NewCycleScheduler(context.Background(), cfg, l, compute, jobs)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.MarketEchoHandler,
	collector *usecase.ObservationCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaObservationsHandler,
	jobs *queue.RedisQueue,
	cron *scheduler.Runner,
) *server.App {
	opts := make([]server.Option, 0, 4)
	if collector != nil {
		opts = append(opts, server.WithCollector(collector))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, kh))
	}
	if jobs != nil {
		opts = append(opts, server.WithJobQueue(jobs))
	}
	if cron != nil {
		opts = append(opts, server.WithScheduler(cron))
	}
	return server.New(cfg, l, handler, opts...)
}

// ProvideEngine bundles the engine for one-shot CLI commands.
func ProvideEngine(
	cfg *config.Config,
	l *applogger.Logger,
	store Store,
	compute *usecase.ComputeUseCase,
	query *usecase.QueryUseCase,
	jobs *queue.RedisQueue,
) *Engine {
	return &Engine{Config: cfg, Logger: l, Store: store, Compute: compute, Query: query, Jobs: jobs}
}
