package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PlantDex/internal/scheduler"
	"PlantDex/internal/usecase"
	"PlantDex/pkg/config"
	xhttp "PlantDex/pkg/http"
	pkgkafka "PlantDex/pkg/kafka"
	applogger "PlantDex/pkg/logger"
	"PlantDex/pkg/queue"
)

// App encapsulates the serving process lifecycle: the HTTP query API plus the
// optional ingest collector, Kafka consumer, job queue workers and scheduler.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	collector  *usecase.ObservationCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	jobs       *queue.RedisQueue
	cron       *scheduler.Runner
	httpServer *xhttp.Server
}

// Option attaches an optional component to App.
type Option func(*App)

// WithCollector runs the price-feed collector alongside the API.
func WithCollector(c *usecase.ObservationCollector) Option {
	return func(a *App) { a.collector = c }
}

// WithConsumer runs a Kafka consumer with handler h.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.kh = h
	}
}

// WithJobQueue runs recompute job workers.
func WithJobQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.jobs = q }
}

// WithScheduler runs the cron scheduler in process.
func WithScheduler(r *scheduler.Runner) Option {
	return func(a *App) { a.cron = r }
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, handler xhttp.Handler, opts ...Option) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{cfg: cfg, log: l, handler: handler}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches every configured component without blocking.
func (a *App) Start(ctx context.Context) error {
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithCORS(a.cfg.Server.CORSOrigins),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled, a.cfg.Metrics.Path),
		xhttp.WithLogger(a.log),
	)

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			// the collector keeps retrying in the background; the API still serves
			a.log.Error("collector start error", applogger.Error(err))
		} else {
			a.log.Info("collector started", applogger.Strings("channels", a.cfg.Feed.Channels))
		}
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
		}
	}

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			a.log.Error("job queue start error", applogger.Error(err))
		}
	}

	if a.cron != nil {
		a.cron.Start()
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// Shutdown gracefully stops all services.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// stop producers of work first, then the API, then infrastructure
	if a.cron != nil {
		a.cron.Stop()
	}
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.log.Warn("job queue stop error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return nil
}
