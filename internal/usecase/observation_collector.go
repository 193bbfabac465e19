package usecase

import (
	"context"

	"github.com/google/uuid"

	"PlantDex/internal/domain/models"
	drepo "PlantDex/internal/domain/repository"
	mid "PlantDex/internal/middleware"
	pkgkafka "PlantDex/pkg/kafka"
	applogger "PlantDex/pkg/logger"
)

// ObservationCollector pulls listings from the price feed into the pipeline.
type ObservationCollector struct {
	feed    drepo.PriceFeed
	proc    *ObservationProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	l       *applogger.Logger
}

func NewObservationCollector(feed drepo.PriceFeed, proc *ObservationProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline, l *applogger.Logger) *ObservationCollector {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ObservationCollector{feed: feed, proc: proc, metrics: metrics, pipe: pipe, l: l}
}

// IsConnected returns true if the price feed is connected.
func (c *ObservationCollector) IsConnected() bool {
	return c.feed.IsConnected()
}

func (c *ObservationCollector) Start(ctx context.Context) error {
	if err := c.feed.Connect(ctx); err != nil {
		return err
	}
	if err := c.feed.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.run(ctx)
	return nil
}

func (c *ObservationCollector) run(ctx context.Context) {
	for {
		// Every read session gets its own trace id, carried into Kafka headers.
		session := pkgkafka.WithTraceID(ctx, uuid.NewString())
		obsCh, errCh := c.feed.Read(session)
		if !c.consume(session, obsCh, errCh) {
			return
		}
		if err := c.feed.Reconnect(ctx); err != nil {
			c.metrics.RecordError("feed_reconnect")
			c.l.Error("price feed reconnect failed", applogger.Error(err))
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// consume drains one read session. It returns false when ctx is done.
func (c *ObservationCollector) consume(ctx context.Context, obsCh <-chan *models.Observation, errCh <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err, ok := <-errCh:
			if ok && err != nil {
				c.metrics.RecordError("feed")
				c.l.Warn("price feed read error", applogger.Error(err))
				return true
			}
			if !ok {
				errCh = nil
			}
		case o, ok := <-obsCh:
			if !ok {
				return true
			}
			if o == nil {
				continue
			}
			var err error
			if c.pipe != nil {
				err = c.pipe.Process(ctx, o)
			} else {
				err = c.proc.Process(ctx, o)
			}
			if err != nil {
				c.l.Debug("observation rejected", applogger.Int64("item_id", o.ItemID), applogger.Error(err))
			}
		}
	}
}

// Shutdown stops the pipeline and closes the feed.
func (c *ObservationCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.feed.Close()
}
