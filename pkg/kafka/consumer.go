package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	applogger "PlantDex/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles the payloads of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// errStopping marks a delivery abandoned because the consumer is shutting
// down. Such messages stay uncommitted and are redelivered.
var errStopping = errors.New("consumer stopping")

// Consumer reads registered topics in a consumer group and fans messages out
// to worker lanes. Every partition maps to exactly one lane, so messages of a
// partition are handled in order and committed in order.
type Consumer struct {
	cfg      ConsumerConfig
	log      *applogger.Logger
	hook     ConsumerHook
	metrics  *clientMetrics
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan kafka.Message
	dlq      *kafka.Writer

	cancel   context.CancelFunc
	readWG   sync.WaitGroup
	laneWG   sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer validates cfg. Readers are created by Start.
func NewConsumer(cfg ConsumerConfig, l *applogger.Logger) (*Consumer, error) {
	if err := cfg.prepare(); err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.NewNop()
	}
	c := &Consumer{
		cfg:      cfg,
		log:      l,
		hook:     NoopHook{},
		metrics:  kafkaMetrics(),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DLQTopic,
			Balancer: &kafka.Hash{},
		}
	}
	return c, nil
}

// Use installs the lifecycle hook. Call before Start.
func (c *Consumer) Use(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds a handler to its topic. The first registration wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, dup := c.handlers[topic]; dup {
		c.log.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = h
}

// Start opens one reader per registered topic and launches the lanes.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no kafka handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	perLane := c.cfg.BufferSize / c.cfg.Workers
	if perLane < 1 {
		perLane = 1
	}
	c.lanes = make([]chan kafka.Message, c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, perLane)
		c.laneWG.Add(1)
		go c.runLane(ctx, i)
	}

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			GroupID:     c.cfg.GroupID,
			Topic:       topic,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			MaxWait:     c.cfg.MaxWait,
			StartOffset: c.cfg.startOffset(),
			ErrorLogger: c.readerLogger(topic),
		})
		c.readers[topic] = r
		c.readWG.Add(1)
		go c.read(ctx, topic, r)
	}

	c.log.Info("kafka consumer started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)),
		applogger.Int("lanes", len(c.lanes)),
	)
	return nil
}

// Stop cancels reading, lets lanes finish their current message and closes
// readers. Buffered but unhandled messages are left for redelivery.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.readWG.Wait()
			for _, lane := range c.lanes {
				close(lane)
			}
			c.laneWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka dlq writer close failed", applogger.Error(cerr))
			}
		}
		if err == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return err
}

func (c *Consumer) read(ctx context.Context, topic string, r *kafka.Reader) {
	defer c.readWG.Done()

	failures := 0
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.log.Error("kafka fetch failed", applogger.String("topic", topic), applogger.Int("failures", failures), applogger.Error(err))
			if !sleepCtx(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0

		i := laneIndex(km.Topic, km.Partition, len(c.lanes))
		select {
		case c.lanes[i] <- km:
			c.metrics.laneDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(len(c.lanes[i])))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) runLane(ctx context.Context, i int) {
	defer c.laneWG.Done()
	depth := c.metrics.laneDepth.WithLabelValues(strconv.Itoa(i))
	for km := range c.lanes[i] {
		depth.Set(float64(len(c.lanes[i])))
		if ctx.Err() != nil {
			continue
		}
		c.process(ctx, km)
	}
}

// process runs the handler with retries, dead-letters a message that keeps
// failing and commits it once it is handled or parked.
func (c *Consumer) process(ctx context.Context, km kafka.Message) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() { c.metrics.handleTime.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds()) }()

	attempts, err := c.deliver(ctx, h, km)

	switch {
	case errors.Is(err, errStopping):
		c.metrics.consumed.WithLabelValues(km.Topic, "abandoned").Inc()
		return
	case err != nil:
		c.log.Error("kafka message failed",
			applogger.String("topic", km.Topic),
			applogger.Int("partition", km.Partition),
			applogger.Int64("offset", km.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err),
		)
		if !c.deadLetter(km, attempts, err) {
			c.metrics.consumed.WithLabelValues(km.Topic, "failed").Inc()
			return
		}
		c.metrics.consumed.WithLabelValues(km.Topic, "dead_lettered").Inc()
	default:
		c.metrics.consumed.WithLabelValues(km.Topic, "handled").Inc()
	}
	c.commit(km)
}

// deliver returns the number of attempts made and the last error.
func (c *Consumer) deliver(ctx context.Context, h MessageHandler, km kafka.Message) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = c.attempt(h, km)
		if err == nil || attempt > c.cfg.RetryMax {
			return attempt, err
		}
		if !sleepCtx(ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return attempt, errStopping
		}
	}
}

// attempt runs hooks and the handler once. A handler panic becomes an error
// so it is retried and dead-lettered like any other failure.
func (c *Consumer) attempt(h MessageHandler, km kafka.Message) (err error) {
	hctx, hmsg, data, err := c.hook.BeforeHandle(context.Background(), km.Topic, km, km.Value)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		c.hook.AfterHandle(hctx, km.Topic, hmsg, data, err)
		if err != nil {
			c.hook.OnError(hctx, km.Topic, hmsg, data, err)
		}
	}()
	return h.Handle(hctx, data)
}

func (c *Consumer) deadLetter(km kafka.Message, attempts int, cause error) bool {
	if c.dlq == nil {
		return false
	}
	headers := append([]kafka.Header{}, km.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
		kafka.Header{Key: "source_partition", Value: []byte(strconv.Itoa(km.Partition))},
		kafka.Header{Key: "source_offset", Value: []byte(strconv.FormatInt(km.Offset, 10))},
		kafka.Header{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.dlq.WriteMessages(ctx, kafka.Message{Key: km.Key, Value: km.Value, Headers: headers}); err != nil {
		c.log.Error("kafka dead letter write failed",
			applogger.String("dlq", c.cfg.DLQTopic),
			applogger.String("topic", km.Topic),
			applogger.Error(err),
		)
		return false
	}
	return true
}

func (c *Consumer) commit(km kafka.Message) {
	r, ok := c.readers[km.Topic]
	if !ok {
		return
	}
	const tries = 3
	var err error
	for i := 1; i <= tries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, i))
	}
	c.log.Error("kafka commit failed",
		applogger.String("topic", km.Topic),
		applogger.Int("partition", km.Partition),
		applogger.Int64("offset", km.Offset),
		applogger.Error(err),
	)
}

func (c *Consumer) readerLogger(topic string) kafka.LoggerFunc {
	return func(msg string, args ...interface{}) {
		c.log.Warn(fmt.Sprintf(msg, args...), applogger.String("topic", topic))
	}
}

func laneIndex(topic string, partition, lanes int) int {
	if lanes <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte{byte(partition >> 24), byte(partition >> 16), byte(partition >> 8), byte(partition)})
	return int(h.Sum32() % uint32(lanes))
}

// backoff doubles from lo per attempt up to hi, then picks a point in the
// upper half of that window.
func backoff(lo, hi time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := hi
	if attempt <= 30 {
		if step := lo << uint(attempt-1); step > 0 && step < hi {
			d = step
		}
	}
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int63n(half+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
