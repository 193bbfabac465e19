package queue

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"PlantDex/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueMode selects whether the queue runs workers.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
)

func (m QueueMode) String() string {
	if m == ModeProducerOnly {
		return "producer-only"
	}
	return "producer-consumer"
}

// ErrDuplicate is returned by Enqueue when an identical message is still
// inside the dedupe window.
var ErrDuplicate = errors.New("duplicate message")

const (
	pollTimeout   = time.Second
	retryInterval = 2 * time.Second
)

// RedisQueue is a Redis list backed job queue. Pending messages live in a
// list, delayed retries in a sorted set scored by due time, exhausted ones in
// a dead letter list.
type RedisQueue struct {
	log    *logger.Logger
	cfg    QueueConfig
	client *redis.Client
	mode   QueueMode
	prefix string
	dedupe time.Duration

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the prefix of every Redis key used by the queue.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.prefix = prefix }
}

// WithDedupe drops messages whose type and payload match one enqueued within
// the last window.
func WithDedupe(window time.Duration) RedisQueueOption {
	return func(r *RedisQueue) { r.dedupe = window }
}

// NewRedisQueue creates a queue. Workers only run in ModeProducerConsumer.
func NewRedisQueue(lgr *logger.Logger, cfg *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	c := QueueConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	r := &RedisQueue{
		log:    lgr,
		cfg:    c,
		client: client,
		mode:   mode,
		prefix: "plantdex:jobs",
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisPublisher returns a started, producer-only queue.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, nil, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// RegisterJobs registers every job by its Type.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, j := range jobs {
		r.RegisterJob(j)
	}
}

// RegisterJob registers one job. Later registrations of a type are ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.log.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Debug("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start checks the connection and, in consumer mode, launches the workers
// and the retry pump.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	if r.mode == ModeProducerConsumer {
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.work(ctx, i)
		}
		r.wg.Add(1)
		go r.pumpRetries(ctx)
	}
	r.log.Info("redis queue started",
		logger.String("mode", r.mode.String()),
		logger.Int("workers", r.cfg.Workers),
		logger.String("prefix", r.prefix),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight messages until ctx ends.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// Enqueue pushes a message. In consumer mode the type must be registered.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return fmt.Errorf("queue not running")
	}
	if r.mode == ModeProducerConsumer && !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if r.dedupe > 0 {
		sum := sha1.Sum(append([]byte(msgType+"|"), body...))
		ok, err := r.client.SetNX(ctx, r.key("dedupe:"+hex.EncodeToString(sum[:])), 1, r.dedupe).Result()
		if err != nil {
			return fmt.Errorf("dedupe: %w", err)
		}
		if !ok {
			return ErrDuplicate
		}
	}

	data, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   json.RawMessage(body),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("messages"), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage implements Publisher.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// Stats reports the current queue depth.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.key("messages"))
	retrying := pipe.ZCard(ctx, r.key("retry"))
	dead := pipe.LLen(ctx, r.key("dlq"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Retrying: retrying.Val(), Dead: dead.Val()}, nil
}

func (r *RedisQueue) work(ctx context.Context, id int) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, pollTimeout, r.key("messages")).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		default:
			r.log.Error("brpop failed", logger.Int("worker_id", id), logger.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.log.Error("drop malformed message", logger.Error(err))
			continue
		}
		r.handle(ctx, msg)
	}
}

func (r *RedisQueue) handle(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.bury(msg)
		return
	}

	jobCtx := ctx
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Handle(jobCtx, rawPayload(msg.Payload))
	if err == nil {
		r.log.Debug("job done",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Duration("elapsed", time.Since(start)),
		)
		return
	}
	if ctx.Err() != nil {
		// Shutdown interrupted the job; put it back untouched.
		r.requeue(msg)
		return
	}

	msg.Attempts++
	if msg.Attempts > r.cfg.RetryLimit {
		r.log.Error("job failed permanently",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err),
		)
		r.bury(msg)
		return
	}
	due := time.Now().Add(retryDelay(r.cfg.RetryDelay, msg.Attempts))
	r.log.Warn("job failed, retry scheduled",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts),
		logger.Time("retry_at", due),
		logger.Error(err),
	)
	r.schedule(msg, due)
}

// rawPayload hands jobs the payload as JSON so ParsePayload can decode it
// into their own type.
func rawPayload(p interface{}) interface{} {
	switch v := p.(type) {
	case json.RawMessage:
		return v
	case nil:
		return json.RawMessage("null")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return p
	}
	return json.RawMessage(b)
}

func (r *RedisQueue) schedule(msg Message, due time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal retry", logger.Error(err))
		return
	}
	if err := r.client.ZAdd(context.Background(), r.key("retry"), redis.Z{
		Score:  float64(due.Unix()),
		Member: data,
	}).Err(); err != nil {
		r.log.Error("schedule retry", logger.Error(err))
	}
}

func (r *RedisQueue) requeue(msg Message) {
	r.push(r.key("messages"), msg)
}

func (r *RedisQueue) bury(msg Message) {
	r.push(r.key("dlq"), msg)
}

func (r *RedisQueue) push(key string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal message", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), key, data).Err(); err != nil {
		r.log.Error("lpush failed", logger.String("key", key), logger.Error(err))
	}
}

// pumpRetries moves due retries back onto the pending list.
func (r *RedisQueue) pumpRetries(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(retryInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		due, err := r.client.ZRangeByScore(ctx, r.key("retry"), &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(time.Now().Unix(), 10),
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				r.log.Error("fetch due retries", logger.Error(err))
			}
			continue
		}
		for _, m := range due {
			pipe := r.client.TxPipeline()
			pipe.ZRem(ctx, r.key("retry"), m)
			pipe.LPush(ctx, r.key("messages"), m)
			if _, err := pipe.Exec(ctx); err != nil {
				if ctx.Err() == nil {
					r.log.Error("requeue retry", logger.Error(err))
				}
				break
			}
		}
	}
}

func (r *RedisQueue) key(suffix string) string {
	return r.prefix + ":" + suffix
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
