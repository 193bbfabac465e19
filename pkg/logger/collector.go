package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated log batches, e.g. a Kafka producer.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig configures log aggregation.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush period
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
	Levels         []string // levels to collect; empty means error only
	Service        string   // stamped on every entry
}

// AggregatedLogEntry counts repeats of one (level, message, caller, field
// keys) combination. Fields keep the values of the first occurrence.
type AggregatedLogEntry struct {
	Service   string                 `json:"service,omitempty"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector folds repeated log lines into counted entries and publishes
// them in batches.
type LogCollector struct {
	cfg    CollectionConfig
	levels map[string]bool

	mu      sync.Mutex
	entries map[uint64]*AggregatedLogEntry
	closed  bool

	flushCh chan []AggregatedLogEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		levels:  map[string]bool{},
		entries: make(map[uint64]*AggregatedLogEntry),
		flushCh: make(chan []AggregatedLogEntry, 4),
		stop:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}
	if len(c.cfg.Levels) == 0 {
		c.cfg.Levels = []string{"error"}
	}
	for _, lv := range c.cfg.Levels {
		c.levels[lv] = true
	}

	c.wg.Add(2)
	go c.tick()
	go c.publish()
	return c
}

// Collects reports whether entries of level are aggregated.
func (c *LogCollector) Collects(level string) bool { return c.levels[level] }

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	if !c.levels[level] {
		return
	}
	now := time.Now()
	key := entryKey(level, message, caller, fields)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &AggregatedLogEntry{
		Service:   c.cfg.Service,
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(c.entries) >= c.cfg.CountThreshold {
		c.drainLocked()
	}
}

// entryKey ignores field values so that lines differing only in ids or
// offsets fold into one entry.
func entryKey(level, message, caller string, fields map[string]interface{}) uint64 {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s", level, message, caller)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s", k)
	}
	return h.Sum64()
}

// drainLocked hands the current entries to the publisher. It drops the batch
// when the publisher is backed up rather than blocking the caller.
func (c *LogCollector) drainLocked() {
	if len(c.entries) == 0 {
		return
	}
	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[uint64]*AggregatedLogEntry)

	select {
	case c.flushCh <- batch:
	default:
		fmt.Fprintf(os.Stderr, "log collector: dropped %d aggregated entries\n", len(batch))
	}
}

func (c *LogCollector) tick() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			c.drainLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.drainLocked()
			c.closed = true
			c.mu.Unlock()
			close(c.flushCh)
			return
		}
	}
}

func (c *LogCollector) publish() {
	defer c.wg.Done()
	for batch := range c.flushCh {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch), err)
		}
		cancel()
	}
}

// Close flushes what is left and waits for the last publish.
func (c *LogCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}
