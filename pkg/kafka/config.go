package kafka

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/segmentio/kafka-go"
)

// ProducerConfig describes the writer behind a Producer. Zero fields take
// the value of their default tag.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int           `default:"-1"`
	Compression  string        `default:"snappy"`
	MaxAttempts  int           `default:"3"`
	WriteTimeout time.Duration `default:"10s"`
	ReadTimeout  time.Duration `default:"10s"`
	BatchSize    int           `default:"100"`
	BatchBytes   int           `default:"1048576"`
	Linger       time.Duration `default:"50ms"`
	Async        bool
	// KeyHashing routes equal keys to one partition.
	KeyHashing bool
}

// ConsumerConfig describes the readers and worker lanes behind a Consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string `default:"plantdex"`
	// StartOffset is "earliest" or "latest"; used when the group has no commit.
	StartOffset string        `default:"earliest"`
	Workers     int           `default:"1"`
	BufferSize  int           `default:"64"`
	RetryMax    int           `default:"3"`
	BackoffMin  time.Duration `default:"50ms"`
	BackoffMax  time.Duration `default:"2s"`
	DLQTopic    string
	MinBytes    int           `default:"1"`
	MaxBytes    int           `default:"10485760"`
	MaxWait     time.Duration `default:"500ms"`
}

func (c *ProducerConfig) prepare() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("producer defaults: %w", err)
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers are required")
	}
	return nil
}

func (c *ConsumerConfig) prepare() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("consumer defaults: %w", err)
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers are required")
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = c.BackoffMin
	}
	return nil
}

func (c *ConsumerConfig) startOffset() int64 {
	if c.StartOffset == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Snappy
	}
}
