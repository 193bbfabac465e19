package repository

import (
	"context"
	"strconv"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
	pkgkafka "PlantDex/pkg/kafka"
)

// KafkaPublisher ships observations to the ingest topic keyed by item id,
// so one item's rows stay ordered within a partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func itemKey(id int64) []byte { return []byte(strconv.FormatInt(id, 10)) }

func (p *KafkaPublisher) Publish(ctx context.Context, o *models.Observation) error {
	if o == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, itemKey(o.ItemID), models.NewObservationMessage(o))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, obs []*models.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(obs))
	for _, o := range obs {
		if o == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: itemKey(o.ItemID), Value: models.NewObservationMessage(o)})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ repository.ObservationPublisher = (*KafkaPublisher)(nil)
