package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PlantDex/internal/domain/models"
	domrepo "PlantDex/internal/domain/repository"
	pkgkafka "PlantDex/pkg/kafka"
)

// KafkaObservationsHandler consumes ingest topic records into the observation store.
// A record is one ObservationMessage or a JSON array of them.
type KafkaObservationsHandler struct {
	topic    string
	storage  domrepo.ObservationStorage
	counters domrepo.CounterRecorder
	metrics  domrepo.Metrics
}

func NewKafkaObservationsHandler(topic string, storage domrepo.ObservationStorage, counters domrepo.CounterRecorder, metrics domrepo.Metrics) *KafkaObservationsHandler {
	return &KafkaObservationsHandler{topic: topic, storage: storage, counters: counters, metrics: metrics}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

func decodeMessages(b []byte) ([]models.ObservationMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var ms []models.ObservationMessage
		err := json.Unmarshal(b, &ms)
		return ms, err
	}
	var m models.ObservationMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return []models.ObservationMessage{m}, nil
}

func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	msgs, err := decodeMessages(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode observation message: %w", err)
	}

	batch := make([]*models.Observation, 0, len(msgs))
	for _, m := range msgs {
		if m.ItemID <= 0 || m.Timestamp.IsZero() {
			h.metrics.RecordError("consumer_invalid")
			continue
		}
		if m.Kind == models.MessageKindCounters {
			if h.counters == nil {
				continue
			}
			c := models.CompanionCounters{SearchVolume: m.SearchVolume, SalesVolume: m.SalesVolume}
			if err := h.counters.RecordCompanionCounters(ctx, m.ItemID, m.Timestamp, c); err != nil {
				h.metrics.RecordError("consumer_counters")
				return err
			}
			continue
		}
		if m.Price < 0 {
			h.metrics.RecordError("consumer_invalid")
			continue
		}
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(m.Timestamp).Seconds())
		batch = append(batch, models.NormalizeObservation(m.Observation()))
	}
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err = h.storage.StoreBatch(ctx, batch)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	for _, o := range batch {
		h.metrics.RecordObservation(BackendClickHouse, o.Source)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
