package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"PlantDex/internal/domain/models"
	domrepo "PlantDex/internal/domain/repository"
	pkgch "PlantDex/pkg/clickhouse"
	applogger "PlantDex/pkg/logger"
)

const (
	observationsTable = "observations_raw"
	countersTable     = "companion_counters"
	insertChunkSize   = 2000
)

// ObservationSchema returns the idempotent DDL of the observation tables.
// Observations are append-only; counters keep the latest row per (item, day).
func ObservationSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            item_id        Int64,
            ts             DateTime64(3, 'UTC'),
            price          Float64,
            currency       LowCardinality(String),
            source         LowCardinality(String),
            location       LowCardinality(String),
            availability   UInt8,
            stock_quantity Int32
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (item_id, ts, source, location)`, database, observationsTable),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            item_id       Int64,
            bucket_date   Date,
            search_volume Int64,
            sales_volume  Int64,
            updated_at    DateTime64(3, 'UTC')
        ) ENGINE = ReplacingMergeTree(updated_at)
        ORDER BY (item_id, bucket_date)`, database, countersTable),
	}
}

// CHObservationStore keeps raw observations and companion counters in ClickHouse.
type CHObservationStore struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHObservationStore(ch *pkgch.Client, database string) *CHObservationStore {
	return &CHObservationStore{ch: ch, db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (s *CHObservationStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHObservationStore) table(name string) string {
	if s.database == "" {
		return name
	}
	return s.database + "." + name
}

func (s *CHObservationStore) Init(ctx context.Context) error {
	if s.database == "" {
		return fmt.Errorf("clickhouse database is required")
	}
	return s.ch.InitSchema(ctx, ObservationSchema(s.database))
}

func (s *CHObservationStore) Store(ctx context.Context, o *models.Observation) error {
	if o == nil {
		return nil
	}
	return s.StoreBatch(ctx, []*models.Observation{o})
}

// StoreBatch inserts observations with multi-row VALUES in chunks.
// Rows without an item id or timestamp are skipped.
func (s *CHObservationStore) StoreBatch(ctx context.Context, obs []*models.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	for start := 0; start < len(obs); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(obs) {
			end = len(obs)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, o := range obs[start:end] {
			if o == nil || o.ItemID <= 0 || o.Timestamp.IsZero() {
				continue
			}
			var avail uint8
			if o.Availability {
				avail = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				o.ItemID,
				o.Timestamp.UTC(),
				o.Price,
				o.Currency,
				o.Source,
				o.Location,
				avail,
				int32(o.StockQuantity),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (item_id, ts, price, currency, source, location, availability, stock_quantity) VALUES %s",
			s.table(observationsTable), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse insert observations error",
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("insert observations: %w", err)
		}
	}
	return nil
}

// GetObservations returns an item's observations with from <= ts < to, oldest first.
func (s *CHObservationStore) GetObservations(ctx context.Context, itemID int64, from, to time.Time) ([]models.Observation, error) {
	const qtpl = `
        SELECT item_id, ts, price, currency, source, location, availability, stock_quantity
        FROM %s
        WHERE item_id = ? AND ts >= ? AND ts < ?
        ORDER BY ts ASC, source ASC, location ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table(observationsTable)), itemID, from.UTC(), to.UTC())
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_observations query error",
				applogger.Int64("item_id", itemID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get observations: %w", err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 64)
	for rows.Next() {
		var (
			o     models.Observation
			avail uint8
			stock int32
		)
		if err := rows.Scan(&o.ItemID, &o.Timestamp, &o.Price, &o.Currency, &o.Source, &o.Location, &avail, &stock); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Timestamp = o.Timestamp.UTC()
		o.Availability = avail == 1
		o.StockQuantity = int(stock)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// RecordCompanionCounters writes the counters of (item, day); the newest write wins.
func (s *CHObservationStore) RecordCompanionCounters(ctx context.Context, itemID int64, date time.Time, c models.CompanionCounters) error {
	q := fmt.Sprintf("INSERT INTO %s (item_id, bucket_date, search_volume, sales_volume, updated_at) VALUES (?, ?, ?, ?, ?)",
		s.table(countersTable))
	day, _ := domrepo.BucketRange(domrepo.BucketDaily, date)
	if _, err := s.db.ExecContext(ctx, q, itemID, day, c.SearchVolume, c.SalesVolume, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert counters: %w", err)
	}
	return nil
}

// GetCompanionCounters reads the latest counters of (item, day). Missing rows read as zeros.
func (s *CHObservationStore) GetCompanionCounters(ctx context.Context, itemID int64, date time.Time) (models.CompanionCounters, error) {
	const qtpl = `
        SELECT argMax(search_volume, updated_at), argMax(sales_volume, updated_at), count()
        FROM %s
        WHERE item_id = ? AND bucket_date = ?
    `
	var (
		c models.CompanionCounters
		n uint64
	)
	day, _ := domrepo.BucketRange(domrepo.BucketDaily, date)
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(qtpl, s.table(countersTable)), itemID, day).Scan(&c.SearchVolume, &c.SalesVolume, &n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CompanionCounters{}, nil
		}
		return models.CompanionCounters{}, fmt.Errorf("get counters: %w", err)
	}
	if n == 0 {
		return models.CompanionCounters{}, nil
	}
	return c, nil
}

func (s *CHObservationStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHObservationStore) Close() error {
	return nil // Managed by pkg
}

var (
	_ domrepo.ObservationStorage = (*CHObservationStore)(nil)
	_ domrepo.ObservationSource  = (*CHObservationStore)(nil)
	_ domrepo.CounterSource      = (*CHObservationStore)(nil)
	_ domrepo.CounterRecorder    = (*CHObservationStore)(nil)
)
