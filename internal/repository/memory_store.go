package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
)

type itemDay struct {
	itemID int64
	day    int64
}

func dayKey(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// MemoryStore is an in-process store for every engine table. It backs tests
// and single-node deployments without Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	items         map[int64]models.Item
	observations  map[int64][]models.Observation
	counters      map[itemDay]models.CompanionCounters
	aggregates    map[itemDay]models.DailyAggregate
	indexPoints   map[int64]models.MarketIndexPoint
	scores        map[int64]models.InvestmentScore
	opportunities []models.Opportunity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:        make(map[int64]models.Item),
		observations: make(map[int64][]models.Observation),
		counters:     make(map[itemDay]models.CompanionCounters),
		aggregates:   make(map[itemDay]models.DailyAggregate),
		indexPoints:  make(map[int64]models.MarketIndexPoint),
		scores:       make(map[int64]models.InvestmentScore),
	}
}

// --- seeding ---

func (m *MemoryStore) PutItem(it models.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
}

func (m *MemoryStore) UpsertItem(ctx context.Context, it models.Item) error {
	m.PutItem(it)
	return nil
}

func (m *MemoryStore) SetCompanionCounters(itemID int64, date time.Time, c models.CompanionCounters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[itemDay{itemID, dayKey(date)}] = c
}

func (m *MemoryStore) RecordCompanionCounters(ctx context.Context, itemID int64, date time.Time, c models.CompanionCounters) error {
	m.SetCompanionCounters(itemID, date, c)
	return nil
}

// --- ObservationStorage ---

func (m *MemoryStore) Init(ctx context.Context) error { return nil }

func (m *MemoryStore) Store(ctx context.Context, o *models.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations[o.ItemID] = append(m.observations[o.ItemID], *o)
	return nil
}

func (m *MemoryStore) StoreBatch(ctx context.Context, obs []*models.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range obs {
		m.observations[o.ItemID] = append(m.observations[o.ItemID], *o)
	}
	return nil
}

func (m *MemoryStore) Health(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// --- ObservationSource / CounterSource ---

// GetObservations returns the item's observations with from <= timestamp < to.
func (m *MemoryStore) GetObservations(ctx context.Context, itemID int64, from, to time.Time) ([]models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Observation, 0)
	for _, o := range m.observations[itemID] {
		if !o.Timestamp.Before(from) && o.Timestamp.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetCompanionCounters(ctx context.Context, itemID int64, date time.Time) (models.CompanionCounters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[itemDay{itemID, dayKey(date)}], nil
}

// --- ItemCatalog ---

func (m *MemoryStore) GetItem(ctx context.Context, itemID int64) (models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[itemID]
	if !ok {
		return models.Item{}, models.NewItemNotFound(itemID)
	}
	return it, nil
}

func (m *MemoryStore) ListItems(ctx context.Context) ([]models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- AggregateStore ---

func cloneAggregate(a models.DailyAggregate) models.DailyAggregate {
	a.Sources = append([]string{}, a.Sources...)
	return a
}

func (m *MemoryStore) UpsertDailyAggregate(ctx context.Context, agg models.DailyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregates[itemDay{agg.ItemID, dayKey(agg.BucketDate)}] = cloneAggregate(agg)
	return nil
}

func (m *MemoryStore) GetDailyAggregate(ctx context.Context, itemID int64, date time.Time) (models.DailyAggregate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.aggregates[itemDay{itemID, dayKey(date)}]
	if !ok {
		return models.DailyAggregate{}, false, nil
	}
	return cloneAggregate(a), true, nil
}

func (m *MemoryStore) ListDailyAggregatesByDate(ctx context.Context, date time.Time) ([]models.DailyAggregate, error) {
	return m.filterAggregates(func(k itemDay) bool { return k.day == dayKey(date) }, false), nil
}

func (m *MemoryStore) ListDailyAggregatesBetween(ctx context.Context, from, to time.Time) ([]models.DailyAggregate, error) {
	lo, hi := dayKey(from), dayKey(to)
	return m.filterAggregates(func(k itemDay) bool { return k.day >= lo && k.day <= hi }, false), nil
}

func (m *MemoryStore) ListItemAggregates(ctx context.Context, itemID int64, from, to time.Time) ([]models.DailyAggregate, error) {
	lo, hi := dayKey(from), dayKey(to)
	return m.filterAggregates(func(k itemDay) bool { return k.itemID == itemID && k.day >= lo && k.day <= hi }, false), nil
}

func (m *MemoryStore) ListRecentAggregates(ctx context.Context, itemID int64, asOf time.Time, limit int) ([]models.DailyAggregate, error) {
	hi := dayKey(asOf)
	out := m.filterAggregates(func(k itemDay) bool { return k.itemID == itemID && k.day <= hi }, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) EarliestPricedDate(ctx context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var earliest int64
	found := false
	for k, a := range m.aggregates {
		if !a.HasPrice() {
			continue
		}
		if !found || k.day < earliest {
			earliest = k.day
			found = true
		}
	}
	if !found {
		return time.Time{}, false, nil
	}
	return time.Unix(earliest, 0).UTC(), true, nil
}

func (m *MemoryStore) filterAggregates(keep func(itemDay) bool, newestFirst bool) []models.DailyAggregate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.DailyAggregate, 0)
	for k, a := range m.aggregates {
		if keep(k) {
			out = append(out, cloneAggregate(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BucketDate.Equal(out[j].BucketDate) {
			if newestFirst {
				return out[i].BucketDate.After(out[j].BucketDate)
			}
			return out[i].BucketDate.Before(out[j].BucketDate)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// --- IndexStore ---

func cloneIndexPoint(p models.MarketIndexPoint) models.MarketIndexPoint {
	cats := make(map[string]float64, len(p.PerCategoryIndices))
	for k, v := range p.PerCategoryIndices {
		cats[k] = v
	}
	p.PerCategoryIndices = cats
	return p
}

func (m *MemoryStore) UpsertIndexPoint(ctx context.Context, p models.MarketIndexPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexPoints[dayKey(p.IndexDate)] = cloneIndexPoint(p)
	return nil
}

func (m *MemoryStore) GetIndexPoint(ctx context.Context, date time.Time) (models.MarketIndexPoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.indexPoints[dayKey(date)]
	if !ok {
		return models.MarketIndexPoint{}, false, nil
	}
	return cloneIndexPoint(p), true, nil
}

func (m *MemoryStore) LatestIndexPoint(ctx context.Context) (models.MarketIndexPoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest int64
	found := false
	for k := range m.indexPoints {
		if !found || k > latest {
			latest = k
			found = true
		}
	}
	if !found {
		return models.MarketIndexPoint{}, false, nil
	}
	return cloneIndexPoint(m.indexPoints[latest]), true, nil
}

func (m *MemoryStore) ListIndexPoints(ctx context.Context, from, to time.Time) ([]models.MarketIndexPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lo, hi := dayKey(from), dayKey(to)
	out := make([]models.MarketIndexPoint, 0)
	for k, p := range m.indexPoints {
		if k >= lo && k <= hi {
			out = append(out, cloneIndexPoint(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndexDate.Before(out[j].IndexDate) })
	return out, nil
}

// --- ScoreStore ---

func (m *MemoryStore) UpsertScore(ctx context.Context, s models.InvestmentScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[s.ItemID] = s
	return nil
}

func (m *MemoryStore) GetScore(ctx context.Context, itemID int64) (models.InvestmentScore, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[itemID]
	return s, ok, nil
}

func (m *MemoryStore) ListScores(ctx context.Context) ([]models.InvestmentScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.InvestmentScore, 0, len(m.scores))
	for _, s := range m.scores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// --- OpportunityStore ---

func (m *MemoryStore) ExpireOpportunities(ctx context.Context, asOf time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.opportunities {
		o := &m.opportunities[i]
		if o.IsActive && !o.ExpiresAt.After(asOf) {
			o.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SupersedeOpportunity(ctx context.Context, opp models.Opportunity) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := 0
	replaced := false
	for i := range m.opportunities {
		o := &m.opportunities[i]
		if o.ID == opp.ID {
			*o = opp
			replaced = true
			continue
		}
		if o.IsActive && o.ItemID == opp.ItemID && o.OpportunityType == opp.OpportunityType {
			o.IsActive = false
			closed++
		}
	}
	if !replaced {
		m.opportunities = append(m.opportunities, opp)
	}
	return closed, nil
}

func (m *MemoryStore) ListActiveOpportunities(ctx context.Context, f models.OpportunityFilter, activeAt time.Time, limit int) ([]models.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Opportunity, 0)
	for _, o := range m.opportunities {
		if !o.IsActive {
			continue
		}
		if f.Type != "" && o.OpportunityType != f.Type {
			continue
		}
		if f.ItemID != 0 && o.ItemID != f.ItemID {
			continue
		}
		if !activeAt.IsZero() && !o.ExpiresAt.After(activeAt) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountOpportunities(ctx context.Context) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := 0
	for _, o := range m.opportunities {
		if o.IsActive {
			active++
		}
	}
	return active, len(m.opportunities), nil
}

var (
	_ repository.EngineStore        = (*MemoryStore)(nil)
	_ repository.ObservationSource  = (*MemoryStore)(nil)
	_ repository.CounterSource      = (*MemoryStore)(nil)
	_ repository.CounterRecorder    = (*MemoryStore)(nil)
	_ repository.ItemWriter         = (*MemoryStore)(nil)
	_ repository.ObservationStorage = (*MemoryStore)(nil)
)
