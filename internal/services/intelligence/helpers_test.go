package intelligence

import (
	"context"
	"time"

	"PlantDex/internal/domain/models"
	store "PlantDex/internal/repository"
	"PlantDex/pkg/config"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testConfig() config.EngineConfig {
	return config.DefaultEngineConfig()
}

func newTestStore(items ...models.Item) *store.MemoryStore {
	s := store.NewMemoryStore()
	for _, it := range items {
		s.PutItem(it)
	}
	return s
}

func priced(itemID int64, d time.Time, mean float64, count int, sources ...string) models.DailyAggregate {
	if len(sources) == 0 {
		sources = []string{"greenhouse"}
	}
	return models.DailyAggregate{
		ItemID:           itemID,
		BucketDate:       d,
		ObservationCount: count,
		MeanPrice:        mean,
		MinPrice:         mean,
		MaxPrice:         mean,
		Sources:          sources,
	}
}

func mustUpsert(s *store.MemoryStore, rows ...models.DailyAggregate) {
	for _, r := range rows {
		if err := s.UpsertDailyAggregate(context.Background(), r); err != nil {
			panic(err)
		}
	}
}

type staticSeasons map[string][]time.Month

func (s staticSeasons) GetSeasonalReference(_ context.Context, category string) (models.SeasonalReference, error) {
	return models.SeasonalReference{Category: category, HighDemandMonths: s[category]}, nil
}
