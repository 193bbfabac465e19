package reference

import (
	"context"
	"sort"
	"time"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
)

// StaticSeasonalReference serves high-demand months from configuration.
type StaticSeasonalReference struct {
	months map[string][]time.Month
}

// NewStaticSeasonalReference builds a reference from category -> month numbers.
func NewStaticSeasonalReference(categories map[string][]int) *StaticSeasonalReference {
	m := make(map[string][]time.Month, len(categories))
	for cat, months := range categories {
		ms := make([]time.Month, 0, len(months))
		for _, v := range months {
			if v >= 1 && v <= 12 {
				ms = append(ms, time.Month(v))
			}
		}
		sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })
		m[cat] = ms
	}
	return &StaticSeasonalReference{months: m}
}

// GetSeasonalReference never fails; unknown categories have no high-demand months.
func (s *StaticSeasonalReference) GetSeasonalReference(_ context.Context, category string) (models.SeasonalReference, error) {
	return models.SeasonalReference{
		Category:         category,
		HighDemandMonths: append([]time.Month(nil), s.months[category]...),
	}, nil
}

var _ repository.SeasonalReferenceSource = (*StaticSeasonalReference)(nil)
