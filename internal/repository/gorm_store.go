package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
)

// --- rows ---

type itemRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"type:varchar(200);not null"`
	Category  string    `gorm:"type:varchar(100);not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (itemRow) TableName() string { return "plant_items" }

// Prices are numeric so sums and reads keep the exact decimal values.
type dailyAggregateRow struct {
	ItemID           int64           `gorm:"primaryKey;autoIncrement:false"`
	BucketDate       time.Time       `gorm:"primaryKey;type:date;index"`
	ObservationCount int             `gorm:"not null"`
	MeanPrice        decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	MinPrice         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	MaxPrice         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	PriceStdDev      float64         `gorm:"not null"`
	SearchVolume     int64           `gorm:"not null"`
	SalesVolume      int64           `gorm:"not null"`
	AvailableCount   int             `gorm:"not null"`
	StockQuantity    int64           `gorm:"not null"`
	Sources          []string        `gorm:"type:jsonb;serializer:json"`
	SourceSpreadPct  float64         `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"type:timestamptz;autoUpdateTime"`
}

func (dailyAggregateRow) TableName() string { return "daily_aggregates" }

type indexPointRow struct {
	IndexDate             time.Time          `gorm:"primaryKey;type:date"`
	OverallIndex          float64            `gorm:"not null"`
	PerCategoryIndices    map[string]float64 `gorm:"type:jsonb;serializer:json"`
	TotalTrackedItems     int                `gorm:"not null"`
	CarriedForwardItems   int                `gorm:"not null"`
	TotalSources          int                `gorm:"not null"`
	ConfidenceScore       float64            `gorm:"not null"`
	ChangeFromPreviousPct float64            `gorm:"not null"`
	UpdatedAt             time.Time          `gorm:"type:timestamptz;autoUpdateTime"`
}

func (indexPointRow) TableName() string { return "market_index_points" }

type scoreRow struct {
	ItemID                 int64     `gorm:"primaryKey;autoIncrement:false"`
	Score                  float64   `gorm:"not null;index"`
	RiskTier               string    `gorm:"type:varchar(10);not null"`
	LiquidityScore         float64   `gorm:"not null"`
	TrendDirection         string    `gorm:"type:varchar(10);not null"`
	TrendSlopePct          float64   `gorm:"not null"`
	RoiEstimatePct         float64   `gorm:"not null"`
	PriceVolatilityPct     float64   `gorm:"not null"`
	CoefficientOfVariation *float64  `gorm:"type:double precision"`
	SampleSize             int       `gorm:"not null"`
	InsufficientData       bool      `gorm:"not null"`
	LastUpdated            time.Time `gorm:"type:timestamptz;not null"`
}

func (scoreRow) TableName() string { return "investment_scores" }

// At most one row per item and type may be active.
type opportunityRow struct {
	ID                 string    `gorm:"primaryKey;type:varchar(36)"`
	ItemID             int64     `gorm:"not null;uniqueIndex:idx_opp_active_item_type,where:is_active = true,priority:1"`
	OpportunityType    string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_opp_active_item_type,where:is_active = true,priority:2"`
	Confidence         float64   `gorm:"not null;index"`
	PotentialUpsidePct float64   `gorm:"not null"`
	TimeHorizonDays    int       `gorm:"not null"`
	SignalValue        float64   `gorm:"not null"`
	Threshold          float64   `gorm:"not null"`
	RiskAssessment     string    `gorm:"type:text"`
	MarketConditions   string    `gorm:"type:text"`
	DetectedAt         time.Time `gorm:"type:timestamptz;not null"`
	ExpiresAt          time.Time `gorm:"type:timestamptz;not null;index"`
	IsActive           bool      `gorm:"not null;index"`
}

func (opportunityRow) TableName() string { return "opportunities" }

// --- conversions ---

func toAggregateRow(a models.DailyAggregate) dailyAggregateRow {
	return dailyAggregateRow{
		ItemID:           a.ItemID,
		BucketDate:       a.BucketDate.UTC(),
		ObservationCount: a.ObservationCount,
		MeanPrice:        decimal.NewFromFloat(a.MeanPrice),
		MinPrice:         decimal.NewFromFloat(a.MinPrice),
		MaxPrice:         decimal.NewFromFloat(a.MaxPrice),
		PriceStdDev:      a.PriceStdDev,
		SearchVolume:     a.SearchVolume,
		SalesVolume:      a.SalesVolume,
		AvailableCount:   a.AvailableCount,
		StockQuantity:    a.StockQuantity,
		Sources:          append([]string(nil), a.Sources...),
		SourceSpreadPct:  a.SourceSpreadPct,
	}
}

func (r dailyAggregateRow) model() models.DailyAggregate {
	return models.DailyAggregate{
		ItemID:           r.ItemID,
		BucketDate:       r.BucketDate.UTC(),
		ObservationCount: r.ObservationCount,
		MeanPrice:        r.MeanPrice.InexactFloat64(),
		MinPrice:         r.MinPrice.InexactFloat64(),
		MaxPrice:         r.MaxPrice.InexactFloat64(),
		PriceStdDev:      r.PriceStdDev,
		SearchVolume:     r.SearchVolume,
		SalesVolume:      r.SalesVolume,
		AvailableCount:   r.AvailableCount,
		StockQuantity:    r.StockQuantity,
		Sources:          r.Sources,
		SourceSpreadPct:  r.SourceSpreadPct,
	}
}

func toIndexRow(p models.MarketIndexPoint) indexPointRow {
	return indexPointRow{
		IndexDate:             p.IndexDate.UTC(),
		OverallIndex:          p.OverallIndex,
		PerCategoryIndices:    p.PerCategoryIndices,
		TotalTrackedItems:     p.TotalTrackedItems,
		CarriedForwardItems:   p.CarriedForwardItems,
		TotalSources:          p.TotalSources,
		ConfidenceScore:       p.ConfidenceScore,
		ChangeFromPreviousPct: p.ChangeFromPreviousPct,
	}
}

func (r indexPointRow) model() models.MarketIndexPoint {
	per := r.PerCategoryIndices
	if per == nil {
		per = map[string]float64{}
	}
	return models.MarketIndexPoint{
		IndexDate:             r.IndexDate.UTC(),
		OverallIndex:          r.OverallIndex,
		PerCategoryIndices:    per,
		TotalTrackedItems:     r.TotalTrackedItems,
		CarriedForwardItems:   r.CarriedForwardItems,
		TotalSources:          r.TotalSources,
		ConfidenceScore:       r.ConfidenceScore,
		ChangeFromPreviousPct: r.ChangeFromPreviousPct,
	}
}

func toScoreRow(s models.InvestmentScore) scoreRow {
	return scoreRow{
		ItemID:                 s.ItemID,
		Score:                  s.Score,
		RiskTier:               string(s.RiskTier),
		LiquidityScore:         s.LiquidityScore,
		TrendDirection:         string(s.TrendDirection),
		TrendSlopePct:          s.TrendSlopePct,
		RoiEstimatePct:         s.RoiEstimatePct,
		PriceVolatilityPct:     s.PriceVolatilityPct,
		CoefficientOfVariation: s.CoefficientOfVariation,
		SampleSize:             s.SampleSize,
		InsufficientData:       s.InsufficientData,
		LastUpdated:            s.LastUpdated.UTC(),
	}
}

func (r scoreRow) model() models.InvestmentScore {
	return models.InvestmentScore{
		ItemID:                 r.ItemID,
		Score:                  r.Score,
		RiskTier:               models.RiskTier(r.RiskTier),
		LiquidityScore:         r.LiquidityScore,
		TrendDirection:         models.TrendDirection(r.TrendDirection),
		TrendSlopePct:          r.TrendSlopePct,
		RoiEstimatePct:         r.RoiEstimatePct,
		PriceVolatilityPct:     r.PriceVolatilityPct,
		CoefficientOfVariation: r.CoefficientOfVariation,
		SampleSize:             r.SampleSize,
		InsufficientData:       r.InsufficientData,
		LastUpdated:            r.LastUpdated.UTC(),
	}
}

func toOpportunityRow(o models.Opportunity) opportunityRow {
	return opportunityRow{
		ID:                 o.ID,
		ItemID:             o.ItemID,
		OpportunityType:    string(o.OpportunityType),
		Confidence:         o.Confidence,
		PotentialUpsidePct: o.PotentialUpsidePct,
		TimeHorizonDays:    o.TimeHorizonDays,
		SignalValue:        o.SignalValue,
		Threshold:          o.Threshold,
		RiskAssessment:     o.RiskAssessment,
		MarketConditions:   o.MarketConditions,
		DetectedAt:         o.DetectedAt.UTC(),
		ExpiresAt:          o.ExpiresAt.UTC(),
		IsActive:           o.IsActive,
	}
}

func (r opportunityRow) model() models.Opportunity {
	return models.Opportunity{
		ID:                 r.ID,
		ItemID:             r.ItemID,
		OpportunityType:    models.OpportunityType(r.OpportunityType),
		Confidence:         r.Confidence,
		PotentialUpsidePct: r.PotentialUpsidePct,
		TimeHorizonDays:    r.TimeHorizonDays,
		SignalValue:        r.SignalValue,
		Threshold:          r.Threshold,
		RiskAssessment:     r.RiskAssessment,
		MarketConditions:   r.MarketConditions,
		DetectedAt:         r.DetectedAt.UTC(),
		ExpiresAt:          r.ExpiresAt.UTC(),
		IsActive:           r.IsActive,
	}
}

// --- store ---

// GormStore persists the engine tables in Postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the engine tables.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&itemRow{},
		&dailyAggregateRow{},
		&indexPointRow{},
		&scoreRow{},
		&opportunityRow{},
	)
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// UpsertItem adds or renames a catalog entry.
func (s *GormStore) UpsertItem(ctx context.Context, it models.Item) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "category"}),
	}).Create(&itemRow{ID: it.ID, Name: it.Name, Category: it.Category}).Error
}

// --- ItemCatalog ---

func (s *GormStore) GetItem(ctx context.Context, itemID int64) (models.Item, error) {
	var row itemRow
	err := s.db.WithContext(ctx).Where("id = ?", itemID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Item{}, models.NewItemNotFound(itemID)
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("get item %d: %w", itemID, err)
	}
	return models.Item{ID: row.ID, Name: row.Name, Category: row.Category}, nil
}

func (s *GormStore) ListItems(ctx context.Context) ([]models.Item, error) {
	var rows []itemRow
	if err := s.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	out := make([]models.Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Item{ID: r.ID, Name: r.Name, Category: r.Category})
	}
	return out, nil
}

// --- AggregateStore ---

func (s *GormStore) UpsertDailyAggregate(ctx context.Context, agg models.DailyAggregate) error {
	row := toAggregateRow(agg)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}, {Name: "bucket_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"observation_count",
			"mean_price",
			"min_price",
			"max_price",
			"price_std_dev",
			"search_volume",
			"sales_volume",
			"available_count",
			"stock_quantity",
			"sources",
			"source_spread_pct",
			"updated_at",
		}),
	}).Create(&row).Error
}

func (s *GormStore) GetDailyAggregate(ctx context.Context, itemID int64, date time.Time) (models.DailyAggregate, bool, error) {
	day, _ := repository.BucketRange(repository.BucketDaily, date)
	var rows []dailyAggregateRow
	if err := s.db.WithContext(ctx).
		Where("item_id = ? AND bucket_date = ?", itemID, day).
		Limit(1).
		Find(&rows).Error; err != nil {
		return models.DailyAggregate{}, false, fmt.Errorf("get aggregate: %w", err)
	}
	if len(rows) == 0 {
		return models.DailyAggregate{}, false, nil
	}
	return rows[0].model(), true, nil
}

func (s *GormStore) findAggregates(query *gorm.DB) ([]models.DailyAggregate, error) {
	var rows []dailyAggregateRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	out := make([]models.DailyAggregate, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *GormStore) ListDailyAggregatesByDate(ctx context.Context, date time.Time) ([]models.DailyAggregate, error) {
	day, _ := repository.BucketRange(repository.BucketDaily, date)
	return s.findAggregates(s.db.WithContext(ctx).
		Where("bucket_date = ?", day).
		Order("item_id asc"))
}

func (s *GormStore) ListDailyAggregatesBetween(ctx context.Context, from, to time.Time) ([]models.DailyAggregate, error) {
	lo, _ := repository.BucketRange(repository.BucketDaily, from)
	hi, _ := repository.BucketRange(repository.BucketDaily, to)
	return s.findAggregates(s.db.WithContext(ctx).
		Where("bucket_date >= ? AND bucket_date <= ?", lo, hi).
		Order("bucket_date asc, item_id asc"))
}

func (s *GormStore) ListItemAggregates(ctx context.Context, itemID int64, from, to time.Time) ([]models.DailyAggregate, error) {
	lo, _ := repository.BucketRange(repository.BucketDaily, from)
	hi, _ := repository.BucketRange(repository.BucketDaily, to)
	return s.findAggregates(s.db.WithContext(ctx).
		Where("item_id = ? AND bucket_date >= ? AND bucket_date <= ?", itemID, lo, hi).
		Order("bucket_date asc"))
}

func (s *GormStore) ListRecentAggregates(ctx context.Context, itemID int64, asOf time.Time, limit int) ([]models.DailyAggregate, error) {
	if limit <= 0 {
		return []models.DailyAggregate{}, nil
	}
	day, _ := repository.BucketRange(repository.BucketDaily, asOf)
	return s.findAggregates(s.db.WithContext(ctx).
		Where("item_id = ? AND bucket_date <= ?", itemID, day).
		Order("bucket_date desc").
		Limit(limit))
}

func (s *GormStore) EarliestPricedDate(ctx context.Context) (time.Time, bool, error) {
	var earliest sql.NullTime
	if err := s.db.WithContext(ctx).
		Model(&dailyAggregateRow{}).
		Where("observation_count > 0").
		Select("MIN(bucket_date)").
		Scan(&earliest).Error; err != nil {
		return time.Time{}, false, fmt.Errorf("earliest priced date: %w", err)
	}
	if !earliest.Valid {
		return time.Time{}, false, nil
	}
	return earliest.Time.UTC(), true, nil
}

// --- IndexStore ---

func (s *GormStore) UpsertIndexPoint(ctx context.Context, p models.MarketIndexPoint) error {
	row := toIndexRow(p)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "index_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"overall_index",
			"per_category_indices",
			"total_tracked_items",
			"carried_forward_items",
			"total_sources",
			"confidence_score",
			"change_from_previous_pct",
			"updated_at",
		}),
	}).Create(&row).Error
}

func (s *GormStore) findIndexPoint(query *gorm.DB) (models.MarketIndexPoint, bool, error) {
	var rows []indexPointRow
	if err := query.Limit(1).Find(&rows).Error; err != nil {
		return models.MarketIndexPoint{}, false, fmt.Errorf("get index point: %w", err)
	}
	if len(rows) == 0 {
		return models.MarketIndexPoint{}, false, nil
	}
	return rows[0].model(), true, nil
}

func (s *GormStore) GetIndexPoint(ctx context.Context, date time.Time) (models.MarketIndexPoint, bool, error) {
	day, _ := repository.BucketRange(repository.BucketDaily, date)
	return s.findIndexPoint(s.db.WithContext(ctx).Where("index_date = ?", day))
}

func (s *GormStore) LatestIndexPoint(ctx context.Context) (models.MarketIndexPoint, bool, error) {
	return s.findIndexPoint(s.db.WithContext(ctx).Order("index_date desc"))
}

func (s *GormStore) ListIndexPoints(ctx context.Context, from, to time.Time) ([]models.MarketIndexPoint, error) {
	lo, _ := repository.BucketRange(repository.BucketDaily, from)
	hi, _ := repository.BucketRange(repository.BucketDaily, to)
	var rows []indexPointRow
	if err := s.db.WithContext(ctx).
		Where("index_date >= ? AND index_date <= ?", lo, hi).
		Order("index_date asc").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list index points: %w", err)
	}
	out := make([]models.MarketIndexPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// --- ScoreStore ---

func (s *GormStore) UpsertScore(ctx context.Context, sc models.InvestmentScore) error {
	row := toScoreRow(sc)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *GormStore) GetScore(ctx context.Context, itemID int64) (models.InvestmentScore, bool, error) {
	var rows []scoreRow
	if err := s.db.WithContext(ctx).Where("item_id = ?", itemID).Limit(1).Find(&rows).Error; err != nil {
		return models.InvestmentScore{}, false, fmt.Errorf("get score: %w", err)
	}
	if len(rows) == 0 {
		return models.InvestmentScore{}, false, nil
	}
	return rows[0].model(), true, nil
}

func (s *GormStore) ListScores(ctx context.Context) ([]models.InvestmentScore, error) {
	var rows []scoreRow
	if err := s.db.WithContext(ctx).Order("item_id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	out := make([]models.InvestmentScore, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// --- OpportunityStore ---

func (s *GormStore) ExpireOpportunities(ctx context.Context, asOf time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Model(&opportunityRow{}).
		Where("is_active = ? AND expires_at <= ?", true, asOf.UTC()).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("expire opportunities: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// SupersedeOpportunity closes the other active rows of the same item and type
// and writes opp in one transaction. A row with opp's id is overwritten.
// Writers for the same item and type serialize on a transaction-scoped
// advisory lock.
func (s *GormStore) SupersedeOpportunity(ctx context.Context, opp models.Opportunity) (int, error) {
	closed := 0
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", opportunityLockKey(opp.ItemID, opp.OpportunityType)).Error; err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		res := tx.Model(&opportunityRow{}).
			Where("item_id = ? AND opportunity_type = ? AND is_active = ? AND id <> ?",
				opp.ItemID, string(opp.OpportunityType), true, opp.ID).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		closed = int(res.RowsAffected)

		row := toOpportunityRow(opp)
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("supersede opportunity: %w", err)
	}
	return closed, nil
}

// opportunityLockKey maps an item and type onto the bigint advisory lock space.
func opportunityLockKey(itemID int64, t models.OpportunityType) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "opportunity|%d|%s", itemID, t)
	return int64(h.Sum64())
}

func (s *GormStore) ListActiveOpportunities(ctx context.Context, f models.OpportunityFilter, activeAt time.Time, limit int) ([]models.Opportunity, error) {
	query := s.db.WithContext(ctx).Model(&opportunityRow{}).Where("is_active = ?", true)
	if f.Type != "" {
		query = query.Where("opportunity_type = ?", string(f.Type))
	}
	if f.ItemID != 0 {
		query = query.Where("item_id = ?", f.ItemID)
	}
	if !activeAt.IsZero() {
		query = query.Where("expires_at > ?", activeAt.UTC())
	}
	query = query.Order("confidence desc").Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []opportunityRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	out := make([]models.Opportunity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *GormStore) CountOpportunities(ctx context.Context) (int, int, error) {
	var total, active int64
	if err := s.db.WithContext(ctx).Model(&opportunityRow{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count opportunities: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&opportunityRow{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("count active opportunities: %w", err)
	}
	return int(active), int(total), nil
}

func (s *GormStore) Health(ctx context.Context) error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.PingContext(ctx)
}

var (
	_ repository.EngineStore = (*GormStore)(nil)
	_ repository.ItemWriter  = (*GormStore)(nil)
)
