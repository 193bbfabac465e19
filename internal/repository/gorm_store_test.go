package repository

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm/schema"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/services/intelligence"
	"PlantDex/pkg/config"
	"PlantDex/pkg/postgres"
)

var varcharType = regexp.MustCompile(`^varchar\((\d+)\)$`)

func parseRow(t *testing.T, row interface{}) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(row, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse %T: %v", row, err)
	}
	return s
}

// engineRows returns rows built from the values the engine and the catalog
// config actually write.
func engineRows(t *testing.T) []interface{} {
	t.Helper()
	var rows []interface{}

	raw, err := os.ReadFile("../../config/config.yaml")
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var file struct {
		Catalog []config.CatalogItem `yaml:"catalog"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if len(file.Catalog) == 0 {
		t.Fatal("config has no catalog")
	}
	for _, it := range file.Catalog {
		rows = append(rows, itemRow{ID: it.ID, Name: it.Name, Category: it.Category})
	}

	detected := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	tiers := []models.RiskTier{models.RiskLow, models.RiskMedium, models.RiskHigh}
	trends := []models.TrendDirection{models.TrendUp, models.TrendDown, models.TrendStable}
	for _, typ := range models.OpportunityTypes {
		for _, tier := range tiers {
			rows = append(rows, toOpportunityRow(models.Opportunity{
				ID:              intelligence.OpportunityID(1<<40, typ, detected),
				ItemID:          1 << 40,
				OpportunityType: typ,
				RiskAssessment:  intelligence.RiskAssessment(tier),
				DetectedAt:      detected,
				ExpiresAt:       detected.AddDate(0, 0, 14),
				IsActive:        true,
			}))
		}
	}
	for _, tier := range tiers {
		for _, trend := range trends {
			rows = append(rows, toScoreRow(models.InvestmentScore{ItemID: 1, RiskTier: tier, TrendDirection: trend}))
		}
	}
	return rows
}

func TestGormColumnsFitWrittenValues(t *testing.T) {
	checked := map[string]bool{}
	for _, row := range engineRows(t) {
		s := parseRow(t, row)
		rv := reflect.ValueOf(row)
		for _, f := range s.Fields {
			m := varcharType.FindStringSubmatch(string(f.DataType))
			if m == nil {
				continue
			}
			width, _ := strconv.Atoi(m[1])
			v := rv.FieldByName(f.Name).String()
			if len(v) > width {
				t.Fatalf("%s.%s is %s but %q has %d bytes", s.Table, f.DBName, f.DataType, v, len(v))
			}
			checked[s.Table+"."+f.DBName] = true
		}
	}

	// every bounded column must have been exercised by some written value
	for _, row := range []interface{}{&itemRow{}, &dailyAggregateRow{}, &indexPointRow{}, &scoreRow{}, &opportunityRow{}} {
		s := parseRow(t, row)
		for _, f := range s.Fields {
			if varcharType.MatchString(string(f.DataType)) && !checked[s.Table+"."+f.DBName] {
				t.Fatalf("no written value covers %s.%s (%s)", s.Table, f.DBName, f.DataType)
			}
		}
	}
}

func TestOpportunityActiveIndexIsPartialUnique(t *testing.T) {
	s := parseRow(t, &opportunityRow{})
	for _, idx := range s.ParseIndexes() {
		if idx.Name != "idx_opp_active_item_type" {
			continue
		}
		if idx.Class != "UNIQUE" || idx.Where != "is_active = true" {
			t.Fatalf("class=%q where=%q", idx.Class, idx.Where)
		}
		if len(idx.Fields) != 2 || idx.Fields[0].DBName != "item_id" || idx.Fields[1].DBName != "opportunity_type" {
			t.Fatalf("unexpected index fields: %+v", idx.Fields)
		}
		return
	}
	t.Fatal("idx_opp_active_item_type not declared")
}

func TestOpportunityLockKeyDependsOnItemAndType(t *testing.T) {
	a := opportunityLockKey(7, models.OpportunityBreakout)
	if a != opportunityLockKey(7, models.OpportunityBreakout) {
		t.Fatal("lock key is not stable")
	}
	if a == opportunityLockKey(8, models.OpportunityBreakout) || a == opportunityLockKey(7, models.OpportunitySeasonal) {
		t.Fatal("lock keys collide for different item or type")
	}
}

// openTestStore connects to PLANTDEX_TEST_POSTGRES_DSN or skips.
func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := os.Getenv("PLANTDEX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PLANTDEX_TEST_POSTGRES_DSN not set")
	}
	client, err := postgres.NewClient(postgres.WithDSN(dsn))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	s := NewGormStore(client.Gorm())
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestGormStoreSupersedeOnPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	itemID := time.Now().UnixNano()
	t.Cleanup(func() {
		s.db.Where("item_id = ?", itemID).Delete(&opportunityRow{})
	})

	exp := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	first := opp(fmt.Sprintf("%d-a", itemID), itemID, models.OpportunityBreakout, 0.6, exp)
	first.RiskAssessment = intelligence.RiskAssessment(models.RiskHigh)
	if _, err := s.SupersedeOpportunity(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	n, err := s.SupersedeOpportunity(ctx, opp(fmt.Sprintf("%d-b", itemID), itemID, models.OpportunityBreakout, 0.7, exp))
	if err != nil || n != 1 {
		t.Fatalf("supersede closed %d rows, err %v", n, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SupersedeOpportunity(ctx, opp(fmt.Sprintf("%d-c%d", itemID, i), itemID, models.OpportunityBreakout, 0.5, exp))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent supersede: %v", err)
		}
	}

	active, err := s.ListActiveOpportunities(ctx, models.OpportunityFilter{ItemID: itemID}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active row, got %d", len(active))
	}

	var stored opportunityRow
	if err := s.db.Where("id = ?", first.ID).First(&stored).Error; err != nil {
		t.Fatalf("read first: %v", err)
	}
	if stored.IsActive || stored.RiskAssessment != first.RiskAssessment {
		t.Fatalf("first row active=%v risk=%q", stored.IsActive, stored.RiskAssessment)
	}
}
