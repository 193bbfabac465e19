package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"PlantDex/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`

		// aggregation of repeated lines to kafka.logs_topic
		CollectLevels    []string      `yaml:"collect_levels"`
		CollectInterval  time.Duration `yaml:"collect_interval" default:"30s"`
		CollectThreshold int           `yaml:"collect_threshold" default:"100"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		ComputeRPS      float64       `yaml:"compute_rps" default:"2"`
		ComputeBurst    float64       `yaml:"compute_burst" default:"5"`
		Host            string        `yaml:"host" default:"0.0.0.0"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Store struct {
		Type string `yaml:"type" default:"memory"`
	} `yaml:"store"`
	Backend struct {
		Type         string        `yaml:"type" default:"clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"500"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
	} `yaml:"backend"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		AutoMigrate     bool          `yaml:"auto_migrate"`
	} `yaml:"postgres"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"plantdex.observations"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"plantdex-ingest"`
			StartOffset string        `yaml:"start_offset" default:"earliest"`
			Workers     int           `yaml:"workers" default:"4"`
			BufferSize  int           `yaml:"buffer_size" default:"1000"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
			MaxWait     time.Duration `yaml:"max_wait" default:"500ms"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"plantdex"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		Compression      string        `yaml:"compression" default:"lz4"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"plantdex"`
		QueryTTL time.Duration `yaml:"query_ttl" default:"60s"`
		LockTTL  time.Duration `yaml:"lock_ttl" default:"30s"`

		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"5"`
		PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
		LocalSize    int           `yaml:"local_size" default:"1000"`
		LocalTTL     time.Duration `yaml:"local_ttl" default:"5s"`
	} `yaml:"redis"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		JobTimeout time.Duration `yaml:"job_timeout" default:"5m"`
		Dedupe     time.Duration `yaml:"dedupe"`
	} `yaml:"queue"`
	Feed struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Channels       []string      `yaml:"channels"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxRPS         int           `yaml:"max_rps" default:"50"`
		BufferSize     int           `yaml:"buffer_size" default:"2000"`
	} `yaml:"feed"`
	Seasonal struct {
		ServiceURL string           `yaml:"service_url"`
		Timeout    time.Duration    `yaml:"timeout" default:"3s"`
		CacheTTL   time.Duration    `yaml:"cache_ttl" default:"6h"`
		Categories map[string][]int `yaml:"categories"`
	} `yaml:"seasonal"`
	Scheduler struct {
		Enabled   bool   `yaml:"enabled"`
		CycleSpec string `yaml:"cycle_spec" default:"0 5 0 * * *"`
	} `yaml:"scheduler"`
	Catalog []CatalogItem `yaml:"catalog"`
	Engine  EngineConfig  `yaml:"engine"`
}

// CatalogItem is a plant seeded into the item catalog at startup.
type CatalogItem struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// EngineConfig holds the tunable parameters of the intelligence engine.
type EngineConfig struct {
	ScoreWindow         int     `yaml:"score_window" default:"8"`
	TrendEpsilon        float64 `yaml:"trend_epsilon" default:"0.005"`
	RoiHorizon          int     `yaml:"roi_horizon" default:"12"`
	RoiCapPct           float64 `yaml:"roi_cap_pct" default:"50"`
	LiquidityCountScale float64 `yaml:"liquidity_count_scale" default:"10"`
	LiquiditySalesScale float64 `yaml:"liquidity_sales_scale" default:"20"`

	ForecastWindow    int     `yaml:"forecast_window" default:"4"`
	MaxForecastWeeks  int     `yaml:"max_forecast_weeks" default:"12"`
	DemandScale       float64 `yaml:"demand_scale" default:"100"`
	DemandSalesWeight float64 `yaml:"demand_sales_weight" default:"5"`
	SupplyScale       float64 `yaml:"supply_scale" default:"50"`

	Index struct {
		BaseValue           float64 `yaml:"base_value" default:"100"`
		BaselineDays        int     `yaml:"baseline_days" default:"7"`
		BaselinePrice       float64 `yaml:"baseline_price"`
		ExpectedSources     int     `yaml:"expected_sources" default:"5"`
		CarryForwardPenalty float64 `yaml:"carry_forward_penalty" default:"0.5"`
		DefaultValue        float64 `yaml:"default_value" default:"1250"`
	} `yaml:"index"`

	Opportunity struct {
		BaselineDays         int     `yaml:"baseline_days" default:"30"`
		UndervaluedThreshold float64 `yaml:"undervalued_threshold" default:"0.15"`
		LiquidityFloor       float64 `yaml:"liquidity_floor" default:"3"`
		BreakoutSlope        float64 `yaml:"breakout_slope" default:"0.02"`
		SpreadThresholdPct   float64 `yaml:"spread_threshold_pct" default:"20"`
		SeasonalDemandFloor  float64 `yaml:"seasonal_demand_floor" default:"40"`
		ConfidenceFloor      float64 `yaml:"confidence_floor" default:"0.5"`
		ConfidenceBase       float64 `yaml:"confidence_base" default:"0.55"`
		ConfidenceSlope      float64 `yaml:"confidence_slope" default:"0.5"`
		HorizonDays          struct {
			Undervalued int `yaml:"undervalued" default:"30"`
			Breakout    int `yaml:"breakout" default:"14"`
			Seasonal    int `yaml:"seasonal" default:"60"`
			Arbitrage   int `yaml:"arbitrage" default:"7"`
		} `yaml:"horizon_days"`
	} `yaml:"opportunity"`
}

// DefaultEngineConfig returns an EngineConfig populated from struct defaults.
func DefaultEngineConfig() EngineConfig {
	var c EngineConfig
	_ = defaults.Set(&c)
	return c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes YAML over them and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads .env (if present), then config from YAML, and overrides
// with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PLANTDEX_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("SERVER_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = util.SplitCSV(v)
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("SEASONAL_SERVICE_URL"); v != "" {
		c.Seasonal.ServiceURL = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Store.Type != "memory" && c.Store.Type != "postgres" {
		return fmt.Errorf("store.type must be 'memory' or 'postgres', got '%s'", c.Store.Type)
	}
	if c.Store.Type == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when store.type is postgres")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if so := c.Kafka.Consumer.StartOffset; so != "earliest" && so != "latest" {
		return fmt.Errorf("kafka.consumer.start_offset must be 'earliest' or 'latest', got '%s'", so)
	}
	if c.Feed.Enabled && c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required when feed is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	for cat, months := range c.Seasonal.Categories {
		for _, m := range months {
			if m < 1 || m > 12 {
				return fmt.Errorf("seasonal.categories[%s]: month %d out of range", cat, m)
			}
		}
	}
	seen := make(map[int64]bool, len(c.Catalog))
	for _, it := range c.Catalog {
		if it.ID <= 0 || it.Category == "" {
			return fmt.Errorf("catalog: item %d needs a positive id and a category", it.ID)
		}
		if seen[it.ID] {
			return fmt.Errorf("catalog: duplicate item id %d", it.ID)
		}
		seen[it.ID] = true
	}
	return c.Engine.Validate()
}

// Validate checks engine parameters.
func (e *EngineConfig) Validate() error {
	if e.ScoreWindow < 2 {
		return fmt.Errorf("engine.score_window must be >= 2")
	}
	if e.ForecastWindow < 1 {
		return fmt.Errorf("engine.forecast_window must be >= 1")
	}
	if e.MaxForecastWeeks < 1 {
		return fmt.Errorf("engine.max_forecast_weeks must be >= 1")
	}
	if e.TrendEpsilon <= 0 {
		return fmt.Errorf("engine.trend_epsilon must be > 0")
	}
	if e.RoiCapPct <= 0 {
		return fmt.Errorf("engine.roi_cap_pct must be > 0")
	}
	if e.Index.BaseValue <= 0 {
		return fmt.Errorf("engine.index.base_value must be > 0")
	}
	if e.Index.ExpectedSources < 1 {
		return fmt.Errorf("engine.index.expected_sources must be >= 1")
	}
	if e.Index.CarryForwardPenalty < 0 || e.Index.CarryForwardPenalty > 1 {
		return fmt.Errorf("engine.index.carry_forward_penalty must be within [0,1]")
	}
	op := e.Opportunity
	if op.ConfidenceFloor < 0 || op.ConfidenceFloor > 1 {
		return fmt.Errorf("engine.opportunity.confidence_floor must be within [0,1]")
	}
	if op.BreakoutSlope <= e.TrendEpsilon {
		return fmt.Errorf("engine.opportunity.breakout_slope must exceed engine.trend_epsilon")
	}
	if op.UndervaluedThreshold <= 0 || op.SpreadThresholdPct <= 0 {
		return fmt.Errorf("engine.opportunity thresholds must be > 0")
	}
	return nil
}
