package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"PlantDex/internal/domain/models"
	"PlantDex/internal/domain/repository"
	"PlantDex/internal/service/cache"
	xhttp "PlantDex/pkg/http"
	applogger "PlantDex/pkg/logger"
)

// HTTPServiceBase wraps a JSON HTTP client bound to a base URL.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPServiceBase builds a client that retries transient failures twice.
func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: xhttp.NewClient(
			xhttp.WithTimeout(timeout),
			xhttp.WithRetry(2, 50*time.Millisecond),
			xhttp.WithUserAgent("plantdex-seasonal"),
		),
	}
}

// GetJSON fetches path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("reference http client not initialized")
	}
	if err := b.client.GetJSON(ctx, b.baseURL+path, nil, dest); err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}

type seasonalResp struct {
	Category         string `json:"category"`
	HighDemandMonths []int  `json:"high_demand_months"`
}

// HTTPSeasonalReference reads category seasonality from a remote service,
// caching responses and falling back to a secondary source on failure.
type HTTPSeasonalReference struct {
	base     *HTTPServiceBase
	cache    cache.BytesCache
	ttl      time.Duration
	fallback repository.SeasonalReferenceSource
	log      *applogger.Logger
}

type HTTPOption func(*HTTPSeasonalReference)

func WithCache(c cache.BytesCache, ttl time.Duration) HTTPOption {
	return func(r *HTTPSeasonalReference) { r.cache, r.ttl = c, ttl }
}

func WithFallback(f repository.SeasonalReferenceSource) HTTPOption {
	return func(r *HTTPSeasonalReference) { r.fallback = f }
}

func WithLogger(l *applogger.Logger) HTTPOption {
	return func(r *HTTPSeasonalReference) {
		if l != nil {
			r.log = l
		}
	}
}

func NewHTTPSeasonalReference(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPSeasonalReference {
	r := &HTTPSeasonalReference{
		base: NewHTTPServiceBase(baseURL, timeout),
		log:  applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HTTPSeasonalReference) GetSeasonalReference(ctx context.Context, category string) (models.SeasonalReference, error) {
	key := "seasonal:" + category
	if r.cache != nil {
		if b, ok, err := r.cache.GetBytes(ctx, key); err == nil && ok {
			var cached seasonalResp
			if err := json.Unmarshal(b, &cached); err == nil {
				return toReference(category, cached), nil
			}
		}
	}

	var resp seasonalResp
	if err := r.base.GetJSON(ctx, "/seasonal/"+url.PathEscape(category), &resp); err != nil {
		if r.fallback != nil {
			r.log.Warn("seasonal reference fallback",
				applogger.String("category", category),
				applogger.Error(err),
			)
			return r.fallback.GetSeasonalReference(ctx, category)
		}
		return models.SeasonalReference{}, fmt.Errorf("seasonal reference %s: %w", category, err)
	}

	if r.cache != nil {
		if b, err := json.Marshal(resp); err == nil {
			_ = r.cache.SetBytes(ctx, key, b, r.ttl)
		}
	}
	return toReference(category, resp), nil
}

func toReference(category string, resp seasonalResp) models.SeasonalReference {
	out := models.SeasonalReference{Category: category}
	for _, m := range resp.HighDemandMonths {
		if m >= 1 && m <= 12 {
			out.HighDemandMonths = append(out.HighDemandMonths, time.Month(m))
		}
	}
	return out
}

var _ repository.SeasonalReferenceSource = (*HTTPSeasonalReference)(nil)
