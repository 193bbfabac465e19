package api

import (
	"errors"
	"time"

	models "PlantDex/internal/domain/models"
	"PlantDex/internal/service/ratelimit"
	"PlantDex/internal/usecase"
	xhttp "PlantDex/pkg/http"
	xlogger "PlantDex/pkg/logger"
	"PlantDex/pkg/util"

	"github.com/labstack/echo/v4"
)

// MarketEchoHandler serves the market query API and the explicit compute triggers.
type MarketEchoHandler struct {
	logger  *xlogger.Logger
	query   *usecase.QueryUseCase
	compute *usecase.ComputeUseCase
	rl      *ratelimit.Limiter
	rps     float64
	burst   float64
}

type MarketHandlerOption func(*MarketEchoHandler)

// WithComputeRateLimit bounds compute triggers per client IP.
func WithComputeRateLimit(rps, burst float64) MarketHandlerOption {
	return func(h *MarketEchoHandler) {
		if rps > 0 {
			h.rps = rps
		}
		if burst >= 1 {
			h.burst = burst
		}
	}
}

// WithRateLimiter replaces the compute limiter.
func WithRateLimiter(rl *ratelimit.Limiter) MarketHandlerOption {
	return func(h *MarketEchoHandler) {
		if rl != nil {
			h.rl = rl
		}
	}
}

func NewMarketEchoHandler(logger *xlogger.Logger, query *usecase.QueryUseCase, compute *usecase.ComputeUseCase, opts ...MarketHandlerOption) *MarketEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	h := &MarketEchoHandler{
		logger:  logger,
		query:   query,
		compute: compute,
		rl:      ratelimit.New(),
		rps:     2,
		burst:   5,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/market")
	g.GET("/index", h.Index)
	g.GET("/score/:item_id", h.Score)
	g.GET("/opportunities", h.Opportunities)
	g.GET("/forecast/:item_id", h.Forecast)
	g.GET("/sentiment", h.Sentiment)
	g.GET("/top-movers", h.TopMovers)
	g.GET("/stats", h.Stats)
	g.GET("/trending", h.Trending)
	g.GET("/items/:item_id/analysis", h.ItemAnalysis)
	g.GET("/items/:item_id/prices", h.PriceAnalysis)

	cg := g.Group("/compute", h.rateLimit)
	cg.POST("/aggregate", h.ComputeAggregate)
	cg.POST("/index", h.ComputeIndex)
	cg.POST("/score", h.ComputeScore)
	cg.POST("/detect", h.ComputeDetect)
	cg.POST("/cycle", h.ComputeCycle)
}

func (h *MarketEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.rl.Allow(c.RealIP()+":compute", h.burst, h.rps) {
			h.logger.Warn("market.compute rate_limited", xlogger.String("remote", c.RealIP()))
			c.Response().Header().Set(echo.HeaderRetryAfter, "1")
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many compute requests"))
		}
		return next(c)
	}
}

// fail maps domain errors onto the response envelope.
func (h *MarketEchoHandler) fail(c echo.Context, op string, err error) error {
	var verr *models.ValidationError
	switch {
	case models.IsNotFound(err):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()).WithError(err))
	case models.IsInsufficientHistory(err):
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableError(err.Error()).WithError(err))
	case errors.As(err, &verr):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(verr.Reason).WithField(verr.Field).WithError(err))
	}
	h.logger.Error(op+" usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func (h *MarketEchoHandler) Index(c echo.Context) error {
	req := &models.IndexRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from := util.ParseDateDefault(req.From, time.Time{})
	to := util.ParseDateDefault(req.To, time.Time{})

	res, err := h.query.GetIndex(c.Request().Context(), from, to)
	if err != nil {
		return h.fail(c, "index", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Score(c echo.Context) error {
	req := &models.ItemRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.GetScore(c.Request().Context(), req.ItemID)
	if err != nil {
		return h.fail(c, "score", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Opportunities(c echo.Context) error {
	req := &models.OpportunitiesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f := models.OpportunityFilter{Type: models.OpportunityType(req.Type), ItemID: req.ItemID}
	res, err := h.query.GetOpportunities(c.Request().Context(), f, req.Limit)
	if err != nil {
		return h.fail(c, "opportunities", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.GetForecast(c.Request().Context(), req.ItemID, req.WeeksAhead)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Sentiment(c echo.Context) error {
	res, err := h.query.Sentiment(c.Request().Context())
	if err != nil {
		return h.fail(c, "sentiment", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) TopMovers(c echo.Context) error {
	req := &models.LimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.TopMovers(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "top_movers", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Stats(c echo.Context) error {
	res, err := h.query.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, "stats", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) Trending(c echo.Context) error {
	req := &models.LimitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.Trending(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "trending", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) ItemAnalysis(c echo.Context) error {
	req := &models.ItemRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.ItemAnalysis(c.Request().Context(), req.ItemID)
	if err != nil {
		return h.fail(c, "item_analysis", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) PriceAnalysis(c echo.Context) error {
	req := &models.PriceAnalysisRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.query.PriceAnalysis(c.Request().Context(), req.ItemID, req.Days)
	if err != nil {
		return h.fail(c, "price_analysis", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// --- compute triggers ---

func (h *MarketEchoHandler) computeRequest(c echo.Context) (*models.ComputeRequest, time.Time, interface{}) {
	req := &models.ComputeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return nil, time.Time{}, verr
	}
	return req, util.ParseDateDefault(req.Date, time.Time{}), nil
}

func (h *MarketEchoHandler) ComputeAggregate(c echo.Context) error {
	req, date, verr := h.computeRequest(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if req.ItemID == 0 {
		res, err := h.compute.AggregateDay(ctx, date)
		if err != nil {
			return h.fail(c, "compute_aggregate", err)
		}
		return xhttp.SuccessResponse(c, res)
	}
	res, err := h.compute.Aggregate(ctx, req.ItemID, date)
	if err != nil {
		return h.fail(c, "compute_aggregate", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) ComputeIndex(c echo.Context) error {
	_, date, verr := h.computeRequest(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.compute.Index(c.Request().Context(), date)
	if err != nil {
		return h.fail(c, "compute_index", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) ComputeScore(c echo.Context) error {
	req, _, verr := h.computeRequest(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if req.ItemID == 0 {
		res, err := h.compute.ScoreAll(ctx)
		if err != nil {
			return h.fail(c, "compute_score", err)
		}
		return xhttp.SuccessResponse(c, res)
	}
	res, err := h.compute.Score(ctx, req.ItemID)
	if err != nil {
		return h.fail(c, "compute_score", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) ComputeDetect(c echo.Context) error {
	_, asOf, verr := h.computeRequest(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.compute.Detect(c.Request().Context(), asOf)
	if err != nil {
		return h.fail(c, "compute_detect", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketEchoHandler) ComputeCycle(c echo.Context) error {
	_, date, verr := h.computeRequest(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.compute.RunCycle(c.Request().Context(), date)
	if err != nil {
		return h.fail(c, "compute_cycle", err)
	}
	return xhttp.SuccessResponse(c, res)
}

var _ xhttp.Handler = (*MarketEchoHandler)(nil)
