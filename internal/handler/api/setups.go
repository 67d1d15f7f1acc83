package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	icache "SetupScan/internal/service/cache"
	"SetupScan/internal/service/metrics"
	"SetupScan/internal/service/ratelimit"
	"SetupScan/internal/services/rules"
	"SetupScan/internal/usecase"
	xhttp "SetupScan/pkg/http"
	xlogger "SetupScan/pkg/logger"
	xutil "SetupScan/pkg/util"
)

// Evaluator is the ad-hoc scoring surface the handler needs.
type Evaluator interface {
	EvaluateSetup(ctx context.Context, modelID, pair string, tf domrepo.Timeframe, dir models.Direction) (*usecase.EvaluationResult, error)
	Structure(ctx context.Context, pair string, tf domrepo.Timeframe, n int) (*models.Analysis, error)
}

// WSServer upgrades alert feed connections.
type WSServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

// SetupsHandler serves scoring, structure, phase and model endpoints.
type SetupsHandler struct {
	logger  *xlogger.Logger
	eval    Evaluator
	phases  domrepo.PhaseStore
	models  domrepo.ModelStore
	results domrepo.ResultArchive
	hub     WSServer
	cache   icache.BytesCache
	rl      *ratelimit.Limiter
	ttl     time.Duration
}

// NewSetupsHandler wires the handler. results, hub and cache may be nil.
func NewSetupsHandler(logger *xlogger.Logger, eval Evaluator, phases domrepo.PhaseStore, ms domrepo.ModelStore,
	results domrepo.ResultArchive, hub WSServer, cache icache.BytesCache, rl *ratelimit.Limiter) *SetupsHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.NewNop()
	}
	if rl == nil {
		rl = ratelimit.New(5, 10)
	}
	return &SetupsHandler{
		logger: logger, eval: eval, phases: phases, models: ms,
		results: results, hub: hub, cache: cache, rl: rl, ttl: 15 * time.Second,
	}
}

// SetCacheTTL sets how long structure responses are served from cache.
func (h *SetupsHandler) SetCacheTTL(d time.Duration) {
	if d > 0 {
		h.ttl = d
	}
}

func (h *SetupsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/score", h.Score)
	g.GET("/structure", h.Structure)
	g.GET("/phases", h.Phases)
	g.GET("/models", h.ListModels)
	g.GET("/models/:id", h.GetModel)
	g.POST("/models", h.SaveModel)
	g.GET("/results", h.Results)
	if h.hub != nil {
		e.GET("/ws/alerts", h.Alerts)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// mapError turns domain errors into AppErrors.
func mapError(err error) error {
	switch {
	case errors.Is(err, domrepo.ErrModelNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrInvalidModel), errors.Is(err, rules.ErrUnresolvedRule):
		return xhttp.InvalidModelError(err.Error()).WithError(err)
	case errors.Is(err, icache.ErrSourceUnavailable):
		return xhttp.UnavailableError("candle source unavailable").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.TimeoutError("upstream timed out").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

func (h *SetupsHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
	appErr := mapError(err)
	var ae *xhttp.AppError
	if errors.As(appErr, &ae) && ae.Status >= http.StatusInternalServerError {
		h.logger.Error("api error", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *SetupsHandler) Score(c echo.Context) error {
	defer observe("score", time.Now())
	req := &models.ScoreRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, uerr := h.eval.EvaluateSetup(c.Request().Context(), req.ModelID, req.Pair,
		domrepo.Timeframe(req.Timeframe), models.Direction(req.Direction))
	if uerr != nil {
		return h.fail(c, "score", uerr)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SetupsHandler) Structure(c echo.Context) error {
	defer observe("structure", time.Now())
	req := &models.StructureRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP() + ":structure") {
		h.logger.Warn("structure rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError())
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)
	ctx := c.Request().Context()
	key := fmt.Sprintf("structure:%s:%s:%d:%d", req.Pair, tf, req.N, xutil.BucketStart(time.Now(), tf.Duration()).Unix())
	if h.cache != nil {
		if b, ok, _ := h.cache.GetBytes(ctx, key); ok {
			c.Response().Header().Set("X-Cache", "hit")
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}
	a, uerr := h.eval.Structure(ctx, req.Pair, tf, req.N)
	if uerr != nil {
		return h.fail(c, "structure", uerr)
	}
	if h.cache != nil {
		if b, merr := json.Marshal(a); merr == nil {
			_ = h.cache.SetBytes(ctx, key, b, h.ttl)
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, fmt.Sprintf("private, max-age=%d", int(h.ttl.Seconds())))
	return xhttp.SuccessResponse(c, a)
}

func (h *SetupsHandler) Phases(c echo.Context) error {
	defer observe("phases", time.Now())
	req := &models.PhasesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	all, serr := h.phases.List(c.Request().Context())
	if serr != nil {
		return h.fail(c, "phases", serr)
	}
	out := make([]models.PhaseRecord, 0, len(all))
	for _, r := range all {
		if (req.ModelID == "" || r.ModelID == req.ModelID) && (req.Pair == "" || r.Pair == req.Pair) {
			out = append(out, r)
		}
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *SetupsHandler) ListModels(c echo.Context) error {
	defer observe("models", time.Now())
	all, serr := h.models.List(c.Request().Context())
	if serr != nil {
		return h.fail(c, "models", serr)
	}
	return xhttp.ListResponse(c, all, int64(len(all)))
}

func (h *SetupsHandler) GetModel(c echo.Context) error {
	defer observe("model", time.Now())
	m, serr := h.models.Get(c.Request().Context(), c.Param("id"))
	if serr != nil {
		return h.fail(c, "model", serr)
	}
	return xhttp.SuccessResponse(c, m)
}

func (h *SetupsHandler) SaveModel(c echo.Context) error {
	defer observe("save_model", time.Now())
	var m models.Model
	if berr := c.Bind(&m); berr != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("invalid model body").WithError(berr))
	}
	report, serr := h.models.Save(c.Request().Context(), m)
	if serr != nil {
		return h.fail(c, "save_model", serr)
	}
	h.logger.Info("model saved", xlogger.String("model_id", m.ID), xlogger.Int("warnings", len(report.Warnings)))
	return xhttp.CreatedResponse(c, report)
}

func (h *SetupsHandler) Results(c echo.Context) error {
	defer observe("results", time.Now())
	if h.results == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("result archive disabled"))
	}
	q := c.QueryParams()
	f := domrepo.ResultFilter{
		ModelID: q.Get("model_id"),
		Pair:    q.Get("pair"),
		Since:   xhttp.ParseTimeDefault(q.Get("since"), time.Time{}),
		Limit:   min(xhttp.ParseIntDefault(q.Get("limit"), 100), 1000),
	}
	res, rerr := h.results.Results(c.Request().Context(), f)
	if rerr != nil {
		return h.fail(c, "results", rerr)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *SetupsHandler) Alerts(c echo.Context) error {
	if err := h.hub.ServeWS(c.Response(), c.Request()); err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return err
	}
	return nil
}
