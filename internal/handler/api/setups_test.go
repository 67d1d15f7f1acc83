package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	"SetupScan/internal/repository"
	icache "SetupScan/internal/service/cache"
	"SetupScan/internal/service/ratelimit"
	"SetupScan/internal/services/rules"
	"SetupScan/internal/usecase"
)

type fakeEval struct {
	structureCalls int
	lastTF         domrepo.Timeframe
}

func (f *fakeEval) EvaluateSetup(_ context.Context, modelID, _ string, tf domrepo.Timeframe, _ models.Direction) (*usecase.EvaluationResult, error) {
	f.lastTF = tf
	if modelID == "missing" {
		return nil, fmt.Errorf("%w: %s", domrepo.ErrModelNotFound, modelID)
	}
	return &usecase.EvaluationResult{Summary: "ok"}, nil
}

func (f *fakeEval) Structure(_ context.Context, _ string, _ domrepo.Timeframe, _ int) (*models.Analysis, error) {
	f.structureCalls++
	return &models.Analysis{Trend: models.TrendBullish}, nil
}

type fakeModels struct {
	saved []models.Model
}

func (f *fakeModels) List(context.Context) ([]models.Model, error) {
	return []models.Model{{ID: "m1"}}, nil
}

func (f *fakeModels) Get(_ context.Context, id string) (models.Model, error) {
	if id != "m1" {
		return models.Model{}, fmt.Errorf("%w: %s", domrepo.ErrModelNotFound, id)
	}
	return models.Model{ID: "m1"}, nil
}

func (f *fakeModels) Save(_ context.Context, m models.Model) (models.ValidationReport, error) {
	if m.ID == "bad" {
		return models.ValidationReport{}, fmt.Errorf("%w: %w: bad", models.ErrInvalidModel, rules.ErrUnresolvedRule)
	}
	f.saved = append(f.saved, m)
	return models.ValidationReport{ModelID: m.ID}, nil
}

type fakeArchive struct{ got domrepo.ResultFilter }

func (f *fakeArchive) Results(_ context.Context, q domrepo.ResultFilter) ([]models.PhaseEvent, error) {
	f.got = q
	return []models.PhaseEvent{{ModelID: q.ModelID, Pair: "EURUSD"}}, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*echo.Echo, *fakeEval, *fakeModels, *repository.MemoryPhaseStore, *fakeArchive) {
	t.Helper()
	ev := &fakeEval{}
	ms := &fakeModels{}
	ps := repository.NewMemoryPhaseStore()
	ar := &fakeArchive{}
	h := NewSetupsHandler(nil, ev, ps, ms, ar, nil, icache.NewTTLCache(16), ratelimit.New(0, 0))
	e := echo.New()
	h.RegisterRoutes(e)
	return e, ev, ms, ps, ar
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestScoreUsesModelTimeframeWhenOmitted(t *testing.T) {
	e, ev, _, _, _ := setup(t)
	_, env := do(t, e, http.MethodPost, "/api/score", `{"model_id":"m1","pair":"EURUSD","direction":"bullish"}`)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, domrepo.Timeframe(""), ev.lastTF)

	_, env = do(t, e, http.MethodPost, "/api/score", `{"model_id":"m1","pair":"EURUSD","timeframe":"4h"}`)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, domrepo.TF4h, ev.lastTF)
}

func TestScoreValidationAndNotFound(t *testing.T) {
	e, _, _, _, _ := setup(t)
	_, env := do(t, e, http.MethodPost, "/api/score", `{"pair":"EURUSD"}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	_, env = do(t, e, http.MethodPost, "/api/score", `{"model_id":"m1","pair":"EURUSD","direction":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)

	_, env = do(t, e, http.MethodPost, "/api/score", `{"model_id":"missing","pair":"EURUSD"}`)
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestStructureIsCached(t *testing.T) {
	e, ev, _, _, _ := setup(t)
	rec, env := do(t, e, http.MethodGet, "/api/structure?pair=EURUSD&tf=1h&n=50", "")
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Empty(t, rec.Header().Get("X-Cache"))

	rec, env = do(t, e, http.MethodGet, "/api/structure?pair=EURUSD&tf=1h&n=50", "")
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, ev.structureCalls)

	var a models.Analysis
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, models.TrendBullish, a.Trend)
}

func TestStructureRateLimited(t *testing.T) {
	ev := &fakeEval{}
	h := NewSetupsHandler(nil, ev, repository.NewMemoryPhaseStore(), &fakeModels{}, nil, nil, nil, ratelimit.New(0.001, 1))
	e := echo.New()
	h.RegisterRoutes(e)

	_, env := do(t, e, http.MethodGet, "/api/structure?pair=EURUSD", "")
	assert.Equal(t, http.StatusOK, env.Status)
	_, env = do(t, e, http.MethodGet, "/api/structure?pair=EURUSD", "")
	assert.Equal(t, http.StatusTooManyRequests, env.Status)
	assert.Equal(t, 1, ev.structureCalls)
}

func TestPhasesFilter(t *testing.T) {
	e, _, _, ps, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, ps.Save(ctx, models.NewPhaseRecord("m1", "EURUSD", models.Bullish, time.Now())))
	require.NoError(t, ps.Save(ctx, models.NewPhaseRecord("m1", "GBPUSD", models.Bullish, time.Now())))
	require.NoError(t, ps.Save(ctx, models.NewPhaseRecord("m2", "EURUSD", models.Bearish, time.Now())))

	_, env := do(t, e, http.MethodGet, "/api/phases?model_id=m1", "")
	var list struct {
		Rows  []models.PhaseRecord `json:"rows"`
		Total int64                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)

	_, env = do(t, e, http.MethodGet, "/api/phases?model_id=m1&pair=GBPUSD", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "GBPUSD", list.Rows[0].Pair)
}

func TestModelsEndpoints(t *testing.T) {
	e, _, ms, _, _ := setup(t)
	_, env := do(t, e, http.MethodGet, "/api/models/m1", "")
	assert.Equal(t, http.StatusOK, env.Status)

	_, env = do(t, e, http.MethodGet, "/api/models/nope", "")
	assert.Equal(t, http.StatusNotFound, env.Status)

	_, env = do(t, e, http.MethodPost, "/api/models", `{"id":"new","timeframe":"1h"}`)
	assert.Equal(t, http.StatusCreated, env.Status)
	require.Len(t, ms.saved, 1)

	_, env = do(t, e, http.MethodPost, "/api/models", `{"id":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestResultsFilterAndLimit(t *testing.T) {
	e, _, _, _, ar := setup(t)
	_, env := do(t, e, http.MethodGet, "/api/results?model_id=m1&limit=5000", "")
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, "m1", ar.got.ModelID)
	assert.Equal(t, 1000, ar.got.Limit)
}

func TestMapError(t *testing.T) {
	err := mapError(errors.New("boom"))
	assert.Contains(t, err.Error(), "internal error")
}
