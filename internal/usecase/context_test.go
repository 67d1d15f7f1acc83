package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	"SetupScan/internal/services/structure"
)

type failingNews struct{}

func (failingNews) NextHighImpact(context.Context, string, time.Time) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("calendar down")
}

func emptySnapshot() *Snapshot {
	det := structure.NewDetector(structure.DefaultConfig())
	return &Snapshot{
		detector: det,
		series:   map[SeriesKey][]models.Candle{},
		cells:    map[SeriesKey]*analysisCell{},
		empty:    det.Analyze(nil),
	}
}

func TestContextProviderWithoutData(t *testing.T) {
	now := time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC)
	mc := NewContextProvider(nil, nil).Build(context.Background(), emptySnapshot(), "EURUSD", domrepo.TF15m, now)

	assert.Equal(t, models.SessionOverlap, mc.Session)
	assert.Equal(t, models.VolBandNormal, mc.VolBand)
	assert.Equal(t, models.TrendNeutral, mc.MediumBias)
	assert.Equal(t, models.TrendNeutral, mc.HigherBias)
	assert.Nil(t, mc.MinutesToNews)
}

func TestContextProviderNews(t *testing.T) {
	now := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	p := NewContextProvider(fixedNews{at: now.Add(45 * time.Minute)}, nil)
	mc := p.Build(context.Background(), emptySnapshot(), "EURUSD", domrepo.TF15m, now)
	require.NotNil(t, mc.MinutesToNews)
	assert.InDelta(t, 45.0, *mc.MinutesToNews, 1e-9)
	assert.Equal(t, models.SessionAsia, mc.Session)

	mc = NewContextProvider(failingNews{}, nil).Build(context.Background(), emptySnapshot(), "EURUSD", domrepo.TF15m, now)
	assert.Nil(t, mc.MinutesToNews)
}
