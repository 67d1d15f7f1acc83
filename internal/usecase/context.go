package usecase

import (
	"context"
	"time"

	"SetupScan/internal/domain/models"
	domrepo "SetupScan/internal/domain/repository"
	applogger "SetupScan/pkg/logger"
)

const (
	mediumBiasTF = domrepo.TF4h
	higherBiasTF = domrepo.TF1d
)

// ContextProvider derives the live scoring context for one pair.
type ContextProvider struct {
	news domrepo.NewsCalendar
	l    *applogger.Logger
}

// NewContextProvider builds a provider; news may be nil, in which case no news is known.
func NewContextProvider(news domrepo.NewsCalendar, l *applogger.Logger) *ContextProvider {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ContextProvider{news: news, l: l}
}

// Build reads regime and bias from snap and asks the calendar for the next event.
func (p *ContextProvider) Build(ctx context.Context, snap *Snapshot, pair string, tf domrepo.Timeframe, now time.Time) models.MarketContext {
	base := snap.Analysis(pair, tf)
	mc := models.MarketContext{
		Session:    models.SessionAt(now),
		ATRRatio:   base.Regime.ATRRatio,
		VolBand:    base.Regime.Band,
		MediumBias: snap.Analysis(pair, mediumBiasTF).Trend,
		HigherBias: snap.Analysis(pair, higherBiasTF).Trend,
	}
	if mc.VolBand == "" {
		mc.VolBand = models.VolBandNormal
	}
	if p.news == nil {
		return mc
	}
	at, ok, err := p.news.NextHighImpact(ctx, pair, now)
	if err != nil {
		p.l.Debug("news calendar unavailable", applogger.String("pair", pair), applogger.Error(err))
		return mc
	}
	if ok {
		mins := at.Sub(now).Minutes()
		mc.MinutesToNews = &mins
	}
	return mc
}

// activity measures the last bar's move and ATR as percentages of price.
func activity(a *models.Analysis) (float64, float64, float64) {
	last, ok := a.Last()
	if !ok || len(a.Candles) < 2 {
		return 0, 0, 0
	}
	prev := a.Candles[len(a.Candles)-2].Close
	var chg, atrPct float64
	if prev > 0 {
		chg = (last.Close - prev) / prev * 100
	}
	if last.Close > 0 {
		atrPct = a.Regime.ATR / last.Close * 100
	}
	return last.Close, chg, atrPct
}
