package finnhub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pkghttp "SetupScan/pkg/http"
	applogger "SetupScan/pkg/logger"
)

const calendarTimeLayout = "2006-01-02 15:04:05"

// currencyCountry maps a currency code to the calendar's country code.
var currencyCountry = map[string]string{
	"USD": "US", "EUR": "EU", "GBP": "GB", "JPY": "JP", "AUD": "AU",
	"CAD": "CA", "CHF": "CH", "NZD": "NZ", "CNY": "CN", "XAU": "US", "BTC": "US", "ETH": "US",
}

type calendarEvent struct {
	Country string `json:"country"`
	Event   string `json:"event"`
	Impact  string `json:"impact"`
	Time    string `json:"time"`
}

type calendarResponse struct {
	EconomicCalendar []calendarEvent `json:"economicCalendar"`
}

type highImpact struct {
	country string
	at      time.Time
}

// Calendar implements NewsCalendar over the Finnhub economic calendar.
// The upcoming window is fetched at most once per refresh interval.
type Calendar struct {
	http    *pkghttp.Client
	baseURL string
	token   string
	horizon time.Duration
	refresh time.Duration
	l       *applogger.Logger

	mu      sync.Mutex
	fetched time.Time
	events  []highImpact
}

// NewCalendar creates a calendar client. horizon bounds how far ahead events are fetched.
func NewCalendar(client *pkghttp.Client, baseURL, token string, horizon, refresh time.Duration, l *applogger.Logger) *Calendar {
	if horizon <= 0 {
		horizon = 48 * time.Hour
	}
	if refresh <= 0 {
		refresh = 15 * time.Minute
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Calendar{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		horizon: horizon,
		refresh: refresh,
		l:       l,
	}
}

// NextHighImpact returns the earliest high-impact event at or after now for either currency of pair.
func (c *Calendar) NextHighImpact(ctx context.Context, pair string, now time.Time) (time.Time, bool, error) {
	events, err := c.load(ctx, now)
	if err != nil {
		return time.Time{}, false, err
	}
	countries := PairCountries(pair)
	var best time.Time
	for _, e := range events {
		if e.at.Before(now) {
			continue
		}
		if _, ok := countries[e.country]; !ok {
			continue
		}
		if best.IsZero() || e.at.Before(best) {
			best = e.at
		}
	}
	return best, !best.IsZero(), nil
}

func (c *Calendar) load(ctx context.Context, now time.Time) ([]highImpact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetched.IsZero() && !now.Before(c.fetched) && now.Sub(c.fetched) < c.refresh {
		return c.events, nil
	}

	var resp calendarResponse
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    c.baseURL + "/calendar/economic",
		QueryParams: map[string][]string{
			"from":  {now.UTC().Format("2006-01-02")},
			"to":    {now.Add(c.horizon).UTC().Format("2006-01-02")},
			"token": {c.token},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("finnhub calendar: %w", err)
	}

	events := make([]highImpact, 0, len(resp.EconomicCalendar))
	for _, e := range resp.EconomicCalendar {
		if !strings.EqualFold(e.Impact, "high") {
			continue
		}
		at, err := time.ParseInLocation(calendarTimeLayout, e.Time, time.UTC)
		if err != nil {
			c.l.Debug("skip calendar event", applogger.String("event", e.Event), applogger.Error(err))
			continue
		}
		events = append(events, highImpact{country: strings.ToUpper(e.Country), at: at})
	}
	c.events, c.fetched = events, now
	c.l.Debug("calendar refreshed", applogger.Int("high_impact", len(events)))
	return events, nil
}

// PairCountries returns the calendar countries relevant to a pair such as "EURUSD" or "EUR/USD".
func PairCountries(pair string) map[string]struct{} {
	p := strings.ToUpper(strings.NewReplacer("/", "", "-", "", "_", "").Replace(pair))
	out := make(map[string]struct{}, 2)
	if len(p) < 6 {
		return out
	}
	for _, ccy := range []string{p[:3], p[len(p)-3:]} {
		if country, ok := currencyCountry[ccy]; ok {
			out[country] = struct{}{}
		}
	}
	return out
}
