package coingecko

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"CoinCast/internal/domain/models"
	"CoinCast/internal/service/ratelimit"
	xhttp "CoinCast/pkg/http"
	"CoinCast/pkg/logger"
	"CoinCast/pkg/util"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Client pulls daily market history from the CoinGecko REST API.
type Client struct {
	http       *xhttp.Client
	limiter    *ratelimit.Limiter
	baseURL    string
	apiKey     string
	ratePerMin int
	log        *logger.Logger
}

func New(baseURL, apiKey string, timeout time.Duration, ratePerMin int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if ratePerMin <= 0 {
		ratePerMin = 10
	}
	return &Client{
		http:       xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter:    ratelimit.New(),
		baseURL:    baseURL,
		apiKey:     apiKey,
		ratePerMin: ratePerMin,
	}
}

func (c *Client) SetLogger(l *logger.Logger) { c.log = l }

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// DailyHistory fetches up to `days` daily close prices for a coin.
// Intraday points are collapsed to the last observation per day.
func (c *Client) DailyHistory(ctx context.Context, providerID string, days int) ([]models.PricePoint, error) {
	if err := c.waitForToken(ctx); err != nil {
		return nil, err
	}

	opts := &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf("%s/coins/%s/market_chart", c.baseURL, providerID),
		QueryParams: map[string][]string{
			"vs_currency": {"usd"},
			"days":        {strconv.Itoa(days)},
			"interval":    {"daily"},
		},
	}
	if c.apiKey != "" {
		opts.Headers = map[string]string{"x-cg-demo-api-key": c.apiKey}
	}

	var parsed marketChartResponse
	if err := c.http.SendAndParse(ctx, opts, &parsed); err != nil {
		return nil, fmt.Errorf("coingecko market_chart %s: %w", providerID, err)
	}

	byDay := make(map[time.Time]float64, len(parsed.Prices))
	order := make([]time.Time, 0, len(parsed.Prices))
	for _, pair := range parsed.Prices {
		ts := time.UnixMilli(int64(pair[0])).UTC()
		day := util.DateOnly(ts)
		if _, seen := byDay[day]; !seen {
			order = append(order, day)
		}
		byDay[day] = pair[1]
	}

	points := make([]models.PricePoint, 0, len(order))
	for _, day := range order {
		points = append(points, models.PricePoint{
			Date:  day,
			Price: decimal.NewFromFloat(byDay[day]),
		})
	}
	if c.log != nil {
		c.log.Debug("coingecko history fetched",
			logger.String("coin", providerID),
			logger.Int("points", len(points)))
	}
	return points, nil
}

// waitForToken blocks until the rate limiter admits one request.
func (c *Client) waitForToken(ctx context.Context) error {
	capacity := float64(c.ratePerMin)
	refill := capacity / 60
	for !c.limiter.Allow("coingecko", capacity, refill) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}
