package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
)

const (
	polygonDefaultBaseURL = "https://api.polygon.io"
	polygonProviderName   = "polygon"
	polygonDefaultPerMin  = 5
)

// PolygonClient is the secondary provider. Its free tier enforces a strict
// per-minute quota, so every request waits on a shared token bucket.
type PolygonClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// PolygonOption configures the client.
type PolygonOption func(*PolygonClient)

// WithPolygonBaseURL sets the base URL.
func WithPolygonBaseURL(baseURL string) PolygonOption {
	return func(c *PolygonClient) { c.baseURL = baseURL }
}

// WithPolygonLogger sets the logger.
func WithPolygonLogger(logger *common.Logger) PolygonOption {
	return func(c *PolygonClient) { c.logger = logger }
}

// WithPolygonRateLimit sets the per-minute request quota.
func WithPolygonRateLimit(requestsPerMinute int) PolygonOption {
	return func(c *PolygonClient) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
}

// WithPolygonTimeout sets the HTTP timeout.
func WithPolygonTimeout(timeout time.Duration) PolygonOption {
	return func(c *PolygonClient) { c.httpClient.Timeout = timeout }
}

// NewPolygonClient creates a new Polygon client.
func NewPolygonClient(apiKey string, opts ...PolygonOption) *PolygonClient {
	c := &PolygonClient{
		baseURL:    polygonDefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     common.NewSilentLogger(),
		limiter:    rate.NewLimiter(rate.Limit(float64(polygonDefaultPerMin)/60.0), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ interfaces.MarketDataClient = (*PolygonClient)(nil)

type polygonAgg struct {
	Timestamp int64   `json:"t"` // epoch millis
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type polygonAggsResponse struct {
	Status  string       `json:"status"`
	Results []polygonAgg `json:"results"`
}

// GetHistoricalPrices returns up to days of daily bars, oldest first.
func (c *PolygonClient) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]*models.PriceBar, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(symbol), from.Format("2006-01-02"), to.Format("2006-01-02"))

	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	params.Set("limit", "50000")

	var resp polygonAggsResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	result := make([]*models.PriceBar, 0, len(resp.Results))
	for _, agg := range resp.Results {
		date := time.UnixMilli(agg.Timestamp).UTC()
		result = append(result, &models.PriceBar{
			Symbol:     symbol,
			Date:       time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
			Open:       agg.Open,
			High:       agg.High,
			Low:        agg.Low,
			Close:      agg.Close,
			Volume:     int64(agg.Volume),
			DataSource: polygonProviderName,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// ValidateAPIKey verifies the configured credentials.
func (c *PolygonClient) ValidateAPIKey(ctx context.Context) error {
	var resp map[string]interface{}
	return c.get(ctx, "/v3/reference/tickers", url.Values{"limit": {"1"}}, &resp)
}

// ProviderInfo describes the provider.
func (c *PolygonClient) ProviderInfo() models.ProviderInfo {
	return models.ProviderInfo{Name: polygonProviderName, Priority: 2, QuotaKind: "per_minute"}
}

func (c *PolygonClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("provider", polygonProviderName).Str("path", path).Msg("Market data request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			Provider:   polygonProviderName,
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
