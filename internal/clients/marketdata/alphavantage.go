package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
)

const (
	alphaVantageDefaultBaseURL = "https://www.alphavantage.co"
	alphaVantageProviderName   = "alphavantage"
	alphaVantageDefaultQuota   = 25
)

// AlphaVantageClient is the last-resort provider. Its free tier has a hard
// daily request quota tracked by a shared DailyQuota counter.
type AlphaVantageClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	quota      *DailyQuota
}

// AlphaVantageOption configures the client.
type AlphaVantageOption func(*AlphaVantageClient)

// WithAlphaVantageBaseURL sets the base URL.
func WithAlphaVantageBaseURL(baseURL string) AlphaVantageOption {
	return func(c *AlphaVantageClient) { c.baseURL = baseURL }
}

// WithAlphaVantageLogger sets the logger.
func WithAlphaVantageLogger(logger *common.Logger) AlphaVantageOption {
	return func(c *AlphaVantageClient) { c.logger = logger }
}

// WithAlphaVantageDailyQuota sets the daily request budget.
func WithAlphaVantageDailyQuota(limit int) AlphaVantageOption {
	return func(c *AlphaVantageClient) { c.quota = NewDailyQuota(limit) }
}

// WithAlphaVantageTimeout sets the HTTP timeout.
func WithAlphaVantageTimeout(timeout time.Duration) AlphaVantageOption {
	return func(c *AlphaVantageClient) { c.httpClient.Timeout = timeout }
}

// NewAlphaVantageClient creates a new Alpha Vantage client.
func NewAlphaVantageClient(apiKey string, opts ...AlphaVantageOption) *AlphaVantageClient {
	c := &AlphaVantageClient{
		baseURL:    alphaVantageDefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     common.NewSilentLogger(),
		quota:      NewDailyQuota(alphaVantageDefaultQuota),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ interfaces.MarketDataClient = (*AlphaVantageClient)(nil)

type alphaVantageDaily struct {
	TimeSeries map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	} `json:"Time Series (Daily)"`
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
}

// GetHistoricalPrices returns up to days of daily bars, oldest first.
func (c *AlphaVantageClient) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]*models.PriceBar, error) {
	if err := c.quota.Acquire(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)
	if days > 100 {
		params.Set("outputsize", "full")
	}

	var resp alphaVantageDaily
	if err := c.get(ctx, "/query", params, &resp); err != nil {
		return nil, err
	}
	if resp.ErrorMessage != "" {
		return nil, &APIError{
			Provider: alphaVantageProviderName,
			Message:  resp.ErrorMessage,
			Endpoint: "/query",
		}
	}
	if resp.Note != "" {
		// Throttle notices come back with HTTP 200.
		return nil, &APIError{
			Provider: alphaVantageProviderName,
			Message:  resp.Note,
			Endpoint: "/query",
		}
	}

	cutoff := common.Day(time.Now().UTC()).AddDate(0, 0, -days)
	result := make([]*models.PriceBar, 0, len(resp.TimeSeries))
	for dateStr, bar := range resp.TimeSeries {
		date, err := parseBarDate(dateStr)
		if err != nil {
			return nil, err
		}
		if date.Before(cutoff) {
			continue
		}
		open, err := strconv.ParseFloat(bar.Open, 64)
		if err != nil {
			return nil, fmt.Errorf("parse open %q: %w", bar.Open, err)
		}
		high, err := strconv.ParseFloat(bar.High, 64)
		if err != nil {
			return nil, fmt.Errorf("parse high %q: %w", bar.High, err)
		}
		low, err := strconv.ParseFloat(bar.Low, 64)
		if err != nil {
			return nil, fmt.Errorf("parse low %q: %w", bar.Low, err)
		}
		closePrice, err := strconv.ParseFloat(bar.Close, 64)
		if err != nil {
			return nil, fmt.Errorf("parse close %q: %w", bar.Close, err)
		}
		volume, _ := strconv.ParseInt(bar.Volume, 10, 64)

		result = append(result, &models.PriceBar{
			Symbol:     symbol,
			Date:       date,
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closePrice,
			Volume:     volume,
			DataSource: alphaVantageProviderName,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// ValidateAPIKey verifies the configured credentials without spending quota
// budget beyond one request.
func (c *AlphaVantageClient) ValidateAPIKey(ctx context.Context) error {
	if err := c.quota.Acquire(); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", "SPY")
	params.Set("apikey", c.apiKey)

	var resp map[string]interface{}
	if err := c.get(ctx, "/query", params, &resp); err != nil {
		return err
	}
	if msg, ok := resp["Error Message"].(string); ok && msg != "" {
		return &APIError{Provider: alphaVantageProviderName, Message: msg, Endpoint: "/query"}
	}
	return nil
}

// ProviderInfo describes the provider.
func (c *AlphaVantageClient) ProviderInfo() models.ProviderInfo {
	return models.ProviderInfo{Name: alphaVantageProviderName, Priority: 3, QuotaKind: "per_day"}
}

func (c *AlphaVantageClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("provider", alphaVantageProviderName).Str("path", path).Msg("Market data request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			Provider:   alphaVantageProviderName,
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
