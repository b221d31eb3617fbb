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

	"github.com/finertia/riskcore/internal/common"
	"github.com/finertia/riskcore/internal/interfaces"
	"github.com/finertia/riskcore/internal/models"
)

const (
	tiingoDefaultBaseURL = "https://api.tiingo.com"
	tiingoProviderName   = "tiingo"
)

// TiingoClient is the primary, low-friction provider.
type TiingoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
}

// TiingoOption configures the client.
type TiingoOption func(*TiingoClient)

// WithTiingoBaseURL sets the base URL.
func WithTiingoBaseURL(baseURL string) TiingoOption {
	return func(c *TiingoClient) { c.baseURL = baseURL }
}

// WithTiingoLogger sets the logger.
func WithTiingoLogger(logger *common.Logger) TiingoOption {
	return func(c *TiingoClient) { c.logger = logger }
}

// WithTiingoTimeout sets the HTTP timeout.
func WithTiingoTimeout(timeout time.Duration) TiingoOption {
	return func(c *TiingoClient) { c.httpClient.Timeout = timeout }
}

// NewTiingoClient creates a new Tiingo client.
func NewTiingoClient(apiKey string, opts ...TiingoOption) *TiingoClient {
	c := &TiingoClient{
		baseURL:    tiingoDefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ interfaces.MarketDataClient = (*TiingoClient)(nil)

type tiingoBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// GetHistoricalPrices returns up to days of daily bars, oldest first.
func (c *TiingoClient) GetHistoricalPrices(ctx context.Context, symbol string, days int) ([]*models.PriceBar, error) {
	start := time.Now().UTC().AddDate(0, 0, -days)

	params := url.Values{}
	params.Set("startDate", start.Format("2006-01-02"))
	params.Set("token", c.apiKey)

	path := fmt.Sprintf("/tiingo/daily/%s/prices", url.PathEscape(symbol))

	var bars []tiingoBar
	if err := c.get(ctx, path, params, &bars); err != nil {
		return nil, err
	}

	result := make([]*models.PriceBar, 0, len(bars))
	for _, b := range bars {
		date, err := parseBarDate(b.Date)
		if err != nil {
			return nil, err
		}
		result = append(result, &models.PriceBar{
			Symbol:     symbol,
			Date:       date,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			DataSource: tiingoProviderName,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// ValidateAPIKey verifies the configured credentials.
func (c *TiingoClient) ValidateAPIKey(ctx context.Context) error {
	params := url.Values{}
	params.Set("token", c.apiKey)

	var resp map[string]interface{}
	return c.get(ctx, "/api/test", params, &resp)
}

// ProviderInfo describes the provider.
func (c *TiingoClient) ProviderInfo() models.ProviderInfo {
	return models.ProviderInfo{Name: tiingoProviderName, Priority: 1, QuotaKind: "none"}
}

func (c *TiingoClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("provider", tiingoProviderName).Str("path", path).Msg("Market data request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			Provider:   tiingoProviderName,
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
