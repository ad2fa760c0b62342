package flightsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/globegenius/backend/internal/application/pricing"
	"github.com/globegenius/backend/internal/domain/shared"
	"github.com/globegenius/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
)

const (
	// maxResponseSize limits the response body size to prevent memory exhaustion
	maxResponseSize = 10 * 1024 * 1024 // 10MB max response

	searchEndpoint = "/advanced-future-flight-search"

	dateLayout = "2006-01-02"
)

// FlightLabsClient implements pricing.SearchProvider against the FlightLabs
// flight-search API
type FlightLabsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFlightLabsClient creates a FlightLabs client
func NewFlightLabsClient(cfg config.ProviderConfig) *FlightLabsClient {
	return &FlightLabsClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Endpoint returns the path used for quota accounting
func (c *FlightLabsClient) Endpoint() string {
	return searchEndpoint
}

// fareResponse mirrors the FlightLabs search payload
type fareResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Price struct {
			Amount   float64 `json:"amount"`
			Currency string  `json:"currency"`
		} `json:"price"`
		Airline      string `json:"airline"`
		FlightNumber string `json:"flight_number"`
		BookingClass string `json:"booking_class"`
		Stops        int    `json:"stops"`
		DeepLink     string `json:"deep_link"`
	} `json:"data"`
	Message string `json:"message"`
}

// Search queries round-trip fares for one route and date pair. An HTTP 429
// surfaces as shared.ErrProviderRateLimited so the caller can abort the rest
// of the route scan.
func (c *FlightLabsClient) Search(ctx context.Context, q pricing.FlightQuery) ([]pricing.Fare, error) {
	params := url.Values{}
	params.Set("access_key", c.apiKey)
	params.Set("origin", q.Origin)
	params.Set("destination", q.Destination)
	params.Set("departure_date", q.Departure.Format(dateLayout))
	params.Set("return_date", q.Return.Format(dateLayout))

	reqURL := c.baseURL + searchEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flight search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, shared.ErrProviderRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flight search returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed fareResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("flight search rejected the query: %s", parsed.Message)
	}

	fares := make([]pricing.Fare, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		raw, _ := json.Marshal(d)
		fares = append(fares, pricing.Fare{
			Price:        decimal.NewFromFloat(d.Price.Amount),
			Currency:     d.Price.Currency,
			Airline:      d.Airline,
			FlightNumber: d.FlightNumber,
			BookingClass: d.BookingClass,
			StopCount:    d.Stops,
			DeepLink:     d.DeepLink,
			Raw:          raw,
		})
	}
	return fares, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ pricing.SearchProvider = (*FlightLabsClient)(nil)
