// Package weather fetches current conditions and hourly forecasts from the
// Open-Meteo API. No authentication is required.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultBaseURL is the public Open-Meteo forecast endpoint.
	DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

	userAgent = "sigenflux/1.0"

	// hourlyVariables is the fixed set of forecast series requested per call.
	hourlyVariables = "temperature_2m,relative_humidity_2m,apparent_temperature," +
		"precipitation_probability,precipitation,weather_code,cloud_cover," +
		"shortwave_radiation,direct_radiation,diffuse_radiation," +
		"wind_speed_10m,wind_direction_10m"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the forecast endpoint (tests).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// Client fetches forecasts for one fixed location.
type Client struct {
	client    *http.Client
	baseURL   string
	latitude  string
	longitude string
	timezone  string
}

// New creates a Client for the given coordinates. timezone is the IANA name
// the API should report local times in.
func New(latitude, longitude, timezone string, opts ...ClientOption) (*Client, error) {
	if latitude == "" || longitude == "" {
		return nil, fmt.Errorf("missing latitude or longitude")
	}
	if timezone == "" {
		return nil, fmt.Errorf("missing timezone")
	}

	c := &Client{
		client:    &http.Client{Timeout: 15 * time.Second},
		baseURL:   DefaultBaseURL,
		latitude:  latitude,
		longitude: longitude,
		timezone:  timezone,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Forecast is the parsed Open-Meteo response. CurrentWeather and Hourly are
// kept generic so every variable the API returns flows through to the sink
// untouched; Hourly holds parallel arrays keyed by variable name, with "time"
// carrying the local timestamps.
type Forecast struct {
	Timezone       string         `json:"timezone"`
	CurrentWeather map[string]any `json:"current_weather"`
	Hourly         map[string]any `json:"hourly"`
}

// Forecast fetches current weather plus today's and tomorrow's hourly
// forecast.
func (c *Client) Forecast(ctx context.Context) (*Forecast, error) {
	params := url.Values{}
	params.Set("latitude", c.latitude)
	params.Set("longitude", c.longitude)
	params.Set("current_weather", "true")
	params.Set("hourly", hourlyVariables)
	params.Set("timezone", c.timezone)
	params.Set("forecast_days", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching forecast: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching forecast: status %d", resp.StatusCode)
	}

	var forecast Forecast
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("decoding forecast: %w", err)
	}
	return &forecast, nil
}
