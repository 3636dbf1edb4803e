// Package sigen is the authenticated client for the Sigen station cloud API.
// Every response is wrapped in an application envelope {code, msg, data};
// code 0 is success. Authorization is attached by oauth2.Transport from the
// token manager's TokenSource.
package sigen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the EU region API host.
	DefaultBaseURL = "https://api-eu.sigencloud.com"

	userAgent = "sigenflux/1.0"
	appOrigin = "https://app-eu.sigencloud.com"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API host (e.g. for another region or tests).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTransport sets a custom base transport for API requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.base = transport
	}
}

// Client calls the station API on behalf of one station.
type Client struct {
	client    *http.Client
	baseURL   string
	stationID string
	base      http.RoundTripper
}

// New creates a Client for the given station. ts supplies the bearer
// credential for every request.
func New(ts oauth2.TokenSource, stationID string, opts ...ClientOption) (*Client, error) {
	if ts == nil {
		return nil, fmt.Errorf("missing token source")
	}
	if stationID == "" {
		return nil, fmt.Errorf("missing station id")
	}

	c := &Client{
		baseURL:   DefaultBaseURL,
		stationID: stationID,
		base:      http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = &http.Client{
		Timeout: 20 * time.Second,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   &headerTransport{base: c.base},
		},
	}
	return c, nil
}

// headerTransport injects the standard station API headers on every request.
type headerTransport struct {
	base http.RoundTripper
}

// Compile-time check that headerTransport implements http.RoundTripper.
var _ http.RoundTripper = (*headerTransport)(nil)

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("lang", "en_US")
	clone.Header.Set("auth-client-id", "sigen")
	clone.Header.Set("origin", appOrigin)
	clone.Header.Set("referer", appOrigin+"/")
	clone.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(clone)
}

// EnergyFlow fetches the real-time energy flow snapshot. The field set varies
// by firmware, so values are returned as-is keyed by API field name.
func (c *Client) EnergyFlow(ctx context.Context) (map[string]any, error) {
	params := url.Values{}
	params.Set("id", c.stationID)
	params.Set("refreshFlag", "true")

	var data map[string]any
	if err := c.get(ctx, "/device/sigen/station/energyflow", params, &data); err != nil {
		return nil, fmt.Errorf("energy flow: %w", err)
	}
	return data, nil
}

// DailyEnergySummary fetches the per-day energy totals (PV generation, grid
// import/export, battery charge/discharge) for the given date.
func (c *Client) DailyEnergySummary(ctx context.Context, date time.Time) (map[string]any, error) {
	day := date.Format("20060102")
	params := url.Values{}
	params.Set("dateFlag", "1")
	params.Set("startDate", day)
	params.Set("endDate", day)
	params.Set("stationId", c.stationID)
	params.Set("fulfill", "false")

	var data map[string]any
	if err := c.get(ctx, "/data-process/sigen/station/statistics/energy", params, &data); err != nil {
		return nil, fmt.Errorf("daily energy summary: %w", err)
	}
	return data, nil
}

// ConsumptionDetail is one hourly consumption sample.
type ConsumptionDetail struct {
	// DataTime is "YYYYMMDD HH:MM" in station-local time.
	DataTime            string   `json:"dataTime"`
	BaseLoadConsumption *float64 `json:"baseLoadConsumption"`
}

// ConsumptionStats is the daily consumption statistics payload.
type ConsumptionStats struct {
	BaseLoadConsumption *float64            `json:"baseLoadConsumption"`
	ConsumptionDetail   []ConsumptionDetail `json:"consumptionDetailList"`
}

// DailyConsumption fetches daily and hourly base-load consumption for the
// given date.
func (c *Client) DailyConsumption(ctx context.Context, date time.Time) (*ConsumptionStats, error) {
	day := date.Format("20060102")
	params := url.Values{}
	params.Set("dateFlag", "1")
	params.Set("startDate", day)
	params.Set("endDate", day)
	params.Set("stationId", c.stationID)

	var data ConsumptionStats
	if err := c.get(ctx, "/data-process/sigen/station/statistics/station-consumption", params, &data); err != nil {
		return nil, fmt.Errorf("daily consumption: %w", err)
	}
	return &data, nil
}

// SunTimes holds station-local sunrise and sunset clock times.
type SunTimes struct {
	SunriseTime string `json:"sunriseTime"`
	SunsetTime  string `json:"sunsetTime"`
}

// SunriseSunset fetches sunrise/sunset times for the given date.
func (c *Client) SunriseSunset(ctx context.Context, date time.Time) (*SunTimes, error) {
	params := url.Values{}
	params.Set("stationId", c.stationID)
	params.Set("date", date.Format("20060102"))

	var data SunTimes
	if err := c.get(ctx, "/device/sigen/device/weather/sun", params, &data); err != nil {
		return nil, fmt.Errorf("sunrise/sunset: %w", err)
	}
	return &data, nil
}

// StationInfo holds station metadata.
type StationInfo struct {
	StationName string  `json:"stationName"`
	PVCapacity  float64 `json:"pvCapacity"`
	TimeZone    string  `json:"timeZone"`
}

// StationInfo fetches station metadata and configuration details.
func (c *Client) StationInfo(ctx context.Context) (*StationInfo, error) {
	var data StationInfo
	if err := c.get(ctx, "/device/owner/station/home", nil, &data); err != nil {
		return nil, fmt.Errorf("station info: %w", err)
	}
	return &data, nil
}

// Operational modes accepted by SetOperationalMode.
const (
	ModeSelfConsumption   = 0
	ModeTimeBasedSchedule = 2
)

// OperationalMode queries the station's current operational mode.
func (c *Client) OperationalMode(ctx context.Context) (int, error) {
	params := url.Values{}
	params.Set("stationId", c.stationID)

	var mode json.Number
	if err := c.get(ctx, "/device/sigen/station/operational/mode", params, &mode); err != nil {
		return 0, fmt.Errorf("operational mode: %w", err)
	}
	n, err := mode.Int64()
	if err != nil {
		return 0, fmt.Errorf("operational mode: unexpected value %q", mode.String())
	}
	return int(n), nil
}

// SetOperationalMode switches the station's operational mode.
func (c *Client) SetOperationalMode(ctx context.Context, mode int) error {
	body := map[string]any{
		"stationId":     c.stationID,
		"operationMode": mode,
	}
	if err := c.put(ctx, "/device/setting/operational/mode/", body, nil); err != nil {
		return fmt.Errorf("set operational mode: %w", err)
	}
	return nil
}

// envelope is the application-level wrapper on every station API response.
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, dest any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Client) put(ctx context.Context, endpoint string, payload any, dest any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if env.Code == nil || *env.Code != 0 {
		if env.Msg == "" {
			return fmt.Errorf("api error (no message)")
		}
		return fmt.Errorf("api error: %s", env.Msg)
	}

	if dest != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}
	return nil
}
