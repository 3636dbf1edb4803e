package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCloud fakes the token endpoint and the station API in one server,
// tracking hits per path.
type fakeCloud struct {
	mu     sync.Mutex
	hits   map[string]int
	server *httptest.Server
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{hits: map[string]int{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.mu.Unlock()

		reply := func(data any) {
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "success", "data": data})
		}
		switch r.URL.Path {
		case "/auth/oauth/token":
			reply(map[string]any{"access_token": "abc123", "refresh_token": "ref", "expires_in": 3600})
		case "/device/sigen/station/energyflow":
			reply(map[string]any{"pvPower": 3.2, "batterySoc": 87.5})
		case "/data-process/sigen/station/statistics/energy":
			reply(map[string]any{"pvGeneration": 12.4})
		case "/data-process/sigen/station/statistics/station-consumption":
			reply(map[string]any{
				"baseLoadConsumption": 4.8,
				"consumptionDetailList": []map[string]any{
					{"dataTime": "20260314 00:00", "baseLoadConsumption": 0.2},
				},
			})
		case "/device/sigen/device/weather/sun":
			reply(map[string]any{"sunriseTime": "06:41", "sunsetTime": "18:23"})
		default:
			t.Errorf("unexpected station API path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCloud) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// fakeInflux counts line protocol writes per measurement.
func fakeInflux(t *testing.T) (*httptest.Server, func(measurement string) int) {
	t.Helper()
	var mu sync.Mutex
	counts := map[string]int{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line == "" {
				continue
			}
			measurement := strings.SplitN(line, ",", 2)[0]
			counts[measurement]++
		}
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	return server, func(measurement string) int {
		mu.Lock()
		defer mu.Unlock()
		return counts[measurement]
	}
}

func testConfig(t *testing.T, cloud *fakeCloud, influxURL string) *Config {
	t.Helper()
	cfg := &Config{
		Timezone: "UTC",
		Sigen: SigenConfig{
			BaseURL:    cloud.server.URL,
			TokenURL:   cloud.server.URL + "/auth/oauth/token",
			Username:   "user@example.com",
			Password:   "opaque-secret",
			ClientAuth: "c2lnZW46c2lnZW4=",
			StationID:  "12345",
		},
		Auth: AuthConfig{
			Storage: CredentialStorageTypeFile,
			File:    filepath.Join(t.TempDir(), "credentials.json"),
		},
		Influx: InfluxConfig{
			URL:    influxURL,
			Token:  "test-token",
			Org:    "test-org",
			Bucket: "test-bucket",
		},
	}
	require.NoError(t, cfg.ApplyDefaults())
	return cfg
}

func TestRunCycleFullPlan(t *testing.T) {
	cloud := newFakeCloud(t)
	influxServer, writes := fakeInflux(t)

	application, err := New(testConfig(t, cloud, influxServer.URL))
	require.NoError(t, err)
	defer application.Close()

	require.NoError(t, application.RunCycle(context.Background(), FullPlan()))

	assert.Equal(t, 1, cloud.hitCount("/auth/oauth/token"))
	assert.Equal(t, 1, cloud.hitCount("/device/sigen/station/energyflow"))
	// Today plus yesterday.
	assert.Equal(t, 2, cloud.hitCount("/data-process/sigen/station/statistics/energy"))
	assert.Equal(t, 2, cloud.hitCount("/data-process/sigen/station/statistics/station-consumption"))
	assert.Equal(t, 1, cloud.hitCount("/device/sigen/device/weather/sun"))

	assert.Equal(t, 1, writes("energy_metrics"))
	assert.Equal(t, 2, writes("daily_energy_summary"))
	assert.Equal(t, 2, writes("daily_consumption_summary"))
	assert.Equal(t, 2, writes("hourly_consumption"))
	assert.Equal(t, 2, writes("solar_events"))
}

func TestRunCycleReusesStoredCredential(t *testing.T) {
	cloud := newFakeCloud(t)
	influxServer, _ := fakeInflux(t)

	application, err := New(testConfig(t, cloud, influxServer.URL))
	require.NoError(t, err)
	defer application.Close()

	plan := CyclePlan{EnergyFlow: true}
	require.NoError(t, application.RunCycle(context.Background(), plan))
	require.NoError(t, application.RunCycle(context.Background(), plan))

	assert.Equal(t, 1, cloud.hitCount("/auth/oauth/token"),
		"second cycle must reuse the persisted credential")
	assert.Equal(t, 2, cloud.hitCount("/device/sigen/station/energyflow"))
}

func TestRunCycleTokenFailureSkipsStationWork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/oauth/token" {
			t.Errorf("station API must not be called without a token, got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 428, "msg": "bad credentials"})
	}))
	t.Cleanup(server.Close)

	influxServer, writes := fakeInflux(t)

	cfg := &Config{
		Timezone: "UTC",
		Sigen: SigenConfig{
			BaseURL:    server.URL,
			TokenURL:   server.URL + "/auth/oauth/token",
			Username:   "user@example.com",
			Password:   "wrong",
			ClientAuth: "c2lnZW46c2lnZW4=",
			StationID:  "12345",
		},
		Auth: AuthConfig{
			Storage: CredentialStorageTypeFile,
			File:    filepath.Join(t.TempDir(), "credentials.json"),
		},
		Influx: InfluxConfig{
			URL:    influxServer.URL,
			Token:  "test-token",
			Org:    "test-org",
			Bucket: "test-bucket",
		},
	}
	require.NoError(t, cfg.ApplyDefaults())

	application, err := New(cfg)
	require.NoError(t, err)
	defer application.Close()

	err = application.RunCycle(context.Background(), FullPlan())
	require.Error(t, err)
	assert.Zero(t, writes("energy_metrics"))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	cloud := newFakeCloud(t)
	influxServer, _ := fakeInflux(t)

	cfg := testConfig(t, cloud, influxServer.URL)
	cfg.Timezone = "Mars/Olympus_Mons"
	_, err := New(cfg)
	require.Error(t, err)
}
