package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmaguire/sigenflux/internal/influx"
	"github.com/dmaguire/sigenflux/internal/sigen"
	"github.com/dmaguire/sigenflux/internal/tokenmanager"
	"github.com/dmaguire/sigenflux/internal/weather"
)

// App wires the token manager, API clients, and the InfluxDB writer for one
// scheduled invocation.
type App struct {
	cfg      *Config
	loc      *time.Location
	manager  *tokenmanager.Manager
	stations *sigen.Client
	weather  *weather.Client
	writer   *influx.Writer
}

// New creates a new App instance from validated configuration.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", cfg.Timezone, err)
	}

	manager, err := NewTokenManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}

	stationClient, err := NewStationClient(cfg, manager)
	if err != nil {
		return nil, fmt.Errorf("failed to create station client: %w", err)
	}

	var weatherClient *weather.Client
	if cfg.Weather.Enabled() {
		weatherClient, err = weather.New(cfg.Weather.Latitude, cfg.Weather.Longitude, cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to create weather client: %w", err)
		}
	}

	writer, err := influx.NewWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket,
		cfg.Sigen.StationID, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create influx writer: %w", err)
	}

	return &App{
		cfg:      cfg,
		loc:      loc,
		manager:  manager,
		stations: stationClient,
		weather:  weatherClient,
		writer:   writer,
	}, nil
}

// NewTokenManager creates the credential lifecycle manager from application
// configuration. No I/O is performed until the first token request.
func NewTokenManager(cfg *Config) (*tokenmanager.Manager, error) {
	store, err := cfg.Auth.NewCredentialStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	endpoint := tokenmanager.NewEndpoint(cfg.Sigen.TokenURL, cfg.Sigen.ClientAuth)
	return tokenmanager.New(store, endpoint, cfg.Sigen.Username, cfg.Sigen.Password)
}

// NewStationClient creates an authenticated station API client backed by the
// manager's token source. The manager handles token renewal internally; API
// calls within one invocation share the process context.
func NewStationClient(cfg *Config, manager *tokenmanager.Manager) (*sigen.Client, error) {
	return sigen.New(manager.TokenSource(context.Background()), cfg.Sigen.StationID,
		sigen.WithBaseURL(cfg.Sigen.BaseURL))
}

// Location returns the station-local timezone.
func (a *App) Location() *time.Location {
	return a.loc
}

// Close releases held resources.
func (a *App) Close() {
	a.writer.Close()
}

// RunCycle executes one collection cycle per the given plan. The station and
// weather pipelines run concurrently; a token failure skips the station work
// but never the weather work. Individual fetch/write failures are collected
// and returned joined so the invocation can exit non-zero, but every planned
// task is still attempted.
func (a *App) RunCycle(ctx context.Context, plan CyclePlan) error {
	cycleID := uuid.NewString()
	logger := slog.Default().With("cycle_id", cycleID)
	logger.InfoContext(ctx, "collection cycle started")

	var stationErr, weatherErr error
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stationErr = a.runStationTasks(gCtx, logger, plan)
		return nil
	})

	if plan.Weather && a.weather != nil {
		g.Go(func() error {
			weatherErr = a.runWeatherTask(gCtx, logger)
			return nil
		})
	} else if plan.Weather {
		logger.InfoContext(ctx, "weather not configured, skipping weather fetch")
	}

	_ = g.Wait()

	logger.InfoContext(ctx, "collection cycle finished")
	return errors.Join(stationErr, weatherErr)
}

// runStationTasks performs the token-dependent fetches.
func (a *App) runStationTasks(ctx context.Context, logger *slog.Logger, plan CyclePlan) error {
	// One token request up front; a failure here skips all station work for
	// this cycle and the next invocation retries.
	if _, err := a.manager.ActiveAccessToken(ctx); err != nil {
		logger.ErrorContext(ctx, "failed to obtain access token, skipping station fetches", "error", err)
		return fmt.Errorf("obtaining access token: %w", err)
	}

	today := time.Now().In(a.loc)
	var errs []error

	if plan.EnergyFlow {
		if err := a.collectEnergyFlow(ctx); err != nil {
			logger.ErrorContext(ctx, "energy flow collection failed", "error", err)
			errs = append(errs, err)
		}
	}

	if plan.DailyStats {
		if err := a.collectDailyStats(ctx, today); err != nil {
			logger.ErrorContext(ctx, "daily stats collection failed", "error", err)
			errs = append(errs, err)
		}
		if plan.YesterdayStats {
			yesterday := today.AddDate(0, 0, -1)
			if err := a.collectDailyStats(ctx, yesterday); err != nil {
				logger.ErrorContext(ctx, "yesterday stats collection failed", "error", err)
				errs = append(errs, err)
			}
		}
	}

	if plan.SunTimes {
		if err := a.collectSunTimes(ctx, today); err != nil {
			logger.ErrorContext(ctx, "sunrise/sunset collection failed", "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *App) collectEnergyFlow(ctx context.Context) error {
	flow, err := a.stations.EnergyFlow(ctx)
	if err != nil {
		return err
	}
	return a.writer.WriteEnergyFlow(ctx, flow)
}

func (a *App) collectDailyStats(ctx context.Context, day time.Time) error {
	var errs []error

	stats, err := a.stations.DailyConsumption(ctx, day)
	if err != nil {
		errs = append(errs, err)
	} else if err := a.writer.WriteDailyConsumption(ctx, stats, day); err != nil {
		errs = append(errs, err)
	}

	summary, err := a.stations.DailyEnergySummary(ctx, day)
	if err != nil {
		errs = append(errs, err)
	} else if err := a.writer.WriteDailyEnergySummary(ctx, summary, day); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a *App) collectSunTimes(ctx context.Context, day time.Time) error {
	sun, err := a.stations.SunriseSunset(ctx, day)
	if err != nil {
		return err
	}
	return a.writer.WriteSunTimes(ctx, sun, day)
}

func (a *App) runWeatherTask(ctx context.Context, logger *slog.Logger) error {
	forecast, err := a.weather.Forecast(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "weather fetch failed", "error", err)
		return err
	}
	if err := a.writer.WriteWeather(ctx, forecast); err != nil {
		logger.ErrorContext(ctx, "weather write failed", "error", err)
		return err
	}
	return nil
}
