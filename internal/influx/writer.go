// Package influx maps fetched station and weather payloads onto time-series
// points and writes them to InfluxDB v2.
package influx

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dmaguire/sigenflux/internal/sigen"
	"github.com/dmaguire/sigenflux/internal/weather"
)

// hourly consumption samples arrive as "YYYYMMDD HH:MM" in station-local time
const consumptionTimeLayout = "20060102 15:04"

// Writer owns one InfluxDB connection and the measurement mapping.
// All point timestamps are stored in UTC; loc is the station-local timezone
// used to interpret the API's naive local timestamps.
type Writer struct {
	client    influxdb2.Client
	write     api.WriteAPIBlocking
	stationID string
	loc       *time.Location
	now       func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithNow sets the clock used for snapshot timestamps (tests).
func WithNow(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a Writer for the given InfluxDB v2 instance and bucket.
func NewWriter(url, token, org, bucket, stationID string, loc *time.Location, opts ...WriterOption) (*Writer, error) {
	if url == "" || token == "" || org == "" || bucket == "" {
		return nil, fmt.Errorf("missing influxdb connection settings")
	}
	if stationID == "" {
		return nil, fmt.Errorf("missing station id")
	}
	if loc == nil {
		loc = time.UTC
	}

	client := influxdb2.NewClient(url, token)
	w := &Writer{
		client:    client,
		write:     client.WriteAPIBlocking(org, bucket),
		stationID: stationID,
		loc:       loc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Close releases the underlying InfluxDB client.
func (w *Writer) Close() {
	w.client.Close()
}

// WriteEnergyFlow writes the real-time energy flow snapshot as one
// energy_metrics point stamped now. Non-numeric fields are skipped.
func (w *Writer) WriteEnergyFlow(ctx context.Context, flow map[string]any) error {
	fields := make(map[string]any, len(flow))
	for key, value := range flow {
		f, ok := numeric(value)
		if !ok {
			slog.DebugContext(ctx, "skipping non-numeric energy flow field", "field", key)
			continue
		}
		fields[key] = f
	}
	if len(fields) == 0 {
		return fmt.Errorf("no numeric fields in energy flow payload")
	}

	point := write.NewPoint("energy_metrics",
		map[string]string{"station_id": w.stationID},
		fields,
		w.now().UTC(),
	)
	return w.write.WritePoint(ctx, point)
}

// WriteDailyEnergySummary writes the per-day energy totals as one
// daily_energy_summary point stamped at local midnight of the target day.
func (w *Writer) WriteDailyEnergySummary(ctx context.Context, summary map[string]any, day time.Time) error {
	fields := make(map[string]any, len(summary))
	for key, value := range summary {
		if f, ok := numeric(value); ok {
			fields[key] = f
		}
	}
	if len(fields) == 0 {
		return fmt.Errorf("no numeric fields in energy summary payload")
	}

	point := write.NewPoint("daily_energy_summary",
		map[string]string{"station_id": w.stationID, "source": "sigen_api_stats"},
		fields,
		localMidnight(day, w.loc),
	)
	return w.write.WritePoint(ctx, point)
}

// WriteDailyConsumption writes the daily base-load total (stamped at local
// midnight) plus one hourly_consumption point per hourly sample, deduplicated
// by sample time.
func (w *Writer) WriteDailyConsumption(ctx context.Context, stats *sigen.ConsumptionStats, day time.Time) error {
	var points []*write.Point

	if stats.BaseLoadConsumption != nil {
		points = append(points, write.NewPoint("daily_consumption_summary",
			map[string]string{"station_id": w.stationID, "source": "sigen_api_stats"},
			map[string]any{"total_base_load_kwh": *stats.BaseLoadConsumption},
			localMidnight(day, w.loc),
		))
	}

	seen := make(map[string]bool, len(stats.ConsumptionDetail))
	for _, item := range stats.ConsumptionDetail {
		if item.DataTime == "" || item.BaseLoadConsumption == nil || seen[item.DataTime] {
			continue
		}
		seen[item.DataTime] = true

		ts, err := time.ParseInLocation(consumptionTimeLayout, item.DataTime, w.loc)
		if err != nil {
			slog.WarnContext(ctx, "skipping hourly consumption sample with bad timestamp",
				"data_time", item.DataTime, "error", err)
			continue
		}
		points = append(points, write.NewPoint("hourly_consumption",
			map[string]string{"station_id": w.stationID, "source": "sigen_api_stats"},
			map[string]any{"base_load_kwh": *item.BaseLoadConsumption},
			ts.UTC(),
		))
	}

	if len(points) == 0 {
		return fmt.Errorf("no valid consumption points")
	}
	return w.write.WritePoint(ctx, points...)
}

// WriteSunTimes writes sunrise and sunset as solar_events points stamped at
// the event time.
func (w *Writer) WriteSunTimes(ctx context.Context, sun *sigen.SunTimes, day time.Time) error {
	if sun.SunriseTime == "" || sun.SunsetTime == "" {
		return fmt.Errorf("incomplete sunrise/sunset payload")
	}

	dateLocal := day.Format("2006-01-02")
	events := []struct {
		kind    string
		timeStr string
	}{
		{"sunrise", sun.SunriseTime},
		{"sunset", sun.SunsetTime},
	}

	var points []*write.Point
	for _, ev := range events {
		ts, err := parseClockTime(day, ev.timeStr, w.loc)
		if err != nil {
			return fmt.Errorf("parsing %s time %q: %w", ev.kind, ev.timeStr, err)
		}
		points = append(points, write.NewPoint("solar_events",
			map[string]string{
				"station_id": w.stationID,
				"event_type": ev.kind,
				"date_local": dateLocal,
			},
			map[string]any{"time_str_local": ev.timeStr},
			ts.UTC(),
		))
	}
	return w.write.WritePoint(ctx, points...)
}

// WriteWeather writes the current conditions as one weather_current point and
// each forecast hour as a weather_forecast_hourly point. Timestamps are
// interpreted in the timezone the API reports and stored as UTC.
func (w *Writer) WriteWeather(ctx context.Context, forecast *weather.Forecast) error {
	loc := w.loc
	if forecast.Timezone != "" {
		if parsed, err := time.LoadLocation(forecast.Timezone); err == nil {
			loc = parsed
		} else {
			slog.WarnContext(ctx, "unknown forecast timezone, using station timezone",
				"timezone", forecast.Timezone)
		}
	}

	var points []*write.Point

	if current := forecast.CurrentWeather; current != nil {
		if point := w.currentWeatherPoint(current, loc); point != nil {
			points = append(points, point)
		}
	}
	points = append(points, w.hourlyWeatherPoints(ctx, forecast.Hourly, loc)...)

	if len(points) == 0 {
		return fmt.Errorf("no valid weather points")
	}
	return w.write.WritePoint(ctx, points...)
}

func (w *Writer) currentWeatherPoint(current map[string]any, loc *time.Location) *write.Point {
	timeStr, _ := current["time"].(string)
	ts, err := parseLocalISO(timeStr, loc)
	if err != nil {
		return nil
	}

	fields := make(map[string]any)
	for key, value := range current {
		if key == "time" || key == "interval" {
			continue
		}
		if f, ok := numeric(value); ok {
			fields[key] = f
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint("weather_current",
		map[string]string{"station_id": w.stationID},
		fields,
		ts.UTC(),
	)
}

func (w *Writer) hourlyWeatherPoints(ctx context.Context, hourly map[string]any, loc *time.Location) []*write.Point {
	timesRaw, _ := hourly["time"].([]any)
	var points []*write.Point

	for i, tsRaw := range timesRaw {
		timeStr, _ := tsRaw.(string)
		ts, err := parseLocalISO(timeStr, loc)
		if err != nil {
			slog.WarnContext(ctx, "skipping forecast hour with bad timestamp", "time", timeStr)
			continue
		}

		fields := make(map[string]any)
		for name, seriesRaw := range hourly {
			if name == "time" {
				continue
			}
			series, ok := seriesRaw.([]any)
			if !ok || i >= len(series) {
				continue
			}
			if f, ok := numeric(series[i]); ok {
				fields[name] = f
			}
		}
		if len(fields) == 0 {
			continue
		}
		points = append(points, write.NewPoint("weather_forecast_hourly",
			map[string]string{"station_id": w.stationID},
			fields,
			ts.UTC(),
		))
	}
	return points
}

func localMidnight(day time.Time, loc *time.Location) time.Time {
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
}

// parseClockTime resolves a station-local clock time like "06:12" or
// "06:12 AM" against the given day.
func parseClockTime(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	local := day.In(loc)
	date := local.Format("2006-01-02")
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 3:04 PM", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, date+" "+clock, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized clock time %q", clock)
}

// parseLocalISO parses Open-Meteo's naive local timestamps ("2006-01-02T15:04").
func parseLocalISO(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05"} {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// numeric converts JSON scalar values to float64 fields. Strings that parse
// as numbers count; everything else is skipped.
func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
