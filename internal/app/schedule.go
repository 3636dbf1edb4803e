package app

import "time"

// Gate constants for deciding which fetches run in a given cycle. The
// process is invoked every minute or so by cron; expensive or slow-moving
// data is only fetched when the invocation time matches its gate.
const (
	// Weather runs at :02, :17, :32, :47.
	weatherMinuteModulo  = 15
	weatherTriggerMinute = 2

	// Daily stats run at 00:05, 06:05, 12:05, 18:05.
	dailyStatsHourModulo    = 6
	dailyStatsTriggerMinute = 5

	// Sunrise/sunset runs once a day at 00:03.
	sunTimesTriggerHour   = 0
	sunTimesTriggerMinute = 3
)

// CyclePlan selects which fetches a collection cycle performs.
type CyclePlan struct {
	EnergyFlow bool
	// DailyStats covers the consumption statistics and the energy summary.
	DailyStats bool
	// YesterdayStats additionally fetches the previous day's consumption,
	// catching the final totals just after midnight.
	YesterdayStats bool
	SunTimes       bool
	Weather        bool
}

// PlanAt derives the plan for an invocation at the given station-local time.
// Energy flow is fetched on every run.
func PlanAt(t time.Time) CyclePlan {
	p := CyclePlan{EnergyFlow: true}

	if t.Hour()%dailyStatsHourModulo == 0 && t.Minute() == dailyStatsTriggerMinute {
		p.DailyStats = true
		if t.Hour() == 0 {
			p.YesterdayStats = true
		}
	}
	if t.Hour() == sunTimesTriggerHour && t.Minute() == sunTimesTriggerMinute {
		p.SunTimes = true
	}
	if t.Minute()%weatherMinuteModulo == weatherTriggerMinute {
		p.Weather = true
	}
	return p
}

// FullPlan runs every fetch regardless of the invocation time.
func FullPlan() CyclePlan {
	return CyclePlan{
		EnergyFlow:     true,
		DailyStats:     true,
		YesterdayStats: true,
		SunTimes:       true,
		Weather:        true,
	}
}
