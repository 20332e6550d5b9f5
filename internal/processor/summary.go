package processor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/joltfit/strava-bridge/internal/strava"
)

// ErrMalformedActivity means the fetched payload lacks the metrics the
// summary needs. The event is abandoned; we do not invent a default
// summary.
var ErrMalformedActivity = errors.New("processor: activity payload missing required metrics")

// Summary is the derived insight stored with each notification.
type Summary struct {
	ActivitySummary   string  `json:"activity_summary"`
	PerformanceNotes  string  `json:"performance_notes"`
	CompletionMessage string  `json:"completion_message"`
	DistanceKM        float64 `json:"distance_km"`
	DurationMinutes   float64 `json:"duration_minutes"`
	AvgSpeedKMH       float64 `json:"avg_speed_kmh"`
}

// BuildSummary computes the derived summary for a fetched activity. It
// is a pure function of its input and deterministic.
func BuildSummary(a *strava.Activity) (*Summary, error) {
	if a == nil || (a.Distance <= 0 && a.MovingTime <= 0) {
		return nil, ErrMalformedActivity
	}

	activityType := a.Type
	if activityType == "" {
		activityType = "Run"
	}

	distanceKM := a.Distance / 1000
	avgSpeedKMH := a.AverageSpeed * 3.6

	return &Summary{
		ActivitySummary: fmt.Sprintf("Completed %.2fkm %s in %d:%02d",
			distanceKM, strings.ToLower(activityType), a.MovingTime/60, a.MovingTime%60),
		PerformanceNotes:  fmt.Sprintf("Average speed: %.2f km/h", avgSpeedKMH),
		CompletionMessage: fmt.Sprintf("Great job on your %s! 🏃‍♂️", strings.ToLower(activityType)),
		DistanceKM:        round2(distanceKM),
		DurationMinutes:   round1(float64(a.MovingTime) / 60),
		AvgSpeedKMH:       round2(avgSpeedKMH),
	}, nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
