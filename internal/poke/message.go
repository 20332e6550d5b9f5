package poke

import (
	"fmt"
	"math"
	"strings"

	"github.com/joltfit/strava-bridge/internal/strava"
)

// BuildRunMessage produces the post-run check-in text for an activity.
// Deterministic for a given payload.
func BuildRunMessage(a *strava.Activity) string {
	activityType := strings.ToLower(a.Type)
	if activityType == "" {
		activityType = "run"
	}

	duration := "unknown time"
	if a.MovingTime > 0 {
		duration = fmt.Sprintf("%d:%02d", a.MovingTime/60, a.MovingTime%60)
	}

	distanceKM := math.Round(a.Distance/10) / 100
	if distanceKM > 0 {
		return fmt.Sprintf("🏃‍♂️ Great job on your %gkm %s in %s! How did it feel? Any thoughts on your performance today?",
			distanceKM, activityType, duration)
	}

	name := a.Name
	if name == "" {
		name = "Your run"
	}
	return fmt.Sprintf("🏃‍♂️ Nice work on '%s'! How did your %s go today? How are you feeling?", name, activityType)
}
