package processor

import (
	"errors"
	"testing"

	"github.com/joltfit/strava-bridge/internal/strava"
)

func TestBuildSummary_Deterministic(t *testing.T) {
	tests := []struct {
		name         string
		activity     strava.Activity
		wantSummary  string
		wantNotes    string
		wantDistance float64
		wantDuration float64
		wantSpeed    float64
	}{
		{
			name: "five k run",
			activity: strava.Activity{
				Type: "Run", Distance: 5000, MovingTime: 1500, AverageSpeed: 3.33,
			},
			wantSummary:  "Completed 5.00km run in 25:00",
			wantNotes:    "Average speed: 11.99 km/h",
			wantDistance: 5,
			wantDuration: 25,
			wantSpeed:    11.99,
		},
		{
			name: "ride with odd seconds",
			activity: strava.Activity{
				Type: "Ride", Distance: 21097, MovingTime: 3725, AverageSpeed: 5.66,
			},
			wantSummary:  "Completed 21.10km ride in 62:05",
			wantNotes:    "Average speed: 20.38 km/h",
			wantDistance: 21.1,
			wantDuration: 62.1,
			wantSpeed:    20.38,
		},
		{
			name: "missing type defaults to run",
			activity: strava.Activity{
				Distance: 1000, MovingTime: 360, AverageSpeed: 2.78,
			},
			wantSummary:  "Completed 1.00km run in 6:00",
			wantNotes:    "Average speed: 10.01 km/h",
			wantDistance: 1,
			wantDuration: 6,
			wantSpeed:    10.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildSummary(&tt.activity)
			if err != nil {
				t.Fatalf("build summary: %v", err)
			}
			if got.ActivitySummary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", got.ActivitySummary, tt.wantSummary)
			}
			if got.PerformanceNotes != tt.wantNotes {
				t.Errorf("notes = %q, want %q", got.PerformanceNotes, tt.wantNotes)
			}
			if got.DistanceKM != tt.wantDistance {
				t.Errorf("distance = %v, want %v", got.DistanceKM, tt.wantDistance)
			}
			if got.DurationMinutes != tt.wantDuration {
				t.Errorf("duration = %v, want %v", got.DurationMinutes, tt.wantDuration)
			}
			if got.AvgSpeedKMH != tt.wantSpeed {
				t.Errorf("speed = %v, want %v", got.AvgSpeedKMH, tt.wantSpeed)
			}

			// Pure function: same input, same output.
			again, err := BuildSummary(&tt.activity)
			if err != nil {
				t.Fatalf("second build: %v", err)
			}
			if *again != *got {
				t.Errorf("BuildSummary is not deterministic: %+v vs %+v", again, got)
			}
		})
	}
}

func TestBuildSummary_MalformedPayload(t *testing.T) {
	tests := []struct {
		name     string
		activity *strava.Activity
	}{
		{name: "nil activity", activity: nil},
		{name: "no metrics", activity: &strava.Activity{Type: "Run"}},
		{name: "negative distance only", activity: &strava.Activity{Distance: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildSummary(tt.activity); !errors.Is(err, ErrMalformedActivity) {
				t.Fatalf("error = %v, want ErrMalformedActivity", err)
			}
		})
	}
}
