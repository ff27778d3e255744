// Package workout turns the live telemetry stream into discrete, immutable
// workout records: per-activity entries and whole-workout sessions.
package workout

import "math"

// ActivityType denotes a declared activity type. Step counts are meaningful
// only for the walking and running types; every other type always carries a
// nil step count.
type ActivityType string

const (
	Walking       ActivityType = "walking"
	Running       ActivityType = "running"
	Cycling       ActivityType = "cycling"
	Yoga          ActivityType = "yoga"
	Weightlifting ActivityType = "weightlifting"
	Other         ActivityType = "other"
)

// Valid reports whether t is a known activity type
func (t ActivityType) Valid() bool {
	switch t {
	case Walking, Running, Cycling, Yoga, Weightlifting, Other:
		return true
	}
	return false
}

// TracksSteps reports whether the IMU-derived step count applies to t
func (t ActivityType) TracksSteps() bool {
	return t == Walking || t == Running
}

// ActivityEntry denotes one completed activity segment. Immutable once
// created. AvgHeartRate and Steps are nil when the segment recorded no
// heart rate samples / the type does not track steps.
type ActivityEntry struct {
	ID              string       `json:"id"`
	Type            ActivityType `json:"type"`
	DurationSeconds int64        `json:"duration_s"`
	AvgHeartRate    *int         `json:"avg_heart_rate,omitempty"`
	Steps           *int64       `json:"steps,omitempty"`
}

// RecoveryTechnique denotes a post-workout recovery suggestion
type RecoveryTechnique string

// Session denotes one completed workout. Immutable once created.
type Session struct {
	ID                 string              `json:"id"`
	StartedAtMillis    int64               `json:"started_at_ms"`
	DurationSeconds    int64               `json:"duration_s"`
	AvgHeartRate       *int                `json:"avg_heart_rate,omitempty"`
	TotalSteps         *int64              `json:"total_steps,omitempty"`
	CaloriesKcal       *float64            `json:"calories_kcal,omitempty"`
	Activities         []ActivityEntry     `json:"activities"`
	RecoveryTechniques []RecoveryTechnique `json:"recovery_techniques,omitempty"`
}

// Summarize aggregates activity entries into whole-workout figures:
// duration is the sum over all entries, the average heart rate is the mean
// (rounded to nearest) over entries that recorded one, and the step total
// is the sum over entries with a non-nil count, absent if there are none.
func Summarize(activities []ActivityEntry) (durationSeconds int64, avgHeartRate *int, totalSteps *int64) {

	var (
		hrSum, hrCount int
		steps          int64
		stepsSeen      bool
	)

	for _, a := range activities {
		durationSeconds += a.DurationSeconds
		if a.AvgHeartRate != nil {
			hrSum += *a.AvgHeartRate
			hrCount++
		}
		if a.Steps != nil {
			steps += *a.Steps
			stepsSeen = true
		}
	}

	if hrCount > 0 {
		v := int(math.Round(float64(hrSum) / float64(hrCount)))
		avgHeartRate = &v
	}
	if stepsSeen {
		totalSteps = &steps
	}

	return
}
