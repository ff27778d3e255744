package workout

// Recovery techniques suggested after a workout
const (
	RecoveryHydration    RecoveryTechnique = "hydration"
	RecoveryBreathing    RecoveryTechnique = "deep-breathing"
	RecoveryStretching   RecoveryTechnique = "stretching"
	RecoveryFoamRolling  RecoveryTechnique = "foam-rolling"
	RecoveryColdShower   RecoveryTechnique = "cold-shower"
	RecoveryLightWalking RecoveryTechnique = "light-walking"
)

// metValues are metabolic equivalents per activity type (moderate
// intensity, 2011 Compendium of Physical Activities)
var metValues = map[ActivityType]float64{
	Walking:       3.5,
	Running:       9.8,
	Cycling:       7.5,
	Yoga:          2.5,
	Weightlifting: 5.,
	Other:         4.,
}

// EstimateCalories estimates the energy expenditure in kcal across all
// activities: MET x weight (kg) x duration (h) per entry
func EstimateCalories(activities []ActivityEntry, weightKg float64) float64 {
	total := 0.
	for _, a := range activities {
		met, ok := metValues[a.Type]
		if !ok {
			met = metValues[Other]
		}
		total += met * weightKg * float64(a.DurationSeconds) / 3600.
	}
	return total
}

// SuggestRecovery produces rule-based recovery suggestions from the
// workout's aggregate figures, in a fixed priority order
func SuggestRecovery(activities []ActivityEntry, avgHeartRate *int, totalDurationSeconds int64, totalSteps *int64) []RecoveryTechnique {

	out := []RecoveryTechnique{RecoveryHydration}

	if avgHeartRate != nil && *avgHeartRate >= 140 {
		out = append(out, RecoveryBreathing)
	}
	if totalDurationSeconds >= 45*60 {
		out = append(out, RecoveryColdShower)
	}
	if totalSteps != nil && *totalSteps >= 5000 {
		out = append(out, RecoveryFoamRolling)
	}
	for _, a := range activities {
		if a.Type == Weightlifting {
			out = append(out, RecoveryStretching)
			break
		}
	}
	if totalDurationSeconds >= 20*60 {
		out = append(out, RecoveryLightWalking)
	}

	return out
}
