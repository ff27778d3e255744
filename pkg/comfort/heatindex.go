// Package comfort classifies the measured environment for exercising.
package comfort

// Suitability denotes how well the measured environment suits a workout
type Suitability string

const (
	SuitabilityGood    Suitability = "good"
	SuitabilityCaution Suitability = "caution"
	SuitabilityAvoid   Suitability = "avoid"
)

// HeatIndexC computes the apparent temperature (in degrees Celsius) from
// the dry-bulb temperature and relative humidity, using the Rothfusz
// regression of the US National Weather Service. Below 26.7 C the index
// equals the plain temperature, where the regression does not apply.
func HeatIndexC(tempC, humidityPct float64) float64 {

	if tempC < 26.7 {
		return tempC
	}

	t := tempC*9./5. + 32.
	r := humidityPct

	hi := -42.379 +
		2.04901523*t +
		10.14333127*r -
		0.22475541*t*r -
		0.00683783*t*t -
		0.05481717*r*r +
		0.00122874*t*t*r +
		0.00085282*t*r*r -
		0.00000199*t*t*r*r

	return (hi - 32.) * 5. / 9.
}

// Classify rates the measured environment for exercising based on the
// apparent temperature
func Classify(tempC, humidityPct float64) Suitability {

	hi := HeatIndexC(tempC, humidityPct)

	switch {
	case hi >= 39.4 || tempC <= 0.:
		return SuitabilityAvoid
	case hi >= 32.2 || tempC <= 5. || humidityPct >= 85.:
		return SuitabilityCaution
	default:
		return SuitabilityGood
	}
}
