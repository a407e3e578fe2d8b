package sim

import (
	"math"
	"time"
)

// Limit clamps v to the closed interval [vmin, vmax].
func Limit(vmin, vmax, v float64) float64 {
	if v < vmin {
		return vmin
	}
	if v > vmax {
		return vmax
	}
	return v
}

const degToRad = math.Pi / 180.0

// DayLength computes the photoperiodically active day length in hours for a
// calendar day and latitude, using a sun elevation angle of -4 degrees.
func DayLength(day time.Time, latitude float64) float64 {
	const angle = -4.0
	doy := float64(day.YearDay())

	dec := -math.Asin(math.Sin(23.45*degToRad) * math.Cos(2.0*math.Pi*(doy+10.0)/365.0))
	sinLD := math.Sin(degToRad*latitude) * math.Sin(dec)
	cosLD := math.Cos(degToRad*latitude) * math.Cos(dec)

	aob := (-math.Sin(angle*degToRad) + sinLD) / cosLD
	return 12.0 * (1.0 + 2.0*math.Asin(Limit(-1.0, 1.0, aob))/math.Pi)
}
