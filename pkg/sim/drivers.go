package sim

import "time"

// Drivers is the per-day weather/forcing record passed into every CalcRates
// call. It is read-only from the kernel's perspective; providers fill it once
// per day.
type Drivers struct {
	Day time.Time

	// Temperatures in degrees Celsius.
	TMin float64
	TMax float64
	Temp float64 // daily mean

	// Irradiation in J m-2 d-1.
	Rad float64

	// Reference evapotranspiration rates in cm d-1.
	ET0 float64 // canopy
	E0  float64 // open water
	ES0 float64 // bare soil

	// Rainfall in cm d-1 and snow depth in cm.
	Rain      float64
	SnowDepth float64

	// Latitude of the site in decimal degrees, used for day length.
	Latitude float64
}

// DayLength returns the astronomical day length in hours for the driver's day
// and latitude, with the sun position angle at which daylight is considered to
// start fixed at -4 degrees (civil twilight proxy used by the daylength
// routines of the reference weather systems).
func (d *Drivers) DayLength() float64 {
	return DayLength(d.Day, d.Latitude)
}
