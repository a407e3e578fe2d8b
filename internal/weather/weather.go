// Package weather supplies the per-day driver records consumed by the
// simulation. Providers are read-only sources; the caching layer stores
// fetched records without ever feeding values back into the kernel.
package weather

import (
	"fmt"
	"os"
	"time"

	"cropcore/pkg/sim"
)

// Provider returns the driver record for a calendar day.
type Provider interface {
	Drivers(day time.Time) (*sim.Drivers, error)
}

// ErrNoWeather is returned when a provider holds no record for the day.
type ErrNoWeather struct {
	Day time.Time
}

func (e ErrNoWeather) Error() string {
	return fmt.Sprintf("no weather record for %s", e.Day.Format("2006-01-02"))
}

// Driver identifies a concrete weather source implementation.
type Driver string

const (
	DriverCSV      Driver = "csv"      // flat file, loaded fully at open
	DriverSQLite   Driver = "sqlite"   // sqlite cache in front of another source
	DriverPostgres Driver = "postgres" // PostgreSQL weather archive
)

// Open selects a weather source using environment variables.
// Defaults to csv when unset.
//
//	CROPCORE_WEATHER_DRIVER: csv|sqlite|postgres (default csv)
//	CROPCORE_WEATHER_CSV_PATH: path to the csv file (required for csv, and the
//	  upstream for sqlite)
//	CROPCORE_WEATHER_SQLITE_PATH: path to the cache file (default ./weather.db)
//	CROPCORE_WEATHER_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(latitude float64) (Provider, error) {
	driver := os.Getenv("CROPCORE_WEATHER_DRIVER")
	if driver == "" {
		driver = string(DriverCSV)
	}
	switch Driver(driver) {
	case DriverCSV:
		return OpenCSV(os.Getenv("CROPCORE_WEATHER_CSV_PATH"), latitude)
	case DriverSQLite:
		upstream, err := OpenCSV(os.Getenv("CROPCORE_WEATHER_CSV_PATH"), latitude)
		if err != nil {
			return nil, err
		}
		return NewSQLiteCache(os.Getenv("CROPCORE_WEATHER_SQLITE_PATH"), upstream)
	case DriverPostgres:
		return NewPostgresProvider(os.Getenv("CROPCORE_WEATHER_POSTGRES_DSN"), latitude)
	default:
		return nil, fmt.Errorf("unknown weather driver %s", driver)
	}
}
