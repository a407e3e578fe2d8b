package weather

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"cropcore/pkg/sim"
)

const (
	pgDriver   = "pgx"
	defaultDSN = "postgres://localhost/cropcore?sslmode=disable"
)

// PostgresProvider reads daily weather from a PostgreSQL archive table:
//
//	CREATE TABLE weather (
//	    day date PRIMARY KEY,
//	    tmin double precision NOT NULL,
//	    tmax double precision NOT NULL,
//	    rad double precision NOT NULL,
//	    rain double precision NOT NULL,
//	    et0 double precision NOT NULL,
//	    e0 double precision NOT NULL,
//	    es0 double precision NOT NULL,
//	    snowdepth double precision NOT NULL DEFAULT 0
//	)
type PostgresProvider struct {
	db       *sql.DB
	latitude float64
}

// NewPostgresProvider opens the archive using the provided DSN (falls back to
// a local default).
func NewPostgresProvider(dsn string, latitude float64) (*PostgresProvider, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(pgDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresProvider{db: db, latitude: latitude}, nil
}

// Drivers fetches the record for day.
func (p *PostgresProvider) Drivers(day time.Time) (*sim.Drivers, error) {
	d := &sim.Drivers{Day: day, Latitude: p.latitude}
	err := p.db.QueryRowContext(context.Background(),
		`SELECT tmin, tmax, rad, rain, et0, e0, es0, snowdepth FROM weather WHERE day = $1`,
		day.Format("2006-01-02"),
	).Scan(&d.TMin, &d.TMax, &d.Rad, &d.Rain, &d.ET0, &d.E0, &d.ES0, &d.SnowDepth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoWeather{Day: day}
	}
	if err != nil {
		return nil, fmt.Errorf("query weather: %w", err)
	}
	d.Temp = (d.TMin + d.TMax) / 2.0
	return d, nil
}

// Close releases the database handle.
func (p *PostgresProvider) Close() error { return p.db.Close() }
