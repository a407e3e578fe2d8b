// Command cropsim runs one crop growth simulation campaign from a TOML run
// configuration, prints the summary and archives the daily outputs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cropcore/internal/archive"
	"cropcore/internal/crop"
	"cropcore/internal/kernel"
	"cropcore/internal/params"
	"cropcore/internal/soil"
	"cropcore/internal/weather"
)

// runConfig is the on-disk TOML layout of one campaign.
type runConfig struct {
	RunID          string   `toml:"run_id"`
	CropParams     string   `toml:"crop_params"`
	Agromanagement string   `toml:"agromanagement"`
	OutputVars     []string `toml:"output_vars"`
	DeathPolicy    string   `toml:"death_policy"`
	Frost          bool     `toml:"frost"`
	WaterBalance   bool     `toml:"water_balance"`
	Archive        bool     `toml:"archive"`
	LogLevel       string   `toml:"log_level"`
	MetricsListen  string   `toml:"metrics_listen"`
}

var defaultOutputVars = []string{"DVS", "LAI", "TAGP", "TWSO", "TWLV", "TWST", "TWRT", "SM", "RD"}

func main() {
	configPath := flag.String("config", "cropsim.toml", "path to the run configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "cropsim:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg runConfig
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if cfg.CropParams == "" || cfg.Agromanagement == "" {
		return fmt.Errorf("config requires crop_params and agromanagement paths")
	}
	if cfg.RunID == "" {
		cfg.RunID = "run-" + time.Now().UTC().Format("20060102T150405Z")
	}
	if len(cfg.OutputVars) == 0 {
		cfg.OutputVars = defaultOutputVars
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	var metrics kernel.MetricsRecorder
	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		prom, err := kernel.NewPrometheusMetrics(reg)
		if err != nil {
			return err
		}
		metrics = prom
		go serveMetrics(cfg.MetricsListen, reg, log)
	} else {
		metrics = kernel.NewExpvarMetrics("cropcore_run_" + cfg.RunID)
	}

	p, err := params.LoadCropFile(cfg.CropParams)
	if err != nil {
		return err
	}
	agro, err := params.LoadAgromanagement(cfg.Agromanagement)
	if err != nil {
		return err
	}
	wtr, err := weather.Open(agro.Latitude)
	if err != nil {
		return err
	}

	x := kernel.NewExchange()
	bus := kernel.NewBus()

	var soilComp *soil.WaterBalance
	if cfg.WaterBalance {
		if soilComp, err = soil.New(x, p); err != nil {
			return err
		}
	}
	cropComp, err := crop.New(x, bus, p, agro, crop.Options{
		DeathPolicy: crop.DeathPolicy(cfg.DeathPolicy),
		Frost:       cfg.Frost,
	}, log)
	if err != nil {
		return err
	}

	engCfg := kernel.Config{
		Exchange:   x,
		Bus:        bus,
		Weather:    wtr,
		Crop:       cropComp,
		Start:      agro.CampaignStart,
		End:        agro.CampaignEnd,
		OutputVars: cfg.OutputVars,
		Logger:     log,
		Metrics:    metrics,
	}
	if soilComp != nil {
		engCfg.Soil = soilComp
	}
	eng, err := kernel.New(engCfg)
	if err != nil {
		return err
	}

	log.Info().Str("run_id", cfg.RunID).
		Time("start", agro.CampaignStart).Time("end", agro.CampaignEnd).
		Msg("starting campaign")

	summary, err := eng.Run()
	if err != nil {
		return fmt.Errorf("run %s: %w", cfg.RunID, err)
	}

	if cfg.Archive {
		store, err := archive.Open(context.Background())
		if err != nil {
			return err
		}
		info, err := store.SaveRun(context.Background(), archive.RunArtifacts{
			RunID:   cfg.RunID,
			Outputs: eng.Outputs(),
			Summary: summary,
		})
		if err != nil {
			return fmt.Errorf("archive run %s: %w", cfg.RunID, err)
		}
		log.Info().Str("run_id", info.RunID).Int64("bytes", info.Size).
			Str("driver", string(store.Driver())).Msg("run archived")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func newLogger(level string) (zerolog.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", level, err)
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
	}
}
