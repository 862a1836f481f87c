// gpustated - GPU performance-state daemon
//
// gpustated watches GPU utilization and temperature and moves each managed
// GPU between a high-performance band and a low-power band. It prefers
// forcing discrete performance states; cards that reject that degrade,
// once, to explicit application clocks for the rest of the run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/gpustated/gpustated/internal/control"
	"github.com/gpustated/gpustated/internal/device"
	"github.com/gpustated/gpustated/internal/hw/nvapi"
	"github.com/gpustated/gpustated/internal/hw/nvmlapi"
	"github.com/gpustated/gpustated/internal/infrastructure/config"
	"github.com/gpustated/gpustated/internal/infrastructure/influxdb"
	"github.com/gpustated/gpustated/internal/infrastructure/logging"
	"github.com/gpustated/gpustated/internal/infrastructure/mqtt"
	"github.com/gpustated/gpustated/internal/journal"
	"github.com/gpustated/gpustated/internal/monitor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	// Cancellation is observed at tick boundaries only, so a transition in
	// flight always completes before the loop stops.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual daemon logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting gpustated",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Initialise the performance-state API first and the telemetry API
	// second. The defers unwind in reverse order on shutdown.
	perf := nvapi.New()
	if err := perf.Init(); err != nil {
		return fmt.Errorf("initialising performance-state API: %w", err)
	}
	defer func() {
		log.Info("shutting down performance-state API")
		if shutdownErr := perf.Shutdown(); shutdownErr != nil {
			log.Error("error shutting down performance-state API", "error", shutdownErr)
		}
	}()

	tel := nvmlapi.New()
	if err := tel.Init(); err != nil {
		return fmt.Errorf("initialising telemetry API: %w", err)
	}
	defer func() {
		log.Info("shutting down telemetry API")
		if shutdownErr := tel.Shutdown(); shutdownErr != nil {
			log.Error("error shutting down telemetry API", "error", shutdownErr)
		}
	}()

	// Match both device enumerations by PCI bus id. Telemetry order is
	// canonical; any ambiguity is fatal rather than guessed at.
	table, err := device.Reconcile(perf, tel)
	if err != nil {
		return fmt.Errorf("reconciling devices: %w", err)
	}

	invalid, err := table.MarkManaged(cfg.Controller.DeviceIDs)
	if err != nil {
		return fmt.Errorf("selecting devices: %w", err)
	}
	for _, id := range invalid {
		log.Warn("ignoring unknown device id", "device", id)
	}

	for _, rec := range table.Records() {
		log.Info("device found",
			"device", rec.Index,
			"name", rec.Name,
			"bus", rec.Bus,
			"managed", rec.Managed,
		)
	}
	log.Info("devices reconciled", "total", table.Len(), "managed", table.ManagedCount())

	params := paramsFromConfig(cfg.Controller)
	log.Info("controller configured",
		"pstate_high", params.PstateHigh,
		"pstate_low", params.PstateLow,
		"iterations_before_switch", params.HysteresisThreshold,
		"temperature_threshold", params.TemperatureCeiling,
		"sleep_interval", params.PollInterval,
		"fallback_clocks", params.FallbackClocks,
	)
	ctrl := control.New(perf, tel, params)
	ctrl.SetLogger(log.With("component", "controller"))

	// Prefetch minimum clocks so a later fallback never queries the clock
	// tables mid-tick. Failure here only matters if the fallback is needed.
	if params.FallbackClocks {
		for _, rec := range table.Records() {
			if !rec.Managed {
				continue
			}
			if discoverErr := ctrl.DiscoverMinimumClocks(rec); discoverErr != nil {
				log.Warn("minimum clock discovery failed",
					"device", rec.Index,
					"error", discoverErr,
				)
			}
		}
	}

	sinks := control.FanoutSink{&logSink{log: log.With("component", "events")}}

	// Connect to MQTT broker (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		sinks = append(sinks, &mqttSink{client: mqttClient, log: log})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxEvents *influxSink
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(writeErr error) {
			log.Error("InfluxDB write error", "error", writeErr)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxEvents = &influxSink{client: influxClient}
		sinks = append(sinks, influxEvents)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the transition journal (optional)
	if cfg.Journal.Enabled {
		j, journalErr := journal.Open(cfg.Journal)
		if journalErr != nil {
			return fmt.Errorf("opening journal: %w", journalErr)
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := j.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		log.Info("journal opened", "path", j.Path())
		sinks = append(sinks, &journalSink{journal: j, log: log})
	} else {
		log.Info("journal disabled")
	}

	ctrl.SetEvents(sinks)

	loop := monitor.New(table, ctrl, tel, params)
	loop.SetLogger(log.With("component", "monitor"))
	if influxEvents != nil {
		loop.SetTelemetrySink(influxEvents)
	}

	log.Info("initialisation complete, entering monitoring loop",
		"poll_interval", params.PollInterval,
		"hysteresis_threshold", params.HysteresisThreshold,
		"temperature_ceiling", params.TemperatureCeiling,
		"fallback_clocks", params.FallbackClocks,
	)

	runErr := loop.Run(ctx)

	log.Info("monitoring loop stopped, restoring device defaults")
	shutdownErr := loop.Shutdown()

	if runErr != nil {
		return runErr
	}
	if shutdownErr != nil {
		return fmt.Errorf("restoring defaults: %w", shutdownErr)
	}

	log.Info("gpustated stopped")
	return nil
}

// loadConfig loads the YAML configuration, falling back to built-in
// defaults when no config file exists. The defaults alone are a complete
// working configuration.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path := getConfigPath()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Info("no config file found, using defaults", "path", path)
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Info("configuration loaded", "path", path)
	return cfg, nil
}

// getConfigPath returns the configuration file path.
// Uses GPUSTATED_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GPUSTATED_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// paramsFromConfig converts the controller config section into the policy
// parameters shared by the controller and the monitoring loop.
func paramsFromConfig(cfg config.ControllerConfig) control.Params {
	return control.Params{
		PstateHigh:          cfg.PerformanceStateHigh,
		PstateLow:           cfg.PerformanceStateLow,
		HighMemClock:        cfg.ClockMemHigh,
		HighCoreClock:       cfg.ClockCoreHigh,
		LowMemClock:         cfg.ClockMemLow,
		LowCoreClock:        cfg.ClockCoreLow,
		FallbackClocks:      cfg.FallbackClocks,
		HysteresisThreshold: cfg.IterationsBeforeSwitch,
		TemperatureCeiling:  cfg.TemperatureThreshold,
		PollInterval:        cfg.PollInterval(),
	}
}
