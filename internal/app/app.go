package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bluetray/bluetray/internal/api"
	"github.com/bluetray/bluetray/internal/bluetooth"
	"github.com/bluetray/bluetray/internal/coordinator"
	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/history"
	"github.com/bluetray/bluetray/internal/infrastructure/config"
	"github.com/bluetray/bluetray/internal/infrastructure/database"
	"github.com/bluetray/bluetray/internal/infrastructure/influxdb"
	"github.com/bluetray/bluetray/internal/infrastructure/logging"
	"github.com/bluetray/bluetray/internal/infrastructure/mqtt"
	"github.com/bluetray/bluetray/internal/mqttbridge"
	"github.com/bluetray/bluetray/internal/tray"
	"github.com/bluetray/bluetray/migrations"
)

// startupTimeout bounds gateway opening and the first device listing.
const startupTimeout = 30 * time.Second

// Options selects how the application runs.
type Options struct {
	// ConfigPath is watched for live changes. Empty disables watching.
	ConfigPath string
	// Headless skips the tray icon; the API and MQTT bridge still run.
	Headless bool
	// Version is reported in logs, the About entry and the health API.
	Version string
}

// Run starts every component described by cfg and blocks until ctx is
// cancelled or the user quits from the tray.
//
// Startup order: logger, Bluetooth gateway, Registry and Coordinator,
// history sinks, MQTT, API, config watcher, then the tray on the calling
// goroutine. Shutdown runs in reverse.
//
// Parameters:
//   - ctx: Cancelled on shutdown signals
//   - cfg: Loaded configuration
//   - opts: Run options
//
// Returns:
//   - error: Matches bluetooth.ErrBluetoothUnavailable when there is no
//     radio, or describes any other startup failure. nil on clean shutdown.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	log := logging.New(cfg.Logging, opts.Version)
	defer log.Close() //nolint:errcheck // shutdown path

	log.Info("starting Bluetray", "version", opts.Version, "gateway", cfg.Bluetooth.Gateway, "headless", opts.Headless)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Open the OS gateway; no radio is fatal.
	openCtx, openCancel := context.WithTimeout(ctx, startupTimeout)
	gateway, err := bluetooth.Open(openCtx, cfg.Bluetooth, log.With("component", "bluetooth"))
	openCancel()
	if err != nil {
		return fmt.Errorf("opening bluetooth gateway: %w", err)
	}
	defer func() {
		if closeErr := gateway.Close(); closeErr != nil {
			log.Error("error closing bluetooth gateway", "error", closeErr)
		}
	}()

	registry := device.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))
	defer registry.Close()

	coord := coordinator.New(registry, gateway, coordinator.Options{
		Cooldown:                cfg.Bluetooth.Cooldown,
		OperationTimeout:        cfg.Bluetooth.OperationTimeout,
		MaxConcurrentOperations: cfg.Bluetooth.MaxConcurrentOperations,
	})
	coord.SetLogger(log.With("component", "coordinator"))

	var repo history.Repository
	var db *database.DB
	if cfg.History.Enabled {
		db, err = OpenHistory(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		repo = history.NewSQLiteRepository(db.DB)
		log.Info("connection history enabled", "path", db.Path(), "retention_days", cfg.History.RetentionDays)
	}

	var points history.PointWriter
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			log.Warn("InfluxDB unavailable, telemetry disabled", "url", cfg.InfluxDB.URL, "error", influxErr)
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Warn("InfluxDB write error", "error", err)
			})
			points = influxClient
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	notifier := tray.NewNotifier(cfg.Tray.NotifyFailures)

	g, gctx := errgroup.WithContext(ctx)
	// Early returns below still stop every goroutine before the
	// gateway and sinks are closed.
	defer func() {
		cancel()
		g.Wait() //nolint:errcheck // result reported by the final Wait
	}()

	g.Go(func() error {
		return coord.Run(gctx)
	})

	if repo != nil || points != nil {
		recorder := history.NewRecorder(registry, repo, points, cfg.HistoryRetention())
		recorder.SetLogger(log.With("component", "history"))
		// Subscribed before the first listing so its Added changes are
		// recorded too.
		recorder.Subscribe()
		g.Go(func() error {
			recorder.Run(gctx)
			return nil
		})
	}

	// Initial population. A failure here leaves the menu empty until the
	// next refresh or poll; it is not fatal.
	refreshCtx, refreshCancel := context.WithTimeout(ctx, startupTimeout)
	if refreshErr := coord.Refresh(refreshCtx); refreshErr != nil {
		log.Warn("initial device listing failed", "error", refreshErr)
	} else {
		log.Info("paired devices loaded", "count", registry.Count())
	}
	refreshCancel()

	if cfg.MQTT.Enabled {
		if mqttClient := connectMQTT(cfg.MQTT, log); mqttClient != nil {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()

			bridge := mqttbridge.New(registry, mqttClient, coord)
			bridge.SetLogger(log.With("component", "mqttbridge"))
			mqttClient.SetOnConnect(func() {
				log.Info("MQTT reconnected")
				bridge.PublishAll()
			})
			g.Go(func() error {
				if runErr := bridge.Run(gctx); runErr != nil {
					log.Warn("MQTT bridge stopped", "error", runErr)
				}
				return nil
			})
		}
	}

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.With("component", "api"),
			Registry: registry,
			Commands: coord,
			History:  repo,
			Version:  opts.Version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(gctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if opts.ConfigPath != "" {
		watcher, watchErr := config.NewWatcher(opts.ConfigPath, func(next *config.Config) {
			applyReload(next, log, coord, notifier)
		})
		if watchErr != nil {
			log.Warn("config hot reload disabled", "path", opts.ConfigPath, "error", watchErr)
		} else {
			watcher.SetLogger(log)
			g.Go(func() error {
				return watcher.Run(gctx)
			})
		}
	}

	log.Info("initialisation complete")

	if !opts.Headless {
		presenter := tray.New(registry, coord, notifier, tray.Options{
			MaxDevices: cfg.Tray.MaxDevices,
			Version:    opts.Version,
			OnQuit:     cancel,
		})
		presenter.SetLogger(log.With("component", "tray"))

		// Blocks on the calling goroutine until quit or cancel.
		if trayErr := presenter.Run(gctx); trayErr != nil {
			if !errors.Is(trayErr, tray.ErrUnsupported) {
				return fmt.Errorf("running tray: %w", trayErr)
			}
			log.Warn("tray not supported here, running headless")
		} else {
			cancel()
		}
	}

	<-gctx.Done()
	log.Info("shutting down")
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Bluetray stopped")
	return nil
}

// OpenHistory opens the SQLite history database and applies the embedded
// schema.
func OpenHistory(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already returning an error
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// connectMQTT connects to the broker. A broker that is down at startup
// disables the bridge rather than the whole application.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		log.Warn("MQTT unavailable, bridge disabled",
			"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
			"error", err,
		)
		return nil
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}

// CooldownSetter is the coordinator surface hot reload needs.
type CooldownSetter interface {
	SetCooldown(d time.Duration)
}

// applyReload applies the live-reloadable settings from a changed config
// file. Everything else needs a restart.
func applyReload(next *config.Config, log *logging.Logger, coord CooldownSetter, notifier *tray.Notifier) {
	log.SetLevel(next.Logging.Level)
	coord.SetCooldown(next.Bluetooth.Cooldown)
	notifier.SetEnabled(next.Tray.NotifyFailures)
	log.Info("live settings applied",
		"log_level", next.Logging.Level,
		"cooldown", next.Bluetooth.Cooldown,
		"notify_failures", next.Tray.NotifyFailures,
	)
}
