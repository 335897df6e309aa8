// RoomGate - room controller gateway
//
// RoomGate keeps track of the network address of every in-room controller
// and relays commands to them over HTTP. Addresses are discovered by
// hostname in the background so that callers never wait on discovery.
//
// For deployment details, see: configs/config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/roomgate/migrations"

	"github.com/nerrad567/roomgate/internal/api"
	"github.com/nerrad567/roomgate/internal/controller"
	"github.com/nerrad567/roomgate/internal/events"
	"github.com/nerrad567/roomgate/internal/guestpin"
	"github.com/nerrad567/roomgate/internal/infrastructure/config"
	"github.com/nerrad567/roomgate/internal/infrastructure/database"
	"github.com/nerrad567/roomgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/roomgate/internal/infrastructure/logging"
	"github.com/nerrad567/roomgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomgate/internal/metrics"
	"github.com/nerrad567/roomgate/internal/protocol"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting RoomGate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	repo := controller.NewSQLiteRepository(db.DB)
	devices, err := loadDevices(ctx, repo, cfg.Controllers.Devices)
	if err != nil {
		return err
	}
	log.Info("controllers loaded", "controllers", len(devices))

	health := map[string]api.HealthChecker{"database": db}
	var observers controller.Observers

	// Connect to MQTT (optional)
	var mqttClient *mqtt.Client
	var publisher *events.Publisher
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.ConnectWithLogger(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		health["mqtt"] = mqttClient

		publisher = events.NewPublisher(mqttClient, cfg.MQTT.QueueSize)
		publisher.SetLogger(log)
		publisher.Start(ctx)
		defer func() {
			publisher.Stop()
			published, dropped := publisher.Stats()
			log.Info("event publisher stopped", "published", published, "dropped", dropped)
		}()
		observers = append(observers, publisher)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		health["influxdb"] = influxClient
		observers = append(observers, influxdb.NewRecorder(influxClient, cfg.Site.ID))
	} else {
		log.Info("InfluxDB disabled")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		observers = append(observers, m)
	}

	svc, err := controller.NewService(devices, serviceConfig(cfg.Controllers), observers, log)
	if err != nil {
		return fmt.Errorf("building controller service: %w", err)
	}
	if m != nil {
		m.TrackRegistry(svc.Registry())
	}

	svc.Start(ctx)
	defer svc.Stop()

	if mqttClient != nil && cfg.MQTT.AcceptCommands {
		listener := events.NewCommandListener(mqttClient, svc, mqttClient.QoS(), 0)
		listener.SetLogger(log)
		if startErr := listener.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT command listener: %w", startErr)
		}
		defer listener.Stop()
		log.Info("accepting commands over MQTT", "topic", mqtt.Topics{}.AllCommands())
	}

	pins := guestpin.NewService(svc, repo)
	pins.SetLogger(log)

	metricsPath := ""
	if m != nil {
		metricsPath = cfg.Metrics.Path
	}
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		Security:    cfg.Security,
		MetricsPath: metricsPath,
		Logger:      log,
		Controllers: svc,
		GuestPins:   pins,
		Metrics:     m,
		Health:      health,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, MQTT listener,
	// controller service, InfluxDB, event publisher, MQTT, database.
	log.Info("RoomGate stopped")
	return nil
}

// deviceStore is the part of the controller repository needed at start-up.
type deviceStore interface {
	Seed(ctx context.Context, devices []controller.Device) (int, error)
	List(ctx context.Context) ([]controller.StoredDevice, error)
}

// loadDevices seeds the store from the config file and returns every
// stored controller. Rows already in the store keep their stored values.
func loadDevices(ctx context.Context, store deviceStore, seed []config.DeviceConfig) ([]controller.Device, error) {
	devices := make([]controller.Device, 0, len(seed))
	for _, d := range seed {
		devices = append(devices, controller.Device{
			ID:              d.ID,
			Hostname:        d.Hostname,
			Port:            d.Port,
			PinControllerID: d.PinControllerID,
		})
	}

	if _, err := store.Seed(ctx, devices); err != nil {
		return nil, fmt.Errorf("seeding controllers: %w", err)
	}

	stored, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing controllers: %w", err)
	}
	return controller.Devices(stored), nil
}

// serviceConfig maps the controllers config section onto service tunables.
func serviceConfig(c config.ControllersConfig) controller.Config {
	cfg := controller.DefaultConfig()
	cfg.DiscoveryTimeout = c.DiscoveryTimeout
	cfg.RefreshInterval = c.RefreshInterval
	cfg.RefreshSpacing = c.RefreshSpacing
	cfg.WarmUpSpacing = c.WarmUpSpacing
	cfg.CommandTimeout = c.CommandTimeout
	cfg.MaxPendingResolutions = c.MaxPendingResolutions
	if len(c.Acknowledgements) > 0 {
		cfg.Acknowledgements = protocol.DefaultAcknowledgements().Merge(c.Acknowledgements)
	}
	return cfg
}

// healthCheck verifies every infrastructure connection. All failures are
// reported together.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	var errs []error
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
