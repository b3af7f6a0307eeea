// manipd - PatchStar micromanipulator daemon
//
// manipd owns the serial link to a Scientifica PatchStar motorized
// micromanipulator and exposes it over MQTT:
//   - retained position state, published on change
//   - move/stop command topics
//   - periodic health reports with LWT crash detection
//
// Position changes and move outcomes are also recorded to SQLite for
// history queries and optionally to InfluxDB for telemetry.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openrig/manipd/internal/history"
	"github.com/openrig/manipd/internal/infrastructure/config"
	"github.com/openrig/manipd/internal/infrastructure/database"
	"github.com/openrig/manipd/internal/infrastructure/influxdb"
	"github.com/openrig/manipd/internal/infrastructure/logging"
	"github.com/openrig/manipd/internal/infrastructure/mqtt"
	"github.com/openrig/manipd/internal/patchstar"
	"github.com/openrig/manipd/internal/serial"
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

// historyTimeout bounds each SQLite write from a callback.
const historyTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting manipd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// History repository (creates schema on first run)
	historyRepo, err := history.NewSQLiteRepository(ctx, db.DB)
	if err != nil {
		return fmt.Errorf("initialising history: %w", err)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the serial link and bring up the manipulator
	port, err := serial.Open(serial.Config{
		Port:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.SerialReadTimeout(),
	})
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	defer func() {
		log.Info("closing serial port")
		if closeErr := port.Close(); closeErr != nil {
			log.Error("error closing serial port", "error", closeErr)
		}
	}()
	log.Info("serial port open", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)

	man := patchstar.New(patchstar.NewDriver(port), patchstar.Config{
		DeviceID:     cfg.Device.ID,
		Scale:        patchstar.Scale(cfg.Manipulator.Scale),
		Capabilities: capabilitiesFromConfig(cfg.Manipulator.Capabilities),
	})

	// First contact: verify the controller answers before wiring anything up.
	firmware, err := man.FirmwareVersion()
	if err != nil {
		return fmt.Errorf("querying controller: %w", err)
	}
	log.Info("controller responding",
		"device_id", cfg.Device.ID,
		"firmware", firmware,
	)

	// Wire position and move fan-out
	wireObservers(man, cfg, mqttClient, influxClient, historyRepo, log)

	// Accept move/stop commands over MQTT
	if mqttClient != nil {
		if err := subscribeCommands(man, cfg, mqttClient, log); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
	}

	// Start health reporting
	var healthPublisher patchstar.HealthPublisher
	if mqttClient != nil {
		healthPublisher = mqttClient
	}
	health := patchstar.NewHealthReporter(patchstar.HealthReporterConfig{
		DeviceID:    cfg.Device.ID,
		Version:     version,
		Topic:       mqtt.Topics{}.Health(cfg.Device.ID),
		Publisher:   healthPublisher,
		Manipulator: man,
		Logger:      log,
	})
	if err := health.PublishStarting(); err != nil {
		log.Warn("failed to publish starting status", "error", err)
	}
	health.Start(ctx)
	defer func() {
		log.Info("stopping health reporter")
		health.Stop()
	}()

	// Start the position monitor
	man.StartMonitor(patchstar.MonitorOptions{
		Interval: cfg.MonitorInterval(),
		Floor:    cfg.MonitorFloor(),
		Logger:   log,
	})
	defer func() {
		log.Info("stopping position monitor")
		man.StopMonitor()
	}()
	log.Info("position monitor started",
		"interval", cfg.MonitorInterval(),
		"floor", cfg.MonitorFloor(),
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Stop motion before tearing down the link.
	if err := man.Stop(); err != nil {
		log.Error("error stopping manipulator during shutdown", "error", err)
	}

	log.Info("manipd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MANIPD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MANIPD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// capabilitiesFromConfig converts the optional config capability block.
func capabilitiesFromConfig(c *config.CapabilitiesConfig) *patchstar.Capabilities {
	if c == nil {
		return nil
	}
	return &patchstar.Capabilities{
		GetPos: c.GetPos,
		SetPos: c.SetPos,
		Limits: c.Limits,
	}
}

// positionPayload is the retained position state message.
type positionPayload struct {
	DeviceID  string     `json:"device_id"`
	Position  [3]float64 `json:"position"`
	Timestamp time.Time  `json:"timestamp"`
}

// moveEventPayload is the one-shot move resolution event.
type moveEventPayload struct {
	MoveID     string     `json:"move_id"`
	DeviceID   string     `json:"device_id"`
	Target     [3]float64 `json:"target"`
	Outcome    string     `json:"outcome"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}

// wireObservers fans position changes and move resolutions out to MQTT,
// InfluxDB, and the history store.
func wireObservers(
	man *patchstar.Manipulator,
	cfg *config.Config,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	historyRepo history.Repository,
	log *logging.Logger,
) {
	topics := mqtt.Topics{}
	deviceID := cfg.Device.ID

	man.Subscribe(func(pos patchstar.Position) {
		if mqttClient != nil {
			payload, err := json.Marshal(positionPayload{
				DeviceID:  deviceID,
				Position:  pos,
				Timestamp: time.Now().UTC(),
			})
			if err == nil {
				if pubErr := mqttClient.PublishRetained(topics.Position(deviceID), payload); pubErr != nil {
					log.Warn("failed to publish position", "error", pubErr)
				}
			}
		}

		if influxClient != nil {
			influxClient.WritePosition(deviceID, pos[0], pos[1], pos[2])
		}

		recCtx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := historyRepo.RecordPosition(recCtx, deviceID, pos); err != nil {
			log.Warn("failed to record position history", "error", err)
		}
	})

	man.SetMoveHandler(func(mv *patchstar.Move) {
		interrupted, err := mv.WasInterrupted()
		if err != nil {
			log.Warn("failed to read move outcome", "move_id", mv.ID(), "error", err)
			return
		}
		outcome := history.OutcomeSucceeded
		if interrupted {
			outcome = history.OutcomeFailed
		}
		errMsg, _ := mv.ErrorMessage()

		log.Info("move resolved",
			"move_id", mv.ID(),
			"outcome", outcome,
			"duration", mv.Duration(),
		)

		if mqttClient != nil {
			payload, err := json.Marshal(moveEventPayload{
				MoveID:     mv.ID(),
				DeviceID:   deviceID,
				Target:     mv.Target(),
				Outcome:    outcome,
				Error:      errMsg,
				DurationMS: mv.Duration().Milliseconds(),
				Timestamp:  time.Now().UTC(),
			})
			if err == nil {
				if pubErr := mqttClient.PublishEvent(topics.MoveEvent(deviceID), payload); pubErr != nil {
					log.Warn("failed to publish move event", "error", pubErr)
				}
			}
		}

		if influxClient != nil {
			influxClient.WriteMoveResult(deviceID, mv.ID(), outcome, mv.Duration())
		}

		recCtx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := historyRepo.RecordMove(recCtx, history.MoveRecord{
			ID:         mv.ID(),
			DeviceID:   deviceID,
			Target:     mv.Target(),
			Speed:      mv.Speed(),
			Outcome:    outcome,
			Error:      errMsg,
			StartedAt:  mv.StartedAt().UTC(),
			ResolvedAt: mv.StartedAt().Add(mv.Duration()).UTC(),
		}); err != nil {
			log.Warn("failed to record move history", "error", err)
		}
	})
}

// moveCommandPayload is the inbound move command. Null axes are left to the
// manipulator: absolute axes hold position, relative axes add nothing.
type moveCommandPayload struct {
	Abs   [3]*float64 `json:"abs"`
	Rel   [3]*float64 `json:"rel"`
	Speed int         `json:"speed"`
}

// subscribeCommands registers the MQTT command handlers.
func subscribeCommands(man *patchstar.Manipulator, cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) error {
	topics := mqtt.Topics{}
	deviceID := cfg.Device.ID
	qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated to 0..2 by config

	err := mqttClient.Subscribe(topics.MoveCommand(deviceID), qos, func(topic string, payload []byte) error {
		var cmd moveCommandPayload
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("parsing move command: %w", err)
		}

		mv, err := man.Move(patchstar.MoveRequest{
			Abs:   cmd.Abs,
			Rel:   cmd.Rel,
			Speed: cmd.Speed,
		})
		if err != nil {
			return fmt.Errorf("issuing move: %w", err)
		}

		log.Info("move accepted", "move_id", mv.ID(), "target", mv.Target(), "speed", mv.Speed())
		return nil
	})
	if err != nil {
		return err
	}

	return mqttClient.Subscribe(topics.StopCommand(deviceID), qos, func(topic string, payload []byte) error {
		if err := man.Stop(); err != nil {
			return fmt.Errorf("stopping: %w", err)
		}
		log.Info("stop executed")
		return nil
	})
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB checks are skipped when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil && !mqttClient.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
