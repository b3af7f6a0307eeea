package patchstar

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus classifies the controller's operational state.
type HealthStatus string

const (
	// HealthHealthy indicates the controller link is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the service is up but a dependency
	// (broker connection, controller link) is impaired.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the service is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the service is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the periodic health report published over MQTT.
// QoS 1, retained, so late subscribers see the latest state.
type HealthMessage struct {
	DeviceID      string       `json:"device_id"`
	Version       string       `json:"version"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Firmware      string       `json:"firmware,omitempty"`
	Position      *Position    `json:"position,omitempty"`
	CommandsTx    uint64       `json:"commands_tx"`
	ErrorsTotal   uint64       `json:"errors_total"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Timestamp     time.Time    `json:"timestamp"`
}

// HealthPublisher is the transport health reports are published through.
// Implemented by the MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected reports whether the publisher is connected.
	IsConnected() bool
}

// healthLogger is the logging surface the reporter needs.
type healthLogger interface {
	Error(msg string, args ...any)
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// DeviceID identifies the manipulator in health messages.
	DeviceID string

	// Version is the service version.
	Version string

	// Topic is the MQTT topic health messages are published to.
	Topic string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	// Publisher carries the reports. Nil disables publishing.
	Publisher HealthPublisher

	// Manipulator provides position, firmware, and link counters.
	Manipulator *Manipulator

	// Logger receives publish failures. Optional.
	Logger healthLogger
}

// HealthReporter periodically publishes controller health over MQTT.
//
// Reports carry the cached position rather than a fresh read: health
// reporting must never contend with a caller or the monitor for the serial
// link. The firmware version is read once, on the first report.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time

	firmware     string
	firmwareOnce sync.Once

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a health reporter. Call Start to begin.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops reporting, publishing a final "stopping" status.
// Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best-effort: nothing to do if the broker is already gone.
		//nolint:errcheck
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status during initialization.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "service starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	if h.cfg.Manipulator != nil {
		stats := h.cfg.Manipulator.DriverStats()
		// No successful traffic since the last errors means the link is
		// likely wedged.
		if stats.ErrorsTotal > 0 && stats.LastActivity.Before(h.startTime) {
			return HealthDegraded, "controller not responding"
		}
	}

	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	msg := HealthMessage{
		DeviceID:      h.cfg.DeviceID,
		Version:       h.cfg.Version,
		Status:        status,
		Reason:        reason,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC(),
	}

	if m := h.cfg.Manipulator; m != nil {
		h.firmwareOnce.Do(func() {
			if fw, err := m.FirmwareVersion(); err == nil {
				h.firmware = fw
			}
		})
		msg.Firmware = h.firmware

		msg.CommandsTx = m.DriverStats().CommandsTx
		msg.ErrorsTotal = m.DriverStats().ErrorsTotal

		// Cached position only; never touch the serial link here.
		if pos, ok := m.CachedPosition(); ok {
			p := pos
			msg.Position = &p
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	if h.cfg.Logger != nil {
		h.cfg.Logger.Error(msg, "error", err)
	}
}
