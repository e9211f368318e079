package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kioskfleet/fleet-core/internal/device"
)

// MaxLogsPerReport caps the number of log entries accepted from a single
// heartbeat. Entries beyond the cap are dropped oldest-last (the slice is
// truncated) so a misbehaving device cannot flood the log table.
const MaxLogsPerReport = 50

// maxClockSkew is how far in the future a device-supplied timestamp may
// be before it is discarded in favour of the server clock.
const maxClockSkew = 5 * time.Minute

// maxLogMessageLength truncates oversized log messages.
const maxLogMessageLength = 4096

// Logger is the minimal logging interface the pipeline needs.
// Satisfied by logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Pipeline processes device heartbeats.
//
// Each heartbeat flows through one path: validate and normalise the
// report, apply it to the store in a single transaction, refresh the
// status cache, and notify watchers if the status changed. The store
// write is the only step that can fail the request; cache and notify
// are best effort.
type Pipeline struct {
	repo     device.Repository
	cache    *device.StatusCache
	notifier device.Notifier
	logger   Logger
	now      func() time.Time
}

// Config bundles Pipeline dependencies. Cache and Notifier are optional.
type Config struct {
	Repository device.Repository
	Cache      *device.StatusCache
	Notifier   device.Notifier
	Logger     Logger
}

// NewPipeline creates a heartbeat pipeline.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pipeline{
		repo:     cfg.Repository,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest processes a single heartbeat report for the given device.
//
// The store update runs in one transaction: the device's current status
// is read, the heartbeat transition applied, and info blobs and logs
// written together. A device in maintenance or error keeps its status;
// only offline devices are promoted to online.
//
// Returns device.ErrDeviceNotFound for unknown device IDs. Heartbeats
// from unknown devices are never auto-registered.
func (p *Pipeline) Ingest(ctx context.Context, deviceID string, report Report) (*Result, error) {
	receivedAt := p.now().UTC()
	at := p.resolveTimestamp(deviceID, report.Timestamp, receivedAt)

	logs, dropped := p.sanitiseLogs(deviceID, report.Logs, receivedAt)
	if dropped > 0 {
		p.logger.Debug("heartbeat logs dropped",
			"device_id", deviceID,
			"dropped", dropped,
		)
	}

	update := device.HeartbeatUpdate{
		At:           at,
		HardwareInfo: report.HardwareInfo,
		SoftwareInfo: report.SoftwareInfo,
		NetworkInfo:  report.NetworkInfo,
		Logs:         logs,
	}

	res, err := p.repo.ApplyHeartbeat(ctx, deviceID, update)
	if err != nil {
		return nil, fmt.Errorf("applying heartbeat: %w", err)
	}

	// Cache refresh is best effort; the store row is already committed.
	if p.cache != nil {
		p.cache.Set(deviceID, device.CachedStatus{
			Status:   res.Status,
			LastSeen: at,
		})
	}

	// Suppress notifications for no-op transitions (the common case:
	// an online device heartbeating again).
	if res.Changed && p.notifier != nil {
		p.notifier.DeviceStatusChanged(device.StatusChange{
			DeviceID: deviceID,
			Status:   res.Status,
			LastSeen: at,
		})
	}

	return &Result{
		DeviceID:   deviceID,
		Previous:   res.Previous,
		Status:     res.Status,
		Changed:    res.Changed,
		LogsKept:   res.LogsKept,
		ReceivedAt: receivedAt,
	}, nil
}

// resolveTimestamp picks the effective heartbeat time. Device clocks
// drift and sometimes lie; anything too far in the future is replaced
// with the server clock.
func (p *Pipeline) resolveTimestamp(deviceID string, reported *time.Time, receivedAt time.Time) time.Time {
	if reported == nil {
		return receivedAt
	}
	at := reported.UTC()
	if at.After(receivedAt.Add(maxClockSkew)) {
		p.logger.Warn("heartbeat timestamp too far in future, using server time",
			"device_id", deviceID,
			"reported", at,
		)
		return receivedAt
	}
	return at
}

// sanitiseLogs validates and normalises incoming log entries.
//
// Malformed entries (empty message, missing or unknown level) are dropped
// rather than failing the heartbeat. At most MaxLogsPerReport entries survive.
func (p *Pipeline) sanitiseLogs(deviceID string, incoming []IncomingLog, receivedAt time.Time) ([]device.LogEntry, int) {
	if len(incoming) == 0 {
		return nil, 0
	}

	kept := make([]device.LogEntry, 0, len(incoming))
	dropped := 0

	for _, in := range incoming {
		if len(kept) >= MaxLogsPerReport {
			dropped++
			continue
		}

		msg := strings.TrimSpace(in.Message)
		if msg == "" {
			dropped++
			continue
		}
		if len(msg) > maxLogMessageLength {
			msg = msg[:maxLogMessageLength]
		}

		level := device.LogLevel(strings.ToLower(in.Level))
		if !device.IsValidLogLevel(level) {
			dropped++
			continue
		}

		ts := receivedAt
		if in.Timestamp != nil && !in.Timestamp.After(receivedAt.Add(maxClockSkew)) {
			ts = in.Timestamp.UTC()
		}

		kept = append(kept, device.LogEntry{
			DeviceID:  deviceID,
			Level:     level,
			Message:   msg,
			Category:  in.Category,
			Metadata:  in.Metadata,
			Timestamp: ts,
		})
	}

	return kept, dropped
}
