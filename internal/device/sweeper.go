package device

import (
	"context"
	"sync"
	"time"
)

// Logger defines the logging interface used by the device package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sweeper demotes devices that have stopped heartbeating.
//
// The passive heartbeat path can only observe presence; the sweeper closes
// the gap for absence (power loss, network partition) by periodically
// applying the staleness transition to online devices whose last heartbeat
// is older than the configured timeout.
//
// Each demotion is a conditional repository update, so a device that
// heartbeats in the same window it would otherwise be swept ends up online.
// Passes are idempotent and safe to run concurrently with ingestion.
type Sweeper struct {
	repo     Repository
	cache    *StatusCache
	notifier Notifier
	logger   Logger

	interval time.Duration
	timeout  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// now is replaceable in tests.
	now func() time.Time
}

// SweeperConfig holds sweeper timing parameters.
type SweeperConfig struct {
	// Interval between passes. Much coarser than device heartbeat intervals.
	Interval time.Duration

	// StaleTimeout is the maximum gap since the last heartbeat before a
	// device is presumed unreachable.
	StaleTimeout time.Duration
}

// Default sweeper timings.
const (
	DefaultSweepInterval = time.Minute
	DefaultStaleTimeout  = 5 * time.Minute
)

// NewSweeper creates a sweeper over the given repository and cache.
// The notifier receives one status-changed event per demoted device;
// it may be nil.
func NewSweeper(repo Repository, cache *StatusCache, notifier Notifier, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = DefaultStaleTimeout
	}
	return &Sweeper{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		logger:   noopLogger{},
		interval: cfg.Interval,
		timeout:  cfg.StaleTimeout,
		now:      time.Now,
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the periodic sweep loop in a background goroutine.
// It returns immediately; use Stop for a clean shutdown.
func (s *Sweeper) Start(ctx context.Context) {
	var loopCtx context.Context
	loopCtx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("staleness sweeper started",
			"interval", s.interval.String(),
			"stale_timeout", s.timeout.String(),
		)

		for {
			select {
			case <-loopCtx.Done():
				s.logger.Info("staleness sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.Sweep(loopCtx); err != nil {
					s.logger.Error("sweep pass failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep runs a single pass and returns the number of devices demoted.
//
// A store failure listing candidates aborts the pass; per-device failures
// are logged and skipped so one bad row cannot starve the rest of the fleet.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.timeout)

	stale, err := s.repo.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	demoted := 0
	for i := range stale {
		d := &stale[i]

		applied, err := s.repo.MarkOffline(ctx, d.ID, cutoff)
		if err != nil {
			s.logger.Error("failed to mark device offline", "device_id", d.ID, "error", err)
			continue
		}
		if !applied {
			// A heartbeat landed between the list and the update; the
			// device stays online and no event fires.
			s.logger.Debug("sweep skipped, heartbeat won race", "device_id", d.ID)
			continue
		}

		lastSeen := s.now().UTC()
		if d.LastSeen != nil {
			lastSeen = *d.LastSeen
		}

		if s.cache != nil {
			s.cache.Set(d.ID, CachedStatus{Status: StatusOffline, LastSeen: lastSeen})
		}
		if s.notifier != nil {
			s.notifier.DeviceStatusChanged(StatusChange{
				DeviceID: d.ID,
				Status:   StatusOffline,
				LastSeen: lastSeen,
			})
		}

		s.logger.Info("device demoted to offline",
			"device_id", d.ID,
			"last_heartbeat", d.LastHeartbeat,
		)
		demoted++
	}

	if demoted > 0 {
		s.logger.Info("sweep pass complete", "stale", len(stale), "demoted", demoted)
	}
	return demoted, nil
}
