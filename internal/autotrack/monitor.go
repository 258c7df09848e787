package autotrack

import (
	"context"
	"log"
	"time"

	"fieldcast/internal/motion"
)

// MonitorConfig tunes the stop-on-stationary state machine.
type MonitorConfig struct {
	// PollInterval is the position-poll cadence while monitoring.
	PollInterval time.Duration
	// MaxAccuracyM rejects fixes with worse reported accuracy; a 100 m
	// error circle says nothing about a 50 m displacement.
	MaxAccuracyM float64
	// MovementThresholdM is the displacement from the reference position
	// that counts as "still moving" and restarts the stationary clock.
	MovementThresholdM float64
	// StopAfter is the stationary time that triggers the stop call.
	StopAfter time.Duration
}

// Monitor watches for the end of a trip: once the vehicle has stayed within
// MovementThresholdM of a reference position for StopAfter, it calls the
// tracking-stop endpoint. The caller must gate it on an initial confirmed
// motion (see Watcher).
type Monitor struct {
	cfg  MonitorConfig
	src  motion.Source
	ctrl *Controller

	ref             *motion.Position
	stationarySince time.Time
}

func NewMonitor(src motion.Source, ctrl *Controller, cfg MonitorConfig) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MaxAccuracyM <= 0 {
		cfg.MaxAccuracyM = 20
	}
	if cfg.MovementThresholdM <= 0 {
		cfg.MovementThresholdM = 50
	}
	if cfg.StopAfter <= 0 {
		cfg.StopAfter = 10 * time.Minute
	}
	return &Monitor{cfg: cfg, src: src, ctrl: ctrl}
}

// Run polls until tracking has been stopped or the context ends. Stop-call
// failures reset the stationary clock and monitoring continues; they are
// never fatal.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := time.Now()
		pos, err := m.src.Position()
		if err != nil {
			// GPS dropouts never advance the stationary clock.
			continue
		}
		if !m.step(pos, now) {
			continue
		}

		if err := m.ctrl.StopTracking(ctx); err != nil {
			log.Printf("autotrack stop failed, will retry: %v", err)
			m.stationarySince = now
			continue
		}
		log.Printf("autotrack stopped tracking after %s stationary", m.cfg.StopAfter)
		return nil
	}
}

// step folds one accepted position sample in and reports whether the
// stationary timeout has elapsed.
func (m *Monitor) step(pos motion.Position, now time.Time) bool {
	if pos.AccuracyM > m.cfg.MaxAccuracyM {
		return false
	}

	if m.ref == nil {
		p := pos
		m.ref = &p
		m.stationarySince = now
		return false
	}

	if motion.Distance(m.ref.Lat, m.ref.Lon, pos.Lat, pos.Lon) >= m.cfg.MovementThresholdM {
		// Still moving: chase the vehicle with the reference point.
		p := pos
		m.ref = &p
		m.stationarySince = now
		return false
	}

	return now.Sub(m.stationarySince) >= m.cfg.StopAfter
}
