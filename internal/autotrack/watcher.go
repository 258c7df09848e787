package autotrack

import (
	"context"
	"log"
	"time"

	"fieldcast/internal/motion"
)

// WatcherConfig tunes the start-on-motion state machine. The same machine,
// with a lower count threshold, gates the auto-stop monitor so a vehicle
// that is already parked when monitoring begins doesn't immediately
// "expire".
type WatcherConfig struct {
	// Interval is the detection cadence.
	Interval time.Duration
	// MotionCountThreshold is how many confirmed-motion cycles accumulate
	// before motion counts as real.
	MotionCountThreshold int
	// StationaryTimeout is how long without motion before one accumulated
	// count decays. Decay, not reset: brief stops at lights must not erase
	// progress.
	StationaryTimeout time.Duration
}

// Watcher accumulates confirmed-motion cycles until the threshold is
// reached. Run returns when motion is confirmed or the context ends.
type Watcher struct {
	cfg WatcherConfig
	det *motion.Detector

	motionCount    int
	lastMotionTime time.Time
}

func NewWatcher(det *motion.Detector, cfg WatcherConfig) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MotionCountThreshold <= 0 {
		cfg.MotionCountThreshold = 3
	}
	if cfg.StationaryTimeout <= 0 {
		cfg.StationaryTimeout = 60 * time.Second
	}
	return &Watcher{cfg: cfg, det: det}
}

// Run polls the detector until motion is confirmed. GPS dropouts are inert;
// they neither accumulate nor decay.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := time.Now()
		if w.step(w.det.Detect(now), now) {
			return nil
		}
	}
}

// step folds one detection result into the accumulator and reports whether
// motion is now confirmed.
func (w *Watcher) step(r motion.Result, now time.Time) bool {
	switch r {
	case motion.Moving:
		w.motionCount++
		w.lastMotionTime = now
		log.Printf("autotrack motion count=%d/%d", w.motionCount, w.cfg.MotionCountThreshold)
		if w.motionCount >= w.cfg.MotionCountThreshold {
			return true
		}
	case motion.NotMoving:
		if w.motionCount > 0 && !w.lastMotionTime.IsZero() && now.Sub(w.lastMotionTime) > w.cfg.StationaryTimeout {
			w.motionCount--
			w.lastMotionTime = now
			log.Printf("autotrack motion decayed count=%d", w.motionCount)
		}
	case motion.NoFix:
		// Skipped cycle; timers and counters stay put.
	}
	return false
}
