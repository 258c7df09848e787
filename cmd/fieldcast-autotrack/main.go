// fieldcast-autotrack supervises tracking sessions: it starts tracking at
// boot or on detected motion (per operator settings) and stops it after the
// vehicle has been stationary long enough. It talks to the GPS daemon over
// IPC and to the tracking-control endpoint over HTTP; it owns neither.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldcast/internal/autotrack"
	"fieldcast/internal/config"
	"fieldcast/internal/ipc"
	"fieldcast/internal/motion"
	"fieldcast/internal/settings"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config (empty for defaults)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := ipc.NewClient(cfg.IPC.SocketPath, cfg.IPC.Timeout)
	source := &autotrack.ClientSource{Client: client}
	ctrl := autotrack.NewController(cfg.Track.ControlURL, cfg.Track.Timeout)

	log.Printf("fieldcast-autotrack starting control=%s settings=%s", cfg.Track.ControlURL, cfg.SettingsPath)

	// Settings are re-read at the top of every trip cycle, so operator
	// changes apply to the next trip without a restart.
	for ctx.Err() == nil {
		s, err := settings.Load(cfg.SettingsPath)
		if err != nil {
			log.Printf("settings load failed, using defaults: %v", err)
			s = settings.Default()
		}

		if err := runTrip(ctx, cfg, s, source, ctrl); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("trip cycle failed: %v", err)
			sleepCtx(ctx, 10*time.Second)
			continue
		}

		// Only motion mode arms again for the next trip.
		if s.GPSStartMode != settings.StartModeMotion {
			break
		}
	}
	log.Printf("fieldcast-autotrack stopping")
}

// runTrip handles one start-track-stop cycle under the given settings.
func runTrip(ctx context.Context, cfg config.Config, s settings.Settings, source motion.Source, ctrl *autotrack.Controller) error {
	switch s.GPSStartMode {
	case settings.StartModeBoot:
		if err := startWithRetry(ctx, ctrl, cfg.Track.StartRetryInterval); err != nil {
			return err
		}
	case settings.StartModeMotion:
		det := motion.NewDetector(source, motion.Config{
			MovementThresholdM:  cfg.Track.MovementThresholdM,
			BearingToleranceDeg: cfg.Track.BearingToleranceDeg,
		})
		w := autotrack.NewWatcher(det, autotrack.WatcherConfig{
			Interval:             cfg.Track.DetectInterval,
			MotionCountThreshold: cfg.Track.MotionCount,
			StationaryTimeout:    cfg.Track.StationaryTimeout,
		})
		if err := w.Run(ctx); err != nil {
			return err
		}
		log.Printf("motion confirmed, starting tracking")
		if err := startWithRetry(ctx, ctrl, cfg.Track.StartRetryInterval); err != nil {
			return err
		}
	case settings.StartModeManual:
		if !s.GPSAutoStopEnabled {
			log.Printf("manual start and auto-stop disabled; nothing to supervise")
			<-ctx.Done()
			return ctx.Err()
		}
		// The operator starts tracking; this process only ends the trip.
	}

	if !s.GPSAutoStopEnabled {
		return nil
	}

	// The vehicle must be seen moving once before the stationary clock can
	// count down, otherwise a trip started while parked ends immediately.
	det := motion.NewDetector(source, motion.Config{
		MovementThresholdM:  cfg.Track.MovementThresholdM,
		BearingToleranceDeg: cfg.Track.BearingToleranceDeg,
	})
	gate := autotrack.NewWatcher(det, autotrack.WatcherConfig{
		Interval:             cfg.Track.DetectInterval,
		MotionCountThreshold: 1,
		StationaryTimeout:    cfg.Track.StationaryTimeout,
	})
	if err := gate.Run(ctx); err != nil {
		return err
	}

	mon := autotrack.NewMonitor(source, ctrl, autotrack.MonitorConfig{
		PollInterval:       cfg.Track.PollInterval,
		MaxAccuracyM:       cfg.Track.MaxAccuracyM,
		MovementThresholdM: cfg.Track.StopMovementThresholdM,
		StopAfter:          time.Duration(s.GPSAutoStopMinutes) * time.Minute,
	})
	return mon.Run(ctx)
}

// startWithRetry keeps poking the control endpoint until it accepts the
// start. The endpoint may still be booting when this manager comes up.
func startWithRetry(ctx context.Context, ctrl *autotrack.Controller, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for {
		err := ctrl.StartTracking(ctx)
		if err == nil {
			log.Printf("tracking started")
			return nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("tracking start failed, retrying: %v", err)
		if !sleepCtx(ctx, interval) {
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
