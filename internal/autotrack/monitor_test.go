package autotrack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fieldcast/internal/motion"
)

func TestMonitorStepAccuracyGate(t *testing.T) {
	m := NewMonitor(nil, nil, MonitorConfig{MaxAccuracyM: 20, MovementThresholdM: 50, StopAfter: 10 * time.Minute})

	now := time.Now()
	if m.step(motion.Position{Lat: 51, Lon: 0, AccuracyM: 80}, now) {
		t.Fatalf("poor-accuracy sample triggered stop")
	}
	if m.ref != nil {
		t.Fatalf("poor-accuracy sample set the reference")
	}
}

func TestMonitorMovementResetsClock(t *testing.T) {
	m := NewMonitor(nil, nil, MonitorConfig{MaxAccuracyM: 20, MovementThresholdM: 50, StopAfter: 10 * time.Minute})

	now := time.Now()
	m.step(motion.Position{Lat: 51.0, Lon: 0, AccuracyM: 5}, now)

	// ~100 m north of the reference: clock restarts on the new spot.
	moved := motion.Position{Lat: 51.0 + 0.0009, Lon: 0, AccuracyM: 5}
	if m.step(moved, now.Add(9*time.Minute)) {
		t.Fatalf("movement triggered stop")
	}
	if m.ref.Lat != moved.Lat {
		t.Fatalf("reference did not chase the vehicle")
	}

	// 9 more minutes parked: still under the threshold from the reset.
	if m.step(moved, now.Add(18*time.Minute)) {
		t.Fatalf("stop before stationary timeout elapsed from reset")
	}
	// Past it now.
	if !m.step(moved, now.Add(19*time.Minute+time.Second)) {
		t.Fatalf("expected stop after full stationary period")
	}
}

func TestMonitorJitterDoesNotReset(t *testing.T) {
	m := NewMonitor(nil, nil, MonitorConfig{MaxAccuracyM: 20, MovementThresholdM: 50, StopAfter: 10 * time.Minute})

	now := time.Now()
	m.step(motion.Position{Lat: 51.0, Lon: 0, AccuracyM: 5}, now)
	// ~20 m of drift, under the 50 m threshold.
	jitter := motion.Position{Lat: 51.0 + 0.00018, Lon: 0, AccuracyM: 5}
	if !m.step(jitter, now.Add(10*time.Minute+time.Second)) {
		t.Fatalf("jitter reset the stationary clock")
	}
}

type stablePositionSource struct{ pos motion.Position }

func (s *stablePositionSource) Position() (motion.Position, error) { return s.pos, nil }

func TestMonitorRunStopsTracking(t *testing.T) {
	var stops atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stops.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})
	}))
	defer srv.Close()

	src := &stablePositionSource{pos: motion.Position{Lat: 51, Lon: 0, AccuracyM: 5}}
	m := NewMonitor(src, NewController(srv.URL, time.Second), MonitorConfig{
		PollInterval: 5 * time.Millisecond,
		StopAfter:    30 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if stops.Load() != 1 {
		t.Fatalf("stop calls = %d, want 1", stops.Load())
	}
}

func TestMonitorRunRetriesFailedStop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "recorder busy"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})
	}))
	defer srv.Close()

	src := &stablePositionSource{pos: motion.Position{Lat: 51, Lon: 0, AccuracyM: 5}}
	m := NewMonitor(src, NewController(srv.URL, time.Second), MonitorConfig{
		PollInterval: 5 * time.Millisecond,
		StopAfter:    20 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls.Load() < 2 {
		t.Fatalf("stop calls = %d, want a retry after the failure", calls.Load())
	}
}

type failingSource struct{}

func (failingSource) Position() (motion.Position, error) {
	return motion.Position{}, errors.New("no fix")
}

func TestMonitorRunGPSDropoutNeverStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("stop endpoint called during GPS dropout")
	}))
	defer srv.Close()

	m := NewMonitor(failingSource{}, NewController(srv.URL, time.Second), MonitorConfig{
		PollInterval: 2 * time.Millisecond,
		StopAfter:    5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := m.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run = %v, want deadline exceeded", err)
	}
}
