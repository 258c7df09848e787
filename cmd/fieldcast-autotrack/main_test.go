package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fieldcast/internal/autotrack"
	"fieldcast/internal/config"
	"fieldcast/internal/motion"
	"fieldcast/internal/settings"
)

// controlRecorder is a fake tracking-control endpoint that records the
// actions posted to it.
type controlRecorder struct {
	mu      sync.Mutex
	actions []string
	fail    int
}

func (c *controlRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string `json:"action"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.fail > 0 {
			c.fail--
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"not ready"}`))
			return
		}
		c.actions = append(c.actions, req.Action)
		w.WriteHeader(http.StatusOK)
	}
}

func (c *controlRecorder) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

// scriptedSource replays positions in order, repeating the last one forever.
type scriptedSource struct {
	mu  sync.Mutex
	pos []motion.Position
	i   int
}

func (s *scriptedSource) Position() (motion.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pos[s.i]
	if s.i < len(s.pos)-1 {
		s.i++
	}
	return p, nil
}

// movingSource yields a straight northbound track, ~100 m per sample.
func movingSource(samples int) *scriptedSource {
	src := &scriptedSource{}
	for i := 0; i < samples; i++ {
		src.pos = append(src.pos, motion.Position{
			Lat:       51.5 + float64(i)*0.0009,
			Lon:       -0.1,
			AccuracyM: 5,
		})
	}
	return src
}

func parkedSource() *scriptedSource {
	return &scriptedSource{pos: []motion.Position{{Lat: 51.5, Lon: -0.1, AccuracyM: 5}}}
}

func testTripConfig(t *testing.T, controlURL string) config.Config {
	t.Helper()
	var cfg config.Config
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	cfg.Track.ControlURL = controlURL
	cfg.Track.Timeout = time.Second
	cfg.Track.StartRetryInterval = 10 * time.Millisecond
	cfg.Track.DetectInterval = 5 * time.Millisecond
	cfg.Track.MotionCount = 2
	return cfg
}

func TestRunTripBootModeStartsOnce(t *testing.T) {
	rec := &controlRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	cfg := testTripConfig(t, srv.URL)
	s := settings.Settings{GPSStartMode: settings.StartModeBoot}

	err := runTrip(context.Background(), cfg, s, parkedSource(),
		autotrack.NewController(srv.URL, time.Second))
	if err != nil {
		t.Fatalf("run trip: %v", err)
	}
	if got := rec.recorded(); len(got) != 1 || got[0] != "start" {
		t.Fatalf("actions = %v, want [start]", got)
	}
}

func TestRunTripBootModeRetriesStart(t *testing.T) {
	rec := &controlRecorder{fail: 2}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	cfg := testTripConfig(t, srv.URL)
	s := settings.Settings{GPSStartMode: settings.StartModeBoot}

	err := runTrip(context.Background(), cfg, s, parkedSource(),
		autotrack.NewController(srv.URL, time.Second))
	if err != nil {
		t.Fatalf("run trip: %v", err)
	}
	if got := rec.recorded(); len(got) != 1 || got[0] != "start" {
		t.Fatalf("actions = %v, want [start] after retries", got)
	}
}

func TestRunTripMotionModeStartsAfterConfirmedMotion(t *testing.T) {
	rec := &controlRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	cfg := testTripConfig(t, srv.URL)
	s := settings.Settings{GPSStartMode: settings.StartModeMotion}

	err := runTrip(context.Background(), cfg, s, movingSource(12),
		autotrack.NewController(srv.URL, time.Second))
	if err != nil {
		t.Fatalf("run trip: %v", err)
	}
	if got := rec.recorded(); len(got) != 1 || got[0] != "start" {
		t.Fatalf("actions = %v, want [start]", got)
	}
}

func TestRunTripStopGateRequiresInitialMotion(t *testing.T) {
	rec := &controlRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	cfg := testTripConfig(t, srv.URL)
	s := settings.Settings{GPSStartMode: settings.StartModeManual, GPSAutoStopEnabled: true, GPSAutoStopMinutes: 10}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The vehicle never moves, so the monitor must never arm and no stop may
	// be posted; the trip only ends with the context.
	err := runTrip(ctx, cfg, s, parkedSource(),
		autotrack.NewController(srv.URL, time.Second))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if got := rec.recorded(); len(got) != 0 {
		t.Fatalf("actions = %v, want none while parked", got)
	}
}

func TestRunTripManualWithoutAutoStopSupervisesNothing(t *testing.T) {
	rec := &controlRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	cfg := testTripConfig(t, srv.URL)
	s := settings.Settings{GPSStartMode: settings.StartModeManual}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := runTrip(ctx, cfg, s, parkedSource(),
		autotrack.NewController(srv.URL, time.Second))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if got := rec.recorded(); len(got) != 0 {
		t.Fatalf("actions = %v, want none", got)
	}
}
