package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GPS.Baud != 115200 {
		t.Fatalf("baud = %d, want 115200", cfg.GPS.Baud)
	}
	if cfg.IPC.SocketPath == "" {
		t.Fatalf("expected default socket path")
	}
	if cfg.Track.MotionCount != 3 {
		t.Fatalf("motion count = %d, want 3", cfg.Track.MotionCount)
	}
	if cfg.Track.StationaryTimeout != 60*time.Second {
		t.Fatalf("stationary timeout = %v, want 60s", cfg.Track.StationaryTimeout)
	}
	if cfg.Track.StartRetryInterval != 5*time.Second {
		t.Fatalf("start retry interval = %v, want 5s", cfg.Track.StartRetryInterval)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldcast.yaml")
	body := `
gps:
  devices: ["/dev/ttyUSB5"]
  baud: 9600
  snr_used_min: 30
ipc:
  socket_path: /run/fieldcast/gps.sock
track:
  detect_interval: 1s
  motion_count: 5
mqtt:
  broker: tcp://localhost:1883
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.GPS.Devices) != 1 || cfg.GPS.Devices[0] != "/dev/ttyUSB5" {
		t.Fatalf("devices = %v", cfg.GPS.Devices)
	}
	if cfg.GPS.Baud != 9600 {
		t.Fatalf("baud = %d, want 9600", cfg.GPS.Baud)
	}
	if cfg.GPS.SNRUsedMin != 30 {
		t.Fatalf("snr = %d, want 30", cfg.GPS.SNRUsedMin)
	}
	if cfg.IPC.SocketPath != "/run/fieldcast/gps.sock" {
		t.Fatalf("socket = %q", cfg.IPC.SocketPath)
	}
	if cfg.Track.DetectInterval != time.Second {
		t.Fatalf("detect interval = %v, want 1s", cfg.Track.DetectInterval)
	}
	if cfg.Track.MotionCount != 5 {
		t.Fatalf("motion count = %d, want 5", cfg.Track.MotionCount)
	}
	// MQTT defaults kick in once a broker is configured.
	if cfg.MQTT.Topic != "fieldcast/gps/fix" {
		t.Fatalf("mqtt topic = %q", cfg.MQTT.Topic)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config path")
	}
}

func TestValidateRejectsNegativeBaud(t *testing.T) {
	cfg := Config{GPS: GPSConfig{Baud: -1}}
	if err := DefaultAndValidate(&cfg); err == nil {
		t.Fatalf("expected error for negative baud")
	}
}
