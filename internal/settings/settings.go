// Package settings reads the operator-tunable tracking settings. The web UI
// owns and writes this file; this package only reads it, once per manager
// cycle, so changes take effect without a restart.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	StartModeManual = "manual"
	StartModeBoot   = "boot"
	StartModeMotion = "motion"
)

type Settings struct {
	GPSAutoStopEnabled  bool   `yaml:"gps_auto_stop_enabled"`
	GPSAutoStopMinutes  int    `yaml:"gps_auto_stop_minutes"`
	GPSStartMode        string `yaml:"gps_start_mode"`
	GPSStopOnPowerLoss  bool   `yaml:"gps_stop_on_power_loss"`
	GPSPowerLossMinutes int    `yaml:"gps_power_loss_minutes"`
}

func Default() Settings {
	return Settings{
		GPSAutoStopEnabled:  true,
		GPSAutoStopMinutes:  10,
		GPSStartMode:        StartModeManual,
		GPSStopOnPowerLoss:  true,
		GPSPowerLossMinutes: 5,
	}
}

// Load reads the settings file, filling defaults for anything absent. A
// missing file is not an error; the appliance ships with defaults until the
// operator changes something.
func Load(path string) (Settings, error) {
	s := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Default(), fmt.Errorf("parse settings: %w", err)
	}

	switch s.GPSStartMode {
	case StartModeManual, StartModeBoot, StartModeMotion:
	case "":
		s.GPSStartMode = StartModeManual
	default:
		return Default(), fmt.Errorf("unknown gps_start_mode %q", s.GPSStartMode)
	}
	if s.GPSAutoStopMinutes <= 0 {
		s.GPSAutoStopMinutes = 10
	}
	if s.GPSPowerLossMinutes <= 0 {
		s.GPSPowerLossMinutes = 5
	}
	return s, nil
}
