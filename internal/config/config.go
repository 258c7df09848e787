package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GPS   GPSConfig   `yaml:"gps"`
	IPC   IPCConfig   `yaml:"ipc"`
	Modem ModemConfig `yaml:"modem"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	Track TrackConfig `yaml:"track"`

	// SettingsPath is the operator settings file written by the web UI and
	// re-read by the managers every cycle.
	SettingsPath string `yaml:"settings_path"`
}

type GPSConfig struct {
	// Devices are candidate NMEA serial paths, tried in priority order. The
	// SIM7600-style modems enumerate several ttyUSB ports; the NMEA one is
	// usually the second or third.
	Devices []string `yaml:"devices"`
	Baud    int      `yaml:"baud"`

	SNRUsedMin       int           `yaml:"snr_used_min"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	NoDeviceInterval time.Duration `yaml:"no_device_interval"`
}

type IPCConfig struct {
	SocketPath string        `yaml:"socket_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ModemConfig struct {
	Enable bool `yaml:"enable"`

	// ATDevices are candidate AT-command ports probed during bring-up.
	ATDevices []string `yaml:"at_devices"`
	Baud      int      `yaml:"baud"`

	// ManagerService is the OS service that competes for the modem's serial
	// ports and must be paused during bring-up.
	ManagerService string `yaml:"manager_service"`

	// NMEASentences selects which sentence groups the modem emits.
	NMEASentences  string        `yaml:"nmea_sentences"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type MQTTConfig struct {
	// Broker empty means fix publishing is disabled.
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type TrackConfig struct {
	// ControlURL is the base URL of the appliance's tracking-control
	// endpoint.
	ControlURL string        `yaml:"control_url"`
	Timeout    time.Duration `yaml:"timeout"`

	// StartRetryInterval is the pause between attempts when the control
	// endpoint refuses a tracking start.
	StartRetryInterval time.Duration `yaml:"start_retry_interval"`

	DetectInterval      time.Duration `yaml:"detect_interval"`
	MotionCount         int           `yaml:"motion_count"`
	MovementThresholdM  float64       `yaml:"movement_threshold_m"`
	BearingToleranceDeg float64       `yaml:"bearing_tolerance_deg"`
	StationaryTimeout   time.Duration `yaml:"stationary_timeout"`

	PollInterval           time.Duration `yaml:"poll_interval"`
	MaxAccuracyM           float64       `yaml:"max_accuracy_m"`
	StopMovementThresholdM float64       `yaml:"stop_movement_threshold_m"`
}

// Load reads a YAML config. An empty path yields pure defaults, which are
// enough for a stock appliance image.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if len(cfg.GPS.Devices) == 0 {
		cfg.GPS.Devices = []string{"/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB3"}
	}
	if cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 115200
	}
	if cfg.GPS.Baud < 0 {
		return fmt.Errorf("gps.baud must be positive")
	}
	if cfg.GPS.SNRUsedMin == 0 {
		cfg.GPS.SNRUsedMin = 25
	}
	if cfg.GPS.RetryInterval <= 0 {
		cfg.GPS.RetryInterval = 5 * time.Second
	}
	if cfg.GPS.NoDeviceInterval <= 0 {
		cfg.GPS.NoDeviceInterval = 10 * time.Second
	}

	if cfg.IPC.SocketPath == "" {
		cfg.IPC.SocketPath = "/tmp/fieldcast-gps.sock"
	}
	if cfg.IPC.Timeout <= 0 {
		cfg.IPC.Timeout = 3 * time.Second
	}

	if len(cfg.Modem.ATDevices) == 0 {
		cfg.Modem.ATDevices = []string{"/dev/ttyUSB2", "/dev/ttyUSB3", "/dev/ttyUSB4"}
	}
	if cfg.Modem.Baud == 0 {
		cfg.Modem.Baud = 115200
	}
	if cfg.Modem.ManagerService == "" {
		cfg.Modem.ManagerService = "ModemManager"
	}
	if cfg.Modem.NMEASentences == "" {
		// GGA + RMC + GSV, the subset the parser consumes.
		cfg.Modem.NMEASentences = "gga,rmc,gsv"
	}
	if cfg.Modem.CommandTimeout <= 0 {
		cfg.Modem.CommandTimeout = 2 * time.Second
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "fieldcast-gps"
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "fieldcast/gps/fix"
		}
	}

	if cfg.Track.ControlURL == "" {
		cfg.Track.ControlURL = "http://127.0.0.1:8080"
	}
	if cfg.Track.Timeout <= 0 {
		cfg.Track.Timeout = 5 * time.Second
	}
	if cfg.Track.StartRetryInterval <= 0 {
		cfg.Track.StartRetryInterval = 5 * time.Second
	}
	if cfg.Track.DetectInterval <= 0 {
		cfg.Track.DetectInterval = 2 * time.Second
	}
	if cfg.Track.MotionCount <= 0 {
		cfg.Track.MotionCount = 3
	}
	if cfg.Track.MovementThresholdM <= 0 {
		cfg.Track.MovementThresholdM = 10
	}
	if cfg.Track.BearingToleranceDeg <= 0 {
		cfg.Track.BearingToleranceDeg = 30
	}
	if cfg.Track.StationaryTimeout <= 0 {
		cfg.Track.StationaryTimeout = 60 * time.Second
	}
	if cfg.Track.PollInterval <= 0 {
		cfg.Track.PollInterval = 30 * time.Second
	}
	if cfg.Track.MaxAccuracyM <= 0 {
		cfg.Track.MaxAccuracyM = 20
	}
	if cfg.Track.StopMovementThresholdM <= 0 {
		cfg.Track.StopMovementThresholdM = 50
	}

	if cfg.SettingsPath == "" {
		cfg.SettingsPath = "/var/lib/fieldcast/settings.yaml"
	}
	return nil
}
