package gps

// FixStatus reports whether the receiver currently has a usable position.
type FixStatus string

const (
	FixNone  FixStatus = "no_fix"
	FixValid FixStatus = "valid"
)

// FixType distinguishes a 2D (no altitude) from a 3D solution.
type FixType string

const (
	Fix2D FixType = "2D"
	Fix3D FixType = "3D"
)

// Status is the daemon-level health state, derived by the acquisition loop.
type Status string

const (
	StatusStarting     Status = "starting"
	StatusConnecting   Status = "connecting"
	StatusNoDevice     Status = "no_device"
	StatusConnected    Status = "connected"
	StatusSearchingFix Status = "searching_fix"
	StatusFixValid     Status = "fix_valid"
	StatusNoSatellites Status = "no_satellites"
	StatusError        Status = "error"
)

// ConstellationStats is the per-constellation satellite breakdown accumulated
// from GSV sentences.
type ConstellationStats struct {
	Visible int `json:"visible"`
	Used    int `json:"used"`
	MaxSNR  int `json:"max_snr"`
}

// SatelliteBreakdown holds one entry per supported constellation. The generic
// GN talker is intentionally not represented; counting it would double-count
// satellites already reported under their native talker.
type SatelliteBreakdown struct {
	GPS     ConstellationStats `json:"gps"`
	GLONASS ConstellationStats `json:"glonass"`
	Galileo ConstellationStats `json:"galileo"`
	BeiDou  ConstellationStats `json:"beidou"`
}

// Fix is the current best-known position/velocity estimate. It is published
// as a whole-value snapshot; readers never see a half-written update.
//
// Optional fields are pointers so "never reported" is distinguishable from a
// zero measurement on the wire.
type Fix struct {
	Status    FixStatus `json:"fix_status"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`

	AltitudeM *float64 `json:"altitude,omitempty"`
	SpeedMS   *float64 `json:"speed,omitempty"`
	CourseDeg *float64 `json:"course,omitempty"`
	Type      FixType  `json:"fix_type,omitempty"`
	HDOP      *float64 `json:"hdop,omitempty"`

	SatellitesUsed    int                `json:"satellites_used"`
	SatellitesVisible int                `json:"satellites_visible"`
	Satellites        SatelliteBreakdown `json:"satellites"`

	// TimestampUTC is the time of the last checksum-valid sentence, even if
	// that sentence was semantically a no-op.
	TimestampUTC string `json:"timestamp,omitempty"`
}

// Health is the daemon's self-reported state, owned by the acquisition loop.
type Health struct {
	Status          Status  `json:"daemon_status"`
	UptimeSec       float64 `json:"uptime"`
	SentencesParsed uint64  `json:"sentences_parsed"`
	LastFixUTC      string  `json:"last_fix_time,omitempty"`
	Device          string  `json:"current_device,omitempty"`
}
