// Package motion turns a stream of GPS fixes into a directional motion
// signal. A stationary receiver jitters by meters between fixes; a single
// large jump can be a glitch. Requiring two consecutive displacement vectors
// that point in a similar direction is the defense against both.
package motion

import (
	"math"
	"time"
)

const earthRadiusM = 6371000.0

// Position is one detection-cycle sample.
type Position struct {
	Lat, Lon  float64
	AccuracyM float64
	At        time.Time
}

// Source supplies the current position. An error means "no valid fix right
// now", a routine condition that detection cycles simply skip.
type Source interface {
	Position() (Position, error)
}

// Result is the tri-state outcome of a detection cycle.
type Result int

const (
	// NoFix means the cycle was skipped; state machines must not move
	// counters or timers on it.
	NoFix Result = iota
	NotMoving
	Moving
)

func (r Result) String() string {
	switch r {
	case NoFix:
		return "no_fix"
	case NotMoving:
		return "not_moving"
	case Moving:
		return "moving"
	default:
		return "unknown"
	}
}

type Config struct {
	// MovementThresholdM is the minimum displacement between two samples to
	// count as movement. Tuned default; see BearingToleranceDeg.
	MovementThresholdM float64
	// BearingToleranceDeg is the maximum angular difference between two
	// consecutive displacement bearings for motion to count as directional.
	BearingToleranceDeg float64
}

// Detector keeps a short position/bearing history and classifies each new
// sample. Histories are bounded: 3 positions, 2 bearings.
type Detector struct {
	cfg Config
	src Source

	positions []Position
	bearings  []float64
}

const (
	maxPositions = 3
	maxBearings  = maxPositions - 1
)

func NewDetector(src Source, cfg Config) *Detector {
	if cfg.MovementThresholdM <= 0 {
		cfg.MovementThresholdM = 10
	}
	if cfg.BearingToleranceDeg <= 0 {
		cfg.BearingToleranceDeg = 30
	}
	return &Detector{cfg: cfg, src: src}
}

// Detect runs one detection cycle: fetch a fix, append it to the history and
// classify. Call it on a fixed cadence.
func (d *Detector) Detect(now time.Time) Result {
	pos, err := d.src.Position()
	if err != nil {
		// No valid fix: ignore this cycle entirely, keep history.
		return NoFix
	}
	pos.At = now
	return d.observe(pos)
}

func (d *Detector) observe(pos Position) Result {
	d.positions = append(d.positions, pos)
	if len(d.positions) > maxPositions {
		d.positions = d.positions[len(d.positions)-maxPositions:]
	}
	if len(d.positions) < 2 {
		return NotMoving
	}

	prev := d.positions[len(d.positions)-2]
	dist := Distance(prev.Lat, prev.Lon, pos.Lat, pos.Lon)

	// Guard against reported accuracy worse than the nominal threshold:
	// jitter within the error circle must not look like travel.
	threshold := d.cfg.MovementThresholdM
	if acc := 2 * pos.AccuracyM; acc > threshold {
		threshold = acc
	}
	if dist < threshold {
		return NotMoving
	}

	bearing := Bearing(prev.Lat, prev.Lon, pos.Lat, pos.Lon)
	d.bearings = append(d.bearings, bearing)
	if len(d.bearings) > maxBearings {
		d.bearings = d.bearings[len(d.bearings)-maxBearings:]
	}
	if len(d.bearings) < 2 {
		return NotMoving
	}

	delta := bearingDelta(d.bearings[len(d.bearings)-2], d.bearings[len(d.bearings)-1])
	if delta <= d.cfg.BearingToleranceDeg {
		return Moving
	}
	// Displacement without direction: drift, not travel.
	return NotMoving
}

// Reset clears the histories, e.g. when a trip ends.
func (d *Detector) Reset() {
	d.positions = nil
	d.bearings = nil
}

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Bearing returns the initial (forward-azimuth) bearing in degrees 0-360
// from the first point to the second.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// bearingDelta returns the minimal angular difference between two bearings,
// wrap-aware (e.g. 350 and 10 differ by 20).
func bearingDelta(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}
