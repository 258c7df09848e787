package gps

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
)

const knotsToMetersPerSecond = 0.514444

// checksumValid reports whether line is a well-formed NMEA sentence with a
// matching XOR checksum. The acquisition loop counts a sentence as "parsed"
// exactly when this passes; typed parsing failures after this point are
// silent no-ops.
func checksumValid(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return false
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return false
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return false
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	return got == want[0]
}

type constellationAcc struct {
	Visible int
	Used    int
	MaxSNR  int
}

// fixState accumulates sentence data into the next fix snapshot. The
// acquisition loop owns it exclusively.
//
// Precedence rules:
//   - GGA establishes position authoritatively. RMC supplies position only
//     while no GGA-sourced fix exists, and such a fix is 2D (RMC carries no
//     altitude).
//   - GGA's used-satellite count wins over the GSV aggregate.
type fixState struct {
	snrUsedMin int

	status    FixStatus
	lat, lon  float64
	altM      float64
	altOK     bool
	speedMS   float64
	speedOK   bool
	courseDeg float64
	courseOK  bool
	fixType   FixType
	hdop      float64
	hdopOK    bool

	ggaFix  bool
	ggaUsed bool
	used    int

	gpsSat, gloSat, galSat, bdSat constellationAcc
}

func newFixState(snrUsedMin int) fixState {
	if snrUsedMin <= 0 {
		snrUsedMin = 25
	}
	return fixState{snrUsedMin: snrUsedMin, status: FixNone}
}

type applyResult struct {
	// updated means the published snapshot should be replaced.
	updated bool
	// validFix means the sentence carried a valid position solution.
	validFix bool
}

// apply parses one checksum-valid line and folds it into the state. Any
// parse failure leaves the state untouched.
func (st *fixState) apply(line string) (applyResult, error) {
	sent, err := gonmea.Parse(strings.TrimSpace(line))
	if err != nil {
		return applyResult{}, fmt.Errorf("nmea parse: %w", err)
	}

	switch s := sent.(type) {
	case gonmea.GGA:
		return st.applyGGA(s), nil
	case gonmea.RMC:
		return st.applyRMC(s), nil
	case gonmea.GSV:
		return st.applyGSV(s), nil
	default:
		return applyResult{}, nil
	}
}

func rawField(base gonmea.BaseSentence, i int) string {
	if i < 0 || i >= len(base.Fields) {
		return ""
	}
	return strings.TrimSpace(base.Fields[i])
}

// GGA raw fields: 0 time, 1 lat, 2 N/S, 3 lon, 4 E/W, 5 quality, 6 sats in
// use, 7 HDOP, 8 altitude, 9 M, ...
func (st *fixState) applyGGA(s gonmea.GGA) applyResult {
	var res applyResult

	if q := rawField(s.BaseSentence, 5); q != "" && q != "0" {
		if rawField(s.BaseSentence, 1) != "" && rawField(s.BaseSentence, 3) != "" {
			st.lat = s.Latitude
			st.lon = s.Longitude
			st.status = FixValid
			st.ggaFix = true
			if rawField(s.BaseSentence, 8) != "" {
				st.altM = s.Altitude
				st.altOK = true
				st.fixType = Fix3D
			} else {
				st.fixType = Fix2D
			}
			res.updated = true
			res.validFix = true
		}
	}

	if rawField(s.BaseSentence, 6) != "" {
		st.used = int(s.NumSatellites)
		st.ggaUsed = true
		res.updated = true
	}
	if rawField(s.BaseSentence, 7) != "" {
		st.hdop = s.HDOP
		st.hdopOK = true
		res.updated = true
	}
	return res
}

// RMC raw fields: 0 time, 1 status, 2 lat, 3 N/S, 4 lon, 5 E/W, 6 speed kt,
// 7 course, 8 date, ...
func (st *fixState) applyRMC(s gonmea.RMC) applyResult {
	var res applyResult

	if strings.ToUpper(strings.TrimSpace(s.Validity)) != "A" {
		// Void fixes carry nothing trustworthy.
		return res
	}

	if rawField(s.BaseSentence, 6) != "" {
		st.speedMS = s.Speed * knotsToMetersPerSecond
		st.speedOK = true
		res.updated = true
	}
	if rawField(s.BaseSentence, 7) != "" {
		st.courseDeg = math.Mod(s.Course+360.0, 360.0)
		st.courseOK = true
		res.updated = true
	}

	// Position from RMC only while GGA has not established the fix.
	if !st.ggaFix && rawField(s.BaseSentence, 2) != "" && rawField(s.BaseSentence, 4) != "" {
		st.lat = s.Latitude
		st.lon = s.Longitude
		st.status = FixValid
		st.fixType = Fix2D
		res.updated = true
		res.validFix = true
	} else if st.status == FixValid {
		res.validFix = true
	}
	return res
}

func (st *fixState) applyGSV(s gonmea.GSV) applyResult {
	var acc *constellationAcc
	switch strings.ToUpper(s.BaseSentence.Talker) {
	case "GP":
		acc = &st.gpsSat
	case "GL":
		acc = &st.gloSat
	case "GA":
		acc = &st.galSat
	case "BD", "GB":
		acc = &st.bdSat
	default:
		// GN aggregates all constellations; counting it would double-count.
		return applyResult{}
	}

	// Message 1 of a group restarts this constellation's accumulation.
	if s.MessageNumber == 1 {
		*acc = constellationAcc{}
	}
	acc.Visible = int(s.NumberSVsInView)
	for _, info := range s.Info {
		snr := int(info.SNR)
		if snr > acc.MaxSNR {
			acc.MaxSNR = snr
		}
		if snr >= st.snrUsedMin {
			acc.Used++
		}
	}
	return applyResult{updated: true}
}

// snapshot builds the publishable Fix. Optional fields get fresh pointers so
// later sentences never mutate an already published snapshot.
func (st *fixState) snapshot(nowUTC time.Time) Fix {
	out := Fix{
		Status:    st.status,
		Latitude:  st.lat,
		Longitude: st.lon,
		Type:      st.fixType,
		Satellites: SatelliteBreakdown{
			GPS:     ConstellationStats{Visible: st.gpsSat.Visible, Used: st.gpsSat.Used, MaxSNR: st.gpsSat.MaxSNR},
			GLONASS: ConstellationStats{Visible: st.gloSat.Visible, Used: st.gloSat.Used, MaxSNR: st.gloSat.MaxSNR},
			Galileo: ConstellationStats{Visible: st.galSat.Visible, Used: st.galSat.Used, MaxSNR: st.galSat.MaxSNR},
			BeiDou:  ConstellationStats{Visible: st.bdSat.Visible, Used: st.bdSat.Used, MaxSNR: st.bdSat.MaxSNR},
		},
		TimestampUTC: nowUTC.UTC().Format(time.RFC3339Nano),
	}
	if st.altOK {
		v := st.altM
		out.AltitudeM = &v
	}
	if st.speedOK {
		v := st.speedMS
		out.SpeedMS = &v
	}
	if st.courseOK {
		v := st.courseDeg
		out.CourseDeg = &v
	}
	if st.hdopOK {
		v := st.hdop
		out.HDOP = &v
	}

	out.SatellitesVisible = st.gpsSat.Visible + st.gloSat.Visible + st.galSat.Visible + st.bdSat.Visible
	if st.ggaUsed {
		out.SatellitesUsed = st.used
	} else {
		out.SatellitesUsed = st.gpsSat.Used + st.gloSat.Used + st.galSat.Used + st.bdSat.Used
	}
	return out
}

// satellitesVisible lets the acquisition loop tell "searching for a fix"
// from "no satellites at all".
func (st *fixState) satellitesVisible() bool {
	return st.gpsSat.Visible+st.gloSat.Visible+st.galSat.Visible+st.bdSat.Visible > 0
}
