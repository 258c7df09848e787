// Package ipc exposes the daemon's fix store to local clients over a
// unix-domain socket. The protocol is newline-delimited JSON request/response;
// a connection may issue any number of requests.
package ipc

import (
	"fieldcast/internal/gps"
)

const (
	CommandGetLocation = "get_location"
	CommandGetStatus   = "get_status"
)

type Request struct {
	Command string `json:"command"`
}

// Stats is the daemon bookkeeping attached to every response.
type Stats struct {
	UptimeSec       float64 `json:"uptime"`
	SentencesParsed uint64  `json:"sentences_parsed"`
	LastFixUTC      string  `json:"last_fix_time,omitempty"`
	Device          string  `json:"current_device,omitempty"`
}

// LocationResponse is the full fix snapshot answered to get_location.
type LocationResponse struct {
	gps.Fix
	DaemonStats Stats `json:"daemon_stats"`
}

// StatusResponse is the abbreviated health answered to get_status.
type StatusResponse struct {
	DaemonStatus gps.Status    `json:"daemon_status"`
	FixStatus    gps.FixStatus `json:"fix_status"`
	TimestampUTC string        `json:"timestamp,omitempty"`
	DaemonStats  Stats         `json:"daemon_stats"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func statsFromHealth(h gps.Health) Stats {
	return Stats{
		UptimeSec:       h.UptimeSec,
		SentencesParsed: h.SentencesParsed,
		LastFixUTC:      h.LastFixUTC,
		Device:          h.Device,
	}
}
