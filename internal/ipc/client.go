package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"fieldcast/internal/gps"
)

// ErrDaemonUnavailable means the daemon is not listening on the socket (not
// running yet, crashed, or socket missing). This is a routine condition for
// callers, on par with "no fix yet": handle it, don't crash on it.
var ErrDaemonUnavailable = errors.New("GPS daemon not available")

// NoFixError is returned by Location when the daemon answered but has no
// valid fix. It carries the satellite breakdown so status displays can tell
// "no line of sight" from "hardware dead".
type NoFixError struct {
	Response LocationResponse
}

func (e *NoFixError) Error() string {
	return "no GPS fix: " + SatelliteSummary(e.Response.Fix)
}

// Client is a thin IPC client. It dials fresh per request with a bounded
// timeout and keeps no connection state.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{SocketPath: socketPath, Timeout: timeout}
}

// Location fetches the full fix snapshot. On a no-fix answer the response is
// still returned alongside a *NoFixError so callers can show satellite
// detail.
func (c *Client) Location() (LocationResponse, error) {
	var resp LocationResponse
	if err := c.roundTrip(CommandGetLocation, &resp); err != nil {
		return LocationResponse{}, err
	}
	if resp.Fix.Status != gps.FixValid {
		return resp, &NoFixError{Response: resp}
	}
	return resp, nil
}

// Status fetches the abbreviated daemon health.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	if err := c.roundTrip(CommandGetStatus, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

func (c *Client) roundTrip(command string, out any) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	conn, err := net.DialTimeout("unix", c.SocketPath, timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	req, err := json.Marshal(Request{Command: command})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(req, '\n')); err != nil {
		return fmt.Errorf("%w: write: %v", ErrDaemonUnavailable, err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("%w: read: %v", ErrDaemonUnavailable, err)
	}

	var fail ErrorResponse
	if err := json.Unmarshal(line, &fail); err != nil {
		return fmt.Errorf("%w: bad response: %v", ErrDaemonUnavailable, err)
	}
	if fail.Error != "" {
		return fmt.Errorf("daemon error: %s", fail.Error)
	}
	if err := json.Unmarshal(line, out); err != nil {
		return fmt.Errorf("%w: bad response: %v", ErrDaemonUnavailable, err)
	}
	return nil
}

// SatelliteSummary renders the per-constellation visibility in one line,
// e.g. "GPS 8 seen/5 used/46dB, GLONASS 2 seen/1 used/30dB".
func SatelliteSummary(f gps.Fix) string {
	type entry struct {
		name  string
		stats gps.ConstellationStats
	}
	entries := []entry{
		{"GPS", f.Satellites.GPS},
		{"GLONASS", f.Satellites.GLONASS},
		{"Galileo", f.Satellites.Galileo},
		{"BeiDou", f.Satellites.BeiDou},
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.stats.Visible == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d seen/%d used/%ddB", e.name, e.stats.Visible, e.stats.Used, e.stats.MaxSNR))
	}
	if len(parts) == 0 {
		return "no satellites visible"
	}
	return strings.Join(parts, ", ")
}
