// Package modem performs the one-time vendor bring-up of the cellular
// modem's GNSS engine before the acquisition loop starts. Everything here is
// best-effort: a modem that refuses an AT command may still be streaming
// NMEA from a previous boot, so failures are recorded, logged, and ignored.
package modem

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	goserial "github.com/jacobsa/go-serial/serial"
)

type Config struct {
	// ATDevices are candidate command ports, probed in order with a bare
	// "AT" until one answers OK.
	ATDevices []string
	Baud      int

	// ManagerService is the OS service (typically ModemManager) that holds
	// the modem's ports open; it is stopped for the duration of bring-up
	// and restarted afterwards.
	ManagerService string

	// NMEASentences is the comma-separated sentence selection passed to the
	// modem, e.g. "gga,rmc,gsv".
	NMEASentences string

	CommandTimeout time.Duration

	// runService and openPort are injectable for tests.
	runService func(ctx context.Context, verb, service string) error
	openPort   func(device string, baud int, timeout time.Duration) (io.ReadWriteCloser, error)
}

// Result records what bring-up achieved. It is informational; the daemon
// proceeds to device discovery regardless.
type Result struct {
	ATDevice         string
	ManagerStopped   bool
	ManagerRestarted bool
	CommandsSent     []string
	Problems         []string
}

func (r Result) OK() bool {
	return r.ATDevice != "" && len(r.Problems) == 0
}

// sentenceMask maps the sentence selection to the SIM7600 CGPSNMEA bitmask:
// bit 0 GGA, bit 2 RMC, bit 4 GSV.
func sentenceMask(selection string) int {
	mask := 0
	for _, s := range strings.Split(selection, ",") {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "gga":
			mask |= 1 << 0
		case "gsa":
			mask |= 1 << 1
		case "rmc":
			mask |= 1 << 2
		case "vtg":
			mask |= 1 << 3
		case "gsv":
			mask |= 1 << 4
		}
	}
	if mask == 0 {
		mask = 0b10101
	}
	return mask
}

// BringUp runs the vendor initialization sequence. It never returns an
// error; consult the Result for what worked.
func BringUp(ctx context.Context, cfg Config) Result {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if cfg.ManagerService == "" {
		cfg.ManagerService = "ModemManager"
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.runService == nil {
		cfg.runService = runSystemctl
	}
	if cfg.openPort == nil {
		cfg.openPort = openATPort
	}

	var res Result

	if err := cfg.runService(ctx, "stop", cfg.ManagerService); err != nil {
		res.Problems = append(res.Problems, fmt.Sprintf("stop %s: %v", cfg.ManagerService, err))
	} else {
		res.ManagerStopped = true
	}
	// Whatever happens below, give the ports back.
	defer func() {
		if err := cfg.runService(ctx, "start", cfg.ManagerService); err != nil {
			res.Problems = append(res.Problems, fmt.Sprintf("restart %s: %v", cfg.ManagerService, err))
		} else {
			res.ManagerRestarted = true
		}
	}()

	port, device := probeATPort(cfg, &res)
	if port == nil {
		res.Problems = append(res.Problems, "no AT-capable port found")
		return res
	}
	defer func() { _ = port.Close() }()
	res.ATDevice = device

	commands := []string{
		"AT+CGPS=0",
		fmt.Sprintf("AT+CGPSNMEA=%d", sentenceMask(cfg.NMEASentences)),
		"AT+CGPS=1",
	}
	for _, cmd := range commands {
		if err := sendCommand(port, cmd, cfg.CommandTimeout); err != nil {
			res.Problems = append(res.Problems, fmt.Sprintf("%s: %v", cmd, err))
			continue
		}
		res.CommandsSent = append(res.CommandsSent, cmd)
	}

	log.Printf("modem bring-up device=%s commands=%d problems=%d", res.ATDevice, len(res.CommandsSent), len(res.Problems))
	return res
}

func probeATPort(cfg Config, res *Result) (io.ReadWriteCloser, string) {
	for _, dev := range cfg.ATDevices {
		if _, err := os.Stat(dev); err != nil {
			continue
		}
		port, err := cfg.openPort(dev, cfg.Baud, cfg.CommandTimeout)
		if err != nil {
			res.Problems = append(res.Problems, fmt.Sprintf("open %s: %v", dev, err))
			continue
		}
		if err := sendCommand(port, "AT", cfg.CommandTimeout); err != nil {
			_ = port.Close()
			continue
		}
		return port, dev
	}
	return nil, ""
}

// sendCommand writes one AT command and waits for OK or ERROR.
func sendCommand(port io.ReadWriter, cmd string, timeout time.Duration) error {
	if _, err := io.WriteString(port, cmd+"\r\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	var got strings.Builder
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if n > 0 {
			got.Write(buf[:n])
			if strings.Contains(got.String(), "OK") {
				return nil
			}
			if strings.Contains(got.String(), "ERROR") {
				return fmt.Errorf("modem answered ERROR")
			}
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
	return fmt.Errorf("timeout waiting for OK")
}

func runSystemctl(ctx context.Context, verb, service string) error {
	cmd := exec.CommandContext(ctx, "systemctl", verb, service)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s %s: %v (%s)", verb, service, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func openATPort(device string, baud int, timeout time.Duration) (io.ReadWriteCloser, error) {
	return goserial.Open(goserial.OpenOptions{
		PortName:              device,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		ParityMode:            goserial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(timeout / time.Millisecond),
	})
}
