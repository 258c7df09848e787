package gps

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goserial "github.com/jacobsa/go-serial/serial"
)

// ErrNoDevice means none of the candidate device paths exist yet. Expected
// at boot before USB enumeration; callers retry rather than escalate.
var ErrNoDevice = errors.New("no gps device present")

// serialReadTimeout bounds a single blocking read. A receiver emits sentences
// continuously, so a read that returns nothing for this long means the device
// went silent and the loop must reconnect instead of waiting forever.
const serialReadTimeout = 5 * time.Second

// PortOpener opens a serial device. Injected so tests can feed the
// acquisition loop a simulated NMEA stream.
type PortOpener func(device string, baud int) (io.ReadWriteCloser, error)

func openSerialPort(device string, baud int) (io.ReadWriteCloser, error) {
	return goserial.Open(goserial.OpenOptions{
		PortName:              device,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		ParityMode:            goserial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: uint(serialReadTimeout / time.Millisecond),
	})
}

// discoverDevice tries candidates in priority order and opens the first one
// that exists and can be opened. Absence of every candidate is reported as
// ErrNoDevice; an existing device that fails to open is a distinct error so
// diagnostics can tell the two apart.
func discoverDevice(candidates []string, baud int, open PortOpener) (string, io.ReadWriteCloser, error) {
	anyPresent := false
	var lastErr error
	for _, dev := range candidates {
		if _, err := os.Stat(dev); err != nil {
			continue
		}
		anyPresent = true
		port, err := open(dev, baud)
		if err != nil {
			lastErr = fmt.Errorf("open %s: %w", dev, err)
			continue
		}
		return dev, port, nil
	}
	if !anyPresent {
		return "", nil, ErrNoDevice
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no usable gps device among %d candidates", len(candidates))
	}
	return "", nil, lastErr
}
