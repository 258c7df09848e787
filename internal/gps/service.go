package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Config controls the acquisition service.
//
// Exactly one goroutine owns the serial device for the daemon's lifetime; no
// other component may open it. That exclusivity is the reason the daemon +
// IPC design exists at all.
type Config struct {
	// Devices are candidate serial paths tried in priority order.
	Devices []string
	Baud    int

	// SNRUsedMin is the signal-to-noise floor (dB) above which a GSV
	// satellite counts as used. Tuned default, not a law of nature.
	SNRUsedMin int

	// RetryInterval is the pause after an I/O failure before rediscovery.
	RetryInterval time.Duration
	// NoDeviceInterval is the pause between discovery attempts while no
	// candidate device exists at all.
	NoDeviceInterval time.Duration
}

// Service runs the serial acquisition loop: discover the device, read NMEA
// lines, fold them into the store, and self-heal on faults. Faults become
// status fields; nothing propagates to the supervisor.
type Service struct {
	cfg   Config
	store *Store

	// open is swappable in tests to feed a simulated stream.
	open PortOpener

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closer io.Closer
}

func NewService(cfg Config, store *Store) *Service {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = []string{"/dev/ttyUSB1", "/dev/ttyUSB2", "/dev/ttyUSB3"}
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.NoDeviceInterval <= 0 {
		cfg.NoDeviceInterval = 10 * time.Second
	}
	return &Service{cfg: cfg, store: store, open: openSerialPort}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if s.store == nil {
		return fmt.Errorf("gps store is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.store.SetStatus(StatusConnecting)

		device, port, err := discoverDevice(s.cfg.Devices, s.cfg.Baud, s.open)
		if err != nil {
			if errors.Is(err, ErrNoDevice) {
				s.store.SetStatus(StatusNoDevice)
				s.store.SetDevice("")
				if !sleepCtx(ctx, s.cfg.NoDeviceInterval) {
					return
				}
				continue
			}
			log.Printf("gps device open failed: %v", err)
			s.store.SetStatus(StatusError)
			if !sleepCtx(ctx, s.cfg.RetryInterval) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.closer = port
		s.mu.Unlock()

		s.store.SetDevice(device)
		s.store.SetStatus(StatusConnected)
		log.Printf("gps connected device=%s baud=%d", device, s.cfg.Baud)

		err = s.readLoop(ctx, port)
		_ = port.Close()
		s.mu.Lock()
		s.closer = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		log.Printf("gps read stopped device=%s: %v", device, err)
		s.store.SetStatus(StatusError)
		if !sleepCtx(ctx, s.cfg.RetryInterval) {
			return
		}
	}
}

// errPortStalled means a read timed out with no data at all. The device is
// still open but has stopped streaming, e.g. its GNSS engine was switched
// off underneath us.
var errPortStalled = errors.New("gps port stalled")

// stallReader turns a timed-out zero-byte read into an error. Without it the
// scanner would treat the empty read as no-progress and retry, and a silent
// device would wedge the loop instead of triggering rediscovery.
type stallReader struct {
	r io.Reader
}

func (s stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n == 0 && err == nil {
		return 0, errPortStalled
	}
	return n, err
}

// readLoop consumes the port until an I/O error or cancellation. Returns the
// reason the stream ended; per-sentence faults never escape it.
func (s *Service) readLoop(ctx context.Context, port io.Reader) error {
	scanner := bufio.NewScanner(stallReader{r: port})
	// NMEA sentences are < 82 chars; allow headroom for chatty firmware.
	scanner.Buffer(make([]byte, 0, 256), 4096)

	st := newFixState(s.cfg.SNRUsedMin)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "$") {
			continue
		}
		if !checksumValid(line) {
			// Corrupt line; the store keeps its prior values.
			continue
		}

		now := time.Now().UTC()
		s.store.SentenceParsed(now)

		res, err := st.apply(line)
		if err != nil {
			continue
		}
		if res.validFix {
			s.store.MarkFix(now)
		}
		if res.updated {
			s.store.SetFix(st.snapshot(now))
		}

		switch {
		case st.status == FixValid:
			s.store.SetStatus(StatusFixValid)
		case st.satellitesVisible():
			s.store.SetStatus(StatusSearchingFix)
		default:
			s.store.SetStatus(StatusNoSatellites)
		}
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first. Reports whether the
// full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
