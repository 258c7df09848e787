// fieldcast-gpsd owns the GPS serial device and answers location/status
// queries over a local unix socket. Exactly one instance runs per appliance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fieldcast/internal/config"
	"fieldcast/internal/gps"
	"fieldcast/internal/ipc"
	"fieldcast/internal/modem"
	"fieldcast/internal/publish"
)

func main() {
	var (
		configPath string
		socketPath string
		devicesCSV string
		baud       int
		daemonize  bool
		pidfile    string
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (empty for defaults)")
	flag.StringVar(&socketPath, "socket", "", "Unix socket path (overrides config)")
	flag.StringVar(&devicesCSV, "devices", "", "Comma-separated serial device candidates (overrides config)")
	flag.IntVar(&baud, "baud", 0, "Serial baud rate (overrides config)")
	flag.BoolVar(&daemonize, "daemon", false, "Fork into the background")
	flag.StringVar(&pidfile, "pidfile", "", "Write the daemon PID to this file")
	flag.Parse()

	if daemonize {
		if err := forkDaemon(pidfile); err != nil {
			log.Fatalf("daemonize failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if socketPath != "" {
		cfg.IPC.SocketPath = socketPath
	}
	if devicesCSV != "" {
		cfg.GPS.Devices = splitCSV(devicesCSV)
	}
	if baud > 0 {
		cfg.GPS.Baud = baud
	}

	if pidfile != "" {
		if err := writePidfile(pidfile); err != nil {
			log.Fatalf("pidfile failed: %v", err)
		}
		defer func() { _ = os.Remove(pidfile) }()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("fieldcast-gpsd starting socket=%s devices=%s baud=%d",
		cfg.IPC.SocketPath, strings.Join(cfg.GPS.Devices, ","), cfg.GPS.Baud)

	if cfg.Modem.Enable {
		res := modem.BringUp(ctx, modem.Config{
			ATDevices:      cfg.Modem.ATDevices,
			Baud:           cfg.Modem.Baud,
			ManagerService: cfg.Modem.ManagerService,
			NMEASentences:  cfg.Modem.NMEASentences,
			CommandTimeout: cfg.Modem.CommandTimeout,
		})
		if !res.OK() {
			// The modem may already be streaming NMEA; discovery decides.
			log.Printf("modem bring-up incomplete: %v", res.Problems)
		}
	}

	store := gps.NewStore(time.Now().UTC())

	svc := gps.NewService(gps.Config{
		Devices:          cfg.GPS.Devices,
		Baud:             cfg.GPS.Baud,
		SNRUsedMin:       cfg.GPS.SNRUsedMin,
		RetryInterval:    cfg.GPS.RetryInterval,
		NoDeviceInterval: cfg.GPS.NoDeviceInterval,
	}, store)
	if err := svc.Start(ctx); err != nil {
		log.Fatalf("gps service start failed: %v", err)
	}
	defer svc.Close()

	server := ipc.NewServer(cfg.IPC.SocketPath, store)
	if err := server.Start(ctx); err != nil {
		log.Fatalf("ipc server start failed: %v", err)
	}
	defer server.Close()

	pub, err := publish.New(publish.Config{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topic:    cfg.MQTT.Topic,
	})
	if err != nil {
		// Acquisition and IPC must keep working without the broker.
		log.Printf("mqtt publisher disabled: %v", err)
	}
	if pub != nil {
		defer pub.Close()
		go pub.Run(ctx, func() gps.Fix {
			fix, _ := store.Snapshot(time.Now().UTC())
			return fix
		})
	}

	<-ctx.Done()
	log.Printf("fieldcast-gpsd stopping")
}

// forkDaemon re-executes the binary detached from the controlling terminal,
// with -daemon stripped so the child runs in the foreground.
func forkDaemon(pidfile string) error {
	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if a == "-daemon" || a == "--daemon" {
			continue
		}
		args = append(args, a)
	}
	if pidfile != "" && !hasFlag(args, "pidfile") {
		args = append(args, "-pidfile", pidfile)
	}

	cmd := exec.Command(os.Args[0], args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	fmt.Printf("started fieldcast-gpsd pid=%d\n", cmd.Process.Pid)
	return cmd.Process.Release()
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == "-"+name || a == "--"+name ||
			strings.HasPrefix(a, "-"+name+"=") || strings.HasPrefix(a, "--"+name+"=") {
			return true
		}
	}
	return false
}

func writePidfile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
