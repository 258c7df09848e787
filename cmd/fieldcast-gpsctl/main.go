// fieldcast-gpsctl is the operator's query tool for the GPS daemon. It prints
// the daemon's answer as indented JSON and exits non-zero on any failure, so
// it composes with shell scripts.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"fieldcast/internal/config"
	"fieldcast/internal/ipc"
)

func main() {
	var (
		configPath string
		socketPath string
		timeout    time.Duration
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (empty for defaults)")
	flag.StringVar(&socketPath, "socket", "", "Unix socket path (overrides config)")
	flag.DurationVar(&timeout, "timeout", 3*time.Second, "Request timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("config load failed: %v", err)
	}
	if socketPath != "" {
		cfg.IPC.SocketPath = socketPath
	}

	client := ipc.NewClient(cfg.IPC.SocketPath, timeout)

	switch flag.Arg(0) {
	case "location":
		resp, err := client.Location()
		var noFix *ipc.NoFixError
		switch {
		case errors.As(err, &noFix):
			fmt.Fprintf(os.Stderr, "no fix; satellites: %s\n", ipc.SatelliteSummary(noFix.Response.Fix))
			printJSON(noFix.Response)
			os.Exit(1)
		case err != nil:
			fatalf("%v", err)
		default:
			printJSON(resp)
		}
	case "status":
		resp, err := client.Status()
		if err != nil {
			fatalf("%v", err)
		}
		printJSON(resp)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: fieldcast-gpsctl [flags] location|status\n")
	flag.PrintDefaults()
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("encode response: %v", err)
	}
	fmt.Println(string(out))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
