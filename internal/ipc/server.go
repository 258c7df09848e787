package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"fieldcast/internal/gps"
)

// idleTimeout bounds how long a worker waits for the next request on an
// open connection.
const idleTimeout = 30 * time.Second

// Server answers fix/status queries on a local unix socket. Each accepted
// connection gets its own goroutine so a slow client never starves the
// rest; responses are built from store snapshots, so the acquisition loop is
// never blocked by readers.
type Server struct {
	socketPath string
	store      *gps.Store

	cancel   context.CancelFunc
	listener net.Listener
	wg       sync.WaitGroup

	mu sync.Mutex
}

func NewServer(socketPath string, store *gps.Store) *Server {
	return &Server{socketPath: socketPath, store: store}
}

// Start binds the socket and begins serving. A stale socket file from a
// previous run is removed first. Failure to bind is the one fault worth
// killing the daemon over, so it is returned rather than retried.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("ipc server is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if s.store == nil {
		return fmt.Errorf("ipc store is nil")
	}
	if s.socketPath == "" {
		return fmt.Errorf("ipc socket path is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", s.socketPath, err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.socketPath, err)
	}
	// Local clients run as other users (UI, managers).
	if err := os.Chmod(s.socketPath, 0o666); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod %s: %w", s.socketPath, err)
	}
	s.listener = ln

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(childCtx, ln)
	}()

	log.Printf("ipc listening socket=%s", s.socketPath)
	return nil
}

// Close stops the server and always removes the socket file, error paths
// included.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	ln := s.listener
	s.cancel = nil
	s.listener = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("ipc accept failed: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn handles one client. Disconnects mid-request are dropped
// silently; only this connection is affected.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), 64*1024)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if !scanner.Scan() {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleRequest(line)
		out, err := json.Marshal(resp)
		if err != nil {
			out, _ = json.Marshal(ErrorResponse{Error: "Internal error"})
		}
		out = append(out, '\n')
		_ = conn.SetWriteDeadline(time.Now().Add(idleTimeout))
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func (s *Server) handleRequest(raw []byte) any {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return ErrorResponse{Error: "Invalid JSON request"}
	}

	now := time.Now().UTC()
	switch req.Command {
	case CommandGetLocation:
		fix, health := s.store.Snapshot(now)
		return LocationResponse{Fix: fix, DaemonStats: statsFromHealth(health)}
	case CommandGetStatus:
		fix, health := s.store.Snapshot(now)
		return StatusResponse{
			DaemonStatus: health.Status,
			FixStatus:    fix.Status,
			TimestampUTC: fix.TimestampUTC,
			DaemonStats:  statsFromHealth(health),
		}
	default:
		return ErrorResponse{Error: "Unknown command"}
	}
}
