// Package listener receives newline-delimited commands on a tcp or unix
// socket. It stands in for a host application's command port when debugging
// a target.
package listener

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/grantcarthew/cmdport/internal/transport"
	"go.uber.org/zap"
)

// MaxLineSize bounds a single received command.
const MaxLineSize = 1 << 20

// Line is one received command.
type Line struct {
	Remote string    `json:"remote"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Handler processes a received command.
type Handler func(line Line)

// Server accepts connections and hands each received line to a Handler.
// Nothing is ever written back to the sender.
type Server struct {
	addr      transport.Address
	listener  net.Listener
	handler   Handler
	logger    *zap.Logger
	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer listens on addr. For unix addresses the parent directory is
// created and a stale socket file is removed. Port 0 picks a free port.
func NewServer(addr transport.Address, handler Handler, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		ln  net.Listener
		err error
	)
	switch addr.Network {
	case transport.NetworkUnix:
		ln, err = listenUnix(addr.Path)
	case transport.NetworkTCP, "":
		ln, err = net.Listen("tcp", addr.String())
		if err == nil {
			tcp := ln.Addr().(*net.TCPAddr)
			addr = transport.TCP(addr.Host, tcp.Port)
		}
	default:
		return nil, fmt.Errorf("cannot listen on network %q", addr.Network)
	}
	if err != nil {
		return nil, err
	}

	return &Server{
		addr:     addr,
		listener: ln,
		handler:  handler,
		logger:   logger,
		closed:   make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

func listenUnix(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create unix socket: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return ln, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() transport.Address {
	return s.addr
}

// Serve accepts connections until Close is called or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.closed:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return fmt.Errorf("accept error: %w", err)
			}
		}

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		go s.handleConn(conn)
	}
}

// track registers conn and its handler with the wait group. Both happen under
// mu so Close cannot miss a handler it is about to wait for.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

// handleConn reads lines until the sender closes the connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	remote := "local"
	if ra := conn.RemoteAddr(); ra != nil && ra.String() != "" {
		remote = ra.String()
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	for scanner.Scan() {
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		s.handler(Line{Remote: remote, Text: text, At: time.Now()})
	}

	// EOF means the sender closed normally; net.ErrClosed occurs during shutdown.
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("listener read error", zap.String("remote", remote), zap.Error(err))
	}
}

// Close stops the server, drops open connections and waits for handlers.
// Safe to call multiple times concurrently.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.closed)
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()

		err = s.listener.Close()
		s.wg.Wait()

		if s.addr.Network == transport.NetworkUnix {
			_ = os.Remove(s.addr.Path)
		}
	})
	return err
}
