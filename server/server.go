// Package server runs the single-threaded connection loop: it admits
// connections through the allow-list and steps every live session once per
// tick, in the order they connected.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jmcleod/irongate/access"
	"github.com/jmcleod/irongate/eventlog"
	"github.com/jmcleod/irongate/internal/logger"
	"github.com/jmcleod/irongate/session"
	"github.com/jmcleod/irongate/transport"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultBanner       = "Welcome to the Irongate server!\n"

	MsgUnauthorized = "Unauthorized connection, disconnecting!\n"
)

var (
	// ErrNotBound is returned by Run and Tick before Bind succeeds.
	ErrNotBound = errors.New("server not bound")
)

// Config holds the settings the loop needs.
type Config struct {
	Address       string
	Port          int
	AllowListFile string
	PollInterval  time.Duration
	IOPollWindow  time.Duration
	WriteTimeout  time.Duration
	MaxAttempts   int
	MaxLineLength int
	Banner        string
}

// Option configures a Server.
type Option func(*Server)

// WithEvents sets the event recorder shared by the server and its sessions.
func WithEvents(r eventlog.Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.events = r
		}
	}
}

// WithGate uses g instead of loading Config.AllowListFile.
func WithGate(g *access.Gate) Option {
	return func(s *Server) { s.gate = g }
}

// Server owns the listener and every live session.
type Server struct {
	cfg    Config
	store  session.Credentials
	events eventlog.Recorder
	gate   *access.Gate

	ln       *transport.Listener
	sessions []*session.Session
	active   atomic.Int64
}

// New returns an unbound Server.
func New(cfg Config, store session.Credentials, opts ...Option) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Banner == "" {
		cfg.Banner = DefaultBanner
	}
	s := &Server{cfg: cfg, store: store, events: eventlog.Discard}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind loads the allow-list and opens the listening socket. An unreadable
// allow-list is logged and leaves the server rejecting every client.
func (s *Server) Bind() error {
	if s.gate == nil {
		g, err := access.Load(s.cfg.AllowListFile)
		if err != nil {
			logger.Warn("allow-list unavailable, all connections will be rejected", logger.KeyError, err)
		}
		s.gate = g
	}

	addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
	ln, err := transport.Listen(addr,
		transport.WithPollWindow(s.cfg.IOPollWindow),
		transport.WithWriteTimeout(s.cfg.WriteTimeout),
	)
	if err != nil {
		return err
	}
	s.ln = ln

	logger.Info("server listening", logger.KeyAddr, ln.Addr().String(), logger.KeyCount, s.gate.Len())
	s.events.Record(eventlog.Event{Kind: eventlog.ServerStarted, Detail: ln.Addr().String()})
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveSessions returns the number of registered sessions as of the last
// tick. It is safe to call from any goroutine.
func (s *Server) ActiveSessions() int {
	return int(s.active.Load())
}

// AllowListSize returns the number of permitted client addresses.
func (s *Server) AllowListSize() int {
	return s.gate.Len()
}

// Tick admits at most one pending connection and steps every session once.
// It returns net.ErrClosed after Shutdown.
func (s *Server) Tick() error {
	if s.ln == nil {
		return ErrNotBound
	}

	conn, err := s.ln.Poll()
	switch {
	case errors.Is(err, net.ErrClosed):
		return err
	case err != nil:
		logger.Warn("accept failed", logger.KeyError, err)
	case conn != nil:
		s.admit(conn)
	}

	live := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.Closed() {
			sess.Disconnect()
			continue
		}
		sess.Step()
		live = append(live, sess)
	}
	for i := len(live); i < len(s.sessions); i++ {
		s.sessions[i] = nil
	}
	s.sessions = live
	s.active.Store(int64(len(s.sessions)))
	return nil
}

func (s *Server) admit(conn *transport.Conn) {
	ip := conn.RemoteIP()
	if !s.gate.IsAllowed(ip) {
		logger.Info("rejected connection", logger.KeyClientIP, ip)
		_ = conn.Write(MsgUnauthorized)
		_ = conn.Close()
		s.events.Record(eventlog.Event{Kind: eventlog.ConnectionRejected, RemoteIP: ip})
		return
	}

	sess := session.New(conn, s.store, s.events,
		session.WithMaxAttempts(s.cfg.MaxAttempts),
		session.WithMaxLineLength(s.cfg.MaxLineLength),
	)
	s.sessions = append(s.sessions, sess)
	logger.Info("accepted connection", logger.KeyClientIP, ip, logger.KeySessionID, sess.ID())
	s.events.Record(eventlog.Event{Kind: eventlog.ConnectionAccepted, SessionID: sess.ID(), RemoteIP: ip})

	if err := conn.Write(s.cfg.Banner); err != nil {
		logger.Warn("sending banner failed", logger.KeyClientIP, ip, logger.KeyError, err)
		sess.Disconnect()
		return
	}
	sess.Start()
}

// Run ticks until ctx is cancelled or Shutdown closes the listener, then
// disconnects every remaining session.
func (s *Server) Run(ctx context.Context) error {
	if s.ln == nil {
		return ErrNotBound
	}
	defer s.stop()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.Tick(); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("server tick: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Shutdown closes the listening socket, which ends Run on its next tick. It
// may be called from any goroutine and more than once.
func (s *Server) Shutdown() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) stop() {
	_ = s.ln.Close()
	for _, sess := range s.sessions {
		sess.Disconnect()
	}
	s.sessions = nil
	s.active.Store(0)
	logger.Info("server stopped")
	s.events.Record(eventlog.Event{Kind: eventlog.ServerStopped})
}
