// Package session implements the per-connection authentication and menu
// protocol. A Session never blocks: each Step consumes at most one line of
// buffered input and returns.
package session

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/irongate/credential"
	"github.com/jmcleod/irongate/eventlog"
	"github.com/jmcleod/irongate/internal/logger"
	"github.com/jmcleod/irongate/internal/util"
	"github.com/jmcleod/irongate/internal/uuid"
)

const (
	DefaultMaxAttempts   = 2
	DefaultMaxLineLength = 4096
)

// Endpoint is the non-blocking connection a session talks over.
type Endpoint interface {
	// Read returns bytes available now, or nothing. io.EOF means the peer
	// hung up; the endpoint may still accept writes until Close.
	Read() ([]byte, error)
	Write(s string) error
	Close() error
	IsOpen() bool
	RemoteIP() string
}

// Credentials is the subset of the credential store a session needs.
type Credentials interface {
	Lookup(username string) (credential.Record, error)
	Verify(username, password string) (bool, error)
	ChangePassword(username, newPassword string) error
}

// Option configures a Session.
type Option func(*Session)

// WithMaxAttempts sets how many wrong passwords end the session.
func WithMaxAttempts(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithMaxLineLength caps buffered input that has no newline yet.
func WithMaxLineLength(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxLine = n
		}
	}
}

// Session is the protocol state of one client connection.
type Session struct {
	id     string
	ep     Endpoint
	creds  Credentials
	events eventlog.Recorder
	log    *slog.Logger

	state    State
	username string
	attempts int
	pending  *memguard.LockedBuffer
	input    []byte
	hungUp   bool

	maxAttempts int
	maxLine     int
}

// New binds a session to ep. events may be nil.
func New(ep Endpoint, creds Credentials, events eventlog.Recorder, opts ...Option) *Session {
	if events == nil {
		events = eventlog.Discard
	}
	s := &Session{
		id:          uuid.New(),
		ep:          ep,
		creds:       creds,
		events:      events,
		state:       AwaitingUsername,
		maxAttempts: DefaultMaxAttempts,
		maxLine:     DefaultMaxLineLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.With(logger.KeySessionID, s.id, logger.KeyClientIP, ep.RemoteIP())
	return s
}

func (s *Session) ID() string       { return s.id }
func (s *Session) State() State     { return s.state }
func (s *Session) Username() string { return s.username }
func (s *Session) RemoteIP() string { return s.ep.RemoteIP() }

// Closed reports whether the underlying connection is gone. Closed sessions
// are dropped by their owner on its next pass.
func (s *Session) Closed() bool { return !s.ep.IsOpen() }

// Start prompts for a username.
func (s *Session) Start() {
	s.state = AwaitingUsername
	s.send(PromptUsername)
}

// Step reads available input and handles at most one complete line. After
// the peer hangs up, lines it already sent are still answered one per Step
// before the session disconnects.
func (s *Session) Step() {
	if s.state == Disconnected {
		return
	}
	if !s.ep.IsOpen() {
		s.Disconnect()
		return
	}

	if !s.hungUp {
		data, err := s.ep.Read()
		s.input = append(s.input, data...)
		switch {
		case errors.Is(err, io.EOF):
			s.hungUp = true
		case err != nil:
			s.log.Warn("connection read failed", logger.KeyError, err)
			s.Disconnect()
			return
		}
	}

	line, ok := s.nextLine()
	if !ok {
		switch {
		case s.hungUp:
			s.Disconnect()
		case len(s.input) > s.maxLine:
			s.log.Warn("input line too long", logger.KeyCount, len(s.input))
			s.record(eventlog.SessionError, "input line too long")
			s.send(MsgLineTooLong)
			s.Disconnect()
		}
		return
	}
	s.handle(line)
}

// Disconnect ends the session and closes the connection. It is idempotent.
func (s *Session) Disconnect() {
	if s.state == Disconnected {
		return
	}
	s.clearPending()
	util.WipeBytes(s.input)
	s.input = nil
	s.state = Disconnected
	s.record(eventlog.Disconnected, "")
	s.log.Info("session disconnected", logger.KeyUsername, s.username)
	if err := s.ep.Close(); err != nil {
		s.log.Debug("closing connection", logger.KeyError, err)
	}
}

// nextLine removes and returns the first newline-terminated line from the
// input buffer with carriage returns stripped.
func (s *Session) nextLine() (string, bool) {
	i := bytes.IndexByte(s.input, '\n')
	if i < 0 {
		return "", false
	}
	raw := s.input[:i]
	line := strings.ReplaceAll(string(raw), "\r", "")
	util.WipeBytes(raw)
	s.input = append(s.input[:0], s.input[i+1:]...)
	return line, true
}

func (s *Session) handle(line string) {
	switch s.state {
	case AwaitingUsername:
		s.handleUsername(line)
	case AwaitingPassword:
		s.handlePassword(line)
	case Menu:
		s.handleCommand(line)
	case AwaitingNewPassword:
		s.handleNewPassword(line)
	case AwaitingPasswordConfirmation:
		s.handleConfirmation(line)
	default:
		s.fail("dispatch", fmt.Errorf("invalid session state %s", s.state))
	}
}

func (s *Session) handleUsername(name string) {
	_, err := s.creds.Lookup(name)
	switch {
	case err == nil:
		s.username = name
		s.state = AwaitingPassword
		s.send(PromptPassword)
	case errors.Is(err, credential.ErrUserNotFound):
		s.log.Info("invalid username", logger.KeyUsername, name)
		s.record(eventlog.InvalidUsername, name)
		s.send(MsgInvalidUsername)
		s.Disconnect()
	default:
		s.fail("username lookup", err)
	}
}

func (s *Session) handlePassword(password string) {
	ok, err := s.creds.Verify(s.username, password)
	if err != nil {
		s.fail("password verify", err)
		return
	}
	if ok {
		s.attempts = 0
		s.state = Menu
		s.log.Info("authenticated", logger.KeyUsername, s.username)
		s.record(eventlog.AuthSuccess, "")
		s.send(MenuText)
		return
	}

	s.attempts++
	if s.attempts >= s.maxAttempts {
		s.log.Warn("authentication locked out", logger.KeyUsername, s.username, logger.KeyCount, s.attempts)
		s.record(eventlog.AuthLockout, fmt.Sprintf("%d failed attempts", s.attempts))
		s.send(MsgLockout)
		s.Disconnect()
		return
	}
	s.record(eventlog.AuthFailure, fmt.Sprintf("attempt %d of %d", s.attempts, s.maxAttempts))
	s.send(MsgIncorrectPass + PromptPassword)
}

func (s *Session) handleCommand(line string) {
	cmd := util.FoldCommand(line)
	switch cmd {
	case "hello":
		s.send(MsgHello)
	case "menu":
		s.send(MenuText)
	case "exit":
		s.send(MsgGoodbye)
		s.Disconnect()
	case "passwd":
		s.state = AwaitingNewPassword
		s.send(PromptNewPassword)
	default:
		if reply, ok := choices[cmd]; ok {
			if reply != "" {
				s.send(reply)
			}
			return
		}
		s.send(MsgUnrecognized + cmd + "\n")
	}
}

func (s *Session) handleNewPassword(password string) {
	s.clearPending()
	s.pending = memguard.NewBufferFromBytes([]byte(password))
	s.state = AwaitingPasswordConfirmation
	s.send(PromptConfirmPassword)
}

func (s *Session) handleConfirmation(confirm string) {
	var candidate []byte
	if s.pending != nil {
		candidate = s.pending.Bytes()
	}
	match := subtle.ConstantTimeCompare(candidate, []byte(confirm)) == 1
	s.clearPending()

	if !match {
		s.record(eventlog.PasswordChangeAborted, "confirmation mismatch")
		s.state = Menu
		s.send(MsgPasswordMismatch)
		s.send(MenuText)
		return
	}

	if err := s.creds.ChangePassword(s.username, confirm); err != nil {
		s.fail("password change", err)
		return
	}
	s.log.Info("password changed", logger.KeyUsername, s.username)
	s.record(eventlog.PasswordChanged, "")
	s.state = Menu
	s.send(MsgPasswordChanged)
	s.send(MenuText)
}

func (s *Session) clearPending() {
	if s.pending != nil {
		s.pending.Destroy()
		s.pending = nil
	}
}

// send writes msg, dropping the session on a transport error.
func (s *Session) send(msg string) {
	if s.state == Disconnected {
		return
	}
	if err := s.ep.Write(msg); err != nil {
		s.log.Warn("connection write failed", logger.KeyError, err)
		s.Disconnect()
	}
}

// fail logs an internal error and drops the session. The client sees only
// the disconnect.
func (s *Session) fail(op string, err error) {
	s.log.Error("session error", "op", op, logger.KeyState, s.state.String(), logger.KeyError, err)
	s.record(eventlog.SessionError, fmt.Sprintf("%s: %v", op, err))
	s.Disconnect()
}

func (s *Session) record(kind eventlog.Kind, detail string) {
	s.events.Record(eventlog.Event{
		Kind:      kind,
		SessionID: s.id,
		RemoteIP:  s.ep.RemoteIP(),
		Username:  s.username,
		Detail:    detail,
	})
}
