// Package eventlog records security-relevant connection and authentication
// events to append-only sinks.
package eventlog

import (
	"time"

	"github.com/jmcleod/irongate/internal/uuid"
)

// Kind identifies the type of event being recorded.
type Kind string

const (
	ServerStarted         Kind = "server_started"
	ServerStopped         Kind = "server_stopped"
	ConnectionAccepted    Kind = "connection_accepted"
	ConnectionRejected    Kind = "connection_rejected"
	InvalidUsername       Kind = "invalid_username"
	AuthSuccess           Kind = "auth_success"
	AuthFailure           Kind = "auth_failure"
	AuthLockout           Kind = "auth_lockout"
	PasswordChanged       Kind = "password_changed"
	PasswordChangeAborted Kind = "password_change_aborted"
	Disconnected          Kind = "disconnected"
	SessionError          Kind = "session_error"
)

// Kinds lists every event kind in a stable order.
var Kinds = []Kind{
	ServerStarted, ServerStopped,
	ConnectionAccepted, ConnectionRejected,
	InvalidUsername, AuthSuccess, AuthFailure, AuthLockout,
	PasswordChanged, PasswordChangeAborted,
	Disconnected, SessionError,
}

// Event is one log entry.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	RemoteIP  string    `json:"remote_ip,omitempty"`
	Username  string    `json:"username,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Recorder accepts events. Implementations must not block for long and
// report their own write failures; callers never see them.
type Recorder interface {
	Record(e Event)
}

// Stamp fills in the ID and Time of e when unset.
func Stamp(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.New()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return e
}

// Multi fans an event out to several recorders. The event is stamped once
// so every sink sees the same ID and time.
type Multi []Recorder

func (m Multi) Record(e Event) {
	e = Stamp(e)
	for _, r := range m {
		if r != nil {
			r.Record(e)
		}
	}
}

type discard struct{}

func (discard) Record(Event) {}

// Discard drops every event.
var Discard Recorder = discard{}
