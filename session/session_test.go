package session

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/irongate/credential"
	"github.com/jmcleod/irongate/eventlog"
)

// fakeEndpoint feeds queued chunks to the session one Read at a time.
type fakeEndpoint struct {
	chunks   [][]byte
	readErr  error
	writeErr error
	out      strings.Builder
	closed   bool
	closes   int
}

// Read mirrors transport.Conn: the final chunk arrives together with
// readErr, io.EOF leaves the endpoint writable, and other errors close it.
func (f *fakeEndpoint) Read() ([]byte, error) {
	if len(f.chunks) == 0 {
		if f.readErr != nil {
			f.closed = f.closed || !errors.Is(f.readErr, io.EOF)
			return nil, f.readErr
		}
		return nil, nil
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	if len(f.chunks) == 0 && f.readErr != nil {
		f.closed = f.closed || !errors.Is(f.readErr, io.EOF)
		return c, f.readErr
	}
	return c, nil
}

func (f *fakeEndpoint) Write(s string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.out.WriteString(s)
	return nil
}

func (f *fakeEndpoint) Close() error {
	f.closes++
	f.closed = true
	return nil
}

func (f *fakeEndpoint) IsOpen() bool     { return !f.closed }
func (f *fakeEndpoint) RemoteIP() string { return "127.0.0.1" }

func (f *fakeEndpoint) feed(s string) { f.chunks = append(f.chunks, []byte(s)) }

// drain returns and resets everything written so far.
func (f *fakeEndpoint) drain() string {
	s := f.out.String()
	f.out.Reset()
	return s
}

type memRecorder struct{ events []eventlog.Event }

func (m *memRecorder) Record(e eventlog.Event) { m.events = append(m.events, e) }

func (m *memRecorder) kinds() []eventlog.Kind {
	out := make([]eventlog.Kind, len(m.events))
	for i, e := range m.events {
		out[i] = e.Kind
	}
	return out
}

// fakeCreds is an in-memory Credentials with injectable failures.
type fakeCreds struct {
	users     map[string]string
	lookupErr error
	changeErr error
}

func (c *fakeCreds) Lookup(username string) (credential.Record, error) {
	if c.lookupErr != nil {
		return credential.Record{}, c.lookupErr
	}
	if _, ok := c.users[username]; !ok {
		return credential.Record{}, credential.ErrUserNotFound
	}
	return credential.Record{Username: username}, nil
}

func (c *fakeCreds) Verify(username, password string) (bool, error) {
	pw, ok := c.users[username]
	return ok && pw == password, nil
}

func (c *fakeCreds) ChangePassword(username, newPassword string) error {
	if c.changeErr != nil {
		return c.changeErr
	}
	c.users[username] = newPassword
	return nil
}

func newTestSession(t *testing.T) (*Session, *fakeEndpoint, *fakeCreds, *memRecorder) {
	t.Helper()
	ep := &fakeEndpoint{}
	creds := &fakeCreds{users: map[string]string{"alice": "secret"}}
	rec := &memRecorder{}
	s := New(ep, creds, rec)
	s.Start()
	require.Equal(t, PromptUsername, ep.drain())
	return s, ep, creds, rec
}

// login drives s to the menu.
func login(t *testing.T, s *Session, ep *fakeEndpoint) {
	t.Helper()
	ep.feed("alice\n")
	s.Step()
	ep.feed("secret\n")
	s.Step()
	require.Equal(t, Menu, s.State())
	ep.drain()
}

func TestUnknownUsernameDisconnects(t *testing.T) {
	s, ep, _, rec := newTestSession(t)

	ep.feed("mallory\n")
	s.Step()

	assert.Equal(t, MsgInvalidUsername, ep.drain())
	assert.Equal(t, Disconnected, s.State())
	assert.True(t, s.Closed())
	assert.Equal(t, []eventlog.Kind{eventlog.InvalidUsername, eventlog.Disconnected}, rec.kinds())
	assert.Equal(t, "mallory", rec.events[0].Detail)

	// Further steps do nothing.
	ep.feed("alice\n")
	s.Step()
	assert.Empty(t, ep.drain())
}

func TestTwoWrongPasswordsLockOut(t *testing.T) {
	s, ep, _, rec := newTestSession(t)

	ep.feed("alice\n")
	s.Step()
	assert.Equal(t, PromptPassword, ep.drain())
	assert.Equal(t, AwaitingPassword, s.State())

	ep.feed("wrong\n")
	s.Step()
	assert.Equal(t, MsgIncorrectPass+PromptPassword, ep.drain())
	assert.Equal(t, AwaitingPassword, s.State())

	ep.feed("wrong again\n")
	s.Step()
	assert.Equal(t, MsgLockout, ep.drain())
	assert.Equal(t, Disconnected, s.State())
	assert.True(t, s.Closed())
	assert.Equal(t, []eventlog.Kind{eventlog.AuthFailure, eventlog.AuthLockout, eventlog.Disconnected}, rec.kinds())
}

func TestWrongThenRightPasswordReachesMenu(t *testing.T) {
	s, ep, _, rec := newTestSession(t)

	ep.feed("alice\n")
	s.Step()
	ep.feed("nope\n")
	s.Step()
	ep.drain()

	ep.feed("secret\n")
	s.Step()
	assert.Equal(t, MenuText, ep.drain())
	assert.Equal(t, Menu, s.State())
	assert.Equal(t, "alice", s.Username())
	assert.Equal(t, []eventlog.Kind{eventlog.AuthFailure, eventlog.AuthSuccess}, rec.kinds())
}

func TestMaxAttemptsOption(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(ep, &fakeCreds{users: map[string]string{"alice": "secret"}}, nil, WithMaxAttempts(3))
	s.Start()
	ep.feed("alice\n")
	s.Step()
	for i := 0; i < 2; i++ {
		ep.feed("bad\n")
		s.Step()
		require.Equal(t, AwaitingPassword, s.State())
	}
	ep.feed("bad\n")
	s.Step()
	assert.Equal(t, Disconnected, s.State())
}

func TestOneLinePerStep(t *testing.T) {
	s, ep, _, _ := newTestSession(t)

	ep.feed("alice\nsecret\n")
	s.Step()
	assert.Equal(t, AwaitingPassword, s.State())
	assert.Equal(t, PromptPassword, ep.drain())

	// No new bytes, but a buffered line is still handled.
	s.Step()
	assert.Equal(t, Menu, s.State())
	assert.Equal(t, MenuText, ep.drain())

	s.Step()
	assert.Empty(t, ep.drain())
}

func TestPartialLinesAccumulate(t *testing.T) {
	s, ep, _, _ := newTestSession(t)

	ep.feed("al")
	s.Step()
	assert.Equal(t, AwaitingUsername, s.State())
	assert.Empty(t, ep.drain())

	ep.feed("ice\r")
	s.Step()
	assert.Equal(t, AwaitingUsername, s.State())

	ep.feed("\n")
	s.Step()
	assert.Equal(t, AwaitingPassword, s.State())
	assert.Equal(t, "alice", s.Username())
}

func TestMenuCommands(t *testing.T) {
	tests := []struct {
		input string
		want  string
		state State
	}{
		{"hello", MsgHello, Menu},
		{"HELLO", MsgHello, Menu},
		{"Menu", MenuText, Menu},
		{"1", choices["1"], Menu},
		{"2", "42\n", Menu},
		{"3", choices["3"], Menu},
		{"4", "", Menu},
		{"5", choices["5"], Menu},
		{"dance", MsgUnrecognized + "dance\n", Menu},
		{"  DaNcE ", MsgUnrecognized + "dance\n", Menu},
		{"Passwd", PromptNewPassword, AwaitingNewPassword},
		{"EXIT", MsgGoodbye, Disconnected},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			s, ep, _, _ := newTestSession(t)
			login(t, s, ep)

			ep.feed(tc.input + "\r\n")
			s.Step()
			assert.Equal(t, tc.want, ep.drain())
			assert.Equal(t, tc.state, s.State())
		})
	}
}

func TestExitClosesConnection(t *testing.T) {
	s, ep, _, rec := newTestSession(t)
	login(t, s, ep)

	ep.feed("exit\n")
	s.Step()
	assert.True(t, s.Closed())
	assert.Equal(t, 1, ep.closes)

	s.Disconnect()
	assert.Equal(t, 1, ep.closes, "disconnect is idempotent")
	assert.Equal(t, eventlog.Disconnected, rec.events[len(rec.events)-1].Kind)
	assert.Equal(t, "alice", rec.events[len(rec.events)-1].Username)
}

func TestPasswordChange(t *testing.T) {
	s, ep, creds, rec := newTestSession(t)
	login(t, s, ep)

	ep.feed("passwd\n")
	s.Step()
	assert.Equal(t, PromptNewPassword, ep.drain())

	ep.feed("n3w\n")
	s.Step()
	assert.Equal(t, PromptConfirmPassword, ep.drain())
	assert.Equal(t, AwaitingPasswordConfirmation, s.State())
	assert.NotNil(t, s.pending)

	ep.feed("n3w\n")
	s.Step()
	assert.Equal(t, MsgPasswordChanged+MenuText, ep.drain())
	assert.Equal(t, Menu, s.State())
	assert.Nil(t, s.pending)
	assert.Equal(t, "n3w", creds.users["alice"])
	assert.Equal(t, eventlog.PasswordChanged, rec.events[len(rec.events)-1].Kind)
}

func TestPasswordChangeMismatch(t *testing.T) {
	s, ep, creds, rec := newTestSession(t)
	login(t, s, ep)

	ep.feed("passwd\n")
	s.Step()
	ep.feed("one\n")
	s.Step()
	ep.feed("two\n")
	s.Step()

	assert.Equal(t, PromptNewPassword+PromptConfirmPassword+MsgPasswordMismatch+MenuText, ep.drain())
	assert.Equal(t, Menu, s.State())
	assert.Nil(t, s.pending)
	assert.Equal(t, "secret", creds.users["alice"])
	assert.Equal(t, eventlog.PasswordChangeAborted, rec.events[len(rec.events)-1].Kind)
}

func TestStoreErrorDisconnects(t *testing.T) {
	t.Run("Lookup", func(t *testing.T) {
		s, ep, creds, rec := newTestSession(t)
		creds.lookupErr = credential.ErrStoreAccess

		ep.feed("alice\n")
		s.Step()
		assert.Empty(t, ep.drain(), "store errors are invisible to the client")
		assert.Equal(t, Disconnected, s.State())
		assert.Equal(t, []eventlog.Kind{eventlog.SessionError, eventlog.Disconnected}, rec.kinds())
	})

	t.Run("ChangePassword", func(t *testing.T) {
		s, ep, creds, _ := newTestSession(t)
		login(t, s, ep)
		creds.changeErr = credential.ErrStoreAccess

		ep.feed("passwd\n")
		s.Step()
		ep.feed("x\n")
		s.Step()
		ep.feed("x\n")
		s.Step()
		assert.Equal(t, Disconnected, s.State())
		assert.True(t, s.Closed())
	})
}

func TestTransportErrors(t *testing.T) {
	t.Run("PeerHangup", func(t *testing.T) {
		s, ep, _, _ := newTestSession(t)
		ep.readErr = io.EOF
		s.Step()
		assert.Equal(t, Disconnected, s.State())
		assert.True(t, s.Closed())
	})

	t.Run("PipelinedLinesBeforeHangup", func(t *testing.T) {
		s, ep, _, rec := newTestSession(t)
		ep.feed("alice\nsecret\nhello\n")
		ep.readErr = io.EOF

		for i := 0; i < 3; i++ {
			s.Step()
		}
		assert.Equal(t, Menu, s.State())
		assert.False(t, s.Closed())
		assert.Equal(t, PromptPassword+MenuText+MsgHello, ep.drain())

		s.Step()
		assert.Equal(t, Disconnected, s.State())
		assert.True(t, s.Closed())
		assert.Contains(t, rec.kinds(), eventlog.AuthSuccess)
	})

	t.Run("HangupWithPartialLine", func(t *testing.T) {
		s, ep, _, _ := newTestSession(t)
		ep.feed("ali")
		ep.readErr = io.EOF
		s.Step()
		assert.Equal(t, Disconnected, s.State())
		assert.Empty(t, ep.drain())
	})

	t.Run("ReadFailure", func(t *testing.T) {
		s, ep, _, _ := newTestSession(t)
		ep.readErr = errors.New("connection reset")
		s.Step()
		assert.Equal(t, Disconnected, s.State())
	})

	t.Run("WriteFailure", func(t *testing.T) {
		s, ep, _, _ := newTestSession(t)
		ep.writeErr = errors.New("broken pipe")
		ep.feed("alice\n")
		s.Step()
		assert.Equal(t, Disconnected, s.State())
		assert.True(t, s.Closed())
	})

	t.Run("ClosedUnderneath", func(t *testing.T) {
		s, ep, _, rec := newTestSession(t)
		ep.closed = true
		s.Step()
		assert.Equal(t, Disconnected, s.State())
		assert.Equal(t, []eventlog.Kind{eventlog.Disconnected}, rec.kinds())
	})
}

func TestLineTooLong(t *testing.T) {
	ep := &fakeEndpoint{}
	s := New(ep, &fakeCreds{users: map[string]string{}}, nil, WithMaxLineLength(8))
	s.Start()
	ep.drain()

	ep.feed("abcdefgh")
	s.Step()
	assert.Equal(t, AwaitingUsername, s.State())

	ep.feed("i")
	s.Step()
	assert.Equal(t, MsgLineTooLong, ep.drain())
	assert.Equal(t, Disconnected, s.State())
}

func TestInvalidStateDisconnects(t *testing.T) {
	s, ep, _, rec := newTestSession(t)
	s.state = State(42)

	ep.feed("anything\n")
	s.Step()
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, eventlog.SessionError, rec.events[0].Kind)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "menu", Menu.String())
	assert.Equal(t, "unknown", State(99).String())
}

// TestAliceScenario runs the protocol against a real password file.
func TestAliceScenario(t *testing.T) {
	store := credential.NewStore(filepath.Join(t.TempDir(), "passwd"))
	require.NoError(t, store.Create("alice", "rabbit-hole"))

	ep := &fakeEndpoint{}
	s := New(ep, store, nil)
	s.Start()
	assert.Equal(t, PromptUsername, ep.drain())

	ep.feed("alice\n")
	s.Step()
	assert.Equal(t, PromptPassword, ep.drain())

	ep.feed("rabbit-hole\n")
	s.Step()
	assert.Equal(t, MenuText, ep.drain())

	ep.feed("passwd\n")
	s.Step()
	ep.feed("looking-glass\n")
	s.Step()
	ep.feed("looking-glass\n")
	s.Step()
	assert.Contains(t, ep.drain(), MsgPasswordChanged)

	ok, err := store.Verify("alice", "looking-glass")
	require.NoError(t, err)
	assert.True(t, ok)

	ep.feed("exit\n")
	s.Step()
	assert.Equal(t, MsgGoodbye, ep.drain())
	assert.True(t, s.Closed())
}
