// Package transport wraps TCP sockets with poll-style, non-blocking calls.
// A read or accept that would block instead returns no data after a short
// deadline window.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

const (
	DefaultPollWindow   = time.Millisecond
	DefaultWriteTimeout = 5 * time.Second
	readChunk           = 1024
)

// Option configures listeners and the connections they accept.
type Option func(*options)

type options struct {
	pollWindow   time.Duration
	writeTimeout time.Duration
}

// WithPollWindow sets how long Poll and Read wait before reporting no data.
func WithPollWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollWindow = d
		}
	}
}

// WithWriteTimeout bounds each Write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{pollWindow: DefaultPollWindow, writeTimeout: DefaultWriteTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Listener is a TCP listener polled for pending connections.
type Listener struct {
	ln   *net.TCPListener
	opts options
}

// Listen binds a TCP listener on addr ("host:port").
func Listen(addr string, opts ...Option) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &Listener{ln: ln.(*net.TCPListener), opts: buildOptions(opts)}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Poll accepts one pending connection. It returns (nil, nil) when none is
// waiting and net.ErrClosed once the listener is closed.
func (l *Listener) Poll() (*Conn, error) {
	if err := l.ln.SetDeadline(time.Now().Add(l.opts.pollWindow)); err != nil {
		return nil, err
	}
	c, err := l.ln.Accept()
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	return newConn(c, l.opts), nil
}

// Close stops the listener. Further calls to Poll fail with net.ErrClosed.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Conn is a client connection with non-blocking reads.
type Conn struct {
	c      net.Conn
	opts   options
	ip     string
	closed bool
	hungUp bool
	buf    []byte
}

// NewConn wraps an existing net.Conn.
func NewConn(c net.Conn, opts ...Option) *Conn {
	return newConn(c, buildOptions(opts))
}

func newConn(c net.Conn, o options) *Conn {
	ip := c.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return &Conn{c: c, opts: o, ip: ip, buf: make([]byte, readChunk)}
}

// RemoteIP returns the peer address without its port.
func (c *Conn) RemoteIP() string { return c.ip }

// IsOpen reports whether the connection is still usable.
func (c *Conn) IsOpen() bool { return !c.closed }

// Read returns whatever bytes are available now. It returns (nil, nil) if
// nothing arrived within the poll window. Once the peer has closed its side,
// Read returns io.EOF (along with any final bytes) and keeps returning it;
// the connection stays writable until Close.
func (c *Conn) Read() ([]byte, error) {
	if c.closed {
		return nil, net.ErrClosed
	}
	if c.hungUp {
		return nil, io.EOF
	}
	if err := c.c.SetReadDeadline(time.Now().Add(c.opts.pollWindow)); err != nil {
		c.Close()
		return nil, err
	}
	n, err := c.c.Read(c.buf)
	var out []byte
	if n > 0 {
		out = append(out, c.buf[:n]...)
	}
	switch {
	case err == nil:
		return out, nil
	case isTimeout(err):
		return out, nil
	case errors.Is(err, io.EOF):
		c.hungUp = true
		return out, io.EOF
	default:
		c.Close()
		return out, err
	}
}

// Write sends s in full or closes the connection.
func (c *Conn) Write(s string) error {
	if c.closed {
		return net.ErrClosed
	}
	if err := c.c.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout)); err != nil {
		c.Close()
		return err
	}
	if _, err := io.WriteString(c.c, s); err != nil {
		c.Close()
		return fmt.Errorf("writing to %s: %w", c.ip, err)
	}
	return nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.c.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
