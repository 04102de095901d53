package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) *Listener {
	t.Helper()
	l, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// pollUntil polls l until a connection arrives or the test times out.
func pollUntil(t *testing.T, l *Listener) *Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err := l.Poll()
		require.NoError(t, err)
		if c != nil {
			return c
		}
	}
	t.Fatal("no connection accepted")
	return nil
}

func TestPollNoPending(t *testing.T) {
	l := listen(t)
	c, err := l.Poll()
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestPollAfterClose(t *testing.T) {
	l := listen(t)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "close is idempotent")

	_, err := l.Poll()
	assert.True(t, errors.Is(err, net.ErrClosed), "got %v", err)
}

func TestConnReadWrite(t *testing.T) {
	l := listen(t)
	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	c := pollUntil(t, l)
	defer c.Close()
	assert.Equal(t, "127.0.0.1", c.RemoteIP())
	assert.True(t, c.IsOpen())

	// Nothing sent yet: a read returns immediately with no data.
	data, err := c.Read()
	assert.NoError(t, err)
	assert.Empty(t, data)

	_, err = client.Write([]byte("hello\n"))
	require.NoError(t, err)

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 6 && time.Now().Before(deadline) {
		data, err := c.Read()
		require.NoError(t, err)
		got = append(got, data...)
	}
	assert.Equal(t, "hello\n", string(got))

	require.NoError(t, c.Write("Username: "))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 10)
	_, err = io.ReadFull(bufio.NewReader(client), buf)
	require.NoError(t, err)
	assert.Equal(t, "Username: ", string(buf))
}

func TestConnPeerClose(t *testing.T) {
	l := listen(t)
	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)

	c := pollUntil(t, l)
	require.NoError(t, client.Close())

	deadline := time.Now().Add(2 * time.Second)
	for err == nil && time.Now().Before(deadline) {
		_, err = c.Read()
	}
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, c.IsOpen(), "hang-up leaves closing to the owner")

	_, err = c.Read()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, c.Close())
	assert.False(t, c.IsOpen())
	_, err = c.Read()
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.ErrorIs(t, c.Write("x"), net.ErrClosed)
}

func TestConnHalfCloseStillWritable(t *testing.T) {
	l := listen(t)
	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	c := pollUntil(t, l)
	defer c.Close()

	_, err = client.Write([]byte("ping\n"))
	require.NoError(t, err)
	require.NoError(t, client.(*net.TCPConn).CloseWrite())

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, rerr := c.Read()
		got = append(got, data...)
		if rerr != nil {
			require.ErrorIs(t, rerr, io.EOF)
			break
		}
	}
	assert.Equal(t, "ping\n", string(got))

	require.NoError(t, c.Write("pong\n"))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 5)
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong\n", string(buf))
}

func TestConnCloseIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server)
	assert.Equal(t, "pipe", c.RemoteIP())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.False(t, c.IsOpen())
}
