package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, lvl, fmtName string) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	InitWithWriter(buf, lvl, fmtName)
	t.Cleanup(func() { InitWithWriter(os.Stdout, "INFO", "text") })
	return buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("InfoHidesDebug", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		Debug("debug message")
		Info("info message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.Contains(t, out, "info message")
	})

	t.Run("ErrorHidesWarn", func(t *testing.T) {
		buf := captureOutput(t, "ERROR", "text")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.NotContains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("UnknownLevel", func(t *testing.T) {
		assert.Error(t, SetLevel("LOUD"))
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t, "DEBUG", "json")
	Info("session started", KeyClientIP, "127.0.0.1", KeyUsername, "alice")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "session started", line["msg"])
	assert.Equal(t, "127.0.0.1", line[KeyClientIP])
	assert.Equal(t, "alice", line[KeyUsername])
}

func TestWith(t *testing.T) {
	buf := captureOutput(t, "INFO", "text")
	With(KeySessionID, "abc").Info("bound")
	assert.True(t, strings.Contains(buf.String(), "session_id=abc"))
}

func TestInitFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irongate.log")
	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
	t.Cleanup(func() { _ = Init(Config{Output: "stdout"}) })

	Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestInitRejectsBadFormat(t *testing.T) {
	assert.Error(t, Init(Config{Format: "xml"}))
}
