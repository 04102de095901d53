package access

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeList(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whitelist")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeList(t, "127.0.0.1\n  10.0.0.5 \n\n# office\n::1\r\n")

	g, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []string{"10.0.0.5", "127.0.0.1", "::1"}, g.Addresses())
}

func TestIsAllowed(t *testing.T) {
	g := New("127.0.0.1", "192.168.1.10")

	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"192.168.1.10", true},
		{"192.168.1.1", false},
		{"127.0.0.10", false},
		{" 127.0.0.1", false},
		{"", false},
		{"# office", false},
	}
	for _, tc := range tests {
		t.Run(tc.ip, func(t *testing.T) {
			assert.Equal(t, tc.want, g.IsAllowed(tc.ip))
		})
	}
}

func TestLoadMissingFileDeniesAll(t *testing.T) {
	g, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	require.NotNil(t, g)
	assert.Equal(t, 0, g.Len())
	assert.False(t, g.IsAllowed("127.0.0.1"))
}

func TestNilGate(t *testing.T) {
	var g *Gate
	assert.False(t, g.IsAllowed("127.0.0.1"))
	assert.Equal(t, 0, g.Len())
	assert.Nil(t, g.Addresses())
}
