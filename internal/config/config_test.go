package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustLoadPathDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env: dev\n"), 0o600))

	cfg := MustLoadPath(path)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 15*time.Second, cfg.WebRTC.ConnectionTimeout)
	assert.Equal(t, 2, cfg.WebRTC.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.WebRTC.ReconnectBackoff)
	assert.Equal(t, 3, cfg.WebRTC.DegradedPolls)
	assert.True(t, cfg.WebRTC.Trickle)
	assert.Len(t, cfg.WebRTC.ICEServers, len(DefaultICEServers()))
}

func TestTimeoutForRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := "webrtc:\n  connection_timeout: 12s\n  roles:\n    doctor:\n      connection_timeout: 7s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg := MustLoadPath(path)

	assert.Equal(t, 7*time.Second, cfg.WebRTC.TimeoutFor("doctor"))
	assert.Equal(t, 12*time.Second, cfg.WebRTC.TimeoutFor("patient"))
}

func TestMustLoadPathMissingFile(t *testing.T) {
	assert.Panics(t, func() {
		MustLoadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
