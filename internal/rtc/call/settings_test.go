package call

import (
	"testing"
	"time"

	"github.com/immxrtalbeast/telemed/internal/config"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICEServers(t *testing.T) {
	servers := ICEServers([]config.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{},
		{URLs: []string{"turn:openrelay.metered.ca:443?transport=tcp"}, Username: "openrelayproject", Credential: "openrelayproject"},
	})

	require.Len(t, servers, 2)
	assert.Empty(t, servers[0].Username)
	assert.Equal(t, "openrelayproject", servers[1].Username)
	assert.Equal(t, webrtc.ICECredentialTypePassword, servers[1].CredentialType)
}

func TestConfigFor(t *testing.T) {
	w := config.WebRTCConfig{
		ICEServers:           config.DefaultICEServers(),
		ConnectionTimeout:    15 * time.Second,
		MaxReconnectAttempts: 2,
		ReconnectBackoff:     2 * time.Second,
		PollInterval:         2 * time.Second,
		DegradedPolls:        3,
		Trickle:              true,
		ICECandidatePoolSize: 10,
		Roles: map[string]config.RoleMedia{
			"doctor": {Width: 1280, Height: 720, FrameRate: 30, ConnectionTimeout: 10 * time.Second},
		},
	}

	doc := ConfigFor(w, domain.RoleDoctor, "D1-P1-S1", "P1")
	assert.Equal(t, 10*time.Second, doc.ConnectionTimeout)
	assert.Equal(t, 1280, doc.Constraints.Video.Width)
	assert.Equal(t, 30, doc.Constraints.Video.FrameRate)
	assert.Len(t, doc.ICEServers, 7)
	assert.Equal(t, uint8(10), doc.CandidatePoolSize)
	assert.Equal(t, "P1", doc.Remote)

	pat := ConfigFor(w, domain.RolePatient, "D1-P1-S1", "D1")
	assert.Equal(t, 15*time.Second, pat.ConnectionTimeout)
	assert.Equal(t, 640, pat.Constraints.Video.Width)
	assert.Equal(t, 2, pat.MaxReconnects)
}
