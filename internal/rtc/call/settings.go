package call

import (
	"github.com/immxrtalbeast/telemed/internal/config"
	"github.com/immxrtalbeast/telemed/internal/domain"
	"github.com/immxrtalbeast/telemed/internal/rtc/media"
	"github.com/pion/webrtc/v4"
)

// ICEServers converts configured STUN/TURN entries. Entries without URLs are skipped.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	res := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		if len(s.URLs) == 0 {
			continue
		}
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
			ice.CredentialType = webrtc.ICECredentialTypePassword
		}
		res = append(res, ice)
	}
	return res
}

// ConfigFor builds the machine config of one call from the webrtc settings,
// applying the per-role media and timeout overrides.
func ConfigFor(w config.WebRTCConfig, role domain.Role, sessionID domain.SessionID, remote string) Config {
	constraints := media.ConstraintsFor(role)
	if rm, ok := w.Roles[string(role)]; ok {
		constraints = constraints.WithVideo(rm.Width, rm.Height, rm.FrameRate)
	}

	return Config{
		Role:              role,
		SessionID:         sessionID,
		Remote:            remote,
		Constraints:       constraints,
		ICEServers:        ICEServers(w.ICEServers),
		Trickle:           w.Trickle,
		CandidatePoolSize: w.ICECandidatePoolSize,
		ConnectionTimeout: w.TimeoutFor(string(role)),
		MaxReconnects:     w.MaxReconnectAttempts,
		ReconnectBackoff:  w.ReconnectBackoff,
		PollInterval:      w.PollInterval,
		DegradedPolls:     w.DegradedPolls,
	}
}
