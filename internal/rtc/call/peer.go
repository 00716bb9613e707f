package call

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// PeerConn is the subset of a WebRTC peer connection the machine drives.
// CreateOffer and CreateAnswer also apply the description locally; without
// trickle they return only after candidate gathering finished.
type PeerConn interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	HasRemoteDescription() bool
	AddICECandidate(c webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState))
	OnTrack(fn func(RemoteTrack))
	ICEConnectionState() webrtc.ICEConnectionState
	ConnectionState() webrtc.PeerConnectionState
	Close() error
}

type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     string
}

type PeerConfig struct {
	ICEServers        []webrtc.ICEServer
	Trickle           bool
	CandidatePoolSize uint8
}

type PeerFactory interface {
	Supported() bool
	NewPeer(cfg PeerConfig) (PeerConn, error)
}
