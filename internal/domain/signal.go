package domain

import (
	"time"

	"github.com/pion/webrtc/v4"
)

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

// SignalEnvelope carries one negotiation message for a session.
type SignalEnvelope struct {
	SessionID SessionID                  `json:"session_id"`
	Type      SignalType                 `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
}
