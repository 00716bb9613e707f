package media

import (
	"github.com/pion/webrtc/v4"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one local capture track.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(enabled bool)
	Live() bool
	Stop()
	// Local is what gets attached to a peer connection.
	Local() webrtc.TrackLocal
}

type Stream struct {
	ID     string
	tracks []Track
}

func NewStream(id string, tracks ...Track) *Stream {
	return &Stream{ID: id, tracks: tracks}
}

func (s *Stream) Tracks() []Track {
	res := make([]Track, len(s.tracks))
	copy(res, s.tracks)
	return res
}

func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }

func (s *Stream) VideoTracks() []Track { return s.byKind(KindVideo) }

// Live reports whether any track is still capturing.
func (s *Stream) Live() bool {
	for _, t := range s.tracks {
		if t.Live() {
			return true
		}
	}
	return false
}

func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

func (s *Stream) byKind(k Kind) []Track {
	var res []Track
	for _, t := range s.tracks {
		if t.Kind() == k {
			res = append(res, t)
		}
	}
	return res
}
