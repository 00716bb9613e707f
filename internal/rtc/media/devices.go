package media

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Devices is the capture backend.
type Devices interface {
	Supported() bool
	GetUserMedia(ctx context.Context, c Constraints) (*Stream, error)
	// Probe is a quick access check that does not keep devices open.
	Probe(ctx context.Context) error
}

// SampleDevices produces sample-fed tracks instead of reading hardware.
// Callers push encoded frames through SampleTrack.WriteSample or let Feed
// generate filler frames.
type SampleDevices struct {
	NoCamera     bool
	NoMicrophone bool
}

func (d SampleDevices) Supported() bool { return true }

func (d SampleDevices) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.NoCamera && d.NoMicrophone {
		return ErrDeviceNotFound
	}
	return nil
}

func (d SampleDevices) GetUserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if (c.Video.Enabled && d.NoCamera) || (c.Audio.Enabled && d.NoMicrophone) {
		return nil, ErrDeviceNotFound
	}

	streamID := uuid.NewString()
	var tracks []Track

	if c.Audio.Enabled {
		t, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio-"+uuid.NewString(), streamID,
		)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, newSampleTrack(t, KindAudio))
	}
	if c.Video.Enabled {
		t, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video-"+uuid.NewString(), streamID,
		)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, newSampleTrack(t, KindVideo))
	}

	return NewStream(streamID, tracks...), nil
}

// Feed writes filler frames into every sample track of s until ctx is done or
// the stream stops: Opus silence every 20ms and a VP8 frame at the ideal rate.
func Feed(ctx context.Context, s *Stream, c Constraints) {
	fps := c.Video.FrameRate
	if fps <= 0 {
		fps = 15
	}
	audioTick := time.NewTicker(20 * time.Millisecond)
	videoTick := time.NewTicker(time.Second / time.Duration(fps))
	defer audioTick.Stop()
	defer videoTick.Stop()

	silence := []byte{0xf8, 0xff, 0xfe}
	frame := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x01, 0x00, 0x01, 0x00}

	for {
		select {
		case <-ctx.Done():
			return
		case <-audioTick.C:
			if !s.Live() {
				return
			}
			for _, t := range s.AudioTracks() {
				if st, ok := t.(*SampleTrack); ok {
					_ = st.WriteSample(pionmedia.Sample{Data: silence, Duration: 20 * time.Millisecond})
				}
			}
		case <-videoTick.C:
			for _, t := range s.VideoTracks() {
				if st, ok := t.(*SampleTrack); ok {
					_ = st.WriteSample(pionmedia.Sample{Data: frame, Duration: time.Second / time.Duration(fps)})
				}
			}
		}
	}
}

// SampleTrack drops samples while disabled, which mutes without renegotiation.
type SampleTrack struct {
	track   *webrtc.TrackLocalStaticSample
	kind    Kind
	enabled atomic.Bool
	live    atomic.Bool
}

func newSampleTrack(t *webrtc.TrackLocalStaticSample, kind Kind) *SampleTrack {
	st := &SampleTrack{track: t, kind: kind}
	st.enabled.Store(true)
	st.live.Store(true)
	return st
}

func (t *SampleTrack) ID() string { return t.track.ID() }
func (t *SampleTrack) Kind() Kind { return t.kind }
func (t *SampleTrack) Enabled() bool { return t.enabled.Load() }
func (t *SampleTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *SampleTrack) Live() bool { return t.live.Load() }
func (t *SampleTrack) Stop() { t.live.Store(false) }
func (t *SampleTrack) Local() webrtc.TrackLocal { return t.track }

func (t *SampleTrack) WriteSample(s pionmedia.Sample) error {
	if !t.live.Load() || !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(s)
}
