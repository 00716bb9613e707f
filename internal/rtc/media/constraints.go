package media

import "github.com/immxrtalbeast/telemed/internal/domain"

type VideoConstraints struct {
	Enabled      bool
	Width        int
	Height       int
	MaxWidth     int
	MaxHeight    int
	FrameRate    int
	MaxFrameRate int
}

type AudioConstraints struct {
	Enabled          bool
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
}

type Constraints struct {
	Video VideoConstraints
	Audio AudioConstraints
}

func DefaultConstraints() Constraints {
	return Constraints{
		Video: VideoConstraints{
			Enabled:      true,
			Width:        640,
			Height:       480,
			MaxWidth:     1280,
			MaxHeight:    720,
			FrameRate:    15,
			MaxFrameRate: 30,
		},
		Audio: AudioConstraints{
			Enabled:          true,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			SampleRate:       44100,
		},
	}
}

// ConstraintsFor tunes the defaults per role. Doctors send higher quality video.
func ConstraintsFor(role domain.Role) Constraints {
	c := DefaultConstraints()
	if role == domain.RoleDoctor {
		c = c.WithVideo(1280, 720, 30)
	}
	return c
}

// WithVideo overrides the ideal video size and rate. Zero values keep the current ones.
func (c Constraints) WithVideo(width, height, fps int) Constraints {
	if width > 0 {
		c.Video.Width = width
		if width > c.Video.MaxWidth {
			c.Video.MaxWidth = width
		}
	}
	if height > 0 {
		c.Video.Height = height
		if height > c.Video.MaxHeight {
			c.Video.MaxHeight = height
		}
	}
	if fps > 0 {
		c.Video.FrameRate = fps
		if fps > c.Video.MaxFrameRate {
			c.Video.MaxFrameRate = fps
		}
	}
	return c
}
