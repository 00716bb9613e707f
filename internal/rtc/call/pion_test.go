package call

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/immxrtalbeast/telemed/internal/rtc/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPionOfferAnswer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	f, err := NewPionFactory(quietLog())
	require.NoError(t, err)
	require.True(t, f.Supported())

	newPeer := func() PeerConn {
		pc, err := f.NewPeer(PeerConfig{Trickle: false})
		require.NoError(t, err)
		t.Cleanup(func() { _ = pc.Close() })

		stream, err := media.SampleDevices{}.GetUserMedia(ctx, media.DefaultConstraints())
		require.NoError(t, err)
		for _, tr := range stream.Tracks() {
			require.NoError(t, pc.AddTrack(tr.Local()))
		}
		return pc
	}
	caller, callee := newPeer(), newPeer()

	offer, err := caller.CreateOffer(ctx)
	require.NoError(t, err)
	assert.True(t, strings.Contains(offer.SDP, "m=audio"))
	assert.True(t, strings.Contains(offer.SDP, "m=video"))

	assert.False(t, callee.HasRemoteDescription())
	require.NoError(t, callee.SetRemoteDescription(offer))
	assert.True(t, callee.HasRemoteDescription())

	answer, err := callee.CreateAnswer(ctx)
	require.NoError(t, err)
	require.NoError(t, caller.SetRemoteDescription(answer))
	assert.True(t, caller.HasRemoteDescription())
}

func TestPionAnswerWithoutOffer(t *testing.T) {
	f, err := NewPionFactory(quietLog())
	require.NoError(t, err)

	pc, err := f.NewPeer(PeerConfig{Trickle: true})
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.CreateAnswer(context.Background())
	assert.Error(t, err)
}

func TestNilPionFactoryUnsupported(t *testing.T) {
	var f *PionFactory
	assert.False(t, f.Supported())

	_, err := f.NewPeer(PeerConfig{})
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindBrowserUnsupported, ce.Kind)
}
