package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/BioHazard786/Pairlink/internal/negotiation"
)

const streamID = "pairlink"

// LocalTrack adapts a pion local track to negotiation.Track.
type LocalTrack struct {
	webrtc.TrackLocal
}

var _ negotiation.Track = (*LocalTrack)(nil)

// MediaKind reports whether the track carries audio or video.
func (t *LocalTrack) MediaKind() negotiation.MediaKind {
	return mediaKind(t.Kind())
}

// NewAudioTrack creates an Opus sample track.
func NewAudioTrack(id string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		id, streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	return &LocalTrack{TrackLocal: track}, nil
}

// NewVideoTrack creates a VP8 sample track.
func NewVideoTrack(id string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		id, streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	return &LocalTrack{TrackLocal: track}, nil
}

// opusSilence is a single 20 ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// StreamSilence writes silent Opus frames to an audio track until ctx is
// done, so the remote side sees a live audio track.
func StreamSilence(ctx context.Context, t *LocalTrack) error {
	sample, ok := t.TrackLocal.(*webrtc.TrackLocalStaticSample)
	if !ok || t.MediaKind() != negotiation.MediaAudio {
		return fmt.Errorf("%w: %s is not an audio sample track", ErrUnsupportedTrack, t.ID())
	}

	const frame = 20 * time.Millisecond
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sample.WriteSample(media.Sample{Data: opusSilence, Duration: frame}); err != nil {
				return err
			}
		}
	}
}
