package peer

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pkg/errors"
)

// TrackSource is an outgoing media track.
type TrackSource = webrtc.TrackLocal

type (
	// CameraTracks bundles a participant's default capture tracks.
	CameraTracks struct {
		Audio TrackSource
		Video TrackSource
	}

	// Media provides the outgoing tracks for a call. Screen's onEnded hook
	// fires when the capture source stops on its own (for example the user
	// ends the capture from the OS picker).
	Media interface {
		Camera() (CameraTracks, error)
		Screen(onEnded func()) (TrackSource, error)
	}

	// SampleSource yields encoded media samples. ReadSample returns io.EOF
	// when the source is exhausted.
	SampleSource interface {
		ReadSample() (media.Sample, error)
		Close() error
	}

	// SampleMedia is a Media fed by encoded sample sources (files, encoder
	// pipelines, capture bridges). Each track is a TrackLocalStaticSample
	// pumped from its source on a dedicated goroutine.
	SampleMedia struct {
		NewAudioSource  func() (SampleSource, error)
		NewVideoSource  func() (SampleSource, error)
		NewScreenSource func() (SampleSource, error)

		mu    sync.Mutex
		stops []context.CancelFunc
	}
)

var _ Media = (*SampleMedia)(nil)

func (m *SampleMedia) Camera() (CameraTracks, error) {
	audio, err := m.startTrack(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "camera", m.NewAudioSource, nil,
	)
	if err != nil {
		return CameraTracks{}, errors.Wrap(err, "audio track")
	}
	video, err := m.startTrack(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "camera", m.NewVideoSource, nil,
	)
	if err != nil {
		return CameraTracks{}, errors.Wrap(err, "video track")
	}
	return CameraTracks{Audio: audio, Video: video}, nil
}

func (m *SampleMedia) Screen(onEnded func()) (TrackSource, error) {
	track, err := m.startTrack(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "screen", m.NewScreenSource, onEnded,
	)
	if err != nil {
		return nil, errors.Wrap(err, "screen track")
	}
	return track, nil
}

// Close stops every running sample pump.
func (m *SampleMedia) Close() {
	m.mu.Lock()
	stops := m.stops
	m.stops = nil
	m.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

func (m *SampleMedia) startTrack(codec webrtc.RTPCodecCapability, kind, stream string, newSource func() (SampleSource, error), onEnded func()) (TrackSource, error) {
	if newSource == nil {
		return nil, errors.Errorf("no %s source configured", kind)
	}
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(codec, kind, stream)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.stops = append(m.stops, cancel)
	m.mu.Unlock()

	go pumpSamples(ctx, src, track, onEnded)
	return track, nil
}

// pumpSamples copies samples from src into track until the source ends or
// ctx is canceled.
func pumpSamples(ctx context.Context, src SampleSource, track *webrtc.TrackLocalStaticSample, onEnded func()) {
	defer func() {
		_ = src.Close()
		if onEnded != nil {
			onEnded()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// source failures end the track the same as EOF
		sample, err := src.ReadSample()
		if err != nil {
			return
		}
		if err = track.WriteSample(sample); err != nil {
			return
		}
	}
}
