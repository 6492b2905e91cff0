package peer

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

// defaultICEServers is the public STUN fallback used when no TURN
// infrastructure is configured.
var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// pionTransport is a Transport over a pion PeerConnection. Offers and answers
// are exchanged without trickle ICE: each description is sent only after
// candidate gathering completes, so a single signaling round trip suffices.
type pionTransport struct {
	pc          *webrtc.PeerConnection
	videoSender *webrtc.RTPSender
}

var _ Transport = (*pionTransport)(nil)

// NewTransportFactory returns a factory producing one pionTransport per call,
// each preloaded with the media's camera tracks.
func NewTransportFactory(m Media) func() (Transport, error) {
	return func() (Transport, error) {
		return newPionTransport(m)
	}
}

func newPionTransport(m Media) (*pionTransport, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: defaultICEServers})
	if err != nil {
		return nil, errors.Wrap(err, "creating peer connection")
	}

	camera, err := m.Camera()
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if _, err = pc.AddTrack(camera.Audio); err != nil {
		_ = pc.Close()
		return nil, errors.Wrap(err, "adding audio track")
	}
	videoSender, err := pc.AddTrack(camera.Video)
	if err != nil {
		_ = pc.Close()
		return nil, errors.Wrap(err, "adding video track")
	}

	return &pionTransport{pc: pc, videoSender: videoSender}, nil
}

func (t *pionTransport) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating offer")
	}
	return t.setLocalAndGather(ctx, offer)
}

func (t *pionTransport) HandleOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(offer, &desc); err != nil {
		return nil, errors.Wrap(err, "decoding offer")
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return nil, errors.Wrap(err, "applying offer")
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating answer")
	}
	return t.setLocalAndGather(ctx, answer)
}

func (t *pionTransport) HandleAnswer(_ context.Context, answer json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(answer, &desc); err != nil {
		return errors.Wrap(err, "decoding answer")
	}
	return errors.Wrap(t.pc.SetRemoteDescription(desc), "applying answer")
}

// ReplaceVideoTrack swaps the outgoing video without renegotiating; the
// RTP sender keeps its SSRC so the remote side sees a seamless switch.
func (t *pionTransport) ReplaceVideoTrack(source TrackSource) error {
	return errors.Wrap(t.videoSender.ReplaceTrack(source), "replacing video track")
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

// OnRemoteTrack registers a handler for inbound media.
func (t *pionTransport) OnRemoteTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	t.pc.OnTrack(fn)
}

// setLocalAndGather applies the local description and waits for ICE
// gathering to finish before returning the complete description.
func (t *pionTransport) setLocalAndGather(ctx context.Context, desc webrtc.SessionDescription) (json.RawMessage, error) {
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(desc); err != nil {
		return nil, errors.Wrap(err, "setting local description")
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "gathering candidates")
	}

	raw, err := json.Marshal(t.pc.LocalDescription())
	if err != nil {
		return nil, errors.Wrap(err, "encoding description")
	}
	return raw, nil
}
