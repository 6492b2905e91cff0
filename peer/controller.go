package peer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core"
)

// State of a call, from the local participant's point of view.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateRinging
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateRinging:
		return "ringing"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

var (
	ErrCallInProgress = errors.New("a call is already in progress")
	ErrBusy           = errors.New("busy")
	ErrNoCall         = errors.New("no call in progress")
)

type (
	// Signaler carries signaling payloads to the other party, typically over
	// the relay.
	Signaler interface {
		Initiate(destination string, offer json.RawMessage) error
		Accept(destination string, answer json.RawMessage) error
		End(destination string) error
	}

	// Transport is one media session. A fresh Transport is made per call and
	// closed when the call ends.
	Transport interface {
		CreateOffer(ctx context.Context) (json.RawMessage, error)
		HandleOffer(ctx context.Context, offer json.RawMessage) (answer json.RawMessage, err error)
		HandleAnswer(ctx context.Context, answer json.RawMessage) error
		ReplaceVideoTrack(source TrackSource) error
		Close() error
	}

	// Incoming describes a pending inbound call.
	Incoming struct {
		From  string
		Name  string
		Offer json.RawMessage
	}

	// Controller drives a single participant's call lifecycle: one call at a
	// time, no call waiting. All methods are safe for concurrent use.
	Controller struct {
		signaler     Signaler
		newTransport func() (Transport, error)
		media        Media
		logger       core.Logger

		answerTimeout time.Duration

		// OnIncoming is invoked when a call starts ringing; OnEnded when a
		// call finishes for any reason. Both optional, set before use.
		OnIncoming func(Incoming)
		OnEnded    func()

		mu          sync.Mutex
		state       State
		peerID      string
		transport   Transport
		pending     *Incoming
		answerTimer *time.Timer
		sharing     bool
	}
)

func NewController(signaler Signaler, newTransport func() (Transport, error), media Media, logger core.Logger, conf *core.Config) *Controller {
	return &Controller{
		signaler:      signaler,
		newTransport:  newTransport,
		media:         media,
		logger:        logger,
		answerTimeout: conf.Relay.AnswerTimeout,
	}
}

func (ctl *Controller) State() State {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.state
}

// PlaceCall creates an offer and rings destination. The call ends on its own
// if no answer arrives within the answer timeout.
func (ctl *Controller) PlaceCall(ctx context.Context, destination string) error {
	ctl.mu.Lock()
	if ctl.state != StateIdle && ctl.state != StateEnded {
		ctl.mu.Unlock()
		return ErrCallInProgress
	}
	ctl.state = StateOffering
	ctl.peerID = destination
	ctl.mu.Unlock()

	transport, err := ctl.newTransport()
	if err != nil {
		ctl.reset()
		return errors.Wrap(err, "creating transport")
	}
	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		_ = transport.Close()
		ctl.reset()
		return errors.Wrap(err, "creating offer")
	}

	if err = ctl.signaler.Initiate(destination, offer); err != nil {
		_ = transport.Close()
		ctl.reset()
		return errors.Wrap(err, "signaling offer")
	}

	ctl.mu.Lock()
	ctl.transport = transport
	ctl.state = StateAwaitingAnswer
	ctl.answerTimer = time.AfterFunc(ctl.answerTimeout, ctl.answerTimedOut)
	ctl.mu.Unlock()
	return nil
}

// HandleIncoming reacts to an inbound ring. When already engaged the call is
// declined straight away; otherwise it is parked for Answer.
func (ctl *Controller) HandleIncoming(inc Incoming) {
	ctl.mu.Lock()
	if ctl.state != StateIdle && ctl.state != StateEnded {
		ctl.mu.Unlock()
		if err := ctl.signaler.End(inc.From); err != nil {
			ctl.logger.Warn("peer: declining call", err)
		}
		return
	}
	ctl.state = StateRinging
	ctl.peerID = inc.From
	ctl.pending = &inc
	ctl.mu.Unlock()

	if ctl.OnIncoming != nil {
		ctl.OnIncoming(inc)
	}
}

// Answer accepts the pending inbound call.
func (ctl *Controller) Answer(ctx context.Context) error {
	ctl.mu.Lock()
	if ctl.state != StateRinging || ctl.pending == nil {
		ctl.mu.Unlock()
		return ErrNoCall
	}
	inc := *ctl.pending
	ctl.mu.Unlock()

	transport, err := ctl.newTransport()
	if err != nil {
		ctl.endLocally()
		return errors.Wrap(err, "creating transport")
	}
	answer, err := transport.HandleOffer(ctx, inc.Offer)
	if err != nil {
		_ = transport.Close()
		ctl.endLocally()
		return errors.Wrap(err, "answering offer")
	}

	if err = ctl.signaler.Accept(inc.From, answer); err != nil {
		_ = transport.Close()
		ctl.endLocally()
		return errors.Wrap(err, "signaling answer")
	}

	ctl.mu.Lock()
	ctl.transport = transport
	ctl.pending = nil
	ctl.state = StateConnected
	ctl.mu.Unlock()
	return nil
}

// HandleAccepted completes the outbound call with the callee's answer.
func (ctl *Controller) HandleAccepted(ctx context.Context, answer json.RawMessage) error {
	ctl.mu.Lock()
	if ctl.state != StateAwaitingAnswer {
		ctl.mu.Unlock()
		return ErrNoCall
	}
	ctl.answerTimer.Stop()
	transport := ctl.transport
	ctl.mu.Unlock()

	if err := transport.HandleAnswer(ctx, answer); err != nil {
		ctl.hangUp(true)
		return errors.Wrap(err, "applying answer")
	}

	ctl.mu.Lock()
	ctl.state = StateConnected
	ctl.mu.Unlock()
	return nil
}

// HangUp ends the current call and notifies the other party.
func (ctl *Controller) HangUp() error {
	return ctl.hangUp(true)
}

// HandleRemoteEnded reacts to the other party hanging up.
func (ctl *Controller) HandleRemoteEnded() {
	_ = ctl.hangUp(false)
}

// ShareScreen swaps the outgoing video for a screen capture. When the capture
// source ends on its own, the camera is restored.
func (ctl *Controller) ShareScreen(ctx context.Context) error {
	ctl.mu.Lock()
	if ctl.state != StateConnected {
		ctl.mu.Unlock()
		return ErrNoCall
	}
	if ctl.sharing {
		ctl.mu.Unlock()
		return nil
	}
	transport := ctl.transport
	ctl.mu.Unlock()

	screen, err := ctl.media.Screen(func() {
		if err := ctl.StopSharing(); err != nil && errors.Cause(err) != ErrNoCall {
			ctl.logger.Warn("peer: restoring camera", err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "capturing screen")
	}
	if err = transport.ReplaceVideoTrack(screen); err != nil {
		return errors.Wrap(err, "switching to screen")
	}

	ctl.mu.Lock()
	ctl.sharing = true
	ctl.mu.Unlock()
	return nil
}

// StopSharing restores the camera as the outgoing video.
func (ctl *Controller) StopSharing() error {
	ctl.mu.Lock()
	if ctl.state != StateConnected || !ctl.sharing {
		ctl.mu.Unlock()
		return ErrNoCall
	}
	transport := ctl.transport
	ctl.mu.Unlock()

	camera, err := ctl.media.Camera()
	if err != nil {
		return errors.Wrap(err, "capturing camera")
	}
	if err = transport.ReplaceVideoTrack(camera.Video); err != nil {
		return errors.Wrap(err, "switching to camera")
	}

	ctl.mu.Lock()
	ctl.sharing = false
	ctl.mu.Unlock()
	return nil
}

func (ctl *Controller) answerTimedOut() {
	ctl.mu.Lock()
	if ctl.state != StateAwaitingAnswer {
		ctl.mu.Unlock()
		return
	}
	ctl.mu.Unlock()

	ctl.logger.Info("peer: call timed out waiting for answer")
	_ = ctl.hangUp(true)
}

func (ctl *Controller) endLocally() {
	_ = ctl.hangUp(true)
}

func (ctl *Controller) hangUp(notify bool) error {
	ctl.mu.Lock()
	if ctl.state == StateIdle || ctl.state == StateEnded {
		ctl.mu.Unlock()
		return ErrNoCall
	}
	peerID := ctl.peerID
	transport := ctl.transport
	if ctl.answerTimer != nil {
		ctl.answerTimer.Stop()
		ctl.answerTimer = nil
	}
	ctl.transport = nil
	ctl.pending = nil
	ctl.peerID = ""
	ctl.sharing = false
	ctl.state = StateEnded
	ctl.mu.Unlock()

	if transport != nil {
		if err := transport.Close(); err != nil {
			ctl.logger.Warn("peer: closing transport", err)
		}
	}
	if notify && peerID != "" {
		if err := ctl.signaler.End(peerID); err != nil {
			ctl.logger.Warn("peer: signaling hang up", err)
		}
	}
	if ctl.OnEnded != nil {
		ctl.OnEnded()
	}
	return nil
}

func (ctl *Controller) reset() {
	ctl.mu.Lock()
	ctl.state = StateIdle
	ctl.peerID = ""
	ctl.transport = nil
	ctl.pending = nil
	ctl.sharing = false
	ctl.mu.Unlock()
}
