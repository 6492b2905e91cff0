package relay

import (
	"encoding/json"

	"github.com/enlighten-ed/backend/core/chat"
)

// Client -> server events.
const (
	EventSubscribe    = "subscribe"
	EventCallInitiate = "call-initiate"
	EventCallAccept   = "call-accept"
	EventCallEnd      = "call-end"
	EventChatSend     = "chat-send"
)

// Server -> client events.
const (
	EventAssignedIdentity = "assigned-identity"
	EventCallIncoming     = "call-incoming"
	EventCallAccepted     = "call-accepted"
	EventCallEnded        = "call-ended"
	EventCallError        = "call-error"
	EventMessageCreated   = "message-created"
	EventChatSendAck      = "chat-send-ack"
)

// Envelope is the wire frame for every relay message, in both directions.
// Data is left raw so signaling payloads (SDP blobs) pass through opaquely.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data interface{}) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type (
	// AssignedIdentity tells a fresh connection its relay-assigned id.
	AssignedIdentity struct {
		ID string `json:"id"`
	}

	// Subscribe binds the connection to its user room and group rooms.
	Subscribe struct {
		UserID string   `json:"userId" validate:"required"`
		Groups []string `json:"groups"`
	}

	// CallInitiate asks the relay to ring Destination with the caller's offer.
	CallInitiate struct {
		Destination string          `json:"destination" validate:"required"`
		Offer       json.RawMessage `json:"offer" validate:"required"`
		CallerName  string          `json:"callerName"`
	}

	// CallIncoming rings the callee.
	CallIncoming struct {
		From  string          `json:"from"`
		Name  string          `json:"name"`
		Offer json.RawMessage `json:"offer"`
	}

	// CallAccept carries the callee's answer back toward Destination.
	CallAccept struct {
		Destination string          `json:"destination" validate:"required"`
		Answer      json.RawMessage `json:"answer" validate:"required"`
	}

	CallAccepted struct {
		From   string          `json:"from"`
		Answer json.RawMessage `json:"answer"`
	}

	// CallEnd hangs up; Destination is optional when a tracked call exists.
	CallEnd struct {
		Destination string `json:"destination"`
	}

	CallEnded struct {
		From string `json:"from,omitempty"`
	}

	// CallError reports a failed call operation to its initiator.
	CallError struct {
		Destination string `json:"destination"`
		Error       string `json:"error"`
	}

	// SendAck acknowledges a chat-send. CorrelationID echoes the client's
	// idempotency key so late acks can be matched to their request.
	SendAck struct {
		Success       bool   `json:"success"`
		ID            int64  `json:"id,omitempty"`
		Error         string `json:"error,omitempty"`
		CorrelationID string `json:"correlationId,omitempty"`
	}

	// MessageCreated fans a stored message out to its room.
	MessageCreated struct {
		Message chat.Message `json:"message"`
	}
)
