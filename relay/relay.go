package relay

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/enlighten-ed/backend/core"
	"github.com/enlighten-ed/backend/core/chat"
)

// ChatService is the slice of the chat layer the relay needs.
type ChatService interface {
	Save(ctx context.Context, sr chat.SendRequest) (chat.Message, error)
}

// Relay upgrades websocket connections and routes signaling and chat
// envelopes between them. Every connection gets a fresh relay-assigned
// identity; clients exchange those ids out of band (through the directory)
// to address each other.
type Relay struct {
	hub      *Hub
	chatSvc  ChatService
	dir      Directory // may be nil
	validate *validator.Validate
	logger   core.Logger
	conf     core.RelayConfig
	upgrader websocket.Upgrader
}

func New(chatSvc ChatService, dir Directory, validate *validator.Validate, logger core.Logger, conf *core.Config) *Relay {
	allowed := conf.Server.AllowedOrigin
	return &Relay{
		hub:      NewHub(),
		chatSvc:  chatSvc,
		dir:      dir,
		validate: validate,
		logger:   logger,
		conf:     conf.Relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowed == "" || allowed == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowed
			},
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rl.logger.Warn("relay: upgrade failed", err)
		return
	}

	c := newConn(uuid.NewString(), ws)
	rl.hub.add(c)
	rl.sendTo(c, EventAssignedIdentity, AssignedIdentity{ID: c.id})

	go c.writePump(rl.conf.WriteTimeout, rl.conf.PongTimeout)
	c.readPump(rl.conf.PongTimeout, rl.dispatch)

	rl.drop(c)
}

// drop cleans up after a disconnect: directory entry, room membership, and
// any call the peer was in (the other party gets call-ended).
func (rl *Relay) drop(c *Conn) {
	if rl.dir != nil {
		if err := rl.dir.ClearConnectionID(c.id); err != nil {
			rl.logger.Error("relay: clearing connection id", err)
		}
	}
	if peerID := rl.hub.remove(c); peerID != "" {
		if peer := rl.hub.conn(peerID); peer != nil {
			rl.sendTo(peer, EventCallEnded, CallEnded{From: c.id})
		}
	}
}

func (rl *Relay) dispatch(c *Conn, env Envelope) {
	switch env.Event {
	case EventSubscribe:
		rl.handleSubscribe(c, env.Data)
	case EventCallInitiate:
		rl.handleCallInitiate(c, env.Data)
	case EventCallAccept:
		rl.handleCallAccept(c, env.Data)
	case EventCallEnd:
		rl.handleCallEnd(c, env.Data)
	case EventChatSend:
		rl.handleChatSend(c, env.Data)
	default:
		rl.logger.Debug("relay: ignoring unknown event", env.Event)
	}
}

func (rl *Relay) handleSubscribe(c *Conn, data json.RawMessage) {
	var p Subscribe
	if err := json.Unmarshal(data, &p); err != nil {
		rl.logger.Debug("relay: bad subscribe payload", err)
		return
	}
	if err := rl.validate.Struct(&p); err != nil {
		rl.logger.Debug("relay: invalid subscribe", err)
		return
	}

	rooms := make([]string, 0, len(p.Groups)+1)
	rooms = append(rooms, "user:"+p.UserID)
	for _, g := range p.Groups {
		rooms = append(rooms, "group:"+g)
	}
	rl.hub.subscribe(c, rooms...)

	if rl.dir != nil {
		if err := rl.dir.SetConnectionID(p.UserID, c.id); err != nil {
			rl.logger.Error("relay: setting connection id", err)
		}
	}
}

func (rl *Relay) handleCallInitiate(c *Conn, data json.RawMessage) {
	var p CallInitiate
	if err := json.Unmarshal(data, &p); err != nil || rl.validate.Struct(&p) != nil {
		rl.sendTo(c, EventCallError, CallError{Error: "invalid call request"})
		return
	}

	dest := rl.hub.conn(p.Destination)
	if dest == nil {
		// stale destination id: the callee reconnected or went offline
		rl.sendTo(c, EventCallError, CallError{Destination: p.Destination, Error: "user unavailable"})
		return
	}

	ok := rl.hub.startCall(c.id, dest.id, rl.conf.AnswerTimeout, func(caller, callee string) {
		if !rl.hub.endRinging(caller, callee) {
			return
		}
		for _, id := range []string{caller, callee} {
			if peer := rl.hub.conn(id); peer != nil {
				rl.sendTo(peer, EventCallEnded, CallEnded{})
			}
		}
	})
	if !ok {
		rl.sendTo(c, EventCallError, CallError{Destination: p.Destination, Error: "user busy"})
		return
	}

	rl.sendTo(dest, EventCallIncoming, CallIncoming{From: c.id, Name: p.CallerName, Offer: p.Offer})
}

func (rl *Relay) handleCallAccept(c *Conn, data json.RawMessage) {
	var p CallAccept
	if err := json.Unmarshal(data, &p); err != nil || rl.validate.Struct(&p) != nil {
		rl.sendTo(c, EventCallError, CallError{Error: "invalid call answer"})
		return
	}

	if !rl.hub.acceptCall(c.id, p.Destination) {
		rl.sendTo(c, EventCallError, CallError{Destination: p.Destination, Error: "no ringing call"})
		return
	}

	caller := rl.hub.conn(p.Destination)
	if caller == nil {
		rl.hub.endCall(c.id)
		rl.sendTo(c, EventCallError, CallError{Destination: p.Destination, Error: "user unavailable"})
		return
	}
	rl.sendTo(caller, EventCallAccepted, CallAccepted{From: c.id, Answer: p.Answer})
}

func (rl *Relay) handleCallEnd(c *Conn, _ json.RawMessage) {
	// only a tracked call involving the sender can be ended; the payload's
	// destination is never trusted to address another connection's call
	peerID := rl.hub.endCall(c.id)
	if peerID == "" {
		return
	}
	if peer := rl.hub.conn(peerID); peer != nil {
		rl.sendTo(peer, EventCallEnded, CallEnded{From: c.id})
	}
}

func (rl *Relay) handleChatSend(c *Conn, data json.RawMessage) {
	var sr chat.SendRequest
	if err := json.Unmarshal(data, &sr); err != nil {
		rl.sendTo(c, EventChatSendAck, SendAck{Error: "invalid message"})
		return
	}
	if err := sr.Validate(rl.validate); err != nil {
		rl.sendTo(c, EventChatSendAck, SendAck{Error: "invalid message", CorrelationID: sr.CorrelationID})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), rl.conf.SendAckTimeout)
	defer cancel()

	msg, err := rl.chatSvc.Save(ctx, sr)
	if err != nil {
		rl.logger.Error("relay: saving message", err)
		rl.sendTo(c, EventChatSendAck, SendAck{Error: "message not saved", CorrelationID: sr.CorrelationID})
		return
	}

	// the sender is owed the ack only after the write attempt; its order
	// relative to the room fan-out is not part of the contract, so ack
	// first and let a slow room lag behind
	rl.sendTo(c, EventChatSendAck, SendAck{Success: true, ID: msg.ID, CorrelationID: sr.CorrelationID})

	env, err := NewEnvelope(EventMessageCreated, MessageCreated{Message: msg})
	if err != nil {
		rl.logger.Error("relay: encoding message-created", err)
		return
	}
	rl.hub.broadcastRoom(sr.Room(), env)
}

func (rl *Relay) sendTo(c *Conn, event string, data interface{}) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		rl.logger.Error("relay: encoding envelope", err)
		return
	}
	c.enqueue(env)
}
