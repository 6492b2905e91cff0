package peer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/enlighten-ed/backend/core"
	"github.com/enlighten-ed/backend/core/chat"
	"github.com/enlighten-ed/backend/relay"
)

var ErrAckTimeout = errors.New("server response timeout")

// Client is a relay-side participant: it keeps one websocket to the relay,
// implements Signaler over it, and exposes chat sending with delivery
// acknowledgements. A Controller is attached to receive call events.
type Client struct {
	ws     *websocket.Conn
	logger core.Logger
	conf   core.RelayConfig

	// Controller receives inbound call signaling; set before Run.
	Controller interface {
		HandleIncoming(Incoming)
		HandleAccepted(ctx context.Context, answer json.RawMessage) error
		HandleRemoteEnded()
	}

	// OnMessage receives room fan-out messages; optional.
	OnMessage func(chat.Message)

	id string

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan relay.SendAck // correlation id -> waiter
}

// Dial connects to the relay and waits for the assigned identity.
func Dial(ctx context.Context, url string, logger core.Logger, conf *core.Config) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dialing relay")
	}

	var env relay.Envelope
	if err = ws.ReadJSON(&env); err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "reading identity")
	}
	if env.Event != relay.EventAssignedIdentity {
		_ = ws.Close()
		return nil, errors.Errorf("expected %s, got %s", relay.EventAssignedIdentity, env.Event)
	}
	var ident relay.AssignedIdentity
	if err = json.Unmarshal(env.Data, &ident); err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "decoding identity")
	}

	return &Client{
		ws:      ws,
		logger:  logger,
		conf:    conf.Relay,
		id:      ident.ID,
		pending: make(map[string]chan relay.SendAck),
	}, nil
}

// ID is the relay-assigned connection identity.
func (c *Client) ID() string { return c.id }

// Subscribe binds this connection to its user and group rooms.
func (c *Client) Subscribe(userID string, groups ...string) error {
	return c.write(relay.EventSubscribe, relay.Subscribe{UserID: userID, Groups: groups})
}

// Run reads relay events until the connection drops, dispatching to the
// attached Controller and OnMessage hook. It always returns a non-nil error.
func (c *Client) Run(ctx context.Context) error {
	for {
		var env relay.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return errors.Wrap(err, "reading relay event")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.handle(ctx, env)
	}
}

func (c *Client) Close() error {
	return c.ws.Close()
}

// Signaler implementation.

func (c *Client) Initiate(destination string, offer json.RawMessage) error {
	return c.write(relay.EventCallInitiate, relay.CallInitiate{Destination: destination, Offer: offer})
}

func (c *Client) Accept(destination string, answer json.RawMessage) error {
	return c.write(relay.EventCallAccept, relay.CallAccept{Destination: destination, Answer: answer})
}

func (c *Client) End(destination string) error {
	return c.write(relay.EventCallEnd, relay.CallEnd{Destination: destination})
}

// SendChat submits the message and waits for the relay's acknowledgement, at
// most the configured ack timeout. A late ack is dropped by correlation id
// rather than being misread as the answer to a later send.
func (c *Client) SendChat(ctx context.Context, sr chat.SendRequest) (relay.SendAck, error) {
	if sr.CorrelationID == "" {
		sr.CorrelationID = uuid.NewString()
	}

	waiter := make(chan relay.SendAck, 1)
	c.mu.Lock()
	c.pending[sr.CorrelationID] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, sr.CorrelationID)
		c.mu.Unlock()
	}()

	if err := c.write(relay.EventChatSend, sr); err != nil {
		return relay.SendAck{}, err
	}

	timer := time.NewTimer(c.conf.SendAckTimeout)
	defer timer.Stop()

	select {
	case ack := <-waiter:
		if !ack.Success {
			return ack, errors.Errorf("message rejected: %s", ack.Error)
		}
		return ack, nil
	case <-timer.C:
		return relay.SendAck{}, ErrAckTimeout
	case <-ctx.Done():
		return relay.SendAck{}, ctx.Err()
	}
}

func (c *Client) handle(ctx context.Context, env relay.Envelope) {
	switch env.Event {
	case relay.EventCallIncoming:
		var p relay.CallIncoming
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn("peer: bad call-incoming payload", err)
			return
		}
		if c.Controller != nil {
			c.Controller.HandleIncoming(Incoming{From: p.From, Name: p.Name, Offer: p.Offer})
		}

	case relay.EventCallAccepted:
		var p relay.CallAccepted
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn("peer: bad call-accepted payload", err)
			return
		}
		if c.Controller != nil {
			if err := c.Controller.HandleAccepted(ctx, p.Answer); err != nil {
				c.logger.Warn("peer: completing call", err)
			}
		}

	case relay.EventCallEnded:
		if c.Controller != nil {
			c.Controller.HandleRemoteEnded()
		}

	case relay.EventCallError:
		var p relay.CallError
		_ = json.Unmarshal(env.Data, &p)
		c.logger.Warn("peer: call failed", p.Error)
		if c.Controller != nil {
			c.Controller.HandleRemoteEnded()
		}

	case relay.EventChatSendAck:
		var ack relay.SendAck
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			c.logger.Warn("peer: bad ack payload", err)
			return
		}
		c.mu.Lock()
		waiter := c.pending[ack.CorrelationID]
		c.mu.Unlock()
		if waiter == nil {
			// late or duplicate ack; the send already timed out
			c.logger.Debug("peer: dropping unmatched ack", ack.CorrelationID)
			return
		}
		select {
		case waiter <- ack:
		default:
		}

	case relay.EventMessageCreated:
		var p relay.MessageCreated
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn("peer: bad message payload", err)
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(p.Message)
		}

	default:
		c.logger.Debug("peer: ignoring event", env.Event)
	}
}

func (c *Client) write(event string, data interface{}) error {
	env, err := relay.NewEnvelope(event, data)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", event)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrapf(c.ws.WriteJSON(env), "writing %s", event)
}
