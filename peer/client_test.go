package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/enlighten-ed/backend/core"
	"github.com/enlighten-ed/backend/core/chat"
	"github.com/enlighten-ed/backend/relay"
)

// stubRelay speaks the relay wire protocol but only answers when told to,
// so ack timeouts and late acks can be staged.
type stubRelay struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	ws       *websocket.Conn
	received chan relay.Envelope
}

func newStubRelay(t *testing.T) (*stubRelay, *httptest.Server) {
	t.Helper()
	s := &stubRelay{t: t, received: make(chan relay.Envelope, 16)}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *stubRelay) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	env, _ := relay.NewEnvelope(relay.EventAssignedIdentity, relay.AssignedIdentity{ID: "conn-test"})
	_ = ws.WriteJSON(env)

	for {
		var in relay.Envelope
		if err := ws.ReadJSON(&in); err != nil {
			return
		}
		s.received <- in
	}
}

func (s *stubRelay) send(event string, data interface{}) {
	s.t.Helper()
	env, err := relay.NewEnvelope(event, data)
	if err != nil {
		s.t.Fatalf("encoding %s: %v", event, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ws.WriteJSON(env); err != nil {
		s.t.Fatalf("writing %s: %v", event, err)
	}
}

func (s *stubRelay) expect(event string) relay.Envelope {
	s.t.Helper()
	select {
	case env := <-s.received:
		if env.Event != event {
			s.t.Fatalf("expected event %s, got %s", event, env.Event)
		}
		return env
	case <-time.After(2 * time.Second):
		s.t.Fatalf("timed out waiting for %s", event)
	}
	return relay.Envelope{}
}

func testClientConfig() *core.Config {
	conf := &core.Config{}
	conf.Server.AllowedOrigin = "*"
	conf.Relay = core.RelayConfig{
		WriteTimeout:   time.Second,
		PongTimeout:    10 * time.Second,
		SendAckTimeout: time.Second,
		AnswerTimeout:  10 * time.Second,
	}
	return conf
}

func dialClient(t *testing.T, srv *httptest.Server, conf *core.Config) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), url, nopLogger{}, conf)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientSendChatAckTimeout(t *testing.T) {
	stub, srv := newStubRelay(t)
	conf := testClientConfig()
	conf.Relay.SendAckTimeout = 100 * time.Millisecond

	c := dialClient(t, srv, conf)
	assert.Equal(t, "conn-test", c.ID())
	go func() { _ = c.Run(context.Background()) }()

	_, err := c.SendChat(context.Background(), chat.SendRequest{
		Kind: chat.KindDirect, From: "u1", FromName: "Alice", To: "u2",
		Content: "anyone there?", CorrelationID: "c-1",
	})
	assert.Equal(t, ErrAckTimeout, err)

	// the send itself reached the wire before the stall
	env := stub.expect(relay.EventChatSend)
	var sr chat.SendRequest
	assert.NoError(t, json.Unmarshal(env.Data, &sr))
	assert.Equal(t, "c-1", sr.CorrelationID)
	assert.Equal(t, "anyone there?", sr.Content)
}

func TestClientLateAckDropped(t *testing.T) {
	stub, srv := newStubRelay(t)
	conf := testClientConfig()
	conf.Relay.SendAckTimeout = 200 * time.Millisecond

	c := dialClient(t, srv, conf)
	go func() { _ = c.Run(context.Background()) }()

	// first send goes unanswered
	_, err := c.SendChat(context.Background(), chat.SendRequest{
		Kind: chat.KindDirect, From: "u1", FromName: "Alice", To: "u2",
		Content: "one", CorrelationID: "c-1",
	})
	assert.Equal(t, ErrAckTimeout, err)
	stub.expect(relay.EventChatSend)

	// the stale c-1 ack lands while c-2 is in flight; it must not be
	// mistaken for c-2's answer
	done := make(chan struct{})
	go func() {
		defer close(done)
		stub.expect(relay.EventChatSend)
		stub.send(relay.EventChatSendAck, relay.SendAck{Success: true, ID: 1, CorrelationID: "c-1"})
		stub.send(relay.EventChatSendAck, relay.SendAck{Success: true, ID: 2, CorrelationID: "c-2"})
	}()

	ack, err := c.SendChat(context.Background(), chat.SendRequest{
		Kind: chat.KindDirect, From: "u1", FromName: "Alice", To: "u2",
		Content: "two", CorrelationID: "c-2",
	})
	assert.NoError(t, err)
	assert.EqualValues(t, 2, ack.ID)
	assert.Equal(t, "c-2", ack.CorrelationID)
	<-done
}

func TestClientSendChatRejected(t *testing.T) {
	stub, srv := newStubRelay(t)
	c := dialClient(t, srv, testClientConfig())
	go func() { _ = c.Run(context.Background()) }()

	go func() {
		stub.expect(relay.EventChatSend)
		stub.send(relay.EventChatSendAck, relay.SendAck{Error: "message not saved", CorrelationID: "c-3"})
	}()

	ack, err := c.SendChat(context.Background(), chat.SendRequest{
		Kind: chat.KindDirect, From: "u1", FromName: "Alice", To: "u2",
		Content: "doomed", CorrelationID: "c-3",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "message not saved")
	assert.False(t, ack.Success)
}

type fakeCallHandler struct {
	mu       sync.Mutex
	incoming []Incoming
	answers  []json.RawMessage
	ended    int
}

func (h *fakeCallHandler) HandleIncoming(in Incoming) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.incoming = append(h.incoming, in)
}

func (h *fakeCallHandler) HandleAccepted(_ context.Context, answer json.RawMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.answers = append(h.answers, answer)
	return nil
}

func (h *fakeCallHandler) HandleRemoteEnded() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended++
}

func TestClientDispatch(t *testing.T) {
	stub, srv := newStubRelay(t)
	c := dialClient(t, srv, testClientConfig())

	handler := &fakeCallHandler{}
	c.Controller = handler

	var msgMu sync.Mutex
	var msgs []chat.Message
	c.OnMessage = func(m chat.Message) {
		msgMu.Lock()
		defer msgMu.Unlock()
		msgs = append(msgs, m)
	}

	go func() { _ = c.Run(context.Background()) }()

	assert.NoError(t, c.Subscribe("u1", "g1"))
	env := stub.expect(relay.EventSubscribe)
	var sub relay.Subscribe
	assert.NoError(t, json.Unmarshal(env.Data, &sub))
	assert.Equal(t, "u1", sub.UserID)
	assert.Equal(t, []string{"g1"}, sub.Groups)

	stub.send(relay.EventCallIncoming, relay.CallIncoming{From: "peer-1", Name: "Bob", Offer: json.RawMessage(`{"type":"offer"}`)})
	stub.send(relay.EventCallAccepted, relay.CallAccepted{From: "peer-1", Answer: json.RawMessage(`{"type":"answer"}`)})
	stub.send(relay.EventCallEnded, relay.CallEnded{From: "peer-1"})
	stub.send(relay.EventMessageCreated, relay.MessageCreated{Message: chat.Message{ID: 9, Content: "hi"}})

	assert.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		msgMu.Lock()
		defer msgMu.Unlock()
		return len(handler.incoming) == 1 && len(handler.answers) == 1 && handler.ended == 1 && len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "peer-1", handler.incoming[0].From)
	assert.Equal(t, "Bob", handler.incoming[0].Name)
	assert.EqualValues(t, 9, msgs[0].ID)
	assert.Equal(t, "hi", msgs[0].Content)
}

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
}

func (s *fakeStore) Save(ctx context.Context, sr chat.SendRequest) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return chat.Message{
		ID:        s.nextID,
		From:      sr.From,
		To:        sr.To,
		FromName:  sr.FromName,
		Content:   sr.Content,
		GroupID:   sr.GroupID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func TestClientAgainstRelay(t *testing.T) {
	conf := testClientConfig()
	rl := relay.New(&fakeStore{}, nil, validator.New(), nopLogger{}, conf)
	srv := httptest.NewServer(rl)
	t.Cleanup(srv.Close)

	c := dialClient(t, srv, conf)
	assert.NotEmpty(t, c.ID())
	go func() { _ = c.Run(context.Background()) }()

	assert.NoError(t, c.Subscribe("u1"))

	ack, err := c.SendChat(context.Background(), chat.SendRequest{
		Kind: chat.KindDirect, From: "u1", FromName: "Alice", To: "u2", Content: "hello",
	})
	assert.NoError(t, err)
	assert.True(t, ack.Success)
	assert.EqualValues(t, 1, ack.ID)
	assert.NotEmpty(t, ack.CorrelationID)
}
