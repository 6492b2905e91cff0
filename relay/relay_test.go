package relay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/enlighten-ed/backend/core"
	"github.com/enlighten-ed/backend/core/chat"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeChatService struct {
	mu     sync.Mutex
	nextID int64
	fail   bool
}

func (s *fakeChatService) Save(ctx context.Context, sr chat.SendRequest) (chat.Message, error) {
	if s.fail {
		return chat.Message{}, errors.New("store down")
	}
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

type fakeDirectory struct {
	mu      sync.Mutex
	set     map[string]string // userID -> connID
	cleared []string
}

func (d *fakeDirectory) SetConnectionID(userID, connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.set == nil {
		d.set = make(map[string]string)
	}
	d.set[userID] = connID
	return nil
}

func (d *fakeDirectory) ClearConnectionID(connID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleared = append(d.cleared, connID)
	return nil
}

func testConfig() *core.Config {
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

func newTestServer(t *testing.T, chatSvc ChatService, dir Directory, conf *core.Config) *httptest.Server {
	t.Helper()
	rl := New(chatSvc, dir, validator.New(), nopLogger{}, conf)
	srv := httptest.NewServer(rl)
	t.Cleanup(srv.Close)
	return srv
}

type testClient struct {
	t  *testing.T
	ws *websocket.Conn
	id string
}

func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing relay: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	c := &testClient{t: t, ws: ws}
	var ident AssignedIdentity
	c.expect(EventAssignedIdentity, &ident)
	if ident.ID == "" {
		t.Fatal("empty assigned identity")
	}
	c.id = ident.ID
	return c
}

func (c *testClient) send(event string, data interface{}) {
	c.t.Helper()
	env, err := NewEnvelope(event, data)
	if err != nil {
		c.t.Fatalf("encoding %s: %v", event, err)
	}
	if err := c.ws.WriteJSON(env); err != nil {
		c.t.Fatalf("writing %s: %v", event, err)
	}
}

// expect reads the next envelope and requires it to be the given event,
// decoding its payload into out when non-nil.
func (c *testClient) expect(event string, out interface{}) {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		c.t.Fatalf("waiting for %s: %v", event, err)
	}
	if env.Event != event {
		c.t.Fatalf("expected event %s, got %s", event, env.Event)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			c.t.Fatalf("decoding %s payload: %v", event, err)
		}
	}
}

func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(d))
	var env Envelope
	if err := c.ws.ReadJSON(&env); err == nil {
		c.t.Fatalf("expected no event, got %s", env.Event)
	}
}

func (c *testClient) subscribe(userID string, groups ...string) {
	c.send(EventSubscribe, Subscribe{UserID: userID, Groups: groups})
}

// waitSubscribed blocks until the relay has processed the user's subscribe,
// using the directory as the synchronization point.
func waitSubscribed(t *testing.T, dir *fakeDirectory, userID string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		return dir.set[userID] != ""
	}, time.Second, 5*time.Millisecond)
}

func TestDirectMessageRelay(t *testing.T) {
	dir := &fakeDirectory{}
	srv := newTestServer(t, &fakeChatService{}, dir, testConfig())

	alice := dial(t, srv)
	bob := dial(t, srv)
	alice.subscribe("u1")
	bob.subscribe("u2")
	waitSubscribed(t, dir, "u2")

	alice.send(EventChatSend, chat.SendRequest{
		Kind: chat.KindDirect, From: "u1", FromName: "Alice", To: "u2",
		Content: "hey bob", CorrelationID: "c-1",
	})

	var ack SendAck
	alice.expect(EventChatSendAck, &ack)
	assert.True(t, ack.Success)
	assert.EqualValues(t, 1, ack.ID)
	assert.Equal(t, "c-1", ack.CorrelationID)

	var created MessageCreated
	bob.expect(EventMessageCreated, &created)
	assert.Equal(t, "hey bob", created.Message.Content)
	assert.Equal(t, "Alice", created.Message.FromName)

	// direct delivery is scoped to the recipient's room
	alice.expectSilence(200 * time.Millisecond)
}

func TestGroupMessageRelay(t *testing.T) {
	dir := &fakeDirectory{}
	srv := newTestServer(t, &fakeChatService{}, dir, testConfig())

	alice := dial(t, srv)
	bob := dial(t, srv)
	carol := dial(t, srv)
	alice.subscribe("u1", "g1")
	bob.subscribe("u2", "g1")
	carol.subscribe("u3") // not in g1
	waitSubscribed(t, dir, "u2")
	waitSubscribed(t, dir, "u3")

	alice.send(EventChatSend, chat.SendRequest{
		Kind: chat.KindGroup, From: "u1", FromName: "Alice", GroupID: "g1", Content: "hello group",
	})

	var ack SendAck
	alice.expect(EventChatSendAck, &ack)
	assert.True(t, ack.Success)

	// sender is a group member, so it gets the fan-out too
	var created MessageCreated
	alice.expect(EventMessageCreated, &created)
	bob.expect(EventMessageCreated, &created)
	assert.Equal(t, "g1", created.Message.GroupID)

	carol.expectSilence(200 * time.Millisecond)
}

func TestChatSendFailures(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		srv := newTestServer(t, &fakeChatService{fail: true}, nil, testConfig())
		alice := dial(t, srv)
		alice.subscribe("u1")

		alice.send(EventChatSend, chat.SendRequest{
			Kind: chat.KindDirect, From: "u1", FromName: "Alice", To: "u2",
			Content: "hey", CorrelationID: "c-9",
		})

		var ack SendAck
		alice.expect(EventChatSendAck, &ack)
		assert.False(t, ack.Success)
		assert.Equal(t, "message not saved", ack.Error)
		assert.Equal(t, "c-9", ack.CorrelationID)
	})

	t.Run("unknown kind", func(t *testing.T) {
		srv := newTestServer(t, &fakeChatService{}, nil, testConfig())
		alice := dial(t, srv)

		alice.send(EventChatSend, chat.SendRequest{
			Kind: "broadcast", From: "u1", FromName: "Alice", Content: "hey", CorrelationID: "c-2",
		})

		var ack SendAck
		alice.expect(EventChatSendAck, &ack)
		assert.False(t, ack.Success)
		assert.Equal(t, "invalid message", ack.Error)
		assert.Equal(t, "c-2", ack.CorrelationID)
	})
}

func TestCallFlow(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, nil, testConfig())

	alice := dial(t, srv)
	bob := dial(t, srv)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	alice.send(EventCallInitiate, CallInitiate{Destination: bob.id, Offer: offer, CallerName: "Alice"})

	var incoming CallIncoming
	bob.expect(EventCallIncoming, &incoming)
	assert.Equal(t, alice.id, incoming.From)
	assert.Equal(t, "Alice", incoming.Name)
	assert.JSONEq(t, string(offer), string(incoming.Offer))

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	bob.send(EventCallAccept, CallAccept{Destination: alice.id, Answer: answer})

	var accepted CallAccepted
	alice.expect(EventCallAccepted, &accepted)
	assert.Equal(t, bob.id, accepted.From)
	assert.JSONEq(t, string(answer), string(accepted.Answer))

	bob.send(EventCallEnd, CallEnd{})

	var ended CallEnded
	alice.expect(EventCallEnded, &ended)
	assert.Equal(t, bob.id, ended.From)
}

func TestCallUnavailableDestination(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, nil, testConfig())
	alice := dial(t, srv)

	alice.send(EventCallInitiate, CallInitiate{Destination: "gone", Offer: json.RawMessage(`{}`)})

	var callErr CallError
	alice.expect(EventCallError, &callErr)
	assert.Equal(t, "gone", callErr.Destination)
	assert.Equal(t, "user unavailable", callErr.Error)
}

func TestCallBusy(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, nil, testConfig())

	alice := dial(t, srv)
	bob := dial(t, srv)
	carol := dial(t, srv)

	alice.send(EventCallInitiate, CallInitiate{Destination: bob.id, Offer: json.RawMessage(`{}`)})
	bob.expect(EventCallIncoming, nil)

	// bob is still ringing; no call waiting
	carol.send(EventCallInitiate, CallInitiate{Destination: bob.id, Offer: json.RawMessage(`{}`)})

	var callErr CallError
	carol.expect(EventCallError, &callErr)
	assert.Equal(t, bob.id, callErr.Destination)
	assert.Equal(t, "user busy", callErr.Error)
}

func TestCallRingTimeout(t *testing.T) {
	conf := testConfig()
	conf.Relay.AnswerTimeout = 150 * time.Millisecond
	srv := newTestServer(t, &fakeChatService{}, nil, conf)

	alice := dial(t, srv)
	bob := dial(t, srv)

	alice.send(EventCallInitiate, CallInitiate{Destination: bob.id, Offer: json.RawMessage(`{}`)})
	bob.expect(EventCallIncoming, nil)

	// nobody answers
	alice.expect(EventCallEnded, nil)
	bob.expect(EventCallEnded, nil)

	// parties are free again
	alice.send(EventCallInitiate, CallInitiate{Destination: bob.id, Offer: json.RawMessage(`{}`)})
	bob.expect(EventCallIncoming, nil)
}

func TestCallEndRequiresTrackedCall(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, nil, testConfig())

	alice := dial(t, srv)
	bob := dial(t, srv)
	carol := dial(t, srv)

	alice.send(EventCallInitiate, CallInitiate{Destination: bob.id, Offer: json.RawMessage(`{}`)})
	bob.expect(EventCallIncoming, nil)
	bob.send(EventCallAccept, CallAccept{Destination: alice.id, Answer: json.RawMessage(`{}`)})
	alice.expect(EventCallAccepted, nil)

	// a connection outside the call cannot hang it up by naming a destination
	carol.send(EventCallEnd, CallEnd{Destination: alice.id})
	alice.expectSilence(200 * time.Millisecond)
	bob.expectSilence(200 * time.Millisecond)

	// the participants still can
	alice.send(EventCallEnd, CallEnd{})
	var ended CallEnded
	bob.expect(EventCallEnded, &ended)
	assert.Equal(t, alice.id, ended.From)
}

func TestCallEndedOnDisconnect(t *testing.T) {
	srv := newTestServer(t, &fakeChatService{}, nil, testConfig())

	alice := dial(t, srv)
	bob := dial(t, srv)

	alice.send(EventCallInitiate, CallInitiate{Destination: bob.id, Offer: json.RawMessage(`{}`)})
	bob.expect(EventCallIncoming, nil)
	bob.send(EventCallAccept, CallAccept{Destination: alice.id, Answer: json.RawMessage(`{}`)})
	alice.expect(EventCallAccepted, nil)

	_ = bob.ws.Close()

	var ended CallEnded
	alice.expect(EventCallEnded, &ended)
	assert.Equal(t, bob.id, ended.From)
}

func TestSubscribeDirectory(t *testing.T) {
	dir := &fakeDirectory{}
	srv := newTestServer(t, &fakeChatService{}, dir, testConfig())

	alice := dial(t, srv)
	alice.subscribe("u1")

	assert.Eventually(t, func() bool {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		return dir.set["u1"] == alice.id
	}, time.Second, 10*time.Millisecond)

	_ = alice.ws.Close()

	assert.Eventually(t, func() bool {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		return len(dir.cleared) == 1 && dir.cleared[0] == alice.id
	}, time.Second, 10*time.Millisecond)
}
