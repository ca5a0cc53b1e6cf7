package hub

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/store"
)

type hubFixture struct {
	hub       *Hub
	store     *store.MemoryStore
	notifier  *fakeNotifier
	scheduler *fakeScheduler
}

func newHubFixture() *hubFixture {
	st := store.NewMemoryStore()
	st.AddUser(&models.User{ID: "alice", Username: "alice", DisplayName: "Alice"})
	st.AddUser(&models.User{ID: "bob", Username: "bob", DisplayName: "Bob"})
	st.AddUser(&models.User{ID: "carol", Username: "carol"})
	st.SetConversationMembers("conv-1", []string{"alice", "bob", "carol"})

	notifier := &fakeNotifier{}
	scheduler := &fakeScheduler{}
	h := New(Options{
		Store:     st,
		Notifier:  notifier,
		Auth:      PlainAuth,
		Logger:    discardLogger(),
		Scheduler: scheduler,
		Now:       testNow,
		Retry:     &RetryPolicy{Attempts: 1},
		Sleep:     func(time.Duration) {},
	})
	return &hubFixture{hub: h, store: st, notifier: notifier, scheduler: scheduler}
}

// connect registers an already-authenticated client without running a read
// loop, so handlers can be exercised directly.
func (f *hubFixture) connect(userID string) *Client {
	client := newClient(newFakeConn())
	client.userID = userID
	f.hub.registry.Register(userID, client)
	return client
}

func mustJSON(t *testing.T, env Envelope) []byte {
	t.Helper()
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestServeIgnoresMessagesBeforeAuth(t *testing.T) {
	f := newHubFixture()
	conn := newFakeConn()
	conn.queue(mustJSON(t, Envelope{Type: TypeChatMessage, ConversationID: "conv-1", Content: "sneaky"}))
	conn.closeRead()

	f.hub.Serve(conn)

	if got := len(f.store.Messages()); got != 0 {
		t.Fatalf("pre-auth message persisted, %d messages stored", got)
	}
}

func TestServeAuthenticatesThenDispatches(t *testing.T) {
	f := newHubFixture()
	conn := newFakeConn()
	conn.queue(mustJSON(t, Envelope{Type: TypeAuth, UserID: "alice"}))
	conn.queue(mustJSON(t, Envelope{Type: TypeChatMessage, ConversationID: "conv-1", Content: "hello"}))
	conn.closeRead()

	f.hub.Serve(conn)

	messages := f.store.Messages()
	if len(messages) != 1 {
		t.Fatalf("stored %d messages, want 1", len(messages))
	}
	if messages[0].SenderID != "alice" || messages[0].Content != "hello" {
		t.Errorf("message = %+v", messages[0])
	}
	// bob and carol are offline, each falls back to a push
	if got := f.notifier.msgPushCount(); got != 2 {
		t.Errorf("message pushes = %d, want 2", got)
	}
	if f.hub.IsUserOnline("alice") {
		t.Error("user still online after the connection closed")
	}
}

func TestServeMalformedPayloadSkipped(t *testing.T) {
	f := newHubFixture()
	conn := newFakeConn()
	conn.queue([]byte("{not json"))
	conn.queue(mustJSON(t, Envelope{Type: TypeAuth, UserID: "alice"}))
	conn.queue(mustJSON(t, Envelope{Type: TypeChatMessage, ConversationID: "conv-1", Content: "still here"}))
	conn.closeRead()

	f.hub.Serve(conn)

	if got := len(f.store.Messages()); got != 1 {
		t.Fatalf("stored %d messages, want 1", got)
	}
}

func TestAuthFailureSendsError(t *testing.T) {
	f := newHubFixture()
	f.hub.auth = func(env Envelope) (string, error) {
		return "", errors.New("bad token")
	}

	client := newClient(newFakeConn())
	f.hub.handleAuth(client, Envelope{Type: TypeAuth, Token: "garbage"})

	errEnv, ok := envelopeOfType(drain(t, client), TypeError)
	if !ok {
		t.Fatal("failed auth produced no error envelope")
	}
	if errEnv.Reason != "authentication failed" {
		t.Errorf("reason = %q", errEnv.Reason)
	}
	if client.UserID() != "" {
		t.Error("identity assigned despite auth failure")
	}
}

func TestAuthPublishesPresence(t *testing.T) {
	f := newHubFixture()
	bob := f.connect("bob")

	client := newClient(newFakeConn())
	f.hub.handleAuth(client, Envelope{Type: TypeAuth, UserID: "alice"})

	presence, ok := envelopeOfType(drain(t, bob), TypePresence)
	if !ok {
		t.Fatal("other client did not see the presence broadcast")
	}
	if presence.UserID != "alice" || presence.Status != models.UserStatusOnline {
		t.Errorf("presence = %+v", presence)
	}

	user, err := f.store.GetUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if user.Status != models.UserStatusOnline {
		t.Errorf("persisted status = %q, want online", user.Status)
	}
}

func TestStaleDisconnectDoesNotFlapPresence(t *testing.T) {
	f := newHubFixture()
	oldClient := f.connect("alice")
	f.connect("alice") // evicts oldClient

	f.hub.disconnect(oldClient)

	if !f.hub.IsUserOnline("alice") {
		t.Fatal("stale disconnect took down the live session")
	}
}

func TestTypingExcludesSender(t *testing.T) {
	f := newHubFixture()
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.hub.handleTyping(alice, Envelope{Type: TypeTyping, ConversationID: "conv-1", IsTyping: true})

	typing, ok := envelopeOfType(drain(t, bob), TypeTyping)
	if !ok {
		t.Fatal("member did not receive typing indicator")
	}
	if typing.From != "alice" || !typing.IsTyping {
		t.Errorf("typing = %+v", typing)
	}
	if hasType(drain(t, alice), TypeTyping) {
		t.Error("sender received their own typing indicator")
	}
}

func TestChatMessagePrefersLiveDelivery(t *testing.T) {
	f := newHubFixture()
	alice := f.connect("alice")
	bob := f.connect("bob")
	// carol offline

	f.hub.handleChatMessage(alice, Envelope{Type: TypeChatMessage, ConversationID: "conv-1", Content: "hi"})

	msg, ok := envelopeOfType(drain(t, bob), TypeNewMessage)
	if !ok {
		t.Fatal("connected member did not receive new_message")
	}
	if msg.Content != "hi" || msg.From != "alice" {
		t.Errorf("new_message = %+v", msg)
	}
	if got := f.notifier.msgPushCount(); got != 1 {
		t.Errorf("message pushes = %d, want 1 (carol only)", got)
	}
}

func TestRelayAnnotatesSender(t *testing.T) {
	f := newHubFixture()
	alice := f.connect("alice")
	bob := f.connect("bob")

	sdp := json.RawMessage(`{"sdp":"v=0"}`)
	f.hub.handleRelay(alice, Envelope{Type: TypeWebRTCOffer, To: "bob", CallID: "call-1", Data: sdp})

	offer, ok := envelopeOfType(drain(t, bob), TypeWebRTCOffer)
	if !ok {
		t.Fatal("target did not receive the relayed offer")
	}
	if offer.From != "alice" || offer.To != "bob" {
		t.Errorf("relay annotation = from %q to %q", offer.From, offer.To)
	}
	if string(offer.Data) != string(sdp) {
		t.Errorf("payload altered in transit: %s", offer.Data)
	}
}

func TestEndCallPrefersActiveGroupSession(t *testing.T) {
	f := newHubFixture()
	f.store.SetConversationMembers("room-1", []string{"alice", "bob"})
	alice := f.connect("alice")
	f.connect("bob")

	f.hub.groups.Start("room-1", "video", "alice")
	callID, _ := f.hub.groups.SessionForRoom("room-1")

	f.hub.handleEndCall(alice, Envelope{Type: TypeEndCall, CallID: callID})

	if _, ok := f.hub.groups.Participants(callID); ok {
		t.Fatal("end_call did not leave the group session")
	}
}

func TestEndCallFallsBackToDirectCall(t *testing.T) {
	f := newHubFixture()
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.hub.handleInitiateCall(alice, Envelope{Type: TypeInitiateCall, To: "bob", CallType: "audio", CallID: "call-1"})
	f.hub.handleAcceptCall(bob, Envelope{Type: TypeAcceptCall, CallID: "call-1"})
	drain(t, alice)
	drain(t, bob)

	f.hub.handleEndCall(alice, Envelope{Type: TypeEndCall, CallID: "call-1"})

	record, err := f.store.GetCallByCallID("call-1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != models.CallStatusEnded {
		t.Errorf("status = %q, want ended", record.Status)
	}
	if !hasType(drain(t, bob), TypeCallEnded) {
		t.Error("other party not notified")
	}
}

func TestPlainAuth(t *testing.T) {
	if _, err := PlainAuth(Envelope{Type: TypeAuth}); err == nil {
		t.Error("empty identity accepted")
	}
	userID, err := PlainAuth(Envelope{Type: TypeAuth, UserID: "alice"})
	if err != nil || userID != "alice" {
		t.Errorf("PlainAuth = %q, %v", userID, err)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("short"); got != "short" {
		t.Errorf("preview = %q", got)
	}
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	if got := preview(string(long)); len([]rune(got)) != 81 {
		t.Errorf("preview length = %d runes", len([]rune(got)))
	}
}
