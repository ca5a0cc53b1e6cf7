package hub

import (
	"testing"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/store"
)

type callFixture struct {
	registry  *Registry
	store     *store.MemoryStore
	notifier  *fakeNotifier
	scheduler *fakeScheduler
	calls     *CallCoordinator
}

func newCallFixture() *callFixture {
	logger := discardLogger()
	registry := NewRegistry(logger)
	broadcaster := NewBroadcaster(registry, RetryPolicy{Attempts: 1}, logger)
	st := store.NewMemoryStore()
	st.AddUser(&models.User{ID: "alice", Username: "alice", DisplayName: "Alice"})
	st.AddUser(&models.User{ID: "bob", Username: "bob"})
	notifier := &fakeNotifier{}
	scheduler := &fakeScheduler{}
	return &callFixture{
		registry:  registry,
		store:     st,
		notifier:  notifier,
		scheduler: scheduler,
		calls:     NewCallCoordinator(registry, broadcaster, st, notifier, scheduler, testNow, logger),
	}
}

func (f *callFixture) connect(userID string) *Client {
	client := newClient(newFakeConn())
	client.userID = userID
	f.registry.Register(userID, client)
	return client
}

func (f *callFixture) status(t *testing.T, callID string) models.CallStatus {
	t.Helper()
	record, err := f.store.GetCallByCallID(callID)
	if err != nil {
		t.Fatalf("call record %q: %v", callID, err)
	}
	return record.Status
}

func TestInitiateRingsOnlineTarget(t *testing.T) {
	f := newCallFixture()
	f.connect("alice")
	bob := f.connect("bob")

	f.calls.Initiate("alice", "bob", "video", "call-1")

	envs := drain(t, bob)
	incoming, ok := envelopeOfType(envs, TypeIncomingCall)
	if !ok {
		t.Fatal("target did not receive incoming_call")
	}
	if incoming.From != "alice" || incoming.CallID != "call-1" || incoming.CallType != "video" {
		t.Errorf("incoming_call fields = %+v", incoming)
	}
	if incoming.CallerName != "Alice" {
		t.Errorf("caller name = %q, want display name", incoming.CallerName)
	}

	if got := f.status(t, "call-1"); got != models.CallStatusRinging {
		t.Errorf("status = %q, want ringing", got)
	}

	task := f.scheduler.last(t)
	if task.delay != ringTimeout {
		t.Errorf("ring timeout armed for %v, want %v", task.delay, ringTimeout)
	}
}

func TestInitiateGeneratesCallID(t *testing.T) {
	f := newCallFixture()
	bob := f.connect("bob")

	f.calls.Initiate("alice", "bob", "audio", "")

	incoming, ok := envelopeOfType(drain(t, bob), TypeIncomingCall)
	if !ok {
		t.Fatal("target did not receive incoming_call")
	}
	if incoming.CallID == "" {
		t.Fatal("no call id generated")
	}
	if _, err := f.store.GetCallByCallID(incoming.CallID); err != nil {
		t.Fatalf("generated call id not persisted: %v", err)
	}
}

func TestInitiateOfflineTargetRecordsMissed(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")

	f.calls.Initiate("alice", "bob", "audio", "call-1")

	if got := f.status(t, "call-1"); got != models.CallStatusMissed {
		t.Errorf("status = %q, want missed", got)
	}
	if f.notifier.callPushCount() != 1 {
		t.Errorf("call pushes = %d, want 1", f.notifier.callPushCount())
	}

	failed, ok := envelopeOfType(drain(t, alice), TypeCallFailed)
	if !ok {
		t.Fatal("initiator did not receive call_failed")
	}
	if failed.Reason != "user is offline" {
		t.Errorf("reason = %q", failed.Reason)
	}
	if len(f.scheduler.pending()) != 0 {
		t.Error("ring timeout armed for an offline target")
	}
}

func TestRingTimeoutMarksMissed(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.calls.Initiate("alice", "bob", "video", "call-1")
	drain(t, alice)
	drain(t, bob)

	f.scheduler.last(t).fire()

	if got := f.status(t, "call-1"); got != models.CallStatusMissed {
		t.Errorf("status = %q, want missed", got)
	}
	if !hasType(drain(t, alice), TypeCallMissed) {
		t.Error("initiator not told about the missed call")
	}
	if !hasType(drain(t, bob), TypeCallMissed) {
		t.Error("target not told about the missed call")
	}
}

func TestAcceptCancelsRingTimeout(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.calls.Initiate("alice", "bob", "video", "call-1")
	drain(t, alice)
	drain(t, bob)

	f.calls.Accept("call-1", "bob")

	if got := f.status(t, "call-1"); got != models.CallStatusAccepted {
		t.Errorf("status = %q, want accepted", got)
	}
	accepted, ok := envelopeOfType(drain(t, alice), TypeCallAccepted)
	if !ok {
		t.Fatal("initiator did not receive call_accepted")
	}
	if accepted.From != "bob" {
		t.Errorf("call_accepted from %q", accepted.From)
	}
	if !f.scheduler.last(t).isCanceled() {
		t.Error("ring timeout not canceled on accept")
	}
}

func TestRingTimeoutAfterAcceptIsNoOp(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.calls.Initiate("alice", "bob", "video", "call-1")
	f.calls.Accept("call-1", "bob")
	drain(t, alice)
	drain(t, bob)

	// Simulate the timer popping despite the cancellation racing it.
	f.scheduler.last(t).fire()

	if got := f.status(t, "call-1"); got != models.CallStatusAccepted {
		t.Errorf("status = %q after stale timeout, want accepted", got)
	}
	if hasType(drain(t, alice), TypeCallMissed) || hasType(drain(t, bob), TypeCallMissed) {
		t.Error("stale timeout produced call_missed notifications")
	}
}

func TestRejectCarriesReason(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")
	f.connect("bob")

	f.calls.Initiate("alice", "bob", "audio", "call-1")
	drain(t, alice)

	f.calls.Reject("call-1", "bob", "busy")

	if got := f.status(t, "call-1"); got != models.CallStatusRejected {
		t.Errorf("status = %q, want rejected", got)
	}
	rejected, ok := envelopeOfType(drain(t, alice), TypeCallRejected)
	if !ok {
		t.Fatal("initiator did not receive call_rejected")
	}
	if rejected.Reason != "busy" {
		t.Errorf("reason = %q, want busy", rejected.Reason)
	}
}

func TestRejectDefaultsToDeclined(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")
	f.connect("bob")

	f.calls.Initiate("alice", "bob", "audio", "call-1")
	drain(t, alice)

	f.calls.Reject("call-1", "bob", "")

	rejected, ok := envelopeOfType(drain(t, alice), TypeCallRejected)
	if !ok {
		t.Fatal("initiator did not receive call_rejected")
	}
	if rejected.Reason != "declined" {
		t.Errorf("reason = %q, want declined", rejected.Reason)
	}
}

func TestEndNotifiesOtherParty(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")
	bob := f.connect("bob")

	f.calls.Initiate("alice", "bob", "video", "call-1")
	f.calls.Accept("call-1", "bob")
	drain(t, alice)
	drain(t, bob)

	f.calls.End("call-1", "alice")

	if got := f.status(t, "call-1"); got != models.CallStatusEnded {
		t.Errorf("status = %q, want ended", got)
	}
	if !hasType(drain(t, bob), TypeCallEnded) {
		t.Error("target not told the call ended")
	}

	// A second end from the other side is a no-op on a terminal record.
	f.calls.End("call-1", "bob")
	if hasType(drain(t, alice), TypeCallEnded) {
		t.Error("duplicate end produced a notification")
	}
}

func TestTerminalStatusImmutable(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")
	f.connect("bob")

	f.calls.Initiate("alice", "bob", "audio", "call-1")
	f.calls.Reject("call-1", "bob", "busy")
	drain(t, alice)

	f.calls.Accept("call-1", "bob")

	if got := f.status(t, "call-1"); got != models.CallStatusRejected {
		t.Errorf("status = %q, want rejected to stick", got)
	}
	if hasType(drain(t, alice), TypeCallAccepted) {
		t.Error("accept after reject produced a notification")
	}
}

func TestEndUnknownCallIsQuiet(t *testing.T) {
	f := newCallFixture()
	alice := f.connect("alice")

	f.calls.End("no-such-call", "alice")

	if envs := drain(t, alice); len(envs) != 0 {
		t.Errorf("unexpected envelopes: %+v", envs)
	}
}
