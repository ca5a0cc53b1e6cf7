package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNow() time.Time {
	return time.Unix(1_700_000_000, 0)
}

// fakeConn is an in-memory Conn. Inbound frames are queued with queue() and
// the read side terminates once closeRead() is called.
type fakeConn struct {
	mu       sync.Mutex
	incoming chan []byte
	writes   [][]byte
	readDone bool
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 64)}
}

func (c *fakeConn) queue(payload []byte) {
	c.incoming <- payload
}

func (c *fakeConn) closeRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.readDone {
		c.readDone = true
		close(c.incoming)
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	payload, ok := <-c.incoming
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, payload, nil
}

func (c *fakeConn) WriteMessage(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, payload)
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeScheduler captures scheduled callbacks so tests fire or inspect them
// deterministically.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

type fakeTask struct {
	mu       sync.Mutex
	delay    time.Duration
	fn       func()
	canceled bool
	fired    bool
}

func (t *fakeTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.canceled {
		return false
	}
	t.canceled = true
	return true
}

// fire runs the callback regardless of cancellation, simulating a timer that
// already popped when Cancel raced it.
func (t *fakeTask) fire() {
	t.mu.Lock()
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
}

func (t *fakeTask) isCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

func (s *fakeScheduler) Schedule(d time.Duration, fn func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{delay: d, fn: fn}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *fakeScheduler) pending() []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeTask(nil), s.tasks...)
}

func (s *fakeScheduler) last(t *testing.T) *fakeTask {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		t.Fatal("no task scheduled")
	}
	return s.tasks[len(s.tasks)-1]
}

// fakeNotifier records push attempts.
type fakeNotifier struct {
	mu         sync.Mutex
	callPushes []string // "userID:callID"
	msgPushes  []string // "userID:conversationID"
}

func (n *fakeNotifier) SendCallPush(userID, callerName, callType, callID, callerID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callPushes = append(n.callPushes, userID+":"+callID)
}

func (n *fakeNotifier) SendMessagePush(userID, senderName, preview, conversationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgPushes = append(n.msgPushes, userID+":"+conversationID)
}

func (n *fakeNotifier) callPushCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.callPushes)
}

func (n *fakeNotifier) msgPushCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgPushes)
}

// drain empties a client's send buffer and decodes each queued envelope. Only
// valid while no writePump is consuming the buffer.
func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return out
			}
			var env Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				t.Fatalf("undecodable envelope: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func envelopeOfType(envs []Envelope, typeTag string) (Envelope, bool) {
	for _, env := range envs {
		if env.Type == typeTag {
			return env, true
		}
	}
	return Envelope{}, false
}

func hasType(envs []Envelope, typeTag string) bool {
	_, ok := envelopeOfType(envs, typeTag)
	return ok
}
