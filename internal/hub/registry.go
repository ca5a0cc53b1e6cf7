package hub

import (
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Session is the single authoritative live-connection record for one user
// identity. Destroying a session never touches persisted records.
type Session struct {
	UserID    string
	ID        string
	CreatedAt time.Time
	Client    *Client
}

// Registry maps each user id to at most one live session. A newer
// authentication for the same identity evicts the older session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	logger *slog.Logger
	nowFn  func() time.Time
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
		nowFn:    time.Now,
	}
}

// Register installs client as the sole connection for userID and returns the
// evicted session, if there was one. The evicted connection gets a
// best-effort termination notice before it is closed; notice delivery
// failure does not stop the eviction.
func (r *Registry) Register(userID string, client *Client) *Session {
	sessionID, err := gonanoid.New(16)
	if err != nil {
		// Entropy exhaustion is not survivable; fall back to the timestamp.
		sessionID = r.nowFn().Format("20060102150405.000000000")
	}

	r.mu.Lock()
	evicted := r.sessions[userID]
	r.sessions[userID] = &Session{
		UserID:    userID,
		ID:        sessionID,
		CreatedAt: r.nowFn(),
		Client:    client,
	}
	r.mu.Unlock()

	if evicted != nil {
		notice := encodeEnvelope(Envelope{
			Type:   TypeSessionTerminated,
			Reason: "logged in elsewhere",
		})
		if !evicted.Client.trySend(notice) {
			r.logger.Debug("eviction notice not delivered", "user_id", userID, "session_id", evicted.ID)
		}
		evicted.Client.closeSend()
		_ = evicted.Client.conn.Close()
		r.logger.Info("session evicted", "user_id", userID, "session_id", evicted.ID)
	}

	return evicted
}

// Unregister removes the session for userID if it still belongs to client.
// Idempotent; a stale connection closing after its eviction does not remove
// the successor session.
func (r *Registry) Unregister(userID string, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[userID]
	if !ok || session.Client != client {
		return false
	}
	delete(r.sessions, userID)
	session.Client.closeSend()
	return true
}

// Lookup resolves the live connection for userID.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return session.Client, true
}

// Session returns the session record for userID.
func (r *Registry) Session(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID]
	return session, ok
}

// Clients snapshots every registered connection.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.sessions))
	for _, session := range r.sessions {
		clients = append(clients, session.Client)
	}
	return clients
}
