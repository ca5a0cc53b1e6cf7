// Package hub is the real-time signaling core: it multiplexes one logical
// connection per authenticated user, enforces a single active session per
// identity, relays call-control and WebRTC negotiation traffic, and tracks
// group-call membership. It never touches media and never queues messages
// for offline recipients.
package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/store"
)

// Notifier is the fire-and-forget push fallback for users without a live
// connection. Failures must never affect signaling.
type Notifier interface {
	SendCallPush(userID, callerName, callType, callID, callerID string)
	SendMessagePush(userID, senderName, preview, conversationID string)
}

// AuthFunc resolves the auth envelope to a user identity.
type AuthFunc func(env Envelope) (userID string, err error)

// Options configures a Hub. Store, Notifier, Auth and Logger are required;
// the rest default to production implementations.
type Options struct {
	Store    store.Store
	Notifier Notifier
	Auth     AuthFunc
	Logger   *slog.Logger

	Scheduler Scheduler          // defaults to TimerScheduler
	Now       func() time.Time   // defaults to time.Now
	Retry     *RetryPolicy       // defaults to DefaultRetryPolicy
	Sleep     func(time.Duration) // overrides the retry backoff sleep
}

type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	presence    *PresencePublisher
	relay       *Relay
	calls       *CallCoordinator
	groups      *GroupCallCoordinator
	router      *Router

	store    store.Store
	notifier Notifier
	auth     AuthFunc
	logger   *slog.Logger
}

func New(opts Options) *Hub {
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	retry := DefaultRetryPolicy
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	registry := NewRegistry(opts.Logger)
	broadcaster := NewBroadcaster(registry, retry, opts.Logger)
	if opts.Sleep != nil {
		broadcaster.sleep = opts.Sleep
	}

	h := &Hub{
		registry:    registry,
		broadcaster: broadcaster,
		presence:    NewPresencePublisher(opts.Store, broadcaster, opts.Logger),
		relay:       NewRelay(broadcaster, opts.Logger),
		calls:       NewCallCoordinator(registry, broadcaster, opts.Store, opts.Notifier, scheduler, nowFn, opts.Logger),
		groups:      NewGroupCallCoordinator(registry, broadcaster, opts.Store, scheduler, nowFn, opts.Logger),
		router:      NewRouter(opts.Logger),
		store:       opts.Store,
		notifier:    opts.Notifier,
		auth:        opts.Auth,
		logger:      opts.Logger,
	}
	h.routes()
	return h
}

// routes is the one place that knows the full message taxonomy.
func (h *Hub) routes() {
	h.router.Handle(TypeTyping, h.handleTyping)
	h.router.Handle(TypeChatMessage, h.handleChatMessage)

	h.router.Handle(TypeInitiateCall, h.handleInitiateCall)
	h.router.Handle(TypeAcceptCall, h.handleAcceptCall)
	h.router.Handle(TypeRejectCall, h.handleRejectCall)
	h.router.Handle(TypeEndCall, h.handleEndCall)

	h.router.Handle(TypeWebRTCOffer, h.handleRelay)
	h.router.Handle(TypeWebRTCAnswer, h.handleRelay)
	h.router.Handle(TypeWebRTCICECandidate, h.handleRelay)
	h.router.Handle(TypeGroupWebRTCOffer, h.handleRelay)
	h.router.Handle(TypeGroupWebRTCAnswer, h.handleRelay)
	h.router.Handle(TypeGroupWebRTCICE, h.handleRelay)

	h.router.Handle(TypeStartGroupCall, h.handleStartGroupCall)
	h.router.Handle(TypeJoinGroupCall, h.handleJoinGroupCall)
	h.router.Handle(TypeLeaveGroupCall, h.handleLeaveGroupCall)
	h.router.Handle(TypeRejectGroupCall, h.handleRejectGroupCall)
	h.router.Handle(TypeGroupCallResyncRequest, h.handleGroupCallResync)
}

// Serve owns a freshly upgraded connection: it runs the write pump and the
// read loop, and tears the session down when the read loop returns. The first
// envelope must authenticate the connection; pre-auth call and group control
// messages are ignored.
func (h *Hub) Serve(conn Conn) {
	client := newClient(conn)
	go client.writePump()
	h.readLoop(client)
}

func (h *Hub) readLoop(client *Client) {
	defer h.disconnect(client)

	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			h.logger.Warn("malformed envelope dropped", "user_id", client.UserID(), "error", err)
			continue
		}

		if client.userID == "" {
			h.handleAuth(client, env)
			continue
		}
		h.router.Dispatch(client, env)
	}
}

func (h *Hub) handleAuth(client *Client, env Envelope) {
	if env.Type != TypeAuth {
		h.logger.Debug("message before auth ignored", "type", env.Type)
		return
	}

	userID, err := h.auth(env)
	if err != nil {
		h.logger.Warn("authentication failed", "error", err)
		client.trySend(encodeEnvelope(Envelope{Type: TypeError, Reason: "authentication failed"}))
		return
	}

	client.userID = userID
	h.registry.Register(userID, client)
	h.presence.PublishOnline(userID)
	h.logger.Info("client authenticated", "user_id", userID)
}

func (h *Hub) disconnect(client *Client) {
	_ = client.conn.Close()
	userID := client.UserID()
	if userID == "" {
		return
	}
	// Only the currently registered connection publishes offline; a stale
	// evicted connection closing later must not flap the new session.
	if h.registry.Unregister(userID, client) {
		h.presence.PublishOffline(userID)
		h.logger.Info("client disconnected", "user_id", userID)
	}
}

func (h *Hub) handleTyping(client *Client, env Envelope) {
	members, err := h.store.GetConversationMembers(env.ConversationID)
	if err != nil {
		h.logger.Warn("conversation member lookup failed", "conversation_id", env.ConversationID, "error", err)
		return
	}
	recipients := without(members, client.userID)
	h.broadcaster.BroadcastToSet(recipients, Envelope{
		Type:           TypeTyping,
		From:           client.userID,
		ConversationID: env.ConversationID,
		IsTyping:       env.IsTyping,
	})
}

// handleChatMessage persists the message, relays it to connected conversation
// members and falls back to a push for the offline ones. Delivery is not
// guaranteed: a member who is neither connected nor push-subscribed simply
// misses the event until they fetch history.
func (h *Hub) handleChatMessage(client *Client, env Envelope) {
	if env.ConversationID == "" || env.Content == "" {
		h.logger.Warn("chat message missing fields dropped", "user_id", client.userID)
		return
	}

	msg := &models.Message{
		ConversationID: env.ConversationID,
		SenderID:       client.userID,
		Content:        env.Content,
	}
	if err := h.store.SaveMessage(msg); err != nil {
		h.logger.Warn("message persist failed", "conversation_id", env.ConversationID, "error", err)
	}

	members, err := h.store.GetConversationMembers(env.ConversationID)
	if err != nil {
		h.logger.Warn("conversation member lookup failed", "conversation_id", env.ConversationID, "error", err)
		return
	}

	senderName := client.userID
	if user, err := h.store.GetUser(client.userID); err == nil {
		senderName = user.Name()
	}

	outbound := Envelope{
		Type:           TypeNewMessage,
		From:           client.userID,
		ConversationID: env.ConversationID,
		Content:        env.Content,
		MessageID:      msg.ID,
	}
	for _, memberID := range members {
		if memberID == client.userID {
			continue
		}
		if h.broadcaster.Send(memberID, outbound) {
			continue
		}
		if _, connected := h.registry.Lookup(memberID); !connected {
			h.notifier.SendMessagePush(memberID, senderName, preview(env.Content), env.ConversationID)
		}
	}
}

func (h *Hub) handleInitiateCall(client *Client, env Envelope) {
	if env.To == "" {
		h.logger.Warn("initiate_call without target dropped", "user_id", client.userID)
		return
	}
	h.calls.Initiate(client.userID, env.To, env.CallType, env.CallID)
}

func (h *Hub) handleAcceptCall(client *Client, env Envelope) {
	h.calls.Accept(env.CallID, client.userID)
}

func (h *Hub) handleRejectCall(client *Client, env Envelope) {
	h.calls.Reject(env.CallID, client.userID, env.Reason)
}

// handleEndCall closes a 1:1 record, unless the call id names an active group
// session, in which case ending means leaving that session.
func (h *Hub) handleEndCall(client *Client, env Envelope) {
	if h.groups.Leave(env.CallID, client.userID) {
		return
	}
	h.calls.End(env.CallID, client.userID)
}

func (h *Hub) handleRelay(client *Client, env Envelope) {
	if env.To == "" {
		h.logger.Warn("relay message without target dropped", "type", env.Type, "user_id", client.userID)
		return
	}
	h.relay.Forward(env.To, client.userID, env)
}

func (h *Hub) handleStartGroupCall(client *Client, env Envelope) {
	if env.RoomID == "" {
		h.logger.Warn("start_group_call without room dropped", "user_id", client.userID)
		return
	}
	h.groups.Start(env.RoomID, env.CallType, client.userID)
}

func (h *Hub) handleJoinGroupCall(client *Client, env Envelope) {
	h.groups.Join(env.CallID, client.userID)
}

func (h *Hub) handleLeaveGroupCall(client *Client, env Envelope) {
	h.groups.Leave(env.CallID, client.userID)
}

func (h *Hub) handleRejectGroupCall(client *Client, env Envelope) {
	h.groups.Reject(env.CallID, env.RoomID, client.userID)
}

func (h *Hub) handleGroupCallResync(client *Client, env Envelope) {
	h.groups.RequestResync(env.CallID, client.userID)
}

// IsUserOnline reports whether the user currently holds a live session.
func (h *Hub) IsUserOnline(userID string) bool {
	_, ok := h.registry.Lookup(userID)
	return ok
}

var errNoIdentity = errors.New("auth envelope carries no identity")

// PlainAuth trusts the user id carried in the auth envelope. Token-verifying
// deployments wrap their own AuthFunc instead.
func PlainAuth(env Envelope) (string, error) {
	if env.UserID == "" {
		return "", errNoIdentity
	}
	return env.UserID, nil
}

func without(ids []string, exclude string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

func preview(content string) string {
	const max = 80
	if len(content) <= max {
		return content
	}
	return content[:max] + "…"
}
