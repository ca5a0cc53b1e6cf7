package hub

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const groupCallExpiry = 30 * time.Minute

// GroupCallSession is the live membership record for one active multi-party
// call. A session with an empty participant set does not exist: the last
// leave removes it in the same operation.
type GroupCallSession struct {
	CallID    string
	RoomID    string
	CallType  string
	CreatedAt time.Time

	participants map[string]struct{}
	expiry       Task
}

// GroupCallCoordinator manages per-room call sessions. Invariant: at most one
// active session per room id; a second start for the same room joins the
// existing session instead of fragmenting the mesh into two disjoint calls.
type GroupCallCoordinator struct {
	registry    *Registry
	broadcaster *Broadcaster
	store       store.Store
	scheduler   Scheduler
	logger      *slog.Logger
	nowFn       func() time.Time

	mu     sync.Mutex
	byCall map[string]*GroupCallSession
	byRoom map[string]*GroupCallSession
}

func NewGroupCallCoordinator(registry *Registry, broadcaster *Broadcaster, st store.Store, scheduler Scheduler, nowFn func() time.Time, logger *slog.Logger) *GroupCallCoordinator {
	return &GroupCallCoordinator{
		registry:    registry,
		broadcaster: broadcaster,
		store:       st,
		scheduler:   scheduler,
		logger:      logger,
		nowFn:       nowFn,
		byCall:      make(map[string]*GroupCallSession),
		byRoom:      make(map[string]*GroupCallSession),
	}
}

// Start creates the room's session with the initiator as sole participant and
// invites every other room member currently connected. When a session already
// exists for the room the start collapses into a join.
func (g *GroupCallCoordinator) Start(roomID, callType, initiatorID string) {
	g.mu.Lock()
	if existing, ok := g.byRoom[roomID]; ok {
		callID := existing.CallID
		g.mu.Unlock()
		g.Join(callID, initiatorID)
		return
	}

	callID, err := gonanoid.New(16)
	if err != nil {
		g.mu.Unlock()
		g.logger.Error("group call id generation failed", "error", err)
		return
	}

	session := &GroupCallSession{
		CallID:       callID,
		RoomID:       roomID,
		CallType:     callType,
		CreatedAt:    g.nowFn(),
		participants: map[string]struct{}{initiatorID: {}},
	}
	session.expiry = g.scheduler.Schedule(groupCallExpiry, func() {
		g.expire(callID)
	})
	g.byCall[callID] = session
	g.byRoom[roomID] = session
	g.mu.Unlock()

	if err := g.store.AddCallHistory(&models.CallRecord{
		CallID:       callID,
		Type:         models.CallType(callType),
		InitiatorID:  initiatorID,
		RoomID:       roomID,
		IsGroup:      true,
		Status:       models.CallStatusRinging,
		StartedAt:    session.CreatedAt,
		Participants: initiatorID,
	}); err != nil {
		g.logger.Warn("group call history persist failed", "call_id", callID, "error", err)
	}

	members, err := g.store.GetConversationMembers(roomID)
	if err != nil {
		g.logger.Warn("room member lookup failed", "room_id", roomID, "error", err)
	}

	callerName := g.displayName(initiatorID)
	invite := Envelope{
		Type:       TypeIncomingGroupCall,
		CallID:     callID,
		RoomID:     roomID,
		From:       initiatorID,
		CallType:   callType,
		CallerName: callerName,
	}

	invited, delivered := 0, 0
	for _, memberID := range members {
		if memberID == initiatorID {
			continue
		}
		invited++
		if g.broadcaster.Send(memberID, invite) {
			delivered++
		}
	}

	// Summary back to the initiator: offline members received nothing from
	// this path.
	g.broadcaster.Send(initiatorID, Envelope{
		Type:     TypeGroupCallStarted,
		CallID:   callID,
		RoomID:   roomID,
		CallType: callType,
		Data: mustMarshal(map[string]int{
			"invited":   invited,
			"delivered": delivered,
		}),
	})
}

// Join adds the user to the session, broadcasts the updated participant list
// to every room member, resyncs the joiner with resolved names, and nudges
// pairwise WebRTC negotiation for the full mesh.
func (g *GroupCallCoordinator) Join(callID, userID string) {
	g.mu.Lock()
	session, ok := g.byCall[callID]
	if !ok {
		g.mu.Unlock()
		g.broadcaster.Send(userID, Envelope{
			Type:   TypeCallFailed,
			CallID: callID,
			Reason: "group call no longer active",
		})
		return
	}
	_, rejoining := session.participants[userID]
	session.participants[userID] = struct{}{}
	roomID := session.RoomID
	participants := session.participantsLocked()
	g.mu.Unlock()

	if err := g.store.UpdateGroupCallParticipants(callID, participants); err != nil {
		g.logger.Warn("group participants persist failed", "call_id", callID, "error", err)
	}
	if !rejoining && len(participants) > 1 {
		// First answered join activates the record; the store drops the
		// write if the record already advanced.
		if err := g.store.UpdateCallStatus(callID, models.CallStatusAccepted); err != nil {
			g.logger.Warn("group call status persist failed", "call_id", callID, "error", err)
		}
	}

	g.broadcastParticipants(callID, roomID, participants)

	// The joiner has no prior WebRTC state to build on; resync them with the
	// complete membership, names resolved.
	g.sendResync(callID, userID, participants)

	// Existing participants open negotiation toward the new member; the
	// resync packet tells the new member who to answer. This is the one place
	// the hub nudges clients to start relay traffic.
	nudge := Envelope{Type: TypeGroupCallPeerJoined, CallID: callID, From: userID}
	for _, participantID := range participants {
		if participantID == userID {
			continue
		}
		g.broadcaster.Send(participantID, nudge)
	}
}

// Leave removes the user from the session. The last leave deletes the session
// and persists the terminal ended status in the same operation. Reports
// whether callID named an active group session.
func (g *GroupCallCoordinator) Leave(callID, userID string) bool {
	g.mu.Lock()
	session, ok := g.byCall[callID]
	if !ok {
		g.mu.Unlock()
		return false
	}
	delete(session.participants, userID)

	if len(session.participants) == 0 {
		g.removeSessionLocked(session)
		g.mu.Unlock()

		if err := g.store.UpdateGroupCallParticipants(callID, nil); err != nil {
			g.logger.Warn("group participants persist failed", "call_id", callID, "error", err)
		}
		if err := g.store.UpdateCallStatus(callID, models.CallStatusEnded); err != nil {
			g.logger.Warn("group call status persist failed", "call_id", callID, "error", err)
		}
		return true
	}

	participants := session.participantsLocked()
	g.mu.Unlock()

	if err := g.store.UpdateGroupCallParticipants(callID, participants); err != nil {
		g.logger.Warn("group participants persist failed", "call_id", callID, "error", err)
	}
	g.broadcaster.BroadcastToSet(participants, Envelope{
		Type:         TypeGroupCallParticipants,
		CallID:       callID,
		Participants: participants,
	})
	return true
}

// Reject removes the user from every active session for the room, defensive
// against the user having been auto-joined elsewhere, and tells the other
// room members about the decline. Participants who already joined keep their
// session.
func (g *GroupCallCoordinator) Reject(callID, roomID, userID string) {
	g.mu.Lock()
	var affected []string
	for id, session := range g.byCall {
		if session.RoomID != roomID {
			continue
		}
		if _, ok := session.participants[userID]; ok {
			affected = append(affected, id)
		}
	}
	g.mu.Unlock()

	for _, id := range affected {
		g.Leave(id, userID)
	}

	members, err := g.store.GetConversationMembers(roomID)
	if err != nil {
		g.logger.Warn("room member lookup failed", "room_id", roomID, "error", err)
		return
	}
	notice := Envelope{
		Type:   TypeGroupCallRejected,
		CallID: callID,
		RoomID: roomID,
		From:   userID,
	}
	for _, memberID := range members {
		if memberID == userID {
			continue
		}
		g.broadcaster.Send(memberID, notice)
	}
}

// RequestResync re-sends the full participant list with resolved names to one
// user whose client suspects it drifted from hub state.
func (g *GroupCallCoordinator) RequestResync(callID, userID string) {
	g.mu.Lock()
	session, ok := g.byCall[callID]
	if !ok {
		g.mu.Unlock()
		g.broadcaster.Send(userID, Envelope{
			Type:   TypeCallFailed,
			CallID: callID,
			Reason: "group call no longer active",
		})
		return
	}
	participants := session.participantsLocked()
	g.mu.Unlock()

	g.sendResync(callID, userID, participants)
}

// SessionForRoom returns the active session's call id for a room, if any.
func (g *GroupCallCoordinator) SessionForRoom(roomID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	session, ok := g.byRoom[roomID]
	if !ok {
		return "", false
	}
	return session.CallID, true
}

// Participants snapshots the current participant set for a call.
func (g *GroupCallCoordinator) Participants(callID string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	session, ok := g.byCall[callID]
	if !ok {
		return nil, false
	}
	return session.participantsLocked(), true
}

// expire force-removes the session when the inactivity window elapses. The
// session may have ended normally in the interim; re-check before acting.
func (g *GroupCallCoordinator) expire(callID string) {
	g.mu.Lock()
	session, ok := g.byCall[callID]
	if !ok {
		g.mu.Unlock()
		return
	}
	participants := session.participantsLocked()
	g.removeSessionLocked(session)
	g.mu.Unlock()

	g.logger.Info("group call expired", "call_id", callID, "room_id", session.RoomID, "participants", len(participants))

	if err := g.store.UpdateCallStatus(callID, models.CallStatusEnded); err != nil {
		g.logger.Warn("group call status persist failed", "call_id", callID, "error", err)
	}
	g.broadcaster.BroadcastToSet(participants, Envelope{
		Type:   TypeCallEnded,
		CallID: callID,
		Reason: "expired",
	})
}

func (g *GroupCallCoordinator) removeSessionLocked(session *GroupCallSession) {
	delete(g.byCall, session.CallID)
	if g.byRoom[session.RoomID] == session {
		delete(g.byRoom, session.RoomID)
	}
	if session.expiry != nil {
		session.expiry.Cancel()
	}
}

func (g *GroupCallCoordinator) broadcastParticipants(callID, roomID string, participants []string) {
	members, err := g.store.GetConversationMembers(roomID)
	if err != nil {
		g.logger.Warn("room member lookup failed", "room_id", roomID, "error", err)
		members = participants
	}
	g.broadcaster.BroadcastToSet(members, Envelope{
		Type:         TypeGroupCallParticipants,
		CallID:       callID,
		Participants: participants,
	})
}

func (g *GroupCallCoordinator) sendResync(callID, userID string, participants []string) {
	resolved := make([]Participant, 0, len(participants))
	for _, participantID := range participants {
		resolved = append(resolved, Participant{
			UserID: participantID,
			Name:   g.displayName(participantID),
		})
	}
	g.broadcaster.Send(userID, Envelope{
		Type:   TypeGroupCallResync,
		CallID: callID,
		Data:   mustMarshal(resolved),
	})
}

func (g *GroupCallCoordinator) displayName(userID string) string {
	user, err := g.store.GetUser(userID)
	if err != nil {
		return userID
	}
	return user.Name()
}

// participantsLocked snapshots the set in stable order. Caller holds the
// coordinator mutex.
func (s *GroupCallSession) participantsLocked() []string {
	ids := make([]string, 0, len(s.participants))
	for id := range s.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
