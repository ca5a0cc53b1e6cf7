package hub

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const ringTimeout = 30 * time.Second

// CallCoordinator drives the 1:1 call-control state machine and mirrors it
// onto the persisted call record. The record's status graph is authoritative:
// timeout callbacks re-read current status before writing a terminal state,
// so the loser of a race degrades to a no-op.
type CallCoordinator struct {
	registry    *Registry
	broadcaster *Broadcaster
	store       store.Store
	notifier    Notifier
	scheduler   Scheduler
	logger      *slog.Logger
	nowFn       func() time.Time

	mu           sync.Mutex
	ringTimeouts map[string]Task
}

func NewCallCoordinator(registry *Registry, broadcaster *Broadcaster, st store.Store, notifier Notifier, scheduler Scheduler, nowFn func() time.Time, logger *slog.Logger) *CallCoordinator {
	return &CallCoordinator{
		registry:     registry,
		broadcaster:  broadcaster,
		store:        st,
		notifier:     notifier,
		scheduler:    scheduler,
		logger:       logger,
		nowFn:        nowFn,
		ringTimeouts: make(map[string]Task),
	}
}

// Initiate creates a ringing call record and either rings the target or, when
// the target has no live connection, immediately records a missed call and
// falls back to a push notification.
func (c *CallCoordinator) Initiate(fromID, toID, callType, callID string) {
	if callID == "" {
		generated, err := gonanoid.New(16)
		if err != nil {
			c.logger.Error("call id generation failed", "error", err)
			return
		}
		callID = generated
	}

	record := &models.CallRecord{
		CallID:      callID,
		Type:        models.CallType(callType),
		InitiatorID: fromID,
		TargetID:    toID,
		Status:      models.CallStatusRinging,
		StartedAt:   c.nowFn(),
	}
	if err := c.store.AddCallHistory(record); err != nil {
		c.logger.Warn("call history persist failed", "call_id", callID, "error", err)
	}

	callerName := c.displayName(fromID)

	if _, online := c.registry.Lookup(toID); !online {
		// Offline fallback: missed immediately, push instead of silence.
		if err := c.store.UpdateCallStatus(callID, models.CallStatusMissed); err != nil {
			c.logger.Warn("call status persist failed", "call_id", callID, "error", err)
		}
		c.notifier.SendCallPush(toID, callerName, callType, callID, fromID)
		c.broadcaster.Send(fromID, Envelope{
			Type:   TypeCallFailed,
			CallID: callID,
			To:     toID,
			Reason: "user is offline",
		})
		return
	}

	c.broadcaster.Send(toID, Envelope{
		Type:       TypeIncomingCall,
		CallID:     callID,
		From:       fromID,
		CallType:   callType,
		CallerName: callerName,
	})

	c.armRingTimeout(callID, fromID, toID)
}

func (c *CallCoordinator) armRingTimeout(callID, fromID, toID string) {
	task := c.scheduler.Schedule(ringTimeout, func() {
		c.handleRingTimeout(callID, fromID, toID)
	})

	c.mu.Lock()
	c.ringTimeouts[callID] = task
	c.mu.Unlock()
}

// handleRingTimeout fires 30s after ringing started. It re-reads the record:
// only a call still ringing transitions to missed.
func (c *CallCoordinator) handleRingTimeout(callID, fromID, toID string) {
	c.clearRingTimeout(callID)

	record, err := c.store.GetCallByCallID(callID)
	if err != nil {
		c.logger.Warn("ring timeout record lookup failed", "call_id", callID, "error", err)
		return
	}
	if record.Status != models.CallStatusRinging {
		// The callee acted before the timeout fired.
		return
	}

	if err := c.store.UpdateCallStatus(callID, models.CallStatusMissed); err != nil {
		c.logger.Warn("call status persist failed", "call_id", callID, "error", err)
	}

	missed := Envelope{Type: TypeCallMissed, CallID: callID, From: fromID, To: toID}
	c.broadcaster.Send(fromID, missed)
	c.broadcaster.Send(toID, missed)
}

// Accept transitions ringing -> accepted and notifies the initiator.
func (c *CallCoordinator) Accept(callID, userID string) {
	c.cancelRingTimeout(callID)

	record, err := c.store.GetCallByCallID(callID)
	if err != nil {
		c.logger.Warn("accept on unknown call", "call_id", callID, "user_id", userID, "error", err)
		return
	}
	if record.Status != models.CallStatusRinging {
		c.logger.Debug("accept ignored, call not ringing", "call_id", callID, "status", record.Status)
		return
	}

	if err := c.store.UpdateCallStatus(callID, models.CallStatusAccepted); err != nil {
		c.logger.Warn("call status persist failed", "call_id", callID, "error", err)
	}

	c.broadcaster.Send(record.InitiatorID, Envelope{
		Type:   TypeCallAccepted,
		CallID: callID,
		From:   userID,
	})
}

// Reject records an explicit decline. The reason code travels with the
// notification so "busy" and "declined" stay distinguishable in the record's
// history consumers.
func (c *CallCoordinator) Reject(callID, userID, reason string) {
	c.cancelRingTimeout(callID)

	record, err := c.store.GetCallByCallID(callID)
	if err != nil {
		c.logger.Warn("reject on unknown call", "call_id", callID, "user_id", userID, "error", err)
		return
	}
	if record.Status != models.CallStatusRinging {
		return
	}

	if reason == "" {
		reason = "declined"
	}
	if err := c.store.UpdateCallStatus(callID, models.CallStatusRejected); err != nil {
		c.logger.Warn("call status persist failed", "call_id", callID, "error", err)
	}

	c.broadcaster.Send(record.InitiatorID, Envelope{
		Type:   TypeCallRejected,
		CallID: callID,
		From:   userID,
		Reason: reason,
	})
}

// End transitions a ringing or accepted call to ended and notifies the other
// party if still connected.
func (c *CallCoordinator) End(callID, userID string) {
	c.cancelRingTimeout(callID)

	record, err := c.store.GetCallByCallID(callID)
	if err != nil {
		if !errors.Is(err, store.ErrCallNotFound) {
			c.logger.Warn("end on unknown call", "call_id", callID, "error", err)
		}
		return
	}
	if record.Status.Terminal() {
		return
	}

	if err := c.store.UpdateCallStatus(callID, models.CallStatusEnded); err != nil {
		c.logger.Warn("call status persist failed", "call_id", callID, "error", err)
	}

	otherID := record.TargetID
	if userID == record.TargetID {
		otherID = record.InitiatorID
	}
	c.broadcaster.Send(otherID, Envelope{
		Type:   TypeCallEnded,
		CallID: callID,
		From:   userID,
	})
}

// cancelRingTimeout stops the pending timeout if user action beat it.
func (c *CallCoordinator) cancelRingTimeout(callID string) {
	c.mu.Lock()
	task, ok := c.ringTimeouts[callID]
	delete(c.ringTimeouts, callID)
	c.mu.Unlock()

	if ok {
		task.Cancel()
	}
}

func (c *CallCoordinator) clearRingTimeout(callID string) {
	c.mu.Lock()
	delete(c.ringTimeouts, callID)
	c.mu.Unlock()
}

func (c *CallCoordinator) displayName(userID string) string {
	user, err := c.store.GetUser(userID)
	if err != nil {
		return userID
	}
	return user.Name()
}
