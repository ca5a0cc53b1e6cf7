package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CallStatus is the lifecycle state of a call record.
// Keep values stable because they are part of the public API.
type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusAccepted CallStatus = "accepted"
	CallStatusRejected CallStatus = "rejected"
	CallStatusMissed   CallStatus = "missed"
	CallStatusEnded    CallStatus = "ended"
)

// Terminal reports whether no further transition is permitted from s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusRejected, CallStatusMissed, CallStatusEnded:
		return true
	}
	return false
}

// CanTransition reports whether s -> to is on the status graph:
// ringing -> {accepted, rejected, missed, ended}; accepted -> ended.
func (s CallStatus) CanTransition(to CallStatus) bool {
	switch s {
	case CallStatusRinging:
		return to == CallStatusAccepted || to == CallStatusRejected ||
			to == CallStatusMissed || to == CallStatusEnded
	case CallStatusAccepted:
		return to == CallStatusEnded
	}
	return false
}

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

type CallRecord struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	CallID      string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"call_id"`
	Type        CallType   `gorm:"type:varchar(10);not null" json:"type"`
	InitiatorID string     `gorm:"type:varchar(36);not null;index" json:"initiator_id"`
	TargetID    string     `gorm:"type:varchar(36);index" json:"target_id"`
	RoomID      string     `gorm:"type:varchar(36);index" json:"room_id,omitempty"`
	IsGroup     bool       `gorm:"default:false" json:"is_group"`
	Status      CallStatus `gorm:"type:varchar(20);not null" json:"status"`
	// Participants holds a comma separated list of user ids for group calls.
	Participants string    `gorm:"type:text" json:"participants,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *CallRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
