// Package store is the narrow persistence contract consumed by the signaling
// hub. The hub treats it as an audit/history sink: failures are logged by the
// caller and never block signaling.
package store

import (
	"errors"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrCallNotFound = errors.New("call not found")
)

type Store interface {
	// GetConversationMembers returns the user ids of every member of the
	// conversation, including the sender.
	GetConversationMembers(conversationID string) ([]string, error)

	UpdateUserStatus(userID, status string) error
	GetUser(userID string) (*models.User, error)

	SaveMessage(msg *models.Message) error

	AddCallHistory(record *models.CallRecord) error
	// UpdateCallStatus writes a status transition. Implementations only apply
	// transitions permitted by models.CallStatus.CanTransition, so a late
	// writer losing a race degrades to a no-op.
	UpdateCallStatus(callID string, status models.CallStatus) error
	GetCallByCallID(callID string) (*models.CallRecord, error)
	UpdateGroupCallParticipants(callID string, participantIDs []string) error
}
