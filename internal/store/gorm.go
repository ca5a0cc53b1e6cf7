package store

import (
	"errors"
	"strings"
	"time"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"

	"gorm.io/gorm"
)

// GormStore persists hub state into the relational database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetConversationMembers(conversationID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.ConversationMember{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *GormStore) UpdateUserStatus(userID, status string) error {
	return s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"status":       status,
			"last_seen_at": time.Now(),
		}).Error
}

func (s *GormStore) GetUser(userID string) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) SaveMessage(msg *models.Message) error {
	return s.db.Create(msg).Error
}

func (s *GormStore) AddCallHistory(record *models.CallRecord) error {
	return s.db.Create(record).Error
}

func (s *GormStore) UpdateCallStatus(callID string, status models.CallStatus) error {
	record, err := s.GetCallByCallID(callID)
	if err != nil {
		return err
	}
	if !record.Status.CanTransition(status) {
		// Racing writers land here; dropping the write keeps the record on
		// the status graph.
		return nil
	}

	updates := map[string]any{"status": status}
	if status.Terminal() {
		updates["ended_at"] = time.Now()
	}
	return s.db.Model(&models.CallRecord{}).
		Where("call_id = ? AND status = ?", callID, record.Status).
		Updates(updates).Error
}

func (s *GormStore) GetCallByCallID(callID string) (*models.CallRecord, error) {
	var record models.CallRecord
	if err := s.db.First(&record, "call_id = ?", callID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCallNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) UpdateGroupCallParticipants(callID string, participantIDs []string) error {
	return s.db.Model(&models.CallRecord{}).
		Where("call_id = ?", callID).
		Update("participants", strings.Join(participantIDs, ",")).Error
}
