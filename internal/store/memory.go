package store

import (
	"sync"
	"time"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"
)

// MemoryStore is an in-memory Store used by tests and by the hub's unit
// tests as a substitutable fake.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]*models.User
	members       map[string][]string // conversationID -> user ids
	messages      []*models.Message
	calls         map[string]*models.CallRecord // keyed by call id
	participants  map[string][]string           // callID -> participant ids
	statusWrites  []string
	droppedWrites int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*models.User),
		members:      make(map[string][]string),
		calls:        make(map[string]*models.CallRecord),
		participants: make(map[string][]string),
	}
}

func (s *MemoryStore) AddUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *MemoryStore) SetConversationMembers(conversationID string, userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[conversationID] = append([]string(nil), userIDs...)
}

func (s *MemoryStore) GetConversationMembers(conversationID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.members[conversationID]...), nil
}

func (s *MemoryStore) UpdateUserStatus(userID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[userID]; ok {
		user.Status = status
		user.LastSeenAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) GetUser(userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) SaveMessage(msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *MemoryStore) Messages() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Message(nil), s.messages...)
}

func (s *MemoryStore) AddCallHistory(record *models.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.calls[record.CallID] = &copied
	return nil
}

func (s *MemoryStore) UpdateCallStatus(callID string, status models.CallStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.calls[callID]
	if !ok {
		return ErrCallNotFound
	}
	if !record.Status.CanTransition(status) {
		s.droppedWrites++
		return nil
	}
	record.Status = status
	if status.Terminal() {
		record.EndedAt = time.Now()
	}
	s.statusWrites = append(s.statusWrites, callID+":"+string(status))
	return nil
}

func (s *MemoryStore) GetCallByCallID(callID string) (*models.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.calls[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) UpdateGroupCallParticipants(callID string, participantIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[callID] = append([]string(nil), participantIDs...)
	return nil
}

// Participants returns the last persisted participant set for a call.
func (s *MemoryStore) Participants(callID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.participants[callID]...)
}

// StatusWrites lists applied status transitions as "callID:status" entries.
func (s *MemoryStore) StatusWrites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statusWrites...)
}

// DroppedWrites counts transitions refused by the status graph.
func (s *MemoryStore) DroppedWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedWrites
}
