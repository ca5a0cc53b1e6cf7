package hub

import (
	"log/slog"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/store"
)

// PresencePublisher persists online/offline transitions and announces them to
// every connected client. Persistence failures are logged; the broadcast
// still happens because UI state self-heals on reconnect.
type PresencePublisher struct {
	store       store.Store
	broadcaster *Broadcaster
	logger      *slog.Logger
}

func NewPresencePublisher(st store.Store, broadcaster *Broadcaster, logger *slog.Logger) *PresencePublisher {
	return &PresencePublisher{store: st, broadcaster: broadcaster, logger: logger}
}

func (p *PresencePublisher) PublishOnline(userID string) {
	p.publish(userID, models.UserStatusOnline)
}

func (p *PresencePublisher) PublishOffline(userID string) {
	p.publish(userID, models.UserStatusOffline)
}

func (p *PresencePublisher) publish(userID, status string) {
	if err := p.store.UpdateUserStatus(userID, status); err != nil {
		p.logger.Warn("presence persist failed", "user_id", userID, "status", status, "error", err)
	}
	p.broadcaster.BroadcastToAll(Envelope{
		Type:   TypePresence,
		UserID: userID,
		Status: status,
	})
}
