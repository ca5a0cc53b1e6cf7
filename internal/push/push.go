// Package push delivers Web Push notifications to users who are not
// currently connected. Delivery is fire-and-forget: failures are logged and
// never surface into signaling.
package push

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/config"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/models"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"
)

const pushTTL = 30

type WebPush struct {
	db     *gorm.DB
	vapid  *config.VAPIDKeys
	logger *slog.Logger
}

func NewWebPush(db *gorm.DB, vapid *config.VAPIDKeys, logger *slog.Logger) *WebPush {
	return &WebPush{db: db, vapid: vapid, logger: logger}
}

func (p *WebPush) SendCallPush(userID, callerName, callType, callID, callerID string) {
	title := fmt.Sprintf("Incoming %s call", callType)
	body := fmt.Sprintf("%s is calling you", callerName)
	p.send(userID, title, body, map[string]any{
		"kind":      "incoming_call",
		"call_id":   callID,
		"caller_id": callerID,
		"call_type": callType,
	})
}

func (p *WebPush) SendMessagePush(userID, senderName, preview, conversationID string) {
	p.send(userID, senderName, preview, map[string]any{
		"kind":            "new_message",
		"conversation_id": conversationID,
	})
}

func (p *WebPush) send(userID, title, body string, data map[string]any) {
	var subscriptions []models.PushSubscription
	if err := p.db.Where("user_id = ?", userID).Find(&subscriptions).Error; err != nil {
		p.logger.Error("push: query subscriptions", "user_id", userID, "error", err)
		return
	}
	if len(subscriptions) == 0 {
		p.logger.Debug("push: no subscriptions", "user_id", userID)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"title":   title,
		"body":    body,
		"data":    data,
		"urgency": "high",
	})
	if err != nil {
		p.logger.Error("push: marshal payload", "error", err)
		return
	}

	for _, sub := range subscriptions {
		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      p.vapid.Subject,
			VAPIDPublicKey:  p.vapid.PublicKey,
			VAPIDPrivateKey: p.vapid.PrivateKey,
			TTL:             pushTTL,
		})
		if err != nil {
			p.logger.Warn("push: send failed", "user_id", userID, "error", err)
			continue
		}
		// Gone/NotFound means the browser dropped the subscription.
		if resp.StatusCode == 410 || resp.StatusCode == 404 {
			p.logger.Debug("push: pruning dead subscription", "user_id", userID, "status", resp.StatusCode)
			p.db.Delete(&sub)
		}
		resp.Body.Close()
	}
}
