package hub

import "log/slog"

// Relay is the stateless pass-through for WebRTC negotiation payloads. It
// never inspects or buffers the payload; an absent target means the message
// is silently dropped. The call coordinators are responsible for having
// established that the target should be reachable.
type Relay struct {
	broadcaster *Broadcaster
	logger      *slog.Logger
}

func NewRelay(broadcaster *Broadcaster, logger *slog.Logger) *Relay {
	return &Relay{broadcaster: broadcaster, logger: logger}
}

// Forward delivers the tagged payload verbatim to the target, annotated with
// the sender id.
func (r *Relay) Forward(targetUserID, senderUserID string, env Envelope) {
	env.From = senderUserID
	env.To = targetUserID
	if !r.broadcaster.Send(targetUserID, env) {
		r.logger.Debug("relay target unreachable", "to", targetUserID, "from", senderUserID, "type", env.Type)
	}
}
