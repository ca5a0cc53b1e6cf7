package hub

import (
	"log/slog"
	"time"
)

// RetryPolicy bounds per-recipient delivery retries. It is a pure value so
// retry behavior can be asserted without real delays.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy absorbs transient send-buffer congestion without risking
// an unbounded stall per recipient.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}

// MaxDelay is the worst-case time a single recipient can hold up a caller.
func (p RetryPolicy) MaxDelay() time.Duration {
	if p.Attempts <= 1 {
		return 0
	}
	return time.Duration(p.Attempts-1) * p.Backoff
}

// Broadcaster is the best-effort fan-out engine. Absent recipients are
// skipped silently; present-but-congested recipients get a bounded number of
// retries with a short fixed backoff.
type Broadcaster struct {
	registry *Registry
	policy   RetryPolicy
	sleep    func(time.Duration)
	logger   *slog.Logger
}

func NewBroadcaster(registry *Registry, policy RetryPolicy, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		policy:   policy,
		sleep:    time.Sleep,
		logger:   logger,
	}
}

// Send attempts delivery of one envelope to one user. It reports whether the
// user had a live connection and the delivery attempt succeeded.
func (b *Broadcaster) Send(userID string, env Envelope) bool {
	client, ok := b.registry.Lookup(userID)
	if !ok {
		return false
	}
	return b.deliver(client, encodeEnvelope(env))
}

// BroadcastToAll fans an envelope out to every registered connection,
// ignoring individual failures.
func (b *Broadcaster) BroadcastToAll(env Envelope) {
	payload := encodeEnvelope(env)
	for _, client := range b.registry.Clients() {
		if !b.deliver(client, payload) {
			b.logger.Debug("broadcast delivery failed", "user_id", client.UserID(), "type", env.Type)
		}
	}
}

// BroadcastToSet attempts delivery to each id in the recipient set. Absent or
// closed connections are skipped without error.
func (b *Broadcaster) BroadcastToSet(recipientUserIDs []string, env Envelope) {
	payload := encodeEnvelope(env)
	for _, userID := range recipientUserIDs {
		client, ok := b.registry.Lookup(userID)
		if !ok {
			continue
		}
		if !b.deliver(client, payload) {
			b.logger.Debug("set delivery failed", "user_id", userID, "type", env.Type)
		}
	}
}

// deliver retries a failed enqueue up to the policy's attempt bound, sleeping
// the fixed backoff between attempts.
func (b *Broadcaster) deliver(client *Client, payload []byte) bool {
	attempts := b.policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			b.sleep(b.policy.Backoff)
		}
		if client.trySend(payload) {
			return true
		}
	}
	return false
}
