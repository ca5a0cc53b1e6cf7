package hub

import "log/slog"

// HandlerFunc handles one inbound envelope from an authenticated client.
type HandlerFunc func(client *Client, env Envelope)

// Router owns the full message taxonomy: a fixed dispatch table from type tag
// to handler. Unknown tags are logged and dropped, never fatal. Envelopes
// from one connection are dispatched in arrival order; envelopes from
// different connections run concurrently.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

func (r *Router) Handle(typeTag string, fn HandlerFunc) {
	r.handlers[typeTag] = fn
}

func (r *Router) Dispatch(client *Client, env Envelope) {
	fn, ok := r.handlers[env.Type]
	if !ok {
		r.logger.Warn("unknown message type dropped", "type", env.Type, "user_id", client.UserID())
		return
	}
	fn(client, env)
}
