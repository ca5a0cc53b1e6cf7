package handlers

import (
	"errors"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/hub"

	"github.com/gin-gonic/gin"
)

// HandleWebSocket upgrades the connection and hands it to the hub. Identity
// is established in-band: the first envelope must be an auth message.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "ip", c.ClientIP(), "error", err)
		return
	}

	h.hub.Serve(conn)
}

// WSAuth builds the hub's authenticator for the websocket auth envelope. A
// signed token is preferred; a bare user id is accepted for clients that
// authenticated out of band.
func WSAuth(jwtSecret string) hub.AuthFunc {
	return func(env hub.Envelope) (string, error) {
		if env.Token != "" {
			return validateToken(jwtSecret, env.Token)
		}
		if env.UserID != "" {
			return env.UserID, nil
		}
		return "", errors.New("auth envelope carries no identity")
	}
}
