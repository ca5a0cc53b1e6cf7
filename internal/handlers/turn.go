package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetTURNConfig hands clients the ICE server list for the embedded TURN
// server. TURN servers answer STUN too, so one host covers both URLs.
func (h *Handlers) GetTURNConfig(c *gin.Context) {
	host := c.Request.Host
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	creds := h.turnServer.GetCredentials()
	stunURL := fmt.Sprintf("stun:%s:%d", host, h.config.TURNPort)
	turnURL := fmt.Sprintf("turn:%s:%d", host, h.config.TURNPort)

	c.JSON(http.StatusOK, gin.H{
		"iceServers": []map[string]any{
			{"urls": stunURL},
			{"urls": turnURL, "username": creds.Username, "credential": creds.Password},
		},
	})
}
