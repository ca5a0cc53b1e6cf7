package handlers

import (
	"log/slog"

	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/config"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/hub"
	"github.com/FathanAkram-app/VCOMM-web-sub002/internal/turn"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

type Handlers struct {
	config     *config.Config
	db         *gorm.DB
	hub        *hub.Hub
	turnServer *turn.Server
	wsUpgrader websocket.Upgrader
	logger     *slog.Logger
}

func New(cfg *config.Config, db *gorm.DB, h *hub.Hub, turnServer *turn.Server, upgrader websocket.Upgrader, logger *slog.Logger) *Handlers {
	return &Handlers{
		config:     cfg,
		db:         db,
		hub:        h,
		turnServer: turnServer,
		wsUpgrader: upgrader,
		logger:     logger,
	}
}
