// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_server is the HTTP surface of the voice engine: the
// signaling WebSocket endpoint that carries calls, a room token minting
// endpoint for browser clients, and health routes.
package internal_server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/voice-engine/config"
	internal_session "github.com/rapidaai/voice-engine/internal/session"
	internal_signaling "github.com/rapidaai/voice-engine/internal/signaling"
	internal_transport "github.com/rapidaai/voice-engine/internal/transport"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

var signalingUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server hosts the signaling and health endpoints.
type Server struct {
	cfg    *config.AppConfig
	logger commons.Logger
	engine *internal_session.Engine
	http   *http.Server
}

// NewServer builds the gin router and wires the call engine behind it.
func NewServer(cfg *config.AppConfig, logger commons.Logger, engine *internal_session.Engine) *Server {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	apiv1 := router.Group("v1/talk")
	{
		apiv1.GET("", s.Talk)
		apiv1.POST("/room-token", s.RoomToken)
	}
	router.GET("/healthz", s.Healthz)
	router.GET("/readiness", s.Readiness)
	return s
}

// Run serves until ctx is cancelled, then drains with a grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("signaling server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Talk upgrades the request to a WebSocket and hands the signaling channel to
// the call engine. The socket carries signaling and session audio only; room
// media flows over WebRTC directly to the room server.
//
// @Router /v1/talk [get]
func (s *Server) Talk(c *gin.Context) {
	conn, err := signalingUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorf("websocket upgrade failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to upgrade to websocket"})
		return
	}

	channel := internal_signaling.NewChannel(conn, s.logger)
	s.engine.HandleChannel(c.Request.Context(), channel)
}

type roomTokenRequest struct {
	RoomName string `json:"roomName" binding:"required"`
	Identity string `json:"identity" binding:"required"`
}

// RoomToken mints a room access token for a browser client joining the media
// plane. Only available when the engine holds the room secret.
//
// @Router /v1/talk/room-token [post]
func (s *Server) RoomToken(c *gin.Context) {
	if s.cfg.RoomSecret == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "room token minting is not configured"})
		return
	}

	var req roomTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := internal_transport.MintRoomToken(
		s.cfg.RoomAPIKey, s.cfg.RoomSecret, req.RoomName, req.Identity, 15*time.Minute)
	if err != nil {
		s.logger.Errorf("room token minting failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to mint room token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "roomUrl": s.cfg.RoomServerURL})
}

// Healthz reports liveness and the active call count.
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     s.cfg.Name,
		"version":     s.cfg.Version,
		"activeCalls": s.engine.ActiveCalls(),
	})
}

// Readiness reports readiness to take new calls.
func (s *Server) Readiness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
