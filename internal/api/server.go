package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/septivank/biometric-pipeline/internal/config"
	"github.com/septivank/biometric-pipeline/internal/orchestrator"
	"github.com/septivank/biometric-pipeline/internal/privacy"
)

// Server exposes the pipeline over HTTP: device management, profiles,
// consent, health metrics, alerts, team aggregates and the live SSE feed.
type Server struct {
	orch    *orchestrator.Orchestrator
	privacy *privacy.Manager
	cfg     *config.Config
	logger  *zap.Logger
	http    *http.Server
}

func NewServer(
	orch *orchestrator.Orchestrator,
	priv *privacy.Manager,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		orch:    orch,
		privacy: priv,
		cfg:     cfg,
		logger:  logger,
	}
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServicePort),
		Handler: s.router(),
	}
	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), RequestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		users := v1.Group("/users/:id")
		{
			users.POST("/devices", s.connectDevice)
			users.GET("/devices", s.listDevices)
			users.DELETE("/devices/:deviceID", s.disconnectDevice)
			users.POST("/devices/:deviceID/sync", s.syncDevice)
			users.POST("/collect", s.collectData)
			users.POST("/readings", s.ingestReadings)

			users.GET("/profile", s.getProfile)
			users.PUT("/profile", s.updateProfile)

			users.GET("/consent", s.getConsent)
			users.PUT("/consent", s.updateConsent)
			users.GET("/audit", s.getAuditLog)

			users.GET("/metrics/stress", s.getStress)
			users.GET("/metrics/fatigue", s.getFatigue)
			users.GET("/metrics/wellness", s.getWellness)
			users.GET("/metrics/hrv", s.getHRV)

			users.GET("/alerts", s.listAlerts)
			users.POST("/alerts/:alertID/ack", s.acknowledgeAlert)
			users.DELETE("/alerts", s.clearAlerts)

			users.GET("/stream", s.streamEvents)
		}

		teams := v1.Group("/teams/:id")
		{
			teams.POST("/aggregates", s.teamAggregates)
			teams.GET("/compliance", s.complianceReport)
		}
	}
	return r
}

// Start begins serving in the background. Errors other than a clean close
// are logged; the process keeps running on its queue consumers.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
