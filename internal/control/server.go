package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xizzxy/atlas/internal/config"
	"github.com/xizzxy/atlas/internal/limiter"
	"github.com/xizzxy/atlas/internal/store"
)

const storeTimeout = 5 * time.Second

// Server is the policy management API. Gateways read the same store when
// they start.
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	store      store.PolicyStore
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(cfg *config.Config, policies store.PolicyStore, logger *slog.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
		store:  policies,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Add logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote_addr", c.ClientIP(),
		)
	})

	router.GET("/health", s.healthHandler)

	api := router.Group("/api/v1")
	{
		api.POST("/policies", s.createPolicy)
		api.GET("/policies", s.listPolicies)
		api.GET("/policies/:client", s.getPolicy)
		api.PUT("/policies/:client", s.putPolicy)
		api.DELETE("/policies/:client", s.deletePolicy)
	}
	s.router = router

	s.httpServer = &http.Server{
		Addr:         cfg.Control.Address,
		Handler:      router,
		ReadTimeout:  cfg.Control.ReadTimeout,
		WriteTimeout: cfg.Control.WriteTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.config.Control.Address)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}

	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("Control plane server started", "address", lis.Addr().String())
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down control plane server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return s.store.Close()
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Policy store unreachable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "policy store unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "atlas-control",
		"version":   s.config.Observability.ServiceVersion,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) createPolicy(c *gin.Context) {
	var p store.Policy
	if err := bindStrict(c, &p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.Client = strings.TrimSpace(p.Client)
	if p.Client == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client is required"})
		return
	}
	s.save(c, p, http.StatusCreated)
}

func (s *Server) putPolicy(c *gin.Context) {
	var cfg limiter.Config
	if err := bindStrict(c, &cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.save(c, store.Policy{Client: c.Param("client"), Config: cfg}, http.StatusOK)
}

// bindStrict decodes a JSON body and rejects fields it does not know, so a
// misspelt parameter is not stored as zero.
func bindStrict(c *gin.Context, v any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid policy body: %w", err)
	}
	return nil
}

func (s *Server) save(c *gin.Context, p store.Policy, status int) {
	if err := p.Config.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	saved, err := s.store.Put(ctx, p)
	if err != nil {
		s.logger.Error("Failed to store policy", "client", p.Client, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store policy"})
		return
	}

	s.logger.Info("Policy stored", "client", saved.Client, "algorithm", saved.Algorithm)
	c.JSON(status, saved)
}

func (s *Server) getPolicy(c *gin.Context) {
	client := c.Param("client")

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	p, err := s.store.Get(ctx, client)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to get policy", "client", client, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve policy"})
		return
	}

	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePolicy(c *gin.Context) {
	client := c.Param("client")

	// Gateways refuse to start without a default policy.
	if client == limiter.DefaultPolicy {
		c.JSON(http.StatusConflict, gin.H{"error": "the default policy cannot be deleted"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	err := s.store.Delete(ctx, client)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to delete policy", "client", client, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete policy"})
		return
	}

	s.logger.Info("Policy deleted", "client", client)
	c.Status(http.StatusNoContent)
}

func (s *Server) listPolicies(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	policies, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list policies", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list policies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"policies": policies,
		"count":    len(policies),
	})
}
