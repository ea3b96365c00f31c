package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/xizzxy/atlas/internal/admission"
	"github.com/xizzxy/atlas/internal/config"
)

const tracerName = "github.com/xizzxy/atlas/internal/gateway"

type Server struct {
	config     *config.Config
	admission  *admission.Gateway
	router     *gin.Engine
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcAddr   string
	health     *health.Server
	metrics    *prometheus.Registry
	decisions  *prometheus.CounterVec
	tracer     trace.Tracer
	logger     *slog.Logger
}

type Option func(*Server)

// WithMetricsRegistry exposes reg on /metrics and registers the gateway's own
// collectors in it.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.metrics = reg }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp.Tracer(tracerName) }
}

func NewServer(cfg *config.Config, gate *admission.Gateway, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		config:    cfg,
		admission: gate,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = prometheus.NewRegistry()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	s.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Name:      "admission_decisions_total",
		Help:      "Admission decisions by transport and result.",
	}, []string{"transport", "result"})
	if err := s.metrics.Register(s.decisions); err != nil {
		return nil, fmt.Errorf("register decision metrics: %w", err)
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(TracingMiddleware(s.tracer))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Gateway.ClientIDHeader))
	s.router = router
	s.setupRoutes(router)

	// HTTP server
	s.httpServer = &http.Server{
		Addr:         cfg.Gateway.Address,
		Handler:      router,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
	}

	// gRPC server: admission check, health and reflection, with admission on
	// every other method
	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.unaryLoggingInterceptor, s.unaryAdmissionInterceptor),
		grpc.ChainStreamInterceptor(s.streamAdmissionInterceptor),
	)
	s.grpcServer.RegisterService(&admissionServiceDesc, &admissionService{server: s})
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	return s, nil
}

// RegisterService mounts an application service on the gateway's gRPC
// server. Its methods are rate limited per client by the admission
// interceptors. Must be called before Start.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.grpcServer.RegisterService(desc, impl)
}

// GRPCAddr is the bound gRPC address, or "" before Start.
func (s *Server) GRPCAddr() string {
	return s.grpcAddr
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds both listeners and serves them in the background.
func (s *Server) Start(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.config.Gateway.Address)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	if n := s.config.Gateway.MaxConnections; n > 0 {
		httpLis = netutil.LimitListener(httpLis, n)
	}

	grpcLis, err := net.Listen("tcp", s.config.Gateway.GRPCAddress)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	s.grpcAddr = grpcLis.Addr().String()

	// HTTP
	go func() {
		s.logger.Info("Starting HTTP server", "address", httpLis.Addr().String(), "max_connections", s.config.Gateway.MaxConnections)
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	// gRPC
	go func() {
		s.logger.Info("Starting gRPC server", "address", grpcLis.Addr().String())
		if err := s.grpcServer.Serve(grpcLis); err != nil {
			s.logger.Error("gRPC server error", "error", err)
		}
	}()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down gateway server")

	s.health.Shutdown()

	// Stop HTTP
	var stopErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		stopErr = err
	}

	// Stop gRPC
	s.grpcServer.GracefulStop()

	return stopErr
}

func (s *Server) setupRoutes(router *gin.Engine) {
	// Not rate limited
	router.GET("/health", s.handleHealth)
	router.GET("/stats", s.handleStats)
	router.GET("/stats/clients", s.handleListClients)
	router.GET("/stats/clients/:client", s.handleClientStats)
	if s.config.Observability.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}

	// Admission check for external proxies
	router.GET("/api/v1/allow", s.handleAllow)

	limited := router.Group("/", AdmissionMiddleware(s.config.Gateway.ClientIDHeader, s.admitHTTP))
	{
		limited.GET("/demo", s.handleDemo)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.config.Observability.ServiceVersion,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.admission.GlobalStats())
}

func (s *Server) handleListClients(c *gin.Context) {
	clients := s.admission.Clients()
	c.JSON(http.StatusOK, gin.H{
		"clients": clients,
		"count":   len(clients),
	})
}

func (s *Server) handleClientStats(c *gin.Context) {
	client := c.Param("client")
	stats := s.admission.ClientStats(client)
	c.JSON(http.StatusOK, gin.H{
		"client":     client,
		"requests":   stats.Requests,
		"violations": stats.Violations,
	})
}

// handleAllow answers an admission check on behalf of a proxy in front of
// some other service. The client may be given as a query parameter.
func (s *Server) handleAllow(c *gin.Context) {
	client := strings.TrimSpace(c.Query("client"))
	if client == "" {
		client = ClientID(c, s.config.Gateway.ClientIDHeader)
	}

	if !s.admitHTTP(c, client) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"allowed": false,
			"client":  client,
			"detail":  "Too Many Requests",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"allowed": true,
		"client":  client,
	})
}

func (s *Server) handleDemo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "You're inside a rate-limited endpoint!"})
}

func (s *Server) admitHTTP(c *gin.Context, client string) bool {
	return s.admit(c.Request.Context(), client, "http")
}

func (s *Server) admit(ctx context.Context, client, transport string) bool {
	allowed := s.admission.Admit(client)
	result := "allowed"
	if !allowed {
		result = "denied"
		s.logger.Debug("Request denied", "client", client, "transport", transport)
	}
	s.decisions.WithLabelValues(transport, result).Inc()
	annotateSpan(ctx, client, allowed)
	return allowed
}
