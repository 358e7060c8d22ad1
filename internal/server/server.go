package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/koelab/koe-sentinel/internal/config"
	"github.com/koelab/koe-sentinel/internal/logger"
	"github.com/koelab/koe-sentinel/internal/privacy"
	"github.com/koelab/koe-sentinel/internal/secrets"
	"github.com/koelab/koe-sentinel/internal/settings"
	"github.com/koelab/koe-sentinel/internal/websocket"
	"go.uber.org/zap"
)

// Transcriber converts audio into raw text. Implemented by the Groq client;
// faked in tests.
type Transcriber interface {
	Transcribe(ctx context.Context, s settings.Settings, audio []byte) (string, error)
}

// Reformatter rewrites raw transcripts into natural text.
type Reformatter interface {
	Format(ctx context.Context, s settings.Settings, text string) (string, error)
}

// StatsRecorder stores anonymous masking statistics.
type StatsRecorder interface {
	RecordMasking(ctx context.Context, findings []privacy.Finding, action string) error
}

// Deps carries the server's collaborators. Transcriber, Reformatter and
// Stats are optional; the corresponding endpoints degrade gracefully.
type Deps struct {
	Settings    *settings.Store
	Secrets     *secrets.Store
	Masker      *privacy.Masker
	Transcriber Transcriber
	Reformatter Reformatter
	Stats       StatsRecorder
	Hub         *websocket.Hub
}

// Server is the backend HTTP API. Every route that returns text to a caller
// routes it through the masking pipeline first.
type Server struct {
	config *config.Config
	logger *logger.Logger
	deps   Deps
	router *mux.Router
	server *http.Server

	limiter *clientLimiter

	startTime time.Time

	mu            sync.Mutex
	recording     bool
	totalRequests int64
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if deps.Masker == nil {
		return nil, fmt.Errorf("masker is required")
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		deps:      deps,
		router:    mux.NewRouter(),
		limiter:   newClientLimiter(cfg.RateLimit),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.WebSocket.Enabled && s.deps.Hub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/mask", s.handleMask).Methods("POST")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PATCH")
	api.HandleFunc("/keys", s.handleKeysGet).Methods("GET")
	api.HandleFunc("/keys", s.handleKeysSet).Methods("PUT")
	api.HandleFunc("/keys", s.handleKeysClear).Methods("DELETE")
	api.HandleFunc("/transcribe", s.handleTranscribe).Methods("POST")
	api.HandleFunc("/reformat", s.handleReformat).Methods("POST")
	api.HandleFunc("/ptt/start", s.handlePTTStart).Methods("POST")
	api.HandleFunc("/ptt/stop", s.handlePTTStop).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting Koe-Sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("websocket", s.config.WebSocket.Enabled),
		zap.Bool("rate_limit", s.config.RateLimit.Enabled),
	)

	if s.deps.Hub != nil {
		go s.deps.Hub.Run()
		go s.systemStatusLoop()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Koe-Sentinel server")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleWebSocket hands the connection to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.deps.Hub.HandleWebSocket(w, r)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	snapshot := s.deps.Settings.Get()
	status := s.systemStatus()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "koe-sentinel",
		"version":           "0.1.0",
		"uptime":            status.Uptime,
		"total_requests":    status.TotalRequests,
		"connected_clients": status.ConnectedClients,
		"dlp_enabled":       snapshot.EnableDLPScan,
		"dlp_action":        snapshot.DLPAction,
		"custom_rules":      len(snapshot.CustomReplaceRules),
		"settings_version":  snapshot.SettingsVersion,
	})
}

// systemStatusLoop periodically pushes a system_status snapshot to UI
// observers.
func (s *Server) systemStatusLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.deps.Hub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeSystemStatus,
			Timestamp: time.Now(),
			Data:      s.systemStatus(),
		})
	}
}

// systemStatus assembles the current snapshot shared by /info and the
// system_status broadcast.
func (s *Server) systemStatus() websocket.SystemStatusEvent {
	s.mu.Lock()
	totalRequests := s.totalRequests
	s.mu.Unlock()

	clients := 0
	if s.deps.Hub != nil {
		clients = s.deps.Hub.ClientCount()
	}

	return websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.startTime).Round(time.Second).String(),
		TotalRequests:    totalRequests,
		ConnectedClients: clients,
	}
}
