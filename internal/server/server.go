// Package server assembles the Router, HandlerBridge, WebSocketManager,
// and CacheManager into one embeddable process: it owns the net/http
// listener, mounts WebSocket upgrade paths ahead of the Dispatcher's
// catch-all, exposes /metrics and a liveness/readiness health check, and
// drives graceful shutdown across every component.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/s00d/rnode-server/internal/bridge"
	"github.com/s00d/rnode-server/internal/cache"
	"github.com/s00d/rnode-server/internal/config"
	"github.com/s00d/rnode-server/internal/logger"
	"github.com/s00d/rnode-server/internal/metrics"
	"github.com/s00d/rnode-server/internal/router"
	"github.com/s00d/rnode-server/internal/websocket"
)

// Server wires the four subsystems into a single net/http.Server. An
// embedding application builds one with New, registers its own routes and
// WebSocket endpoints through the accessors, then calls ListenAndServe.
type Server struct {
	cfg *config.Config

	Dispatcher *router.Dispatcher
	Bridge     *bridge.Bridge
	WebSocket  *websocket.Manager
	Cache      *cache.Manager
	Metrics    *metrics.Metrics

	mux        *http.ServeMux
	httpServer *http.Server

	stopSampler func()
	readyMu     sync.RWMutex
	ready       bool
}

// Options configures the pieces of New that aren't already carried by
// config.Config: the cross-runtime handler the Bridge dispatches every
// ticket to, and an optional notFound override for the Dispatcher.
type Options struct {
	Handler  bridge.HandlerFunc
	NotFound router.HandlerFunc
}

// New builds every subsystem from cfg and opts but does not yet bind a
// listener. Cache tier construction can fail (an explicitly configured L2/
// L3 that cannot be reached is a startup error); every other subsystem is
// infallible to construct.
func New(cfg *config.Config, opts Options) (*Server, error) {
	logger.Initialize(cfg.LogLevel, cfg.Pretty)

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	cacheMgr, err := cache.New(cache.Options{
		MaxMemory:     cfg.CacheMaxMemory,
		DefaultTTL:    cfg.CacheDefaultTTL,
		RedisURL:      cfg.CacheRedisURL,
		FileCachePath: cfg.CacheFileCachePath,
	}, m)
	if err != nil {
		return nil, err
	}

	dispatcher := router.New(m, cfg.DevMode)
	if opts.NotFound != nil {
		dispatcher.NotFound = opts.NotFound
	}

	handler := opts.Handler
	if handler == nil {
		handler = func(t *bridge.Ticket) (any, error) { return nil, nil }
	}
	b := bridge.New(cfg.BridgeQueueSize, handler)

	wsManager := websocket.New(0, 0, m)

	s := &Server{
		cfg:        cfg,
		Dispatcher: dispatcher,
		Bridge:     b,
		WebSocket:  wsManager,
		Cache:      cacheMgr,
		Metrics:    m,
		mux:        http.NewServeMux(),
	}

	s.mountControlPlane()

	return s, nil
}

// mountControlPlane wires /health, /metrics (when enabled), the WebSocket
// room/client REST mirror (registered as Dispatcher routes), and finally
// the Dispatcher itself as the catch-all. net/http.ServeMux dispatches on
// the longest registered pattern first, which is what lets the WebSocket
// upgrade paths and the health and metrics paths take priority over "/"
// without the Dispatcher ever seeing them.
func (s *Server) mountControlPlane() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/health/live", s.handleLiveness)
	s.mux.HandleFunc("/health/ready", s.handleReadiness)

	if s.Metrics != nil {
		s.mux.Handle("/metrics", s.Metrics.Handler())
	}

	registerControlRoutes(s.Dispatcher, s.WebSocket)

	s.mux.Handle("/", s.Dispatcher)
}

func registerControlRoutes(d *router.Dispatcher, wsm *websocket.Manager) {
	routes := []struct {
		method, pattern string
		handler         router.HandlerFunc
	}{
		{"GET", "/websocket/rooms", wsm.ListRooms},
		{"POST", "/websocket/rooms", wsm.CreateRoomHandler},
		{"GET", "/websocket/rooms/{roomId}", wsm.GetRoom},
		{"POST", "/websocket/rooms/{roomId}/message", wsm.PostRoomMessage},
		{"POST", "/websocket/rooms/{roomId}/join", wsm.JoinRoomHandler},
		{"POST", "/websocket/rooms/{roomId}/leave", wsm.LeaveRoomHandler},
		{"GET", "/websocket/clients/{connectionId}", wsm.GetClient},
		{"GET", "/websocket/clients/{connectionId}/rooms", wsm.GetClientRooms},
	}
	for _, r := range routes {
		if err := d.Register(r.method, r.pattern, r.handler); err != nil {
			logger.HTTP().Error().Err(err).Str("pattern", r.pattern).Msg("failed to register control route")
		}
	}
}

// RegisterWebSocket mounts a WebSocket upgrade endpoint at path, ahead of
// the Dispatcher, the same way the old teacher's gin setup mounted
// ws.GET routes on their own router group rather than behind the REST
// middleware stack.
func (s *Server) RegisterWebSocket(path string, cb websocket.Callbacks) {
	s.mux.HandleFunc(path, s.WebSocket.RegisterRoute(path, cb))
}

// Use registers a middleware bound to glob ("*", an exact path, or a
// "prefix/*" glob) on the underlying Dispatcher.
func (s *Server) Use(glob string, mw router.MiddlewareFunc) {
	s.Dispatcher.RegisterMiddleware(glob, mw)
}

// Handle registers a route on the underlying Dispatcher.
func (s *Server) Handle(method, pattern string, h router.HandlerFunc) error {
	return s.Dispatcher.Register(method, pattern, h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleLiveness reports whether the process is alive at all: it never
// depends on downstream tiers, matching the usual Kubernetes livenessProbe
// contract (restart the pod only if the process itself is wedged).
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"alive"}`))
}

// handleReadiness reports whether the server should currently receive
// traffic. It flips false as soon as Shutdown begins, ahead of the listener
// actually closing, so a load balancer can stop routing new requests
// during the shutdown grace period.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// ListenAndServe binds the listener and blocks until it is closed. It
// selects HTTPS automatically when TLS is configured. Call it in a
// goroutine and pair it with Shutdown from the caller's own signal
// handling, the same split the old standalone binary used.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port),
		Handler:           s.mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	if s.Metrics != nil {
		s.stopSampler = s.Metrics.StartProcessSampler(15 * time.Second)
	}

	s.readyMu.Lock()
	s.ready = true
	s.readyMu.Unlock()

	logger.HTTP().Info().Str("addr", s.httpServer.Addr).Bool("tls", s.cfg.TLSEnabled()).Msg("listening")

	var err error
	if s.cfg.TLSEnabled() {
		err = s.httpServer.ListenAndServeTLS(s.cfg.SSLCertPath, s.cfg.SSLKeyPath)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight HTTP requests within ctx's deadline, then
// closes every WebSocket connection, stops the Bridge's executor
// goroutine, and releases cache tier connections. Order matters: the
// listener closes first so no new work arrives while the rest unwinds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.readyMu.Lock()
	s.ready = false
	s.readyMu.Unlock()

	if s.stopSampler != nil {
		s.stopSampler()
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.WebSocket.CloseAll()
	s.Bridge.Stop()
	s.Cache.Close()

	return err
}
