// Package web provides an HTTP status server for the hud-worker daemon, and
// a websocket feed of the change events it publishes.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sweeney/hud-worker/internal/logic"
	"github.com/sweeney/hud-worker/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	hub        *Hub
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// New creates a Server that reads state from the given tracker and streams
// events from hub.
func New(addr string, tracker *status.Tracker, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tracker: tracker,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// The page is served from this process; any local origin may read.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/events", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// PublishChange sends ev to every /events client. It never blocks.
func (s *Server) PublishChange(ev logic.ChangeEvent) {
	msg, err := formatChange(ev, time.Now())
	if err != nil {
		s.logger.Warn("events frame dropped", "error", err)
		return
	}
	s.hub.BroadcastBytes(msg)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleEvents upgrades to a websocket, sends the current status, then
// streams change frames until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("events upgrade failed", "error", err)
		return
	}

	c := newClient(s.hub, conn, r.RemoteAddr)
	if init, err := formatStatus(s.tracker.Snapshot()); err == nil {
		c.send <- init
	}
	if !s.hub.join(c) {
		conn.Close()
		return
	}

	// Pumps are not tied to r.Context(): it is cancelled when this handler
	// returns. The hub and connection errors end them.
	go c.writePump()
	go c.readPump()
}
