// Package web provides an HTTP status and control server for the scale-sensor daemon.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"

	"github.com/sweeney/scale-sensor/internal/command"
	"github.com/sweeney/scale-sensor/internal/status"
)

// Server serves the status page over HTTP and accepts tare and calibrate requests.
type Server struct {
	httpServer    *http.Server
	tracker       *status.Tracker
	hub           *WSHub
	cmds          command.Submitter
	defaultWeight float64
}

// New creates a Server that reads state from the given tracker. Commands are
// forwarded to cmds; a nil cmds disables the control endpoints.
func New(addr string, tracker *status.Tracker, cmds command.Submitter, defaultWeight float64) *Server {
	if defaultWeight <= 0 {
		defaultWeight = command.DefaultWeight
	}
	s := &Server{
		tracker:       tracker,
		hub:           NewWSHub(),
		cmds:          cmds,
		defaultWeight: defaultWeight,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/tare", s.handleTare)
	mux.HandleFunc("/calibrate", s.handleCalibrate)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Hub returns the websocket hub used for live updates.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// PushStatus broadcasts the current snapshot to websocket clients.
func (s *Server) PushStatus() {
	if s.hub.Len() == 0 {
		return
	}
	s.hub.Broadcast(statusMessage(s.tracker.Snapshot()))
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

func statusMessage(snap status.Snapshot) WSMessage {
	return WSMessage{Type: "status", Data: json.RawMessage(status.FormatCompact(snap))}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, statusMessage(s.tracker.Snapshot()))
}

func (s *Server) handleTare(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, command.Tare(command.SourceHTTP))
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	weight := command.ParseWeight(r.FormValue("weight"), s.defaultWeight)
	s.submit(w, r, command.Calibrate(weight, s.defaultWeight, command.SourceHTTP))
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, c command.Command) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cmds == nil {
		http.Error(w, "commands disabled", http.StatusNotImplemented)
		return
	}
	if !s.cmds.Submit(c) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	log.Printf("web: queued %s", c)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(struct {
		Command string  `json:"command"`
		Weight  float64 `json:"weight,omitempty"`
	}{Command: string(c.Kind), Weight: c.Weight})
}
