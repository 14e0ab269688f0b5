// Package msgapi exposes the upward message contract over a local
// HTTP endpoint. UI collaborators (popup, options page, CLI) POST one
// JSON request and receive one JSON response.
package msgapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/haltgate/haltgate/internal/gate/common/log"
	"github.com/haltgate/haltgate/internal/gate/services/enforcer"
)

// maxBodyBytes bounds a request body; messages are tiny.
const maxBodyBytes = 1 << 16

// Server is the message API transport. It owns the listener lifecycle
// and translates HTTP to the enforcer's request/response contract.
type Server struct {
	addr    string
	handler *enforcer.MessageHandler
	logger  log.Logger

	srv      *http.Server
	listener net.Listener
}

// New constructs a Server bound to addr once started.
func New(addr string, handler *enforcer.MessageHandler, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Start begins serving. It returns once the listener is bound; serving
// continues on a background goroutine until Stop or context cancel.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("msgapi listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/message", s.handleMessage)

	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err}, "Message API server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	s.logger.Info(map[string]any{"address": s.Address()}, "Message API listening")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Address returns the bound address, useful when addr used port 0.
func (s *Server) Address() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req enforcer.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, enforcer.Response{OK: false, Error: "malformed request body"})
		return
	}

	resp := s.handler.Handle(r.Context(), req)
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
