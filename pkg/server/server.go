package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/metrics"
	"github.com/itohio/goppg/pkg/report"
)

const (
	shutdownTimeout = 5 * time.Second
	maxCommandBody  = 1 << 10
)

// Device is what the local API exposes.
type Device interface {
	HandleCommand(cmd string) string
	Status() report.Status
}

// CommandRequest is the JSON body accepted by POST /command.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse is returned by POST /command.
type CommandResponse struct {
	Command  string `json:"command"`
	Response string `json:"response"`
	OK       bool   `json:"ok"`
}

// Server is the device's local HTTP API.
type Server struct {
	device  Device
	logger  *zap.Logger
	metrics *metrics.Metrics
	router  *mux.Router
}

// New creates the API. hub may be nil, in which case /ws is not served.
func New(dev Device, hub http.Handler, mt *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		device:  dev,
		logger:  logging.OrNop(logger).Named("server"),
		metrics: mt,
		router:  mux.NewRouter(),
	}

	s.handle("/health", http.HandlerFunc(s.health), http.MethodGet)
	s.handle("/status", http.HandlerFunc(s.status), http.MethodGet)
	s.handle("/command", http.HandlerFunc(s.command), http.MethodPost)
	s.handle("/command/{command}", http.HandlerFunc(s.command), http.MethodPost)
	if mt != nil {
		s.handle("/metrics", mt.Handler(), http.MethodGet)
	}
	if hub != nil {
		s.handle("/ws", hub, http.MethodGet)
	}

	return s
}

func (s *Server) handle(route string, h http.Handler, method string) {
	s.router.Handle(route, s.metrics.WrapHandler(route, h)).Methods(method)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown failed", zap.Error(err))
			srv.Close()
		}
	})
	defer stop()

	s.logger.Info("serving local API", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.device.Status().DeviceState,
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.device.Status())
}

func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	cmd, ok := mux.Vars(r)["command"]
	if !ok {
		var err error
		cmd, err = readCommand(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, CommandResponse{Response: "ERROR: " + err.Error()})
			return
		}
	}

	resp := s.device.HandleCommand(cmd)
	out := CommandResponse{
		Command:  strings.ToUpper(strings.TrimSpace(cmd)),
		Response: resp,
		OK:       strings.HasPrefix(resp, "OK:"),
	}

	code := http.StatusOK
	if !out.OK {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, out)
}

// readCommand accepts a JSON CommandRequest or a plain text body.
func readCommand(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req CommandRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", fmt.Errorf("invalid command request: %w", err)
		}
		return req.Command, nil
	}
	return string(body), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
