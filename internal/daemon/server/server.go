// Package server provides the HTTP control API of the build daemon.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/internal/daemon/engine"
	"github.com/grovetools/buildhub/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// RunningConfig is exposed via /api/config so clients can verify what
// configuration is active.
type RunningConfig struct {
	Debounce      time.Duration `json:"debounce"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	BuildTool     string        `json:"build_tool"`
	CompileOnOpen bool          `json:"compile_on_open"`
	StartedAt     time.Time     `json:"started_at"`
}

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	engine        *engine.Engine
	runningConfig *RunningConfig
	writeTimeout  time.Duration
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	return &Server{
		logger:       logger,
		writeTimeout: 2 * time.Second,
	}
}

// SetEngine sets the request engine for the server.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
	if cfg != nil && cfg.WriteTimeout > 0 {
		s.writeTimeout = cfg.WriteTimeout
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/state", s.handleGetState)
	mux.HandleFunc("/api/config", s.handleGetConfig)
	mux.HandleFunc("/api/events", s.handleStreamState)
	mux.HandleFunc("/api/stream", s.handleStreamBroadcast)
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/drop", s.handleDrop)
	mux.HandleFunc("/api/build", s.handleBuild)
	mux.HandleFunc("/api/run", s.handleRun)

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return errors.IO(err, "remove stale socket", socketPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return errors.IO(err, "create", filepath.Dir(socketPath))
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return errors.IO(err, "listen", socketPath)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return errors.IO(err, "chmod", socketPath)
	}

	s.server = &http.Server{Handler: s.Handler()}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodGet) {
		return
	}
	writeResponse(w, s.engine.Projects(), nil)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if s.runningConfig == nil {
		writeResponse(w, nil, errors.New(errors.ErrCodeState, "running config not set"))
		return
	}
	writeResponse(w, s.runningConfig, nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c models.Client
	if !s.decode(w, r, &c) {
		return
	}
	resp, err := s.engine.Open(c)
	writeResponse(w, resp, err)
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	var c models.Client
	if !s.decode(w, r, &c) {
		return
	}
	writeResponse(w, struct{}{}, s.engine.Drop(c))
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req models.BuildRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeResponse(w, struct{}{}, s.engine.Build(req))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeResponse(w, struct{}{}, s.engine.Run(req))
}

// handleStreamState provides Server-Sent Events (SSE) for registry updates.
func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	st := s.engine.State()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()
	s.logger.Debug("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal update")
				continue
			}
			// SSE format: "data: {json}\n\n"
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) ready(w http.ResponseWriter) bool {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// decode reads a POST body into v, writing an error response on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if !s.ready(w) || !allow(w, r, http.MethodPost) {
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeResponse(w, nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
