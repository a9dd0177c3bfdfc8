package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"nordagri/internal/config"
	"nordagri/internal/domain"
	"nordagri/internal/models"
	"nordagri/internal/offline"

	"github.com/rs/zerolog"
)

const (
	maxBodyBytes       = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

// QueueService is the queue surface the HTTP API exposes.
type QueueService interface {
	Enqueue(ctx context.Context, kind models.OperationKind, payload any) (models.QueuedOperation, error)
	Peek(ctx context.Context) ([]models.QueuedOperation, error)
	Flush(ctx context.Context) (offline.FlushResult, error)
	DeadLetters(ctx context.Context) ([]models.DeadLetter, error)
	Requeue(ctx context.Context, ids ...string) (int, error)
	Purge(ctx context.Context, ids ...string) (int, error)
}

// Connectivity reports the last known backend state.
type Connectivity interface {
	Online() bool
}

type healthCheck struct {
	name   string
	pinger domain.Pinger
}

// HTTPServer exposes the offline queue over HTTP.
type HTTPServer struct {
	cfg          config.APIConfig
	queue        QueueService
	logger       *zerolog.Logger
	server       *http.Server
	auth         *HTTPAuth
	checks       []healthCheck
	connectivity Connectivity
}

func NewHTTPServer(cfg config.APIConfig, queue QueueService, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{cfg: cfg, queue: queue, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/queue", srv.handleQueue)
	mux.HandleFunc("POST /api/v1/queue/flush", srv.handleFlush)
	mux.HandleFunc("POST /api/v1/queue/{kind}", srv.handleEnqueue)
	mux.HandleFunc("GET /api/v1/dead-letters", srv.handleDeadLetters)
	mux.HandleFunc("POST /api/v1/dead-letters/requeue", srv.handleRequeue)
	mux.HandleFunc("DELETE /api/v1/dead-letters", srv.handlePurge)
	mux.HandleFunc("GET /healthz", srv.handleHealthz)

	handler := loggingMiddleware(logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

// AddHealthCheck adds a dependency to /healthz. Call before Start.
func (s *HTTPServer) AddHealthCheck(name string, p domain.Pinger) {
	s.checks = append(s.checks, healthCheck{name: name, pinger: p})
}

// SetConnectivity makes /healthz report the backend state. Call before Start.
func (s *HTTPServer) SetConnectivity(c Connectivity) {
	s.connectivity = c
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	ops, err := s.queue.Peek(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if ops == nil {
		ops = []models.QueuedOperation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(ops), "operations": ops})
}

func (s *HTTPServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	kind := models.OperationKind(r.PathValue("kind"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	op, err := s.queue.Enqueue(r.Context(), kind, json.RawMessage(body))
	switch {
	case errors.Is(err, offline.ErrUnknownKind):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, offline.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"operation": op})
}

func (s *HTTPServer) handleFlush(w http.ResponseWriter, r *http.Request) {
	result, err := s.queue.Flush(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := s.queue.DeadLetters(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if letters == nil {
		letters = []models.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(letters), "dead_letters": letters})
}

func (s *HTTPServer) handleRequeue(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	n, err := s.queue.Requeue(r.Context(), ids...)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}

func (s *HTTPServer) handlePurge(w http.ResponseWriter, r *http.Request) {
	ids, ok := decodeIDs(w, r)
	if !ok {
		return
	}
	n, err := s.queue.Purge(r.Context(), ids...)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.pinger.Ping(ctx); err != nil {
			checks[c.name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.name] = "ok"
	}

	resp := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		resp["status"] = "degraded"
	}
	if s.connectivity != nil {
		resp["online"] = s.connectivity.Online()
	}
	writeJSON(w, status, resp)
}

func (s *HTTPServer) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeIDs reads a {"ids": [...]} or {"all": true} selection. A request
// naming neither is rejected so an empty body never touches every dead letter.
func decodeIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var body struct {
		IDs []string `json:"ids"`
		All bool     `json:"all"`
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	switch {
	case body.All && len(body.IDs) > 0:
		writeError(w, http.StatusBadRequest, `pass either "ids" or "all", not both`)
		return nil, false
	case !body.All && len(body.IDs) == 0:
		writeError(w, http.StatusBadRequest, `pass dead-letter "ids" or "all": true`)
		return nil, false
	}
	return body.IDs, true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
