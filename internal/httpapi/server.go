// Package httpapi serves the submission lifecycle over HTTP/JSON.
//
// Submission routes act on behalf of the owner named in the X-Winivox-Owner
// header; a submission owned by someone else answers 404. Feed, stats and the
// event window are shared views. When a token is configured every route
// except /api/health requires it as a bearer token.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"winivox/internal/api"
	"winivox/internal/config"
	"winivox/internal/logging"
	"winivox/internal/services"
	"winivox/internal/submissions"
)

const (
	maxBodyBytes     = 1 << 20
	defaultFeedLimit = 50
)

// Server is the HTTP front of api.Service.
type Server struct {
	bind    string
	logger  *slog.Logger
	svc     *api.Service
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

// New builds the server. It returns nil, nil when cfg.API.Bind is empty.
func New(cfg *config.Config, svc *api.Service, logger *slog.Logger) (*Server, error) {
	if cfg == nil || svc == nil {
		return nil, services.Wrap(services.ErrConfiguration, "httpapi", "init", "config and service required", nil)
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		bind:   bind,
		logger: logger,
		svc:    svc,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stats", srv.handleStats)
	mux.HandleFunc("GET /api/feed", srv.handleFeed)
	mux.HandleFunc("GET /api/events", srv.handleEvents)
	mux.HandleFunc("POST /api/submissions", srv.handleCreate)
	mux.HandleFunc("GET /api/submissions", srv.handleList)
	mux.HandleFunc("GET /api/submissions/{id}", srv.handleGet)
	mux.HandleFunc("DELETE /api/submissions/{id}", srv.handleCancel)
	mux.HandleFunc("POST /api/submissions/{id}/uploaded", srv.handleUploaded)
	mux.HandleFunc("POST /api/submissions/{id}/cover", srv.handleCover)
	mux.HandleFunc("POST /api/submissions/{id}/reprocess", srv.handleReprocess)
	mux.HandleFunc("GET /api/submissions/{id}/events", srv.handleSubmissionEvents)

	root := http.NewServeMux()
	root.HandleFunc("GET /api/health", srv.handleHealth)
	root.Handle("/", authMiddleware(cfg.API.Token, mux))
	srv.handler = root

	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler exposes the routed handler, including authentication.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr reports the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

type createRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type uploadedRequest struct {
	AnonymizationMode string   `json:"anonymizationMode"`
	Description       string   `json:"description"`
	SuggestedTags     []string `json:"suggestedTags"`
	CoverImageKey     string   `json:"coverImageKey"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit := defaultFeedLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	items, err := s.svc.Feed(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FeedResponse{Items: items})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseBound(query.Get("from"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid from timestamp")
		return
	}
	to, err := parseBound(query.Get("to"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid to timestamp")
		return
	}
	list, err := s.svc.EventsBetween(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventListResponse{Events: list})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Filename) == "" {
		s.writeError(w, http.StatusBadRequest, "filename required")
		return
	}
	ticket, err := s.svc.Create(r.Context(), owner, req.Filename, req.ContentType)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	var statuses []submissions.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, known := submissions.ParseStatus(trimmed)
		if !known {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", trimmed))
			return
		}
		statuses = append(statuses, status)
	}
	items, err := s.svc.List(r.Context(), owner, statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SubmissionListResponse{Items: items})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	item, err := s.svc.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SubmissionResponse{Item: item})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	item, err := s.svc.Cancel(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SubmissionResponse{Item: item})
}

func (s *Server) handleUploaded(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	var req uploadedRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := s.svc.MarkUploaded(r.Context(), owner, r.PathValue("id"), submissions.UploadDetails{
		Mode:          submissions.Mode(req.AnonymizationMode),
		Description:   req.Description,
		SuggestedTags: req.SuggestedTags,
		CoverImageKey: req.CoverImageKey,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SubmissionResponse{Item: item})
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}
	ticket, err := s.svc.CreateCoverUpload(r.Context(), owner, r.PathValue("id"), req.Filename, req.ContentType)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	item, err := s.svc.Reprocess(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SubmissionResponse{Item: item})
}

func (s *Server) handleSubmissionEvents(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireOwner(w, r)
	if !ok {
		return
	}
	list, err := s.svc.Events(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventListResponse{Events: list})
}

func (s *Server) requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := ownerFrom(r)
	if owner == "" {
		s.writeError(w, http.StatusUnauthorized, "owner header required")
		return "", false
	}
	return owner, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func parseBound(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, submissions.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, submissions.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, submissions.ErrInvalidMode),
		errors.Is(err, submissions.ErrInvalidCoverKey),
		errors.Is(err, submissions.ErrNoAudio),
		errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrStorage):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusNotFound:
		message = "submission not found"
	case http.StatusBadGateway:
		message = "storage unavailable"
	case http.StatusServiceUnavailable:
		message = "queue unavailable"
	}
	if status >= http.StatusInternalServerError {
		s.log().Warn("api request failed",
			logging.Int("status", status),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
	}
	s.writeError(w, status, message)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Warn("api response encode failed", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) log() *slog.Logger {
	if s == nil || s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
}
