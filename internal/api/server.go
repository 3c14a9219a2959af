// Package api exposes the HTTP interface for the capture service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogshot/internal/capture"
	"github.com/JakeFAU/blogshot/internal/config"
	"github.com/JakeFAU/blogshot/internal/id/uuid"
	"github.com/JakeFAU/blogshot/internal/metrics"
	"github.com/JakeFAU/blogshot/internal/report"
	"github.com/JakeFAU/blogshot/internal/sheet"
	"github.com/JakeFAU/blogshot/internal/storage/local"
)

const maxBodyBytes = 8 << 20

// Runner executes capture batches.
type Runner interface {
	Run(ctx context.Context, items []capture.Item) (*capture.Session, error)
}

// Exporter renders a session report.
type Exporter interface {
	Export(ctx context.Context, sessionID string, results []capture.Result, w io.Writer) error
}

// Sessions gives read access to finished sessions.
type Sessions interface {
	Exists(sessionID string) bool
	Resolve(sessionID, filename string) (string, error)
	LoadManifest(sessionID string, v any) error
}

// Server wires HTTP handlers to the capture pipeline.
type Server struct {
	router   chi.Router
	runner   Runner
	exporter Exporter
	sessions Sessions
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runner Runner,
	exporter Exporter,
	sessions Sessions,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:   runner,
		exporter: exporter,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
	requestTimeout := cfg.RequestTimeout()
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(uuid.NewUUIDGenerator()))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/captures", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		// A batch runs for as long as its items take.
		r.Post("/", s.runCapture)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))
			r.Get("/{session_id}", s.getSession)
			r.Post("/{session_id}/report", s.exportReport)
			r.Get("/{session_id}/artifacts/{filename}", s.getArtifact)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type captureRequest struct {
	Items []capture.Item `json:"items"`
}

type reportRequest struct {
	Results []capture.Result `json:"results"`
}

func (s *Server) runCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	items, err := normalizeItems(req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.runner.Run(r.Context(), items)
	if err != nil {
		status := statusFor(err)
		s.logger.Error("capture batch failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session.Summarize())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	session, ok := s.loadSession(w, sessionID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Summarize())
}

func (s *Server) exportReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if !s.sessions.Exists(sessionID) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var req reportRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	results := req.Results
	if len(results) == 0 {
		session, ok := s.loadSession(w, sessionID)
		if !ok {
			return
		}
		results = session.Results
	}

	var buf bytes.Buffer
	if err := s.exporter.Export(r.Context(), sessionID, results, &buf); err != nil {
		s.logger.Error("report export failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report export failed")
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	// Session ids are UUIDs, so the filename is a valid unquoted token.
	w.Header().Set("Content-Disposition", "attachment; filename=captures_"+sessionID+".xlsx")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("report write failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	filename := chi.URLParam(r, "filename")
	// Only composites are served; the manifest and partial writes are not.
	if !strings.HasSuffix(filename, capture.ArtifactExt) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	path, err := s.sessions.Resolve(sessionID, filename)
	if err != nil {
		writeError(w, statusFor(err), "artifact not found")
		return
	}
	// #nosec G304 -- path is confined to the session directory by the store.
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stat artifact")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func (s *Server) loadSession(w http.ResponseWriter, sessionID string) (capture.Session, bool) {
	var session capture.Session
	if err := s.sessions.LoadManifest(sessionID, &session); err != nil {
		writeError(w, statusFor(err), "session not found")
		return capture.Session{}, false
	}
	return session, true
}

// normalizeItems rejects empty batches and links that are not absolute
// http(s) URLs, and numbers items whose index was omitted.
func normalizeItems(items []capture.Item) ([]capture.Item, error) {
	if len(items) == 0 {
		return nil, capture.ErrNoItems
	}
	out := make([]capture.Item, len(items))
	for i, item := range items {
		if !sheet.IsHTTPLink(item.Link) {
			return nil, fmt.Errorf("items[%d]: link must be an absolute http(s) URL", i)
		}
		if item.Index == 0 {
			item.Index = i + 1
		}
		out[i] = item
	}
	return out, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrNoItems):
		return http.StatusBadRequest
	case errors.Is(err, local.ErrNotFound), errors.Is(err, local.ErrInvalidSession):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrEngineUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
