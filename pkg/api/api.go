package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitmuster/resultblend/pkg/auth"
	"github.com/bitmuster/resultblend/pkg/blend"
	"github.com/bitmuster/resultblend/pkg/blendresult"
	"github.com/bitmuster/resultblend/pkg/config"
	"github.com/bitmuster/resultblend/pkg/metrics"
	"github.com/bitmuster/resultblend/pkg/staging"
	"github.com/bitmuster/resultblend/pkg/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	// uploadFormField is the preferred multipart field for uploads.
	uploadFormField = "upload_file"

	maxStuffMul = 1000

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Server is the HTTP API server.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Handler() http.Handler
}

// server implements Server.
type server struct {
	log      logrus.FieldLogger
	cfg      *config.Config
	staging  staging.Store
	pipeline blend.Pipeline
	gate     auth.Gate
	history  store.Store
	metrics  *metrics.Metrics
	hub      *Hub
	srv      *http.Server
	router   chi.Router

	rateLimiter *IPRateLimiter
	cancel      context.CancelFunc
}

// Ensure server implements Server.
var _ Server = (*server)(nil)

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	st staging.Store,
	p blend.Pipeline,
	gate auth.Gate,
	history store.Store,
	m *metrics.Metrics,
) Server {
	hub := NewHub(log, m)

	s := &server{
		log:      log.WithField("component", "api"),
		cfg:      cfg,
		staging:  st,
		pipeline: p,
		gate:     gate,
		history:  history,
		metrics:  m,
		hub:      hub,
	}

	if cfg.Server.RateLimit.Enabled {
		s.rateLimiter = NewIPRateLimiter(cfg.Server.RateLimit.RequestsPerMinute)

		log.WithField("rpm", cfg.Server.RateLimit.RequestsPerMinute).Info("Rate limiting enabled")
	}

	// Keep the staged gauge current and forward store changes to websocket clients.
	st.SetChangeCallback(func(kind staging.ChangeKind, docs []staging.Document, remaining int) {
		m.SetStagedDocuments(remaining)

		if kind == staging.ChangeStaged {
			for _, doc := range docs {
				m.RecordDocumentStaged(doc.Size)
			}
		}

		hub.BroadcastStagingChange(kind, docs, remaining)
	})

	p.SetCompletionCallback(func(record *store.Blend) {
		hub.BroadcastBlend(record)
	})

	s.setupRouter()

	return s
}

// Handler returns the router.
func (s *server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.srv = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", s.cfg.Server.Listen).Info("Starting API server")

	go s.hub.Run(ctx)

	if s.rateLimiter != nil {
		go s.rateLimiter.CleanupLoop(ctx)
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.srv == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.srv.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}

	return err
}

func (s *server) setupRouter() {
	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	if s.cfg.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}

	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.Server.CORSOrigins, s.gate.Header()))
	}

	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware)
	}

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Optional API key: an absent header is allowed, a wrong one is not.
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAPIKey(s.gate, s.onAuthReject))

			r.Get("/stuff/testquery", s.handleTestQuery)
		})

		// Protected routes.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAPIKey(s.gate, s.onAuthReject))

			r.Post("/blend/upload/{name}", s.handleUpload)
			r.Get("/blend/blend", s.handleBlend)

			// Text responses are compressed for clients that accept gzip.
			r.Group(func(r chi.Router) {
				r.Use(gzipMiddleware)

				r.Get("/blend/list", s.handleList)
				r.Post("/blend/xml", s.handleXML)
				r.Get("/blend/history", s.handleListHistory)
				r.Get("/blend/history/{id}", s.handleGetHistory)
			})

			r.Get("/stuff/{mul}", s.handleStuff)

			r.Get("/ws", s.handleWebSocket)
		})
	})

	s.router = r
}

func corsMiddleware(origins []string, apiKeyHeader string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 1 && origins[0] == "*"

	originSet := make(map[string]bool, len(origins))
	for _, origin := range origins {
		originSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAll || originSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+apiKeyHeader)
				w.Header().Set("Access-Control-Expose-Headers", "X-Artifact-Digest, X-Blend-Id")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func gzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// metricsMiddleware records request counts and durations by route pattern.
func (s *server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

// onAuthReject counts rejected requests by reason.
func (s *server) onAuthReject(r *http.Request, err error) {
	reason := "invalid"

	switch {
	case errors.Is(err, auth.ErrMisconfigured):
		reason = "misconfigured"
	case errors.Is(err, auth.ErrMissing):
		reason = "missing"
	}

	s.metrics.RecordAuthRejection(reason)

	s.log.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"reason": reason,
	}).Debug("Rejected request")
}

// ============================================================================
// Response helpers
// ============================================================================

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

// ============================================================================
// Handlers
// ============================================================================

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	Database       string `json:"database"`
	Staged         int    `json:"staged"`
	AuthConfigured bool   `json:"auth_configured"`
}

// handleHealth returns service health. It is public.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "ok",
		Database:       "ok",
		Staged:         s.staging.Len(),
		AuthConfigured: s.cfg.Auth.Configured(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.history.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleUpload stages the request body under the name from the path. A
// multipart body contributes its first file part, preferring upload_file.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	content, err := readUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	s.staging.Upload(name, content)

	w.WriteHeader(http.StatusOK)
}

// readUpload returns the uploaded document content.
func readUpload(r *http.Request) (string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}

		return string(body), nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", fmt.Errorf("reading multipart body: %w", err)
	}

	var (
		content string
		found   bool
	)

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("reading multipart part: %w", err)
		}

		if part.FileName() == "" && part.FormName() != uploadFormField {
			part.Close()

			continue
		}

		data, err := io.ReadAll(part)
		part.Close()

		if err != nil {
			return "", fmt.Errorf("reading multipart part: %w", err)
		}

		if part.FormName() == uploadFormField {
			return string(data), nil
		}

		if !found {
			content = string(data)
			found = true
		}
	}

	if !found {
		return "", errors.New("multipart body has no file part")
	}

	return content, nil
}

// handleList returns the staged names in upload order.
func (s *server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.staging.ListNames())
}

// handleBlend drains the store and returns the blended spreadsheet.
func (s *server) handleBlend(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.pipeline.Run(r.Context())
	if err != nil {
		if errors.Is(err, blend.ErrBlendFailed) || errors.Is(err, blend.ErrExportFailed) {
			s.writeError(w, http.StatusBadRequest, err.Error())

			return
		}

		s.log.WithError(err).Error("Blend failed")
		s.writeError(w, http.StatusInternalServerError, "Failed to blend documents")

		return
	}

	w.Header().Set("Content-Type", blendresult.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="blend-%s.ods"`, artifact.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("X-Artifact-Digest", artifact.Digest)
	w.Header().Set("X-Blend-Id", artifact.ID)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(artifact.Data); err != nil {
		s.log.WithError(err).Warn("Failed to write artifact")
	}
}

// handleXML converts one document to text.
func (s *server) handleXML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Failed to read body")

		return
	}

	text, err := s.pipeline.Convert(r.Context(), string(body))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, text); err != nil {
		s.log.WithError(err).Warn("Failed to write conversion")
	}
}

// HistoryResponse is a page of blend records.
type HistoryResponse struct {
	Blends []*store.Blend `json:"blends"`
	Total  int            `json:"total"`
}

// handleListHistory returns recorded blend cycles, newest first.
func (s *server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := store.BlendQueryOpts{Limit: defaultHistoryLimit}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxHistoryLimit {
			opts.Limit = l
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o > 0 {
			opts.Offset = o
		}
	}

	if statusStr := strings.TrimSpace(query.Get("status")); statusStr != "" {
		status := store.BlendStatus(statusStr)

		switch status {
		case store.BlendStatusSucceeded, store.BlendStatusBlendFailed, store.BlendStatusExportFailed:
			opts.Status = &status
		default:
			s.writeError(w, http.StatusBadRequest, "Invalid status filter")

			return
		}
	}

	blends, total, err := s.history.ListBlends(r.Context(), opts)
	if err != nil {
		s.log.WithError(err).Error("Failed to list blends")
		s.writeError(w, http.StatusInternalServerError, "Failed to list blends")

		return
	}

	if blends == nil {
		blends = []*store.Blend{}
	}

	s.writeJSON(w, http.StatusOK, HistoryResponse{Blends: blends, Total: total})
}

// handleGetHistory returns one blend record with its documents.
func (s *server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := s.history.GetBlend(r.Context(), id)
	if err != nil {
		s.log.WithError(err).Error("Failed to get blend")
		s.writeError(w, http.StatusInternalServerError, "Failed to get blend")

		return
	}

	if record == nil {
		s.writeError(w, http.StatusNotFound, "Blend not found")

		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

// handleStuff returns "Stuff" repeated mul times.
func (s *server) handleStuff(w http.ResponseWriter, r *http.Request) {
	mul, err := strconv.Atoi(chi.URLParam(r, "mul"))
	if err != nil || mul < 0 || mul > maxStuffMul {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("mul must be an integer between 0 and %d", maxStuffMul))

		return
	}

	s.writeJSON(w, http.StatusOK, strings.Repeat("Stuff", mul))
}

// handleTestQuery requires a name query parameter and returns nothing.
func (s *server) handleTestQuery(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("name") == "" {
		s.writeError(w, http.StatusBadRequest, "Missing name query parameter")

		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleWebSocket upgrades to the event stream.
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, s.cfg.Server.CORSOrigins, w, r)
}
