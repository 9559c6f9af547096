// Package chi exposes the question answering pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/logger"
	"github.com/kailas-cloud/docqa/internal/repository/index"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest      = "bad_request"
	codeIndexCorruption = "index_corruption"
	codeNotBuilt        = "index_not_built"
	codeIngestionFailed = "ingestion_failed"
	codeProviderError   = "provider_error"
	codeInternalError   = "internal_error"
)

// answerer runs the query-time pipeline.
type answerer interface {
	Answer(ctx context.Context, question string) string
}

// corpusManager is the build-time surface exposed over HTTP.
type corpusManager interface {
	Ingest(ctx context.Context) error
	Rebuild(ctx context.Context) error
	Stale(ctx context.Context) (bool, error)
}

// manifestReader reports the current build record.
type manifestReader interface {
	Collection() string
	Manifest(ctx context.Context) (index.Manifest, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes HTTP requests to the pipeline use cases.
type Server struct {
	answer        answerer
	corpus        corpusManager
	manifests     manifestReader
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	answer answerer,
	corpus corpusManager,
	manifests manifestReader,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		answer:    answer,
		corpus:    corpus,
		manifests: manifests,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrConfiguration, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrIndexCorruption, http.StatusConflict, codeIndexCorruption),
		sentinelHandler(domain.ErrNotBuilt, http.StatusConflict, codeNotBuilt),
		sentinelHandler(domain.ErrIngestion, http.StatusUnprocessableEntity, codeIngestionFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrGenerationFailure, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Routes registers all endpoints on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/answer", s.Answer)
	r.Post("/v1/rebuild", s.Rebuild)
	r.Get("/v1/status", s.Status)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Answer handles POST /v1/answer.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	// The pipeline never fails a question: blank input gets guidance,
	// degraded stages get apologetic text. Always 200 with an answer.
	reply := s.answer.Answer(r.Context(), req.Question)

	writeJSON(w, http.StatusOK, map[string]string{"answer": reply})
}

// Rebuild handles POST /v1/rebuild: drops the collection and rebuilds it
// synchronously. The write timeout must cover a full corpus build.
func (s *Server) Rebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.corpus.Rebuild(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.writeStatus(w, r, http.StatusOK)
}

// Status handles GET /v1/status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r, http.StatusOK)
}

// statusResponse reports the collection's build record.
type statusResponse struct {
	Collection  string `json:"collection"`
	Built       bool   `json:"built"`
	RecordCount int    `json:"record_count,omitempty"`
	Model       string `json:"model,omitempty"`
	Dimensions  int    `json:"dimensions,omitempty"`
	BuiltAt     int64  `json:"built_at,omitempty"`
	Stale       *bool  `json:"stale,omitempty"`
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, status int) {
	resp := statusResponse{Collection: s.manifests.Collection()}

	m, err := s.manifests.Manifest(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotBuilt):
		// Built stays false.
	case err != nil:
		s.handleDomainError(w, err)
		return
	default:
		resp.Built = true
		resp.RecordCount = m.RecordCount
		resp.Model = m.Model
		resp.Dimensions = m.Dimensions
		resp.BuiltAt = m.BuiltAt

		if stale, serr := s.corpus.Stale(r.Context()); serr == nil {
			resp.Stale = &stale
		} else {
			logger.FromContext(r.Context()).Warn("Staleness check failed", zap.Error(serr))
		}
	}

	writeJSON(w, status, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidArgument,
		domain.ErrConfiguration,
		domain.ErrIndexCorruption,
		domain.ErrNotBuilt,
		domain.ErrIngestion,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationFailure,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
