// Package chi is the HTTP API surface.
package chi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/khana-cloud/khoj/internal/domain"
	cachemgmtuc "github.com/khana-cloud/khoj/internal/usecase/cachemgmt"
	dimensionuc "github.com/khana-cloud/khoj/internal/usecase/dimension"
	healthuc "github.com/khana-cloud/khoj/internal/usecase/health"
	searchuc "github.com/khana-cloud/khoj/internal/usecase/search"
)

// Error response codes.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeIndexUnavailable = "index_unavailable"
	codeEmbeddingError   = "embedding_provider_error"
	codeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers over the usecase services.
type Server struct {
	search        *searchuc.Service
	dimensions    *dimensionuc.Service
	cache         *cachemgmtuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	dimensions *dimensionuc.Service,
	cache *cachemgmtuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:     search,
		dimensions: dimensions,
		cache:      cache,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRecipeNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, codeIndexUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingError),
	}
	return s
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.SearchRecipes)
		r.Get("/filters", s.ListFilters)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", s.CacheStats)
			r.Post("/warm", s.WarmCache)
			r.Post("/flush", s.FlushCache)
			r.Get("/keys", s.ListCacheKeys)
			r.Delete("/keys", s.InvalidateCacheKeys)
			r.Delete("/recipes/{id}", s.InvalidateRecipeCache)
		})
	})

	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// SearchRecipes handles POST /api/v1/search.
func (s *Server) SearchRecipes(w http.ResponseWriter, r *http.Request) {
	var dto searchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := searchRequestFromDTO(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	page, err := s.search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseToDTO(page))
}

// ListFilters handles GET /api/v1/filters.
func (s *Server) ListFilters(w http.ResponseWriter, r *http.Request) {
	dims, err := s.dimensions.ListActive(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]dimensionDTO, len(dims))
	for i, d := range dims {
		items[i] = dimensionToDTO(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"dimensions": items})
}

// CacheStats handles GET /api/v1/cache/stats.
func (s *Server) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}

// WarmCache handles POST /api/v1/cache/warm.
func (s *Server) WarmCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Warm(r.Context()))
}

// FlushCache handles POST /api/v1/cache/flush.
func (s *Server) FlushCache(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cache.Flush(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removedDTO{Removed: removed})
}

// ListCacheKeys handles GET /api/v1/cache/keys.
func (s *Server) ListCacheKeys(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "limit must be a positive integer")
			return
		}
		limit = n
	}

	keys, err := s.cache.ListKeys(r.Context(), pattern, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keysDTO{Keys: keys})
}

// InvalidateCacheKeys handles DELETE /api/v1/cache/keys?pattern=.
func (s *Server) InvalidateCacheKeys(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "pattern query parameter is required")
		return
	}

	removed, err := s.cache.InvalidatePattern(r.Context(), pattern)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removedDTO{Removed: removed})
}

// InvalidateRecipeCache handles DELETE /api/v1/cache/recipes/{id}.
func (s *Server) InvalidateRecipeCache(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "recipe id is required")
		return
	}

	removed, err := s.cache.InvalidateRecipe(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removedDTO{Removed: removed})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
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
	writeJSON(w, status, errorDTO{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrRecipeNotFound,
		domain.ErrNotFound,
		domain.ErrIndexUnavailable,
		domain.ErrEmbeddingProviderError,
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
