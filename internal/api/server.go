// Package api exposes the metadata cache over HTTP. Handlers own the
// lookup-with-refresh decision: a fresh cached record is returned as-is, a
// stale or absent one triggers a refresh, and a failed refresh falls back to
// whatever cached record exists rather than surfacing an error.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/1001-digital/ponder-artifacts/internal/models"
)

// ArtifactService is the cache core the handlers drive.
type ArtifactService interface {
	GetToken(ctx context.Context, collection, tokenID string) (*models.TokenRecord, error)
	RefreshToken(ctx context.Context, collection, tokenID string) error
	GetCollection(ctx context.Context, address string) (*models.CollectionRecord, error)
	RefreshCollection(ctx context.Context, address string) error
	IsFresh(updatedAt int64) bool
}

// Server is the HTTP API server.
type Server struct {
	router  *mux.Router
	service ArtifactService
	address string
	server  *http.Server
	log     zerolog.Logger
}

// NewServer creates the API server around a cache service.
func NewServer(address string, service ArtifactService, logger zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		service: service,
		address: address,
		log:     logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

// Router returns the configured handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/tokens/{collection}/{tokenId}", s.handleGetToken).Methods("GET")
	v1.HandleFunc("/tokens/{collection}/{tokenId}/refresh", s.handleRefreshToken).Methods("POST")
	v1.HandleFunc("/collections/{collection}", s.handleGetCollection).Methods("GET")
	v1.HandleFunc("/collections/{collection}/refresh", s.handleRefreshCollection).Methods("POST")
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "ponder-artifacts",
	})
}

// handleGetToken serves a token record, refreshing it first when the cached
// copy is stale or absent.
func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	collection, tokenID, ok := s.tokenParams(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	cached, err := s.service.GetToken(ctx, collection, tokenID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read cached metadata", err)
		return
	}

	if cached != nil && s.service.IsFresh(cached.UpdatedAt) {
		s.writeJSON(w, http.StatusOK, cached)
		return
	}

	if err := s.service.RefreshToken(ctx, collection, tokenID); err != nil {
		// A stale record beats an error when one exists.
		if cached != nil {
			s.log.Warn().Err(err).Str("collection", collection).Str("token_id", tokenID).Msg("refresh failed, serving stale record")
			s.writeJSON(w, http.StatusOK, cached)
			return
		}
		s.writeError(w, http.StatusBadGateway, "failed to fetch token metadata", err)
		return
	}

	s.respondWithToken(w, r, collection, tokenID)
}

// handleRefreshToken refreshes unconditionally, falling back to the cached
// record (stale or fresh) when the refresh fails.
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	collection, tokenID, ok := s.tokenParams(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	cached, err := s.service.GetToken(ctx, collection, tokenID)
	if err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Str("token_id", tokenID).Msg("cached record unavailable before forced refresh")
		cached = nil
	}

	if err := s.service.RefreshToken(ctx, collection, tokenID); err != nil {
		if cached != nil {
			s.log.Warn().Err(err).Str("collection", collection).Str("token_id", tokenID).Msg("forced refresh failed, serving previous record")
			s.writeJSON(w, http.StatusOK, cached)
			return
		}
		s.writeError(w, http.StatusBadGateway, "failed to fetch token metadata", err)
		return
	}

	s.respondWithToken(w, r, collection, tokenID)
}

func (s *Server) respondWithToken(w http.ResponseWriter, r *http.Request, collection, tokenID string) {
	record, err := s.service.GetToken(r.Context(), collection, tokenID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read refreshed metadata", err)
		return
	}
	if record == nil {
		s.writeError(w, http.StatusBadGateway, "failed to fetch token metadata", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// handleGetCollection mirrors handleGetToken at the contract level.
func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collectionParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	cached, err := s.service.GetCollection(ctx, collection)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read cached metadata", err)
		return
	}

	if cached != nil && s.service.IsFresh(cached.UpdatedAt) {
		s.writeJSON(w, http.StatusOK, cached)
		return
	}

	if err := s.service.RefreshCollection(ctx, collection); err != nil {
		if cached != nil {
			s.log.Warn().Err(err).Str("collection", collection).Msg("refresh failed, serving stale record")
			s.writeJSON(w, http.StatusOK, cached)
			return
		}
		s.writeError(w, http.StatusBadGateway, "failed to fetch collection metadata", err)
		return
	}

	s.respondWithCollection(w, r, collection)
}

func (s *Server) handleRefreshCollection(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.collectionParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	cached, err := s.service.GetCollection(ctx, collection)
	if err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Msg("cached record unavailable before forced refresh")
		cached = nil
	}

	if err := s.service.RefreshCollection(ctx, collection); err != nil {
		if cached != nil {
			s.log.Warn().Err(err).Str("collection", collection).Msg("forced refresh failed, serving previous record")
			s.writeJSON(w, http.StatusOK, cached)
			return
		}
		s.writeError(w, http.StatusBadGateway, "failed to fetch collection metadata", err)
		return
	}

	s.respondWithCollection(w, r, collection)
}

func (s *Server) respondWithCollection(w http.ResponseWriter, r *http.Request, collection string) {
	record, err := s.service.GetCollection(r.Context(), collection)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read refreshed metadata", err)
		return
	}
	if record == nil {
		s.writeError(w, http.StatusBadGateway, "failed to fetch collection metadata", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) tokenParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	vars := mux.Vars(r)
	collection := vars["collection"]
	tokenID := vars["tokenId"]

	if !models.IsValidAddress(collection) {
		s.writeError(w, http.StatusBadRequest, "invalid collection address", nil)
		return "", "", false
	}
	if id, ok := new(big.Int).SetString(tokenID, 10); !ok || id.Sign() < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid token id", nil)
		return "", "", false
	}
	return collection, tokenID, true
}

func (s *Server) collectionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	collection := mux.Vars(r)["collection"]
	if !models.IsValidAddress(collection) {
		s.writeError(w, http.StatusBadRequest, "invalid collection address", nil)
		return "", false
	}
	return collection, true
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError writes an error response in a consistent format. Underlying
// error detail stays in the logs; clients get a generic message.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		s.log.Error().Err(err).Int("status", statusCode).Msg(message)
	}
	s.writeJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

// recoveryMiddleware catches panics and returns proper JSON error responses
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error().Interface("panic", err).Str("method", r.Method).Str("path", r.URL.Path).Msg("panic in handler")
				s.writeError(w, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.address,
		Handler: s.router,

		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("address", s.address).Msg("starting API server")
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("shutting down API server")
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	return nil
}
