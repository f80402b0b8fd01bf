// Package server exposes the catalog search, the buyback quotes and the
// submission workflow as a JSON API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mtgban/go-buyback/buyback"
	"github.com/mtgban/go-buyback/idempotency"
	"github.com/mtgban/go-buyback/search"
	"github.com/mtgban/go-buyback/submission"
)

const (
	requestTimeout = 60 * time.Second
	maxBodySize    = 1 << 20

	idempotencyHeader = "Idempotency-Key"
)

type Server struct {
	LogCallback buyback.LogCallbackFunc

	// When set, submissions carrying an Idempotency-Key header are created
	// only once per key
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration

	engine *search.Engine
	store  submission.Store
	router chi.Router
}

func (s *Server) printf(format string, a ...interface{}) {
	if s.LogCallback != nil {
		s.LogCallback("[API] "+format, a...)
	}
}

// New creates the API server, allowedOrigins is the list of origins
// permitted to call it from a browser.
func New(engine *search.Engine, store submission.Store, allowedOrigins []string) *Server {
	s := &Server{
		engine: engine,
		store:  store,
		router: chi.NewRouter(),

		IdempotencyTTL: buyback.DefaultIdempotencyTTL,
	}

	s.setupMiddleware(allowedOrigins)
	s.setupRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware(allowedOrigins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", idempotencyHeader},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/games", s.handleGetGames)
		r.Get("/quote", s.handleGetQuote)

		// Catalogs
		r.Get("/{game}/search", s.handleSearch)
		r.Get("/{game}/prints", s.handlePrints)

		// Submissions
		r.Post("/submissions", s.handleCreateSubmission)
		r.Get("/submissions", s.handleListSubmissions)
		r.Get("/submissions/{id}", s.handleGetSubmission)
		r.Patch("/submissions/{id}", s.handleUpdateSubmission)
	})

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// The payload is encoded before writing the header, so that a value that
// cannot be encoded becomes a 500 instead of an empty reply
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		s.printf("failed to encode response: %s", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
