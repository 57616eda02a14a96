package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"messagely/internal/auth"
	"messagely/internal/httpserver"
	"messagely/internal/service"
)

// TokenIssuer mints tokens for authenticated users.
type TokenIssuer interface {
	Issue(username string) (string, error)
}

// Options holds the collaborators of the HTTP API.
type Options struct {
	Users          *service.UserService
	Messages       *service.MessageService
	Tokens         TokenIssuer
	Gate           *auth.Gate
	Authorizer     *auth.Authorizer
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server represents the HTTP API server
type Server struct {
	users          *service.UserService
	messages       *service.MessageService
	tokens         TokenIssuer
	gate           *auth.Gate
	authz          *auth.Authorizer
	allowedOrigins []string
	logger         zerolog.Logger
}

// NewServer creates a new HTTP API server
func NewServer(opts Options) *Server {
	return &Server{
		users:          opts.Users,
		messages:       opts.Messages,
		tokens:         opts.Tokens,
		gate:           opts.Gate,
		authz:          opts.Authorizer,
		allowedOrigins: opts.AllowedOrigins,
		logger:         opts.Logger.With().Str("component", "httpapi").Logger(),
	}
}

// Handler builds the router with every route and middleware.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.Use(s.corsMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(metricsMiddleware)
	router.Use(s.gate.Middleware)

	// Public routes
	router.HandleFunc("/auth/register", s.handleRegister).Methods("POST", "OPTIONS")
	router.HandleFunc("/auth/login", s.handleLogin).Methods("POST", "OPTIONS")
	router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Users
	router.HandleFunc("/users", s.protect(s.handleListUsers, loggedIn)).Methods("GET", "OPTIONS")
	router.HandleFunc("/users/{username}", s.protect(s.handleGetUser, sameUser)).Methods("GET", "OPTIONS")
	router.HandleFunc("/users/{username}/to", s.protect(s.handleMessagesTo, sameUser)).Methods("GET", "OPTIONS")
	router.HandleFunc("/users/{username}/from", s.protect(s.handleMessagesFrom, sameUser)).Methods("GET", "OPTIONS")

	// Messages
	router.HandleFunc("/messages", s.protect(s.handleCreateMessage, loggedIn)).Methods("POST", "OPTIONS")
	router.HandleFunc("/messages/{id:[0-9]+}", s.protect(s.handleGetMessage, s.participant)).Methods("GET", "OPTIONS")
	router.HandleFunc("/messages/{id:[0-9]+}/read", s.protect(s.handleMarkRead, loggedIn, s.recipient)).Methods("POST", "OPTIONS")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("Not found", http.StatusNotFound))
	})
	return router
}

// Start serves the API on addr until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info().Str("addr", addr).Msg("HTTP API server starting")
	return httpserver.Serve(ctx, addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
